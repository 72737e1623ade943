package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Lock        LockConfig        `yaml:"lock"`
	Queue       QueueConfig       `yaml:"queue"`
	Reservation ReservationConfig `yaml:"reservation"`
	Payment     PaymentConfig     `yaml:"payment"`
	Worker      WorkerConfig      `yaml:"worker"`
	Log         LogConfig         `yaml:"log"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	ReservationsTopic string   `yaml:"reservations_topic"`
	PaymentsTopic     string   `yaml:"payments_topic"`
	TransfersTopic    string   `yaml:"transfers_topic"`
	MembershipsTopic  string   `yaml:"memberships_topic"`
	DeadLetterTopic   string   `yaml:"dead_letter_topic"`
	GroupID           string   `yaml:"group_id"`
	MaxRetries        int      `yaml:"max_retries"`
	HeartbeatSeconds  int      `yaml:"heartbeat_seconds"`
	SessionSeconds    int      `yaml:"session_timeout_seconds"`
}

func (k KafkaConfig) Heartbeat() time.Duration {
	return time.Duration(k.HeartbeatSeconds) * time.Second
}

func (k KafkaConfig) SessionTimeout() time.Duration {
	return time.Duration(k.SessionSeconds) * time.Second
}

type LockConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

func (l LockConfig) TTL() time.Duration { return time.Duration(l.TTLSeconds) * time.Second }

type QueueConfig struct {
	Capacity                int `yaml:"capacity"`
	HeartbeatTTLSeconds     int `yaml:"heartbeat_ttl_seconds"`
	AdmissionWindowSeconds  int `yaml:"admission_window_seconds"`
	EstimatedSecondsPerSlot int `yaml:"estimated_seconds_per_slot"`
}

func (q QueueConfig) HeartbeatTTL() time.Duration {
	return time.Duration(q.HeartbeatTTLSeconds) * time.Second
}

func (q QueueConfig) AdmissionWindow() time.Duration {
	return time.Duration(q.AdmissionWindowSeconds) * time.Second
}

type ReservationConfig struct {
	LeaseMinutes       int `yaml:"lease_minutes"`
	GracePeriodMinutes int `yaml:"grace_period_minutes"`
	CatalogCacheTTL    int `yaml:"catalog_cache_ttl_seconds"`
}

func (r ReservationConfig) Lease() time.Duration {
	return time.Duration(r.LeaseMinutes) * time.Minute
}

func (r ReservationConfig) GracePeriod() time.Duration {
	return time.Duration(r.GracePeriodMinutes) * time.Minute
}

type PaymentConfig struct {
	BaseURL             string `yaml:"base_url"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	MaxRetries          int    `yaml:"max_retries"`
	BreakerThreshold    int    `yaml:"breaker_threshold"`
	BreakerResetSeconds int    `yaml:"breaker_reset_seconds"`
}

func (p PaymentConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p PaymentConfig) BreakerReset() time.Duration {
	return time.Duration(p.BreakerResetSeconds) * time.Second
}

type WorkerConfig struct {
	ExpirySweepSeconds       int `yaml:"expiry_sweep_seconds"`
	ReconcileSweepMinutes    int `yaml:"reconcile_sweep_minutes"`
	QueueSweepSeconds        int `yaml:"queue_sweep_seconds"`
	LedgerRetentionHours     int `yaml:"ledger_retention_hours"`
	LedgerPurgeIntervalHours int `yaml:"ledger_purge_interval_hours"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
