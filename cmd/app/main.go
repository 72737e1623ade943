package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cchriscode/ticketcore/config"
	"github.com/cchriscode/ticketcore/internal/bootstrap"
	"github.com/cchriscode/ticketcore/internal/cache"
	"github.com/cchriscode/ticketcore/internal/kafka"
	"github.com/cchriscode/ticketcore/internal/lock"
	"github.com/cchriscode/ticketcore/internal/logger"
	"github.com/cchriscode/ticketcore/internal/payment"
	"github.com/cchriscode/ticketcore/internal/queue"
	"github.com/cchriscode/ticketcore/internal/repository"
	"github.com/cchriscode/ticketcore/internal/service/catalog"
	"github.com/cchriscode/ticketcore/internal/service/reservation"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog := logger.New(cfg.Log.Level, "ticketcore-app")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		zlog.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	eventRepo := repository.NewEventRepository(pool)
	seatRepo := repository.NewSeatRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)

	locks := lock.NewManager(redisClient)
	admission := queue.NewController(
		redisClient,
		cfg.Queue.HeartbeatTTL(),
		cfg.Queue.AdmissionWindow(),
		time.Duration(cfg.Queue.EstimatedSecondsPerSlot)*time.Second,
		zlog,
	)
	payments := payment.NewHTTPClient(
		cfg.Payment.BaseURL,
		cfg.Payment.Timeout(),
		cfg.Payment.MaxRetries,
		cfg.Payment.BreakerThreshold,
		cfg.Payment.BreakerReset(),
		zlog,
	)

	eventCache := cache.NewEventCache(redisClient, time.Duration(cfg.Reservation.CatalogCacheTTL)*time.Second)
	catalogSvc := catalog.NewService(eventRepo, seatRepo, eventCache)
	reservationSvc := reservation.NewService(
		reservationRepo,
		seatRepo,
		locks,
		payments,
		producer,
		cfg.Kafka.ReservationsTopic,
		cfg.Lock.TTL(),
		cfg.Reservation.Lease(),
		zlog,
	)

	if err := bootstrap.Run(ctx, cfg, catalogSvc, reservationSvc, admission, admission, zlog); err != nil {
		zlog.Fatal().Err(err).Msg("server error")
	}
}
