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
	"github.com/cchriscode/ticketcore/internal/kafka"
	"github.com/cchriscode/ticketcore/internal/lock"
	"github.com/cchriscode/ticketcore/internal/logger"
	"github.com/cchriscode/ticketcore/internal/payment"
	"github.com/cchriscode/ticketcore/internal/queue"
	"github.com/cchriscode/ticketcore/internal/repository"
	"github.com/cchriscode/ticketcore/internal/saga"
	"github.com/cchriscode/ticketcore/internal/scheduler"
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

	zlog := logger.New(cfg.Log.Level, "ticketcore-worker")

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
	processedRepo := repository.NewProcessedEventRepository(pool)

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

	gateway := saga.NewGateway(
		reservationSvc,
		saga.NewPGLedger(pool, processedRepo),
		producer,
		saga.Topics{
			Transfers:   cfg.Kafka.TransfersTopic,
			Memberships: cfg.Kafka.MembershipsTopic,
			DeadLetter:  cfg.Kafka.DeadLetterTopic,
		},
		cfg.Kafka.MaxRetries,
		zlog,
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.PaymentsTopic,
		cfg.Kafka.Heartbeat(), cfg.Kafka.SessionTimeout())
	defer consumer.Close()

	go func() {
		if err := consumer.Consume(ctx, gateway.HandleMessage); err != nil && ctx.Err() == nil {
			zlog.Error().Err(err).Msg("consumer stopped")
		}
	}()

	runner := scheduler.NewRunner(zlog,
		scheduler.ExpiryJob(reservationSvc, time.Duration(cfg.Worker.ExpirySweepSeconds)*time.Second, zlog),
		scheduler.ReconcileJob(reservationSvc, cfg.Reservation.GracePeriod(), time.Duration(cfg.Worker.ReconcileSweepMinutes)*time.Minute, zlog),
		scheduler.QueueSweepJob(admission, eventRepo, cfg.Queue.Capacity, time.Duration(cfg.Worker.QueueSweepSeconds)*time.Second, zlog),
		scheduler.LedgerPurgeJob(processedRepo, time.Duration(cfg.Worker.LedgerRetentionHours)*time.Hour, time.Duration(cfg.Worker.LedgerPurgeIntervalHours)*time.Hour, zlog),
	)
	runner.Start(ctx)

	<-ctx.Done()
	zlog.Info().Msg("shutting down")
	runner.Wait()
}
