package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vmachado/lojapos-backend/internal/cron"
	"github.com/vmachado/lojapos-backend/internal/inventory"
	"github.com/vmachado/lojapos-backend/internal/ordernumber"
	"github.com/vmachado/lojapos-backend/pkg/broadcast"
	"github.com/vmachado/lojapos-backend/pkg/config"
	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/kvstore"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/metrics"
	"github.com/vmachado/lojapos-backend/pkg/migrate"
	"github.com/vmachado/lojapos-backend/pkg/outbox"
	"github.com/vmachado/lojapos-backend/pkg/redis"
)

const lockKeyFormat = "lp:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	store, err := kvstore.NewRedis(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create kv store", err)
		os.Exit(1)
	}
	bcast, err := broadcast.NewRedis(redisClient, cfg.Counter.Channel, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create broadcaster", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:    inventory.NewRepository(dbClient.DB()),
		DB:      dbClient,
		Store:   store,
		Outbox:  outboxSvc,
		Logger:  logg,
		CartTTL: cfg.Inventory.CartReservationTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	allocator, err := ordernumber.NewService(ordernumber.ServiceParams{
		Store:     store,
		Broadcast: bcast,
		Logger:    logg,
		Attempts:  cfg.Counter.ClaimAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order number allocator", err)
		os.Exit(1)
	}

	jobs, err := buildJobs(cfg, logg, dbClient, inventorySvc, allocator)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, fmt.Sprintf(lockKeyFormat, cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, inventorySvc inventory.Service, allocator ordernumber.Service) ([]cron.Job, error) {
	sweep, err := cron.NewReservationSweepJob(cron.ReservationSweepJobParams{
		Logger:    logg,
		Inventory: inventorySvc,
	})
	if err != nil {
		return nil, err
	}

	movementRetention, err := cron.NewMovementRetentionJob(cron.MovementRetentionJobParams{
		Logger:    logg,
		Inventory: inventorySvc,
		Retention: cfg.Inventory.MovementRetentionDays,
	})
	if err != nil {
		return nil, err
	}

	counterReset, err := cron.NewCounterResetJob(cron.CounterResetJobParams{
		Logger:    logg,
		Allocator: allocator,
	})
	if err != nil {
		return nil, err
	}

	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	return []cron.Job{sweep, movementRetention, counterReset, outboxRetention}, nil
}
