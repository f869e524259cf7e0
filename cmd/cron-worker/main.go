package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-settlement/internal/app"
	"github.com/angelmondragon/storefront-settlement/internal/cron"
	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/migrate"
	"github.com/angelmondragon/storefront-settlement/pkg/redis"
)

const lockNameFormat = "settlement-cron:%s"

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

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

	services, err := app.NewServices(app.ServicesParams{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient.DB(),
		Tx:          dbClient,
		Idempotency: redisClient,
		Metrics:     metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire settlement services", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, services)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(registry.Jobs()),
	})

	if *once {
		logg.Info(ctx, "running settlement jobs once")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "settlement jobs failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *app.Services) (*cron.Registry, error) {
	promotion, err := cron.NewWalletPromotionJob(cron.WalletPromotionJobParams{
		Logger:       logg,
		Ledger:       services.Ledger,
		ReturnWindow: cfg.Settlement.ReturnWindow,
		BatchSize:    cfg.Settlement.PromotionBatchSize,
	})
	if err != nil {
		return nil, err
	}
	reconciliation, err := cron.NewLedgerReconciliationJob(cron.LedgerReconciliationJobParams{
		Logger: logg,
		Ledger: services.Ledger,
	})
	if err != nil {
		return nil, err
	}
	expiry, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger: logg,
		Orders: services.Orders,
		Reader: services.OrderRepo,
		TTL:    cfg.Settlement.UnpaidOrderTTL,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: services.Outbox,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	registry.Register(promotion, cfg.Cron.PromotionEvery)
	registry.Register(reconciliation, cfg.Cron.ReconciliationEvery)
	registry.Register(expiry, cfg.Cron.ExpiryEvery)
	registry.Register(retention, cfg.Cron.RetentionEvery)
	return registry, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}
