package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vowvendors-backend/internal/cron"
	"github.com/angelmondragon/vowvendors-backend/internal/plancatalog"
	"github.com/angelmondragon/vowvendors-backend/internal/subscriptions"
	"github.com/angelmondragon/vowvendors-backend/internal/vendors"
	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/db"
	"github.com/angelmondragon/vowvendors-backend/pkg/instance"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/metrics"
	"github.com/angelmondragon/vowvendors-backend/pkg/migrate"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox"
	"github.com/angelmondragon/vowvendors-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/vowvendors-backend/pkg/stripe"
)

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

	// the worker never verifies signatures, only the API key matters here
	if cfg.Stripe.APIKey == "" {
		logg.Error(context.Background(), "billing configuration incomplete", errors.New(config.EnvStripeAPIKey+" is required"))
		os.Exit(1)
	}

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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	provider, err := subscriptions.NewStripeProvider(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing provider", err)
		os.Exit(1)
	}

	catalog, err := plancatalog.NewCachedCatalog(plancatalog.CachedCatalogParams{
		Next:   plancatalog.NewRepository(dbClient.DB()),
		Store:  redisClient,
		TTL:    cfg.PlanCatalog.CacheTTL,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan catalog", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	vendorRepo := vendors.NewRepository(dbClient.DB())
	syncer, err := subscriptions.NewSyncer(subscriptions.SyncerParams{
		DB:      dbClient,
		Vendors: vendorRepo,
		Catalog: catalog,
		Outbox:  outbox.NewService(outboxRepo, logg),
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription syncer", err)
		os.Exit(1)
	}

	reconciler, err := subscriptions.NewReconciler(subscriptions.ReconcilerParams{
		Vendors:       vendorRepo,
		Provider:      provider,
		Syncer:        syncer,
		Metrics:       metrics.NewReconcileMetrics(prometheus.DefaultRegisterer),
		Logger:        logg,
		VendorTimeout: cfg.Reconcile.VendorTimeout,
		StampSkew:     cfg.Reconcile.StampSkew,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.SchedulerLockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	verifyJob, err := cron.NewVerifySubscriptionsJob(cron.VerifySubscriptionsJobParams{
		Logger:     logg,
		Reconciler: reconciler,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create verify subscriptions job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   cfg.Outbox.RetentionDays,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	for _, job := range []cron.Job{verifyJob, retentionJob} {
		if err := registry.Register(job); err != nil {
			logg.Error(context.Background(), "failed to register cron job", err)
			os.Exit(1)
		}
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Schedule: cfg.Cron.Schedule,
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
		"instance":    instance.ID(),
		"schedule":    cfg.Cron.Schedule,
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
