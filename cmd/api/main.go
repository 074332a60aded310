package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vowvendors-backend/api/routes"
	"github.com/angelmondragon/vowvendors-backend/internal/cron"
	"github.com/angelmondragon/vowvendors-backend/internal/plancatalog"
	"github.com/angelmondragon/vowvendors-backend/internal/subscriptions"
	"github.com/angelmondragon/vowvendors-backend/internal/vendors"
	stripewebhook "github.com/angelmondragon/vowvendors-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/db"
	"github.com/angelmondragon/vowvendors-backend/pkg/env"
	"github.com/angelmondragon/vowvendors-backend/pkg/instance"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/metrics"
	"github.com/angelmondragon/vowvendors-backend/pkg/migrate"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox"
	"github.com/angelmondragon/vowvendors-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/vowvendors-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := cfg.Stripe.Validate(); err != nil {
		logg.Error(context.Background(), "billing configuration incomplete", err)
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

	planRepo := plancatalog.NewRepository(dbClient.DB())
	catalog, err := plancatalog.NewCachedCatalog(plancatalog.CachedCatalogParams{
		Next:   planRepo,
		Store:  redisClient,
		TTL:    cfg.PlanCatalog.CacheTTL,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan catalog", err)
		os.Exit(1)
	}

	vendorRepo := vendors.NewRepository(dbClient.DB())
	syncer, err := subscriptions.NewSyncer(subscriptions.SyncerParams{
		DB:      dbClient,
		Vendors: vendorRepo,
		Catalog: catalog,
		Outbox:  outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
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

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Provider: provider,
		Syncer:   syncer,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, stripewebhook.DefaultScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	reconcileLocks, err := cron.NewRedisLockFactory(redisClient, redisClient.LockKey(cron.SchedulerLockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile lock", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Gatherer:       prometheus.DefaultGatherer,
			StripeClient:   stripeClient,
			WebhookService: webhookService,
			WebhookGuard:   webhookGuard,
			WebhookMetrics: metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
			Reconciler:     reconciler,
			ReconcileLocks: reconcileLocks,
			Plans:          planRepo,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}
