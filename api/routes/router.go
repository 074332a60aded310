package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/vowvendors-backend/api/controllers"
	jobcontrollers "github.com/angelmondragon/vowvendors-backend/api/controllers/jobs"
	plancontrollers "github.com/angelmondragon/vowvendors-backend/api/controllers/plans"
	vendorcontrollers "github.com/angelmondragon/vowvendors-backend/api/controllers/vendors"
	webhookcontrollers "github.com/angelmondragon/vowvendors-backend/api/controllers/webhooks"
	"github.com/angelmondragon/vowvendors-backend/api/middleware"
	"github.com/angelmondragon/vowvendors-backend/internal/cron"
	"github.com/angelmondragon/vowvendors-backend/internal/plancatalog"
	"github.com/angelmondragon/vowvendors-backend/internal/subscriptions"
	stripewebhook "github.com/angelmondragon/vowvendors-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/metrics"
	"github.com/angelmondragon/vowvendors-backend/pkg/stripe"
)

// RouterParams carries everything the HTTP surface is wired from.
type RouterParams struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis controllers.Pinger
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer

	StripeClient   *stripe.Client
	WebhookService *stripewebhook.Service
	WebhookGuard   *stripewebhook.IdempotencyGuard
	WebhookMetrics *metrics.WebhookMetrics

	Reconciler     *subscriptions.Reconciler
	ReconcileLocks cron.LockFactory
	Plans          plancatalog.Repository
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}, logg))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(
			p.WebhookService,
			p.StripeClient,
			p.WebhookGuard,
			p.WebhookMetrics,
			cfg.Webhook.MaxBodyBytes,
			logg,
		))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", plancontrollers.PlansList(p.Plans, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.RoleScheduler, enums.RoleAdmin))
			r.Post("/jobs/verify-subscriptions", jobcontrollers.VerifySubscriptions(p.Reconciler, p.ReconcileLocks, cfg.Cron.LockTTL, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Post("/vendors/resync", vendorcontrollers.AdminVendorResync(p.Reconciler, logg))
	})

	return r
}
