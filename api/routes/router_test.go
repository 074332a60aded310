package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vowvendors-backend/pkg/auth"
	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "vowvendors", ExpirationMinutes: 5},
		Webhook: config.WebhookConfig{
			MaxBodyBytes: 65536,
		},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewRouter(RouterParams{
		Config:         testConfig(),
		Logger:         logger.Nop(),
		DB:             stubPinger{},
		Redis:          stubPinger{},
		Gatherer:       reg,
		WebhookMetrics: metrics.NewWebhookMetrics(reg),
	})
}

func bearer(t *testing.T, role enums.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(testConfig().JWT, time.Now(), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestRouterWebhookRequiresSignature(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewBufferString(`{"type":"customer.subscription.deleted"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRouterWebhookPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/webhooks/stripe", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "stripe-signature")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

func TestRouterProtectedRoutes(t *testing.T) {
	router := newTestRouter(t)

	cases := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{name: "jobs without token", path: "/api/v1/jobs/verify-subscriptions", status: http.StatusUnauthorized},
		{name: "jobs as vendor", path: "/api/v1/jobs/verify-subscriptions", auth: bearer(t, enums.RoleVendor), status: http.StatusForbidden},
		{name: "resync without token", path: "/api/admin/v1/vendors/resync", status: http.StatusUnauthorized},
		{name: "resync as scheduler", path: "/api/admin/v1/vendors/resync", auth: bearer(t, enums.RoleScheduler), status: http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}
