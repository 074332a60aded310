package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/vowvendors-backend/api/responses"
	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
)

const (
	envHeader    = "X-VowVendors-Env"
	readyTimeout = 2 * time.Second
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency and reports 503 when any fails.
func HealthReady(cfg *config.Config, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var failed error
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				if failed == nil {
					failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable").
						WithDetails(checks)
				}
				continue
			}
			checks[name] = "up"
		}
		if failed != nil {
			responses.WriteError(r.Context(), logg, w, failed)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
