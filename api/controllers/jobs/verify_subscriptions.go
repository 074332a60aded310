package jobs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/angelmondragon/vowvendors-backend/api/responses"
	"github.com/angelmondragon/vowvendors-backend/internal/cron"
	"github.com/angelmondragon/vowvendors-backend/internal/subscriptions"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/types"
)

type subscriptionReconciler interface {
	Run(ctx context.Context) (subscriptions.Summary, error)
}

type verifySubscriptionsResponse struct {
	Message string `json:"message"`
	subscriptions.Summary
}

// VerifySubscriptions runs one reconciliation pass on demand. It shares the
// cron worker's lock, so a pass already in flight answers 409. The pass is
// detached from the caller's connection and bounded by maxRun instead.
func VerifySubscriptions(reconciler subscriptionReconciler, locks cron.LockFactory, maxRun time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reconciler == nil || locks == nil {
			writeJobError(ctx, logg, w, http.StatusInternalServerError, errors.New("reconciler not configured"))
			return
		}

		lock, err := locks()
		if err != nil {
			writeJobError(ctx, logg, w, http.StatusInternalServerError, err)
			return
		}

		runCtx := context.WithoutCancel(ctx)
		if maxRun > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, maxRun)
			defer cancel()
		}

		var summary subscriptions.Summary
		err = cron.WithLock(runCtx, lock, func(ctx context.Context) error {
			var runErr error
			summary, runErr = reconciler.Run(ctx)
			return runErr
		})
		switch {
		case errors.Is(err, cron.ErrLockHeld):
			writeJobError(ctx, logg, w, http.StatusConflict, err)
			return
		case err != nil:
			writeJobError(ctx, logg, w, http.StatusInternalServerError, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, verifySubscriptionsResponse{
			Message: "Subscription verification complete",
			Summary: summary,
		})
	}
}

func writeJobError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, status int, err error) {
	if logg != nil {
		logg.Error(ctx, "verify subscriptions failed", err)
	}
	responses.WriteJSON(w, status, types.MessageError{Error: err.Error()})
}
