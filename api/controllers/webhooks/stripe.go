package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/vowvendors-backend/api/responses"
	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/metrics"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const (
	signatureHeader  = "Stripe-Signature"
	unknownEventType = "unknown"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (string, error)
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Confirm(ctx context.Context, eventID string) error
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type webhookRecorder interface {
	Observe(eventType, outcome string)
}

// StripeWebhook receives Stripe subscription lifecycle events. The signature
// is verified before anything else runs; a request that fails verification
// never reaches the service.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, recorder webhookRecorder, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil {
			responses.WriteWebhookError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook receiver not configured"))
			return
		}

		secret := strings.TrimSpace(client.SigningSecret())
		if secret == "" {
			observe(recorder, unknownEventType, metrics.WebhookOutcomeRejected)
			responses.WriteWebhookError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook secret not configured"))
			return
		}

		sigHeader := r.Header.Get(signatureHeader)
		if sigHeader == "" {
			observe(recorder, unknownEventType, metrics.WebhookOutcomeRejected)
			responses.WriteWebhookError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		body := r.Body
		if maxBodyBytes > 0 {
			body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		payload, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			code := pkgerrors.CodeInternal
			if errors.As(err, &tooLarge) {
				code = pkgerrors.CodeValidation
			}
			observe(recorder, unknownEventType, metrics.WebhookOutcomeRejected)
			responses.WriteWebhookError(ctx, logg, w, pkgerrors.Wrap(code, err, "read request body"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			observe(recorder, unknownEventType, metrics.WebhookOutcomeRejected)
			responses.WriteWebhookError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stripe signature verification failed"))
			return
		}

		eventType := string(event.Type)
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event_id":   event.ID,
				"event_type": eventType,
			})
		}

		marked := false
		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, event.ID)
			marked = err == nil && !seen
			switch {
			case err != nil:
				// Handlers overwrite whole fields, so a second delivery is harmless.
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "idempotency check failed; processing event")
				}
			case seen:
				observe(recorder, eventType, metrics.WebhookOutcomeDuplicate)
				if logg != nil {
					logg.Info(ctx, "duplicate stripe event acknowledged")
				}
				responses.WriteWebhookAck(w)
				return
			}
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if guard != nil {
				if delErr := guard.Delete(ctx, event.ID); delErr != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "error", delErr.Error()), "release idempotency key failed")
				}
			}
			if outcome == "" {
				outcome = metrics.WebhookOutcomeFailed
			}
			observe(recorder, eventType, outcome)
			responses.WriteWebhookError(ctx, logg, w, err)
			return
		}

		if marked {
			if confirmErr := guard.Confirm(ctx, event.ID); confirmErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", confirmErr.Error()), "confirm idempotency key failed")
			}
		}

		observe(recorder, eventType, outcome)
		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", outcome), "stripe event processed")
		}
		responses.WriteWebhookAck(w)
	}
}

func observe(recorder webhookRecorder, eventType, outcome string) {
	if recorder == nil {
		return
	}
	recorder.Observe(eventType, outcome)
}
