package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/vowvendors-backend/internal/plancatalog"
	"github.com/angelmondragon/vowvendors-backend/internal/subscriptions"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

type subscriptionSyncer interface {
	ApplySubscription(ctx context.Context, change subscriptions.Change, snap subscriptions.Snapshot) (subscriptions.Outcome, error)
	ClearSubscription(ctx context.Context, change subscriptions.Change) (subscriptions.Outcome, error)
	ExtendPeriod(ctx context.Context, change subscriptions.Change, end time.Time) (subscriptions.Outcome, error)
}

type subscriptionGetter interface {
	Get(ctx context.Context, subscriptionID string) (subscriptions.Snapshot, error)
}

type ServiceParams struct {
	Provider subscriptionGetter
	Syncer   subscriptionSyncer
	Logger   *logger.Logger
}

// Service applies Stripe subscription lifecycle events to vendor rows.
type Service struct {
	provider subscriptionGetter
	syncer   subscriptionSyncer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription provider required")
	}
	if params.Syncer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription syncer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		provider: params.Provider,
		syncer:   params.Syncer,
		logg:     params.Logger,
	}, nil
}

// HandleEvent dispatches on event type and returns a metrics outcome.
// Client-side problems come back as CodeValidation errors; everything else
// the provider should retry comes back with a server-side code.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (string, error) {
	if event == nil || event.Data == nil {
		return metrics.WebhookOutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})
	stamp := time.Unix(event.Created, 0).UTC()
	if event.Created <= 0 {
		stamp = time.Now().UTC()
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.checkoutCompleted(ctx, event, stamp)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		return s.subscriptionUpdated(ctx, event, stamp)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return s.subscriptionDeleted(ctx, event, stamp)
	default:
		s.logg.Info(ctx, "ignoring unhandled stripe event type")
		return metrics.WebhookOutcomeSkipped, nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, event *stripe.Event, stamp time.Time) (string, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return metrics.WebhookOutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	rawUserID := subscriptions.UserIDFromMetadata(session.Metadata)
	if rawUserID == "" {
		return metrics.WebhookOutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing metadata.userId")
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return metrics.WebhookOutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout session metadata.userId is not a uuid")
	}
	if session.Subscription == nil || strings.TrimSpace(session.Subscription.ID) == "" {
		return metrics.WebhookOutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no subscription")
	}
	ctx = s.logg.WithUserID(ctx, userID.String())

	snap, err := s.provider.Get(ctx, session.Subscription.ID)
	if err != nil {
		return metrics.WebhookOutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fetch subscription from stripe")
	}

	outcome, err := s.syncer.ApplySubscription(ctx, s.change(userID, stamp, snap.ID), snap)
	if errors.Is(err, plancatalog.ErrPlanNotFound) {
		return metrics.WebhookOutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "subscription price is not in the plan catalog")
	}
	if err != nil {
		return metrics.WebhookOutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply subscription")
	}
	return outcomeLabel(outcome), nil
}

// subscriptionUpdated only moves the end date. Plan changes made through the
// customer portal land with the next reconciliation pass.
func (s *Service) subscriptionUpdated(ctx context.Context, event *stripe.Event, stamp time.Time) (string, error) {
	sub, userID, ok, err := s.decodeSubscription(ctx, event)
	if err != nil || !ok {
		return skippedOrRejected(err)
	}
	snap, err := subscriptions.SnapshotFromStripe(sub)
	if err != nil {
		return metrics.WebhookOutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read subscription period")
	}

	outcome, err := s.syncer.ExtendPeriod(ctx, s.change(userID, stamp, sub.ID), snap.PeriodEnd)
	if err != nil {
		return metrics.WebhookOutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "extend subscription period")
	}
	return outcomeLabel(outcome), nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, event *stripe.Event, stamp time.Time) (string, error) {
	sub, userID, ok, err := s.decodeSubscription(ctx, event)
	if err != nil || !ok {
		return skippedOrRejected(err)
	}

	outcome, err := s.syncer.ClearSubscription(ctx, s.change(userID, stamp, sub.ID))
	if err != nil {
		return metrics.WebhookOutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear subscription")
	}
	return outcomeLabel(outcome), nil
}

// decodeSubscription reports ok=false when the event carries no usable
// metadata.userId; such events are acknowledged without touching any row.
func (s *Service) decodeSubscription(ctx context.Context, event *stripe.Event) (*stripe.Subscription, uuid.UUID, bool, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, uuid.Nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
	}
	rawUserID := subscriptions.UserIDFromMetadata(sub.Metadata)
	if rawUserID == "" {
		s.logg.Info(s.logg.WithField(ctx, "subscription_id", sub.ID), "subscription event without metadata.userId; skipping")
		return nil, uuid.Nil, false, nil
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"subscription_id": sub.ID, "user_id": rawUserID})
		s.logg.Warn(logCtx, "subscription event metadata.userId is not a uuid; skipping")
		return nil, uuid.Nil, false, nil
	}
	return &sub, userID, true, nil
}

func (s *Service) change(userID uuid.UUID, stamp time.Time, objectID string) subscriptions.Change {
	return subscriptions.Change{
		UserID:           userID,
		Source:           enums.SubscriptionSourceWebhook,
		Stamp:            stamp,
		ProviderObjectID: objectID,
	}
}

func skippedOrRejected(err error) (string, error) {
	if err != nil {
		return metrics.WebhookOutcomeRejected, err
	}
	return metrics.WebhookOutcomeSkipped, nil
}

func outcomeLabel(outcome subscriptions.Outcome) string {
	switch outcome {
	case subscriptions.OutcomeApplied:
		return metrics.WebhookOutcomeApplied
	case subscriptions.OutcomeStale:
		return metrics.WebhookOutcomeStale
	default:
		return metrics.WebhookOutcomeSkipped
	}
}
