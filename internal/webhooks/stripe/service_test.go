package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/vowvendors-backend/internal/plancatalog"
	"github.com/angelmondragon/vowvendors-backend/internal/subscriptions"
	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

type syncCall struct {
	kind   string
	change subscriptions.Change
	snap   subscriptions.Snapshot
	end    time.Time
}

type stubSyncer struct {
	calls   []syncCall
	outcome subscriptions.Outcome
	err     error
}

func (s *stubSyncer) ApplySubscription(_ context.Context, change subscriptions.Change, snap subscriptions.Snapshot) (subscriptions.Outcome, error) {
	s.calls = append(s.calls, syncCall{kind: "apply", change: change, snap: snap})
	return s.result()
}

func (s *stubSyncer) ClearSubscription(_ context.Context, change subscriptions.Change) (subscriptions.Outcome, error) {
	s.calls = append(s.calls, syncCall{kind: "clear", change: change})
	return s.result()
}

func (s *stubSyncer) ExtendPeriod(_ context.Context, change subscriptions.Change, end time.Time) (subscriptions.Outcome, error) {
	s.calls = append(s.calls, syncCall{kind: "extend", change: change, end: end})
	return s.result()
}

func (s *stubSyncer) result() (subscriptions.Outcome, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.outcome == "" {
		return subscriptions.OutcomeApplied, nil
	}
	return s.outcome, nil
}

type stubProvider struct {
	snaps map[string]subscriptions.Snapshot
	err   error
}

func (p *stubProvider) Get(_ context.Context, id string) (subscriptions.Snapshot, error) {
	if p.err != nil {
		return subscriptions.Snapshot{}, p.err
	}
	snap, ok := p.snaps[id]
	if !ok {
		return subscriptions.Snapshot{}, fmt.Errorf("no such subscription %s", id)
	}
	return snap, nil
}

func newTestService(t *testing.T, provider *stubProvider, syncer *stubSyncer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Provider: provider, Syncer: syncer, Logger: logger.Nop()})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func checkoutEvent(t *testing.T, metadata map[string]string, subscriptionID string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":           "cs_test",
		"object":       "checkout.session",
		"metadata":     metadata,
		"subscription": subscriptionID,
	})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{
		ID:      "evt_checkout",
		Type:    stripe.EventTypeCheckoutSessionCompleted,
		Created: 1727773200,
		Data:    &stripe.EventData{Raw: raw},
	}
}

func subscriptionEvent(t *testing.T, eventType stripe.EventType, metadata map[string]string, periodEnd int64) *stripe.Event {
	t.Helper()
	sub := &stripe.Subscription{
		ID:       "sub_evt",
		Status:   stripe.SubscriptionStatusActive,
		Metadata: metadata,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				Price:            &stripe.Price{ID: "price_elite_y"},
				CurrentPeriodEnd: periodEnd,
			}},
		},
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal subscription: %v", err)
	}
	return &stripe.Event{
		ID:      "evt_sub",
		Type:    eventType,
		Created: 1727773200,
		Data:    &stripe.EventData{Raw: raw},
	}
}

func TestHandleCheckoutCompletedAppliesSubscription(t *testing.T) {
	userID := uuid.New()
	snap := subscriptions.Snapshot{ID: "sub_1", PriceID: "price_elite_y", PeriodEnd: time.Unix(1735689600, 0).UTC()}
	syncer := &stubSyncer{}
	svc := newTestService(t, &stubProvider{snaps: map[string]subscriptions.Snapshot{"sub_1": snap}}, syncer)

	outcome, err := svc.HandleEvent(context.Background(), checkoutEvent(t, map[string]string{"userId": userID.String()}, "sub_1"))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != metrics.WebhookOutcomeApplied {
		t.Fatalf("unexpected outcome %q", outcome)
	}
	if len(syncer.calls) != 1 || syncer.calls[0].kind != "apply" {
		t.Fatalf("expected one apply call, got %+v", syncer.calls)
	}
	call := syncer.calls[0]
	if call.change.UserID != userID {
		t.Fatalf("unexpected user id %s", call.change.UserID)
	}
	if !call.change.Stamp.Equal(time.Unix(1727773200, 0)) {
		t.Fatalf("stamp should come from event creation time, got %s", call.change.Stamp)
	}
	if call.snap.PriceID != "price_elite_y" {
		t.Fatalf("unexpected snapshot %+v", call.snap)
	}
}

func TestHandleCheckoutCompletedRequiresUserID(t *testing.T) {
	syncer := &stubSyncer{}
	svc := newTestService(t, &stubProvider{}, syncer)

	_, err := svc.HandleEvent(context.Background(), checkoutEvent(t, map[string]string{}, "sub_1"))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(syncer.calls) != 0 {
		t.Fatalf("no write expected, got %+v", syncer.calls)
	}
}

func TestHandleCheckoutCompletedCatalogMissIsServerError(t *testing.T) {
	userID := uuid.New()
	snap := subscriptions.Snapshot{ID: "sub_1", PriceID: "price_unknown", PeriodEnd: time.Now()}
	syncer := &stubSyncer{err: fmt.Errorf("resolve: %w", plancatalog.ErrPlanNotFound)}
	svc := newTestService(t, &stubProvider{snaps: map[string]subscriptions.Snapshot{"sub_1": snap}}, syncer)

	outcome, err := svc.HandleEvent(context.Background(), checkoutEvent(t, map[string]string{"userId": userID.String()}, "sub_1"))
	if err == nil {
		t.Fatal("expected error")
	}
	if pkgerrors.IsClientError(err) {
		t.Fatalf("catalog miss must surface as a server error, got %v", err)
	}
	if !errors.Is(err, plancatalog.ErrPlanNotFound) {
		t.Fatalf("expected wrapped catalog miss, got %v", err)
	}
	if outcome != metrics.WebhookOutcomeFailed {
		t.Fatalf("unexpected outcome %q", outcome)
	}
}

func TestHandleCheckoutCompletedProviderFailure(t *testing.T) {
	syncer := &stubSyncer{}
	svc := newTestService(t, &stubProvider{err: errors.New("stripe down")}, syncer)

	_, err := svc.HandleEvent(context.Background(), checkoutEvent(t, map[string]string{"userId": uuid.NewString()}, "sub_1"))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(syncer.calls) != 0 {
		t.Fatalf("no write expected")
	}
}

func TestHandleSubscriptionUpdatedExtendsPeriodOnly(t *testing.T) {
	userID := uuid.New()
	syncer := &stubSyncer{}
	svc := newTestService(t, &stubProvider{}, syncer)

	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, map[string]string{"userId": userID.String()}, 1767225600)
	outcome, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != metrics.WebhookOutcomeApplied {
		t.Fatalf("unexpected outcome %q", outcome)
	}
	if len(syncer.calls) != 1 || syncer.calls[0].kind != "extend" {
		t.Fatalf("expected one extend call, got %+v", syncer.calls)
	}
	if !syncer.calls[0].end.Equal(time.Unix(1767225600, 0)) {
		t.Fatalf("unexpected end date %s", syncer.calls[0].end)
	}
}

func TestHandleSubscriptionEventsWithoutUserIDAreSkipped(t *testing.T) {
	for _, eventType := range []stripe.EventType{
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted,
	} {
		syncer := &stubSyncer{}
		svc := newTestService(t, &stubProvider{}, syncer)

		outcome, err := svc.HandleEvent(context.Background(), subscriptionEvent(t, eventType, nil, 1767225600))
		if err != nil {
			t.Fatalf("%s: expected silent skip, got %v", eventType, err)
		}
		if outcome != metrics.WebhookOutcomeSkipped {
			t.Fatalf("%s: unexpected outcome %q", eventType, outcome)
		}
		if len(syncer.calls) != 0 {
			t.Fatalf("%s: no write expected", eventType)
		}
	}
}

func TestHandleSubscriptionDeletedClearsPlan(t *testing.T) {
	userID := uuid.New()
	syncer := &stubSyncer{outcome: subscriptions.OutcomeStale}
	svc := newTestService(t, &stubProvider{}, syncer)

	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionDeleted, map[string]string{"userId": userID.String()}, 1767225600)
	outcome, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if outcome != metrics.WebhookOutcomeStale {
		t.Fatalf("unexpected outcome %q", outcome)
	}
	if len(syncer.calls) != 1 || syncer.calls[0].kind != "clear" || syncer.calls[0].change.UserID != userID {
		t.Fatalf("expected clear call, got %+v", syncer.calls)
	}
}

func TestHandleUnknownEventTypeIsSkipped(t *testing.T) {
	syncer := &stubSyncer{}
	svc := newTestService(t, &stubProvider{}, syncer)

	outcome, err := svc.HandleEvent(context.Background(), &stripe.Event{
		Type: stripe.EventTypeInvoicePaid,
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	})
	if err != nil || outcome != metrics.WebhookOutcomeSkipped {
		t.Fatalf("expected skip, got %q %v", outcome, err)
	}
}
