package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgstripe "github.com/angelmondragon/vowvendors-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
)

const stripeStatusActive = "active"

type retrieveFunc func(ctx context.Context, id string) (*stripe.Subscription, error)

type listFunc func(ctx context.Context, params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error)

// StripeProvider implements Provider against the Stripe subscriptions API.
// Every call runs under its own timeout.
type StripeProvider struct {
	retrieve retrieveFunc
	list     listFunc
	timeout  time.Duration
}

// NewStripeProvider wraps the configured Stripe client.
func NewStripeProvider(client *pkgstripe.Client) (*StripeProvider, error) {
	api := client.API()
	if api == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeProvider{
		retrieve: func(ctx context.Context, id string) (*stripe.Subscription, error) {
			return api.V1Subscriptions.Retrieve(ctx, id, nil)
		},
		list: func(ctx context.Context, params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error) {
			var out []*stripe.Subscription
			for sub, err := range api.V1Subscriptions.List(ctx, params) {
				if err != nil {
					return nil, err
				}
				out = append(out, sub)
				if params.Limit != nil && int64(len(out)) >= *params.Limit {
					break
				}
			}
			return out, nil
		},
		timeout: client.RequestTimeout(),
	}, nil
}

func (p *StripeProvider) Get(ctx context.Context, subscriptionID string) (Snapshot, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return Snapshot{}, errors.New("subscription id required")
	}
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	sub, err := p.retrieve(callCtx, subscriptionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("retrieve stripe subscription %s: %w", subscriptionID, err)
	}
	return SnapshotFromStripe(sub)
}

func (p *StripeProvider) LatestActiveForCustomer(ctx context.Context, customerID string) (Snapshot, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Snapshot{}, errors.New("customer id required")
	}
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(stripeStatusActive),
	}
	params.Limit = stripe.Int64(1)

	subs, err := p.list(callCtx, params)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list stripe subscriptions: %w", err)
	}
	for _, sub := range subs {
		if sub != nil && string(sub.Status) == stripeStatusActive {
			return SnapshotFromStripe(sub)
		}
	}
	return Snapshot{}, ErrNoActiveSubscription
}

func (p *StripeProvider) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// SnapshotFromStripe reads price and period end from the first subscription item.
func SnapshotFromStripe(sub *stripe.Subscription) (Snapshot, error) {
	if sub == nil {
		return Snapshot{}, errors.New("stripe subscription is nil")
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return Snapshot{}, fmt.Errorf("stripe subscription %s has no items", sub.ID)
	}
	item := sub.Items.Data[0]
	if item.Price == nil || item.Price.ID == "" {
		return Snapshot{}, fmt.Errorf("stripe subscription %s has no price", sub.ID)
	}
	if item.CurrentPeriodEnd <= 0 {
		return Snapshot{}, fmt.Errorf("stripe subscription %s has no period end", sub.ID)
	}
	snap := Snapshot{
		ID:        sub.ID,
		Status:    string(sub.Status),
		PriceID:   item.Price.ID,
		PeriodEnd: time.Unix(item.CurrentPeriodEnd, 0).UTC(),
		Metadata:  sub.Metadata,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	return snap, nil
}
