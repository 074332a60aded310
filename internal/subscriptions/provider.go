package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MetadataUserIDKey is the metadata field carrying the account id on
// checkout sessions and subscriptions.
const MetadataUserIDKey = "userId"

// ErrNoActiveSubscription is returned when a customer has no active subscription.
var ErrNoActiveSubscription = errors.New("no active subscription")

// Snapshot is the provider-neutral view of one subscription.
type Snapshot struct {
	ID         string
	CustomerID string
	Status     string
	PriceID    string
	PeriodEnd  time.Time
	Metadata   map[string]string
}

// UserID returns the account id stored in the subscription metadata.
func (s Snapshot) UserID() string {
	return UserIDFromMetadata(s.Metadata)
}

// UserIDFromMetadata reads the account id, tolerating surrounding whitespace.
func UserIDFromMetadata(metadata map[string]string) string {
	if metadata == nil {
		return ""
	}
	return strings.TrimSpace(metadata[MetadataUserIDKey])
}

// Provider reads subscription state from the billing provider.
type Provider interface {
	Get(ctx context.Context, subscriptionID string) (Snapshot, error)
	// LatestActiveForCustomer returns the most recent active subscription or
	// ErrNoActiveSubscription.
	LatestActiveForCustomer(ctx context.Context, customerID string) (Snapshot, error)
}
