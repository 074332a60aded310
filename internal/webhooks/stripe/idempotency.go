package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/vowvendors-backend/pkg/redis"
)

// DefaultScope namespaces Stripe event ids in the idempotency keyspace.
const DefaultScope = "stripe_webhook"

// An in-flight mark only outlives the handler by a few minutes, so a
// delivery whose process died mid-write is accepted again on retry.
const processingTTL = 5 * time.Minute

// IdempotencyGuard marks Stripe event ids as seen so provider retries of an
// already applied delivery are acknowledged without a second write. Marks
// start short-lived and are extended by Confirm once the event is applied.
type IdempotencyGuard struct {
	store         redis.IdempotencyStore
	ttl           time.Duration
	processingTTL time.Duration
	scope         string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		scope = DefaultScope
	}
	return &IdempotencyGuard{
		store:         store,
		ttl:           ttl,
		processingTTL: min(processingTTL, ttl),
		scope:         scope,
	}, nil
}

// CheckAndMark returns true when eventID was already marked. A new mark
// holds only for the processing window until Confirm is called.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.processingTTL)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Confirm keeps the mark for the full retention window after the event was
// applied. A mark that lapsed during a slow handler is written again.
func (g *IdempotencyGuard) Confirm(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	extended, err := g.store.Expire(ctx, key, g.ttl)
	if err != nil {
		return fmt.Errorf("extend idempotency key: %w", err)
	}
	if extended {
		return nil
	}
	if _, err := g.store.SetNX(ctx, key, "1", g.ttl); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

// Delete releases the mark so the provider's retry is processed.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	return g.store.Del(ctx, key)
}
