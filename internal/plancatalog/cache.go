package plancatalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/vowvendors-backend/pkg/redis"
)

const cacheScope = "plan_catalog"

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(scope, id string) string
}

// CachedCatalogParams configures NewCachedCatalog.
type CachedCatalogParams struct {
	Next   Catalog
	Store  cacheStore
	TTL    time.Duration
	Logger *logger.Logger
}

// CachedCatalog is a Redis read-through cache in front of another Catalog.
// Misses are never cached so a newly added price resolves on the next call.
type CachedCatalog struct {
	next  Catalog
	store cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCachedCatalog returns params.Next unchanged when caching is disabled.
func NewCachedCatalog(params CachedCatalogParams) (Catalog, error) {
	if params.Next == nil {
		return nil, errors.New("next catalog required")
	}
	if params.Store == nil || params.TTL <= 0 {
		return params.Next, nil
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &CachedCatalog{
		next:  params.Next,
		store: params.Store,
		ttl:   params.TTL,
		logg:  params.Logger,
	}, nil
}

func (c *CachedCatalog) Lookup(ctx context.Context, priceID string) (Plan, error) {
	key := c.store.CacheKey(cacheScope, priceID)
	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var plan Plan
		if jsonErr := json.Unmarshal([]byte(raw), &plan); jsonErr == nil {
			return plan, nil
		}
		c.logg.Warn(c.logg.WithField(ctx, "price_id", priceID), "discarding malformed plan cache entry")
	case !pkgredis.IsNil(err):
		logCtx := c.logg.WithFields(ctx, map[string]any{"price_id": priceID, "error": err.Error()})
		c.logg.Warn(logCtx, "plan cache read failed; falling back to catalog")
	}

	plan, err := c.next.Lookup(ctx, priceID)
	if err != nil {
		return Plan{}, err
	}
	if payload, jsonErr := json.Marshal(plan); jsonErr == nil {
		if setErr := c.store.Set(ctx, key, string(payload), c.ttl); setErr != nil {
			c.logg.Warn(c.logg.WithField(ctx, "price_id", priceID), "plan cache write failed")
		}
	}
	return plan, nil
}
