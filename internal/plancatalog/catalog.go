package plancatalog

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
)

// ErrPlanNotFound is returned when a provider price has no catalog entry.
var ErrPlanNotFound = errors.New("price not found in plan catalog")

// Plan is the catalog view both subscription writers consume.
type Plan struct {
	PriceID         string                `json:"price_id"`
	PlanType        string                `json:"plan_type"`
	BillingInterval enums.BillingInterval `json:"billing_interval"`
}

// Catalog resolves provider price identifiers to internal plan tiers.
// Implementations are read-only.
type Catalog interface {
	Lookup(ctx context.Context, priceID string) (Plan, error)
}

// CatalogFunc adapts a function to Catalog.
type CatalogFunc func(ctx context.Context, priceID string) (Plan, error)

func (f CatalogFunc) Lookup(ctx context.Context, priceID string) (Plan, error) {
	return f(ctx, priceID)
}

// Static is an in-memory catalog keyed by price id.
type Static map[string]Plan

func (s Static) Lookup(_ context.Context, priceID string) (Plan, error) {
	plan, ok := s[strings.TrimSpace(priceID)]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}
