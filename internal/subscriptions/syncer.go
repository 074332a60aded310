package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/vowvendors-backend/internal/plancatalog"
	"github.com/angelmondragon/vowvendors-backend/internal/vendors"
	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome describes what a single vendor write did.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeStale          Outcome = "stale"
	OutcomeVendorNotFound Outcome = "vendor_not_found"
	OutcomeNoPlan         Outcome = "no_plan"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Change identifies one write: whose row, which writer, and the provider
// observation time used for the stale-write guard.
type Change struct {
	UserID           uuid.UUID
	Source           enums.SubscriptionSource
	Stamp            time.Time
	ProviderObjectID string
}

type SyncerParams struct {
	DB      txRunner
	Vendors vendors.Repository
	Catalog plancatalog.Catalog
	Outbox  outboxEmitter
	Logger  *logger.Logger
}

// Syncer is the single write path for vendor subscription fields. Both the
// webhook receiver and the reconciler go through it.
type Syncer struct {
	db      txRunner
	vendors vendors.Repository
	catalog plancatalog.Catalog
	outbox  outboxEmitter
	logg    *logger.Logger
}

func NewSyncer(params SyncerParams) (*Syncer, error) {
	if params.DB == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Vendors == nil {
		return nil, errors.New("vendor repository required")
	}
	if params.Catalog == nil {
		return nil, errors.New("plan catalog required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Syncer{
		db:      params.DB,
		vendors: params.Vendors,
		catalog: params.Catalog,
		outbox:  params.Outbox,
		logg:    params.Logger,
	}, nil
}

// ResolvePlan maps the snapshot's price through the catalog. A miss is
// returned wrapped around plancatalog.ErrPlanNotFound.
func (s *Syncer) ResolvePlan(ctx context.Context, snap Snapshot) (plancatalog.Plan, error) {
	plan, err := s.catalog.Lookup(ctx, snap.PriceID)
	if err != nil {
		return plancatalog.Plan{}, fmt.Errorf("resolve price %q for subscription %s: %w", snap.PriceID, snap.ID, err)
	}
	return plan, nil
}

// ApplySubscription writes the plan tier and period end from snap. Nothing
// is written when the catalog has no entry for the price.
func (s *Syncer) ApplySubscription(ctx context.Context, change Change, snap Snapshot) (Outcome, error) {
	plan, err := s.ResolvePlan(ctx, snap)
	if err != nil {
		return "", err
	}
	planType := plan.PlanType
	end := snap.PeriodEnd
	return s.write(ctx, change, func(repo vendors.Repository, current *models.Vendor) (bool, *string, *time.Time, error) {
		applied, err := repo.ApplyPlan(ctx, change.UserID, planType, end, change.Stamp)
		return applied, &planType, &end, err
	})
}

// ClearSubscription nulls both subscription fields.
func (s *Syncer) ClearSubscription(ctx context.Context, change Change) (Outcome, error) {
	return s.write(ctx, change, func(repo vendors.Repository, current *models.Vendor) (bool, *string, *time.Time, error) {
		applied, err := repo.ClearPlan(ctx, change.UserID, change.Stamp)
		return applied, nil, nil, err
	})
}

// ExtendPeriod moves the end date and leaves the plan tier alone. Vendors
// without a plan report OutcomeNoPlan.
func (s *Syncer) ExtendPeriod(ctx context.Context, change Change, end time.Time) (Outcome, error) {
	return s.write(ctx, change, func(repo vendors.Repository, current *models.Vendor) (bool, *string, *time.Time, error) {
		applied, err := repo.ExtendPeriod(ctx, change.UserID, end, change.Stamp)
		return applied, current.SubscriptionPlan, &end, err
	})
}

type writeFunc func(repo vendors.Repository, current *models.Vendor) (applied bool, plan *string, end *time.Time, err error)

func (s *Syncer) write(ctx context.Context, change Change, fn writeFunc) (Outcome, error) {
	if change.UserID == uuid.Nil {
		return "", errors.New("user id required")
	}
	if change.Stamp.IsZero() {
		return "", errors.New("observation stamp required")
	}

	var outcome Outcome
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.vendors.WithTx(tx)
		current, err := repo.LockByUserID(ctx, change.UserID)
		if errors.Is(err, vendors.ErrVendorNotFound) {
			outcome = OutcomeVendorNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("load vendor: %w", err)
		}

		applied, plan, end, err := fn(repo, current)
		if err != nil {
			return fmt.Errorf("write vendor subscription: %w", err)
		}
		if !applied {
			outcome = OutcomeStale
			if !current.HasPlan() && plan == nil && end != nil {
				outcome = OutcomeNoPlan
			}
			return nil
		}
		outcome = OutcomeApplied

		if !subscriptionChanged(current, plan, end) {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVendorSubscriptionChanged,
			AggregateType: enums.AggregateVendor,
			AggregateID:   current.ID,
			Actor:         &outbox.ActorRef{UserID: &change.UserID, Source: change.Source.String()},
			Version:       1,
			OccurredAt:    change.Stamp,
			Data: payloads.VendorSubscriptionChangedEvent{
				VendorID:         current.ID,
				UserID:           current.UserID,
				PreviousPlan:     current.SubscriptionPlan,
				Plan:             plan,
				PreviousEndDate:  current.SubscriptionEndDate,
				EndDate:          end,
				Source:           change.Source,
				ProviderObjectID: change.ProviderObjectID,
				ObservedAt:       change.Stamp.UTC(),
			},
		})
	})
	if err != nil {
		return "", err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id": change.UserID.String(),
		"source":  change.Source.String(),
		"outcome": string(outcome),
	})
	switch outcome {
	case OutcomeStale:
		s.logg.Warn(logCtx, "vendor subscription write superseded by newer state")
	case OutcomeVendorNotFound:
		s.logg.Warn(logCtx, "no vendor for subscription user id")
	default:
		s.logg.Info(logCtx, "vendor subscription write finished")
	}
	return outcome, nil
}

func subscriptionChanged(current *models.Vendor, plan *string, end *time.Time) bool {
	if !equalString(current.SubscriptionPlan, plan) {
		return true
	}
	switch {
	case current.SubscriptionEndDate == nil && end == nil:
		return false
	case current.SubscriptionEndDate == nil || end == nil:
		return true
	}
	return !current.SubscriptionEndDate.Equal(*end)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
