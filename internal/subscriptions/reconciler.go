package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/vowvendors-backend/internal/plancatalog"
	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	defaultVendorTimeout = 15 * time.Second

	// Provider event times are whole seconds on the provider's clock.
	// Reconciler stamps are floored to the second and pulled back by at
	// least minStampSkew so an event created at or after the read wins.
	defaultStampSkew = 2 * time.Second
	minStampSkew     = time.Second
)

// Per-vendor reconcile results.
const (
	ResultSynced  = "synced"
	ResultCleared = "cleared"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

type vendorReader interface {
	ListWithPlan(ctx context.Context) ([]models.Vendor, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Vendor, error)
}

type outcomeRecorder interface {
	Observe(outcome string)
}

// Summary reports one reconciliation pass.
type Summary struct {
	Processed int `json:"vendorsProcessed"`
	Synced    int `json:"vendorsSynced"`
	Cleared   int `json:"vendorsCleared"`
	Skipped   int `json:"vendorsSkipped"`
	Failed    int `json:"vendorsFailed"`
}

func (s *Summary) add(result string) {
	s.Processed++
	switch result {
	case ResultSynced:
		s.Synced++
	case ResultCleared:
		s.Cleared++
	case ResultSkipped:
		s.Skipped++
	case ResultFailed:
		s.Failed++
	}
}

type ReconcilerParams struct {
	Vendors       vendorReader
	Provider      Provider
	Syncer        *Syncer
	Metrics       outcomeRecorder
	Logger        *logger.Logger
	VendorTimeout time.Duration
	StampSkew     time.Duration
}

// Reconciler re-derives every planned vendor's subscription from the
// provider and corrects drift.
type Reconciler struct {
	vendors       vendorReader
	provider      Provider
	syncer        *Syncer
	metrics       outcomeRecorder
	logg          *logger.Logger
	vendorTimeout time.Duration
	stampSkew     time.Duration
	now           func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Vendors == nil {
		return nil, errors.New("vendor repository required")
	}
	if params.Provider == nil {
		return nil, errors.New("billing provider required")
	}
	if params.Syncer == nil {
		return nil, errors.New("syncer required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	timeout := params.VendorTimeout
	if timeout <= 0 {
		timeout = defaultVendorTimeout
	}
	skew := params.StampSkew
	switch {
	case skew == 0:
		skew = defaultStampSkew
	case skew < minStampSkew:
		skew = minStampSkew
	}
	return &Reconciler{
		vendors:       params.Vendors,
		provider:      params.Provider,
		syncer:        params.Syncer,
		metrics:       params.Metrics,
		logg:          params.Logger,
		vendorTimeout: timeout,
		stampSkew:     skew,
		now:           time.Now,
	}, nil
}

// Run visits vendors one at a time. Only a failure to list vendors fails the
// run; per-vendor errors are logged and counted.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	list, err := r.vendors.ListWithPlan(ctx)
	if err != nil {
		return summary, fmt.Errorf("list vendors with plan: %w", err)
	}

	var errs error
	for _, vendor := range list {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		result, err := r.reconcileVendor(ctx, vendor, enums.SubscriptionSourceReconciler)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("vendor %s: %w", vendor.ID, err))
		}
		summary.add(result)
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"vendors_processed": summary.Processed,
		"vendors_synced":    summary.Synced,
		"vendors_cleared":   summary.Cleared,
		"vendors_skipped":   summary.Skipped,
		"vendors_failed":    summary.Failed,
	})
	if errs != nil {
		r.logg.Error(logCtx, "subscription reconciliation finished with vendor errors", errs)
	} else {
		r.logg.Info(logCtx, "subscription reconciliation finished")
	}
	return summary, nil
}

// ResyncUser reconciles a single vendor on demand, whether or not it
// currently holds a plan.
func (r *Reconciler) ResyncUser(ctx context.Context, userID uuid.UUID) (string, error) {
	vendor, err := r.vendors.FindByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	return r.reconcileVendor(ctx, *vendor, enums.SubscriptionSourceAdmin)
}

func (r *Reconciler) reconcileVendor(ctx context.Context, vendor models.Vendor, source enums.SubscriptionSource) (string, error) {
	vctx, cancel := context.WithTimeout(ctx, r.vendorTimeout)
	defer cancel()
	vctx = r.logg.WithFields(vctx, map[string]any{
		"vendor_id": vendor.ID.String(),
		"user_id":   vendor.UserID.String(),
	})

	result, err := r.resync(vctx, vendor, source)
	if err != nil {
		result = ResultFailed
		r.logg.Error(vctx, "vendor reconciliation failed", err)
	}
	r.observe(result)
	return result, err
}

func (r *Reconciler) resync(ctx context.Context, vendor models.Vendor, source enums.SubscriptionSource) (string, error) {
	change := Change{
		UserID: vendor.UserID,
		Source: source,
		// Taken before the provider call so a webhook observed during the
		// call wins the stale-write guard.
		Stamp: r.observationStamp(),
	}

	snap, err := r.provider.LatestActiveForCustomer(ctx, vendor.UserID.String())
	if errors.Is(err, ErrNoActiveSubscription) {
		outcome, err := r.syncer.ClearSubscription(ctx, change)
		if err != nil {
			return "", err
		}
		return resultFor(outcome, ResultCleared), nil
	}
	if err != nil {
		return "", err
	}

	change.ProviderObjectID = snap.ID
	outcome, err := r.syncer.ApplySubscription(ctx, change, snap)
	if errors.Is(err, plancatalog.ErrPlanNotFound) {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"subscription_id": snap.ID,
			"price_id":        snap.PriceID,
		})
		r.logg.Error(logCtx, "price missing from plan catalog; vendor left unchanged", err)
		return ResultSkipped, nil
	}
	if err != nil {
		return "", err
	}
	return resultFor(outcome, ResultSynced), nil
}

func (r *Reconciler) observationStamp() time.Time {
	return r.now().UTC().Truncate(time.Second).Add(-r.stampSkew)
}

func resultFor(outcome Outcome, applied string) string {
	if outcome == OutcomeApplied {
		return applied
	}
	return ResultSkipped
}

func (r *Reconciler) observe(result string) {
	if r.metrics != nil {
		r.metrics.Observe(result)
	}
}
