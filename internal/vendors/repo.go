package vendors

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVendorNotFound is returned when no vendor matches the lookup.
var ErrVendorNotFound = errors.New("vendor not found")

// staleGuard admits a write only when its observation stamp is not older than
// the one already stored. Equal stamps pass so replays rewrite the same values.
const staleGuard = "(subscription_synced_at IS NULL OR subscription_synced_at <= ?)"

// Repository persists vendor subscription state. Every write sets
// subscription_plan and subscription_end_date together, or clears both.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListWithPlan(ctx context.Context) ([]models.Vendor, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Vendor, error)
	LockByUserID(ctx context.Context, userID uuid.UUID) (*models.Vendor, error)
	ApplyPlan(ctx context.Context, userID uuid.UUID, plan string, endDate, stamp time.Time) (bool, error)
	ClearPlan(ctx context.Context, userID uuid.UUID, stamp time.Time) (bool, error)
	ExtendPeriod(ctx context.Context, userID uuid.UUID, endDate, stamp time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a vendor repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListWithPlan(ctx context.Context) ([]models.Vendor, error) {
	var rows []models.Vendor
	if err := r.db.WithContext(ctx).
		Where("subscription_plan IS NOT NULL").
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Vendor, error) {
	return r.findByUserID(r.db.WithContext(ctx), userID)
}

// LockByUserID reads the vendor row and, on Postgres, holds it for the
// surrounding transaction.
func (r *repository) LockByUserID(ctx context.Context, userID uuid.UUID) (*models.Vendor, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.findByUserID(query, userID)
}

func (r *repository) findByUserID(query *gorm.DB, userID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	err := query.Where("user_id = ?", userID).Take(&vendor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVendorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) ApplyPlan(ctx context.Context, userID uuid.UUID, plan string, endDate, stamp time.Time) (bool, error) {
	stamp = normalizeStamp(stamp)
	return r.update(r.db.WithContext(ctx).
		Model(&models.Vendor{}).
		Where("user_id = ?", userID).
		Where(staleGuard, stamp),
		map[string]any{
			"subscription_plan":      plan,
			"subscription_end_date":  normalizeStamp(endDate),
			"subscription_synced_at": stamp,
		})
}

func (r *repository) ClearPlan(ctx context.Context, userID uuid.UUID, stamp time.Time) (bool, error) {
	stamp = normalizeStamp(stamp)
	return r.update(r.db.WithContext(ctx).
		Model(&models.Vendor{}).
		Where("user_id = ?", userID).
		Where(staleGuard, stamp),
		map[string]any{
			"subscription_plan":      nil,
			"subscription_end_date":  nil,
			"subscription_synced_at": stamp,
		})
}

// ExtendPeriod moves the end date of a vendor that already holds a plan.
// Plan-less vendors are left alone so the pair never splits.
func (r *repository) ExtendPeriod(ctx context.Context, userID uuid.UUID, endDate, stamp time.Time) (bool, error) {
	stamp = normalizeStamp(stamp)
	return r.update(r.db.WithContext(ctx).
		Model(&models.Vendor{}).
		Where("user_id = ?", userID).
		Where("subscription_plan IS NOT NULL").
		Where(staleGuard, stamp),
		map[string]any{
			"subscription_end_date":  normalizeStamp(endDate),
			"subscription_synced_at": stamp,
		})
}

func (r *repository) update(query *gorm.DB, values map[string]any) (bool, error) {
	res := query.Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// normalizeStamp stores instants in UTC at the precision Postgres keeps.
func normalizeStamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
