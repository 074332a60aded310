package plancatalog

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository reads and seeds the plan_catalog table.
type Repository interface {
	Catalog
	ListActive(ctx context.Context) ([]models.PlanCatalogEntry, error)
	Upsert(ctx context.Context, entries []models.PlanCatalogEntry) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Lookup ignores the entry status: deprecated prices still resolve for the
// vendors already paying them.
func (r *repository) Lookup(ctx context.Context, priceID string) (Plan, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return Plan{}, ErrPlanNotFound
	}
	var entry models.PlanCatalogEntry
	err := r.db.WithContext(ctx).
		Where("external_price_id = ?", priceID).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Plan{}, ErrPlanNotFound
	}
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		PriceID:         entry.ExternalPriceID,
		PlanType:        entry.PlanType,
		BillingInterval: entry.BillingInterval,
	}, nil
}

func (r *repository) ListActive(ctx context.Context) ([]models.PlanCatalogEntry, error) {
	var rows []models.PlanCatalogEntry
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.PlanStatusActive).
		Order("plan_type ASC").
		Order("billing_interval ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert inserts entries keyed by external_price_id, overwriting the tier,
// interval, status, price and features of rows that already exist.
func (r *repository) Upsert(ctx context.Context, entries []models.PlanCatalogEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	for i := range entries {
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_price_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"plan_type",
				"billing_interval",
				"status",
				"amount",
				"currency",
				"features",
				"updated_at",
			}),
		}).
		Create(&entries)
	return res.RowsAffected, res.Error
}
