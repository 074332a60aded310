package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
)

// PlanCatalogEntry maps a billing provider price to an internal plan tier.
type PlanCatalogEntry struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ExternalPriceID string                `gorm:"column:external_price_id;not null;uniqueIndex"`
	PlanType        string                `gorm:"column:plan_type;not null"`
	BillingInterval enums.BillingInterval `gorm:"column:billing_interval;not null"`
	Status          enums.PlanStatus      `gorm:"column:status;not null;default:'active'"`
	Amount          decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency        string                `gorm:"column:currency;not null;default:'usd'"`
	Features        pq.StringArray        `gorm:"column:features;type:text[]"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (PlanCatalogEntry) TableName() string { return "plan_catalog" }
