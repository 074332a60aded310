package models

import (
	"time"

	"github.com/google/uuid"
)

// Vendor is the business account whose subscription state this service maintains.
// SubscriptionPlan and SubscriptionEndDate are always both set or both nil.
type Vendor struct {
	ID                   uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	BusinessName         string     `gorm:"column:business_name;not null"`
	SubscriptionPlan     *string    `gorm:"column:subscription_plan"`
	SubscriptionEndDate  *time.Time `gorm:"column:subscription_end_date"`
	SubscriptionSyncedAt *time.Time `gorm:"column:subscription_synced_at"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Vendor) TableName() string { return "vendors" }

// HasPlan reports whether the vendor currently holds a paid plan.
func (v Vendor) HasPlan() bool {
	return v.SubscriptionPlan != nil
}

// PlanName returns the plan tier or an empty string.
func (v Vendor) PlanName() string {
	if v.SubscriptionPlan == nil {
		return ""
	}
	return *v.SubscriptionPlan
}
