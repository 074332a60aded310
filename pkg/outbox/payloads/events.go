package payloads

import (
	"time"

	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/google/uuid"
)

// VendorSubscriptionChangedEvent reports a vendor's plan or end date moving.
// Nil plan and end date mean the subscription was cleared.
type VendorSubscriptionChangedEvent struct {
	VendorID         uuid.UUID                `json:"vendor_id"`
	UserID           uuid.UUID                `json:"user_id"`
	PreviousPlan     *string                  `json:"previous_plan"`
	Plan             *string                  `json:"plan"`
	PreviousEndDate  *time.Time               `json:"previous_end_date"`
	EndDate          *time.Time               `json:"end_date"`
	Source           enums.SubscriptionSource `json:"source"`
	ProviderObjectID string                   `json:"provider_object_id,omitempty"`
	ObservedAt       time.Time                `json:"observed_at"`
}
