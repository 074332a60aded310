package plancatalog

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
)

// SeedEntry is one row of a catalog seed file.
type SeedEntry struct {
	PriceID         string          `json:"price_id" validate:"required,startswith=price_"`
	PlanType        string          `json:"plan_type" validate:"required"`
	BillingInterval string          `json:"billing_interval" validate:"required,oneof=monthly annual"`
	Status          string          `json:"status" validate:"omitempty,oneof=active deprecated hidden"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	Features        []string        `json:"features"`
}

var seedValidator = validator.New()

// ParseSeed decodes a JSON array of SeedEntry and converts it to catalog rows.
// Duplicate price ids and negative amounts are rejected.
func ParseSeed(r io.Reader) ([]models.PlanCatalogEntry, error) {
	var raw []SeedEntry
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	seen := make(map[string]struct{}, len(raw))
	entries := make([]models.PlanCatalogEntry, 0, len(raw))
	for i, item := range raw {
		item.PriceID = strings.TrimSpace(item.PriceID)
		item.PlanType = strings.TrimSpace(item.PlanType)
		if err := seedValidator.Struct(item); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		if item.Amount.IsNegative() {
			return nil, fmt.Errorf("seed entry %d: amount must not be negative", i)
		}
		if _, dup := seen[item.PriceID]; dup {
			return nil, fmt.Errorf("seed entry %d: duplicate price id %s", i, item.PriceID)
		}
		seen[item.PriceID] = struct{}{}

		status := enums.PlanStatus(item.Status)
		if status == "" {
			status = enums.PlanStatusActive
		}
		currency := strings.ToLower(item.Currency)
		if currency == "" {
			currency = "usd"
		}
		entries = append(entries, models.PlanCatalogEntry{
			ExternalPriceID: item.PriceID,
			PlanType:        item.PlanType,
			BillingInterval: enums.BillingInterval(item.BillingInterval),
			Status:          status,
			Amount:          item.Amount.Round(2),
			Currency:        currency,
			Features:        pq.StringArray(item.Features),
		})
	}
	return entries, nil
}
