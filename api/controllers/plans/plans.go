package plans

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/vowvendors-backend/api/responses"
	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
)

type planLister interface {
	ListActive(ctx context.Context) ([]models.PlanCatalogEntry, error)
}

type planResponse struct {
	PriceID         string   `json:"price_id"`
	PlanType        string   `json:"plan_type"`
	BillingInterval string   `json:"billing_interval"`
	Amount          string   `json:"amount"`
	AmountCents     int64    `json:"amount_cents"`
	Currency        string   `json:"currency"`
	Features        []string `json:"features"`
	UpdatedAt       string   `json:"updated_at"`
}

type planListResponse struct {
	Plans []planResponse `json:"plans"`
}

// PlansList returns the active plan catalog.
func PlansList(svc planLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog unavailable"))
			return
		}

		entries, err := svc.ListActive(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list plans"))
			return
		}

		responses.WriteSuccess(w, planListResponse{Plans: plansToResponse(entries)})
	}
}

func plansToResponse(entries []models.PlanCatalogEntry) []planResponse {
	result := make([]planResponse, 0, len(entries))
	for _, entry := range entries {
		features := make([]string, len(entry.Features))
		copy(features, entry.Features)
		result = append(result, planResponse{
			PriceID:         entry.ExternalPriceID,
			PlanType:        entry.PlanType,
			BillingInterval: string(entry.BillingInterval),
			Amount:          entry.Amount.StringFixed(2),
			AmountCents:     entry.Amount.Shift(2).IntPart(),
			Currency:        entry.Currency,
			Features:        features,
			UpdatedAt:       entry.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return result
}
