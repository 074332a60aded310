package vendors

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/vowvendors-backend/api/responses"
	"github.com/angelmondragon/vowvendors-backend/api/validators"
	vendorsvc "github.com/angelmondragon/vowvendors-backend/internal/vendors"
	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
)

type vendorResyncer interface {
	ResyncUser(ctx context.Context, userID uuid.UUID) (string, error)
}

type resyncRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type resyncResponse struct {
	UserID string `json:"user_id"`
	Result string `json:"result"`
}

// AdminVendorResync reconciles one vendor against the billing provider.
func AdminVendorResync(svc vendorResyncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}

		var payload resyncRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		userID, err := uuid.Parse(payload.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id"))
			return
		}

		result, err := svc.ResyncUser(ctx, userID)
		if errors.Is(err, vendorsvc.ErrVendorNotFound) {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "vendor not found"))
			return
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resync vendor"))
			return
		}

		responses.WriteSuccess(w, resyncResponse{UserID: userID.String(), Result: result})
	}
}
