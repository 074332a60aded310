package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, types.SuccessEnvelope{Data: data})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if pkgerrors.IsClientError(typed) {
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:    string(typed.Code()),
			Message: msg,
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	logError(ctx, logg, err)
	WriteJSON(w, meta.HTTPStatus, payload)
}

// WriteWebhookAck acknowledges a billing webhook delivery.
func WriteWebhookAck(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, types.WebhookAck{Received: true})
}

// WriteWebhookError answers a billing webhook with the flat {error, details}
// body the provider dashboard shows. Client-side failures are 400 so the
// provider stops retrying them; anything else is 500 and gets redelivered.
func WriteWebhookError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	status := http.StatusInternalServerError
	message := "webhook processing failed"
	if pkgerrors.IsClientError(err) {
		status = http.StatusBadRequest
		message = "webhook rejected"
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		message = typed.Message()
	}

	logError(ctx, logg, err)
	WriteJSON(w, status, types.WebhookError{
		Error:   message,
		Details: err.Error(),
	})
}

func logError(ctx context.Context, logg *logger.Logger, err error) {
	if logg == nil {
		return
	}
	ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
	logg.Error(ctx, "request.error", err)
}

// WriteJSON encodes payload as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
