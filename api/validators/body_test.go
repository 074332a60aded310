package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/vowvendors-backend/pkg/errors"
)

type resyncBody struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"user_id":"3f1b6a1e-3c0e-4a55-9d7e-0c1f2a3b4c5d"}`},
		{name: "missing field", body: `{}`, wantErr: true, field: "user_id"},
		{name: "not a uuid", body: `{"user_id":"abc"}`, wantErr: true, field: "user_id"},
		{name: "unknown field", body: `{"user_id":"3f1b6a1e-3c0e-4a55-9d7e-0c1f2a3b4c5d","x":1}`, wantErr: true},
		{name: "malformed", body: `{`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest resyncBody
			err := DecodeJSONBody(req, &dest)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error")
			}
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.field != "" {
				details, ok := typed.Details().(map[string]string)
				if !ok || details[tc.field] == "" {
					t.Fatalf("expected detail for %s, got %v", tc.field, typed.Details())
				}
			}
		})
	}
}
