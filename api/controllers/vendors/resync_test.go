package vendors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	vendorsvc "github.com/angelmondragon/vowvendors-backend/internal/vendors"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/types"
)

type stubResyncer struct {
	result string
	err    error
	seen   []uuid.UUID
}

func (s *stubResyncer) ResyncUser(_ context.Context, userID uuid.UUID) (string, error) {
	s.seen = append(s.seen, userID)
	return s.result, s.err
}

func post(handler http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/vendors/resync", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAdminVendorResync(t *testing.T) {
	userID := uuid.New()
	svc := &stubResyncer{result: "synced"}
	rec := post(AdminVendorResync(svc, logger.Nop()), `{"user_id":"`+userID.String()+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.seen) != 1 || svc.seen[0] != userID {
		t.Fatalf("expected resync for %s, got %v", userID, svc.seen)
	}
	var env types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := env.Data.(map[string]any)
	if data["result"] != "synced" {
		t.Fatalf("unexpected result %v", data["result"])
	}
}

func TestAdminVendorResyncErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "invalid uuid", body: `{"user_id":"nope"}`, status: http.StatusBadRequest},
		{name: "missing user", body: `{}`, status: http.StatusBadRequest},
		{name: "unknown vendor", body: `{"user_id":"` + uuid.NewString() + `"}`, err: vendorsvc.ErrVendorNotFound, status: http.StatusNotFound},
		{name: "provider failure", body: `{"user_id":"` + uuid.NewString() + `"}`, err: errors.New("stripe timeout"), status: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(AdminVendorResync(&stubResyncer{err: tc.err}, logger.Nop()), tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}
