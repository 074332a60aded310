package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing userId")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	base.WithDetails(map[string]any{"field": "metadata.userId"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeDependency, cause, "retrieve subscription")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: retrieve subscription: connection reset" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestCodeOfAndClientError(t *testing.T) {
	nested := fmt.Errorf("handler: %w", New(CodeValidation, "bad signature"))
	if CodeOf(nested) != CodeValidation {
		t.Fatalf("expected validation code through wrapping, got %s", CodeOf(nested))
	}
	if !IsClientError(nested) {
		t.Fatalf("validation should be a client error")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should default to internal")
	}
	if IsClientError(New(CodeDependency, "stripe down")) {
		t.Fatalf("dependency errors are not client errors")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpClassifiesDriverErrors(t *testing.T) {
	pairErr := fmt.Errorf("clear vendor subscription: %w", &pgconn.PgError{
		Code:           "23514",
		ConstraintName: "ck_vendors_subscription_pair",
		TableName:      "vendors",
		Message:        "new row violates check constraint",
	})
	dump := Dump(Wrap(CodeInternal, pairErr, "write vendor subscription"))
	if dump.Code != CodeInternal {
		t.Fatalf("expected internal code, got %s", dump.Code)
	}
	if dump.DB == nil || dump.DB.SQLState != "23514" || dump.DB.Transient {
		t.Fatalf("unexpected db diagnostics %+v", dump.DB)
	}
	if dump.DB.Hint == "" {
		t.Fatal("expected a hint for the subscription pair constraint")
	}
	fields := dump.Fields()
	if fields["pg_constraint"] != "ck_vendors_subscription_pair" || fields["pg_table"] != "vendors" {
		t.Fatalf("unexpected log fields %v", fields)
	}

	deadlock := fmt.Errorf("lock vendor: %w", &pq.Error{Code: "40P01", Message: "deadlock detected"})
	if !IsTransientDB(deadlock) {
		t.Fatal("deadlock should be transient")
	}
	if IsTransientDB(stdErrors.New("plain")) {
		t.Fatal("non-driver errors are never transient")
	}
}

func TestDumpWithoutDriverErrorOmitsDBFields(t *testing.T) {
	dump := Dump(New(CodeValidation, "checkout session missing metadata.userId"))
	if dump.DB != nil {
		t.Fatalf("unexpected db diagnostics %+v", dump.DB)
	}
	if _, ok := dump.Fields()["pg_code"]; ok {
		t.Fatal("pg fields should be absent for non-driver errors")
	}
	if len(dump.Chain) == 0 {
		t.Fatal("expected error chain")
	}
	if Dump(nil).TopMessage != "" {
		t.Fatal("nil error should produce an empty dump")
	}
}
