package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres SQLSTATEs a caller can safely retry.
var transientSQLStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled
}

// constraintHints explains schema constraints that guard subscription state.
var constraintHints = map[string]string{
	"ck_vendors_subscription_pair":      "subscription_plan and subscription_end_date must be set or cleared together",
	"ux_vendors_user_id":                "a vendor already exists for this user id",
	"ux_plan_catalog_external_price_id": "a catalog entry already exists for this price id",
}

// DBDiagnostics is the driver-level detail behind a failed statement.
type DBDiagnostics struct {
	SQLState   string `json:"sql_state"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Transient  bool   `json:"transient"`
}

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string         `json:"top_message"`
	Code       Code           `json:"code,omitempty"`
	Chain      []string       `json:"chain,omitempty"`
	DB         *DBDiagnostics `json:"db,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.DB = dbDiagnostics(err)
	return d
}

// Fields renders the dump as logger fields; db keys appear only for
// driver errors.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.DB == nil {
		return fields
	}
	fields["pg_code"] = d.DB.SQLState
	fields["pg_message"] = d.DB.Message
	fields["pg_transient"] = d.DB.Transient
	for key, value := range map[string]string{
		"pg_constraint": d.DB.Constraint,
		"pg_table":      d.DB.Table,
		"pg_column":     d.DB.Column,
		"pg_detail":     d.DB.Detail,
		"pg_hint":       d.DB.Hint,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

// IsTransientDB reports whether err carries a Postgres state worth retrying.
func IsTransientDB(err error) bool {
	diag := dbDiagnostics(err)
	return diag != nil && diag.Transient
}

func dbDiagnostics(err error) *DBDiagnostics {
	var diag *DBDiagnostics
	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		diag = &DBDiagnostics{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	case errors.As(err, &pqErr):
		diag = &DBDiagnostics{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	default:
		return nil
	}
	_, diag.Transient = transientSQLStates[diag.SQLState]
	diag.Hint = constraintHints[diag.Constraint]
	return diag
}
