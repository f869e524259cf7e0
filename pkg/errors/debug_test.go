package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpCapturesPostgresFromEitherDriver(t *testing.T) {
	cases := map[string]error{
		"pgx": &pgconn.PgError{Code: "23505", ConstraintName: "ux_vendor_transactions_idempotency_key", TableName: "vendor_transactions"},
		"pq":  &pq.Error{Code: "23505", Constraint: "ux_vendor_transactions_idempotency_key", Table: "vendor_transactions"},
	}
	for name, driverErr := range cases {
		t.Run(name, func(t *testing.T) {
			err := Wrap(CodeDependency, fmt.Errorf("insert ledger row: %w", driverErr), "credit wallet")
			d := Dump(err)
			if d.Code != CodeDependency {
				t.Fatalf("expected dependency code, got %s", d.Code)
			}
			if d.Postgres == nil || d.Postgres.Code != "23505" || d.Postgres.Constraint != "ux_vendor_transactions_idempotency_key" {
				t.Fatalf("unexpected postgres dump: %+v", d.Postgres)
			}
			if len(d.Chain) < 3 {
				t.Fatalf("expected full chain, got %v", d.Chain)
			}
			if got := d.Fields()["pg_table"]; got != "vendor_transactions" {
				t.Fatalf("expected pg_table field, got %v", got)
			}
		})
	}
}

func TestDumpWithoutDriverErrorOmitsPostgresFields(t *testing.T) {
	d := Dump(New(CodeConflict, "payout already decided"))
	if d.Postgres != nil {
		t.Fatalf("unexpected postgres dump: %+v", d.Postgres)
	}
	fields := d.Fields()
	if _, ok := fields["pg_code"]; ok {
		t.Fatal("pg_code should be absent")
	}
	if fields["error_code"] != CodeConflict {
		t.Fatalf("unexpected error_code %v", fields["error_code"])
	}
	if empty := Dump(nil); empty.TopMessage != "" || empty.Chain != nil {
		t.Fatalf("expected zero dump, got %+v", empty)
	}
}
