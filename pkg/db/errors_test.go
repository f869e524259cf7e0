package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_payments_transaction_id"}
	pqErr := &pq.Error{Code: "23505", Constraint: "ux_refunds_order_item_id"}

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx any", err: fmt.Errorf("insert: %w", pgErr), want: true},
		{name: "pgx matching constraint", err: pgErr, constraint: "ux_payments_transaction_id", want: true},
		{name: "pgx other constraint", err: pgErr, constraint: "ux_other", want: false},
		{name: "pq matching constraint", err: pqErr, constraint: "ux_refunds_order_item_id", want: true},
		{name: "sqlite message", err: errors.New("UNIQUE constraint failed: refunds.order_item_id"), want: true},
		{name: "unrelated", err: errors.New("connection reset"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tc.want)
			}
		})
	}
}
