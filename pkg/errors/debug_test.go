package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDiagnoseCollectsPgxFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "escrow_accounts_order_id_key", TableName: "escrow_accounts"}
	err := Wrap(CodeConflict, fmt.Errorf("insert escrow: %w", pgErr), "escrow exists")

	d := Diagnose(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %q", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %v", d.Chain)
	}
	if d.PG.Code != "23505" || d.PG.Constraint != "escrow_accounts_order_id_key" {
		t.Fatalf("unexpected pg fields: %+v", d.PG)
	}

	fields := d.Fields()
	if fields["pg_table"] != "escrow_accounts" {
		t.Fatalf("expected pg_table field, got %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg_column should be left out")
	}
}

func TestDiagnoseCollectsPqFields(t *testing.T) {
	err := fmt.Errorf("update payout: %w", &pq.Error{Code: "40001", Message: "could not serialize access"})

	d := Diagnose(err)
	if d.PG.Code != "40001" || d.PG.Message != "could not serialize access" {
		t.Fatalf("unexpected pg fields: %+v", d.PG)
	}
	if d.Code != "" {
		t.Fatalf("untyped error should carry no code, got %q", d.Code)
	}
}

func TestDiagnoseNil(t *testing.T) {
	d := Diagnose(nil)
	if d.Message != "" || len(d.Fields()) != 0 {
		t.Fatalf("expected empty diagnostics, got %+v", d)
	}
}
