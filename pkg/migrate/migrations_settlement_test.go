package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-settlement/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_vendor_ledger")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS vendor_wallets",
		"CHECK (balance_cents >= 0)",
		"CHECK (pending_balance_cents >= 0)",
		"CONSTRAINT ux_vendor_transactions_idempotency_key UNIQUE (idempotency_key)",
		"ON vendor_transactions (order_id, vendor_id) WHERE type = 'earning'",
		"BEFORE UPDATE OR DELETE ON vendor_transactions",
		"CONSTRAINT ux_wallet_promotions_vendor_order UNIQUE (vendor_id, order_id)",
		"DROP TABLE IF EXISTS vendor_transactions",
	})
}

func TestOfferMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "create_vendors_and_offers")
	assertContains(t, content, []string{
		"CHECK (stock_quantity >= 0)",
		"version bigint NOT NULL DEFAULT 1",
	})
}

func TestPaymentAndRefundUniqueness(t *testing.T) {
	assertContains(t, readMigration(t, "create_payments"), []string{
		"CONSTRAINT ux_payments_transaction_id UNIQUE (transaction_id)",
		"ON payments (order_id) WHERE status = 'completed'",
	})
	assertContains(t, readMigration(t, "create_returns_and_refunds"), []string{
		"CONSTRAINT ux_returns_order_item_id UNIQUE (order_item_id)",
		"CONSTRAINT ux_refunds_order_item_id UNIQUE (order_item_id)",
	})
}

func TestOrderMigrationChecksTotals(t *testing.T) {
	assertContains(t, readMigration(t, "create_orders"), []string{
		"total_cents = subtotal_cents + shipping_cents + tax_cents - discount_cents",
		"CHECK (quantity > 0)",
		"CHECK (total_price_cents = unit_price_cents * quantity)",
	})
}

func TestValidateDirAcceptsMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Payout Index!", time.Now())
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_payout_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}
