package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmachado/lojapos-backend/pkg/migrate"
)

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir invalid: %v", err)
	}
}

func TestInitSchemaMigrationContainsCoreTables(t *testing.T) {
	content := readMigration(t, "*_init_schema.sql")

	checks := []string{
		"CREATE TABLE users",
		"CREATE TABLE categories",
		"CREATE TABLE products",
		"CREATE TABLE stock_movements",
		"stock_qty               integer NOT NULL DEFAULT 0 CHECK (stock_qty >= 0)",
		"CREATE INDEX idx_stock_movements_occurred_at",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationEnforcesDailyNumberUniqueness(t *testing.T) {
	content := readMigration(t, "*_tables_and_orders.sql")

	if !strings.Contains(content, "CONSTRAINT idx_orders_day_number UNIQUE (business_date, number)") {
		t.Error("orders table must make (business_date, number) unique")
	}
	if !strings.Contains(content, "CREATE TABLE table_items") {
		t.Error("missing table_items table")
	}
	if !strings.Contains(content, "gateway_reference text UNIQUE") {
		t.Error("payments must deduplicate on gateway_reference")
	}
}

func TestOutboxMigrationHasUnpublishedIndex(t *testing.T) {
	content := readMigration(t, "*_outbox.sql")

	if !strings.Contains(content, "WHERE published_at IS NULL") {
		t.Error("outbox needs a partial index on unpublished rows")
	}
	if !strings.Contains(content, "CREATE TABLE outbox_dlq") {
		t.Error("missing outbox_dlq table")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matches %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
