package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/kvstore"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/outbox"
)

func setupInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:inventory_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	products := `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  category_id TEXT,
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  price_cents INTEGER NOT NULL,
  compare_at_price_cents INTEGER,
  image_urls TEXT,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	movements := `
CREATE TABLE IF NOT EXISTS stock_movements (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  kind TEXT NOT NULL,
  origin TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  balance_after INTEGER NOT NULL,
  notes TEXT,
  reference TEXT,
  occurred_at DATETIME NOT NULL,
  created_at DATETIME
);`
	outboxEvents := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	for _, ddl := range []string{products, movements, outboxEvents} {
		require.NoError(t, conn.Exec(ddl).Error)
	}
	return conn
}

type testHarness struct {
	svc   *service
	conn  *gorm.DB
	store kvstore.Store
}

func newTestService(t *testing.T) *testHarness {
	t.Helper()

	conn := setupInventoryTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	store := kvstore.NewMemory()
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		DB:      db.NewWithConn(conn),
		Store:   store,
		Outbox:  outboxSvc,
		Logger:  logg,
		CartTTL: 30 * time.Minute,
	})
	require.NoError(t, err)

	return &testHarness{svc: svc.(*service), conn: conn, store: store}
}

func mustCreateProduct(t *testing.T, conn *gorm.DB, name string, stockQty int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		SKU:        "SKU-" + uuid.NewString(),
		Name:       name,
		PriceCents: 1500,
		StockQty:   stockQty,
		IsActive:   true,
	}
	require.NoError(t, conn.Create(product).Error)
	return product
}
