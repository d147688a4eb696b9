package tables

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/internal/inventory"
	"github.com/vmachado/lojapos-backend/internal/ordernumber"
	"github.com/vmachado/lojapos-backend/pkg/broadcast"
	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/kvstore"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

func setupTablesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:tables_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  category_id TEXT,
  sku TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT,
  price_cents INTEGER NOT NULL,
  compare_at_price_cents INTEGER,
  image_urls TEXT,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS tables (
  id TEXT PRIMARY KEY,
  number INTEGER NOT NULL UNIQUE,
  slug TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'free',
  order_number INTEGER NOT NULL DEFAULT 0,
  user_id TEXT,
  opened_at DATETIME,
  closed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS table_items (
  id TEXT PRIMARY KEY,
  table_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  notes TEXT,
  created_at DATETIME
);`, `
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
);`, `
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
);`}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type tablesHarness struct {
	svc       Service
	inventory inventory.Service
	allocator ordernumber.Service
	conn      *gorm.DB
}

func newTestTables(t *testing.T) *tablesHarness {
	t.Helper()

	conn := setupTablesTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	invRepo := inventory.NewRepository(conn)

	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:    invRepo,
		DB:      db.NewWithConn(conn),
		Store:   kvstore.NewMemory(),
		Logger:  logg,
		CartTTL: 30 * time.Minute,
	})
	require.NoError(t, err)

	allocator, err := ordernumber.NewService(ordernumber.ServiceParams{
		Store:     kvstore.NewMemory(),
		Broadcast: broadcast.NewMemory(),
		Logger:    logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Products:  invRepo,
		Inventory: inventorySvc,
		Allocator: allocator,
		Logger:    logg,
	})
	require.NoError(t, err)

	return &tablesHarness{svc: svc, inventory: inventorySvc, allocator: allocator, conn: conn}
}

func mustCreateProduct(t *testing.T, conn *gorm.DB, name string, stockQty, priceCents int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		SKU:        "SKU-" + uuid.NewString(),
		Name:       name,
		PriceCents: priceCents,
		StockQty:   stockQty,
		IsActive:   true,
	}
	require.NoError(t, conn.Create(product).Error)
	return product
}

func TestAddItemClaimsOrderNumberOnce(t *testing.T) {
	t.Parallel()

	h := newTestTables(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Feijoada", 10, 3500)

	table, err := h.svc.Create(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Mesa-01", table.Slug)

	after, err := h.svc.AddItem(ctx, table.ID, AddItemInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.OrderNumber)
	assert.Equal(t, enums.TableStatusOccupied, after.Status)
	assert.Equal(t, 7000, after.TotalCents)

	after, err = h.svc.AddItem(ctx, table.ID, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.OrderNumber, "number is reused for the order's lifetime")
	require.Len(t, after.Items, 2)

	// A second table gets the next number.
	other, err := h.svc.Create(ctx, 2)
	require.NoError(t, err)
	otherAfter, err := h.svc.AddItem(ctx, other.ID, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), otherAfter.OrderNumber)
}

func TestAddItemInsufficientStock(t *testing.T) {
	t.Parallel()

	h := newTestTables(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Picanha", 2, 9000)

	table, err := h.svc.Create(ctx, 3)
	require.NoError(t, err)

	_, err = h.svc.AddItem(ctx, table.ID, AddItemInput{ProductID: product.ID, Quantity: 5})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	after, err := h.svc.Get(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusFree, after.Status)
	assert.Zero(t, after.OrderNumber)
	assert.Empty(t, after.Items)

	available, err := h.inventory.AvailableStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, available, "failed add leaves no hold behind")
}

func TestAddItemWithAuthoritativeNumber(t *testing.T) {
	t.Parallel()

	h := newTestTables(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Moqueca", 10, 6000)

	table, err := h.svc.Create(ctx, 4)
	require.NoError(t, err)

	authoritative := int64(50)
	after, err := h.svc.AddItem(ctx, table.ID, AddItemInput{
		ProductID:           product.ID,
		Quantity:            1,
		AuthoritativeNumber: &authoritative,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), after.OrderNumber)

	// The shared counter ratcheted past the till's number.
	other, err := h.svc.Create(ctx, 5)
	require.NoError(t, err)
	otherAfter, err := h.svc.AddItem(ctx, other.ID, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(51), otherAfter.OrderNumber)
}

func TestRemoveItemResetsEmptyTable(t *testing.T) {
	t.Parallel()

	h := newTestTables(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Pastel", 10, 1200)

	table, err := h.svc.Create(ctx, 6)
	require.NoError(t, err)
	after, err := h.svc.AddItem(ctx, table.ID, AddItemInput{ProductID: product.ID, Quantity: 4})
	require.NoError(t, err)
	require.Len(t, after.Items, 1)

	after, err = h.svc.RemoveItem(ctx, table.ID, after.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusFree, after.Status)
	assert.Zero(t, after.OrderNumber)
	assert.Nil(t, after.UserID)
	assert.Empty(t, after.Items)

	available, err := h.inventory.AvailableStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, available)
}

func TestCancelOrderDropsUnconfirmedHolds(t *testing.T) {
	t.Parallel()

	h := newTestTables(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Caipirinha", 8, 2200)

	table, err := h.svc.Create(ctx, 7)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, table.ID, AddItemInput{ProductID: product.ID, Quantity: 3})
	require.NoError(t, err)

	require.NoError(t, h.svc.CancelOrder(ctx, table.ID))

	after, err := h.svc.Get(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusFree, after.Status)
	assert.Empty(t, after.Items)

	available, err := h.inventory.AvailableStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, available)
}

func TestDeleteTableWithOpenOrder(t *testing.T) {
	t.Parallel()

	h := newTestTables(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Suco", 5, 900)

	table, err := h.svc.Create(ctx, 8)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, table.ID, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	err = h.svc.Delete(ctx, table.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}
