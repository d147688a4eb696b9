package cart

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
	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/kvstore"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:cart_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
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
	carts := `
CREATE TABLE IF NOT EXISTS cart_records (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL UNIQUE,
  user_id TEXT,
  status TEXT NOT NULL DEFAULT 'active',
  subtotal_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL DEFAULT 0,
  converted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	items := `
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  line_subtotal_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	for _, ddl := range []string{products, carts, items} {
		require.NoError(t, conn.Exec(ddl).Error)
	}
	return conn
}

type cartHarness struct {
	svc       Service
	inventory inventory.Service
	conn      *gorm.DB
}

func newTestCart(t *testing.T) *cartHarness {
	t.Helper()

	conn := setupCartTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	invRepo := inventory.NewRepository(conn)

	invSvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:    invRepo,
		DB:      db.NewWithConn(conn),
		Store:   kvstore.NewMemory(),
		Logger:  logg,
		CartTTL: 30 * time.Minute,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Products:  invRepo,
		Inventory: invSvc,
		Logger:    logg,
	})
	require.NoError(t, err)

	return &cartHarness{svc: svc, inventory: invSvc, conn: conn}
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

func TestAddItemMergesLinesAndHoldsStock(t *testing.T) {
	ctx := context.Background()
	h := newTestCart(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10, 800)

	cart, err := h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: coffee.ID, Quantity: 3})
	require.NoError(t, err)
	cart, err = h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: coffee.ID, Quantity: 2})
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, 5*800, cart.Items[0].LineSubtotalCents)
	assert.Equal(t, 5*800, cart.SubtotalCents)
	assert.Equal(t, 5*800, cart.TotalCents)
	assert.Equal(t, 5, cart.Items[0].AvailableQty)

	available, err := h.inventory.AvailableStock(ctx, coffee.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestAddItemInsufficientStock(t *testing.T) {
	ctx := context.Background()
	h := newTestCart(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 2, 800)

	_, err := h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: coffee.ID, Quantity: 3})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())

	cart, err := h.svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestAddItemInactiveProduct(t *testing.T) {
	ctx := context.Background()
	h := newTestCart(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10, 800)
	require.NoError(t, h.conn.Model(coffee).Update("is_active", false).Error)

	_, err := h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: coffee.ID, Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestUpdateItemQuantityAdjustsHolds(t *testing.T) {
	ctx := context.Background()
	h := newTestCart(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10, 800)

	cart, err := h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: coffee.ID, Quantity: 3})
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	cart, err = h.svc.UpdateItemQuantity(ctx, "sess-1", itemID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	available, err := h.inventory.AvailableStock(ctx, coffee.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)

	cart, err = h.svc.UpdateItemQuantity(ctx, "sess-1", itemID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, 2*800, cart.SubtotalCents)
	available, err = h.inventory.AvailableStock(ctx, coffee.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, available)
}

func TestUpdateItemQuantityToZeroRemovesLine(t *testing.T) {
	ctx := context.Background()
	h := newTestCart(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10, 800)

	cart, err := h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: coffee.ID, Quantity: 4})
	require.NoError(t, err)

	cart, err = h.svc.UpdateItemQuantity(ctx, "sess-1", cart.Items[0].ID, 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 0, cart.TotalCents)

	available, err := h.inventory.AvailableStock(ctx, coffee.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, available)
}

func TestClearReleasesEveryHold(t *testing.T) {
	ctx := context.Background()
	h := newTestCart(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10, 800)
	cake := mustCreateProduct(t, h.conn, "Bolo de Cenoura", 6, 1200)

	_, err := h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: coffee.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: cake.ID, Quantity: 2})
	require.NoError(t, err)

	cart, err := h.svc.Clear(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 0, cart.SubtotalCents)

	for _, p := range []*models.Product{coffee, cake} {
		available, err := h.inventory.AvailableStock(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.StockQty, available)
	}
}

func TestGetOrCreateReactivatesConvertedCart(t *testing.T) {
	ctx := context.Background()
	h := newTestCart(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10, 800)

	_, err := h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: coffee.ID, Quantity: 2})
	require.NoError(t, err)
	converted, err := h.svc.MarkConverted(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusConverted, converted.Status)
	require.NotNil(t, converted.ConvertedAt)

	_, err = h.svc.MarkConverted(ctx, "sess-1")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	cart, err := h.svc.GetOrCreate(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusActive, cart.Status)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 0, cart.TotalCents)
	assert.Nil(t, cart.ConvertedAt)
	assert.Equal(t, converted.ID, cart.ID)
}

func TestAttachUserKeepsCartContents(t *testing.T) {
	ctx := context.Background()
	h := newTestCart(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10, 800)
	userID := uuid.New()

	_, err := h.svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: coffee.ID, Quantity: 2})
	require.NoError(t, err)

	cart, err := h.svc.AttachUser(ctx, "sess-1", userID)
	require.NoError(t, err)
	require.NotNil(t, cart.UserID)
	assert.Equal(t, userID, *cart.UserID)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}
