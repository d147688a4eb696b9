package catalog

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

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:catalog_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
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
CREATE TABLE IF NOT EXISTS categories (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  position INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
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

func newTestCatalog(t *testing.T) (Service, inventory.Service, *gorm.DB) {
	t.Helper()

	conn := setupCatalogTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test"})

	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:    inventory.NewRepository(conn),
		DB:      db.NewWithConn(conn),
		Store:   kvstore.NewMemory(),
		Logger:  logg,
		CartTTL: 30 * time.Minute,
	})
	require.NoError(t, err)

	svc, err := NewService(NewRepository(conn), inventorySvc, logg)
	require.NoError(t, err)
	return svc, inventorySvc, conn
}

func TestCreateProductRecordsRegistrationMovement(t *testing.T) {
	t.Parallel()

	svc, _, conn := newTestCatalog(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, CreateProductInput{
		SKU:          "CAF-001",
		Name:         "Cafezinho",
		PriceCents:   600,
		InitialStock: 12,
		IsActive:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, product.StockQty)
	assert.Equal(t, 12, product.AvailableQty)

	var movement models.StockMovement
	require.NoError(t, conn.First(&movement, "product_id = ?", product.ID).Error)
	assert.Equal(t, enums.MovementKindEntry, movement.Kind)
	assert.Equal(t, enums.MovementOriginRegistration, movement.Origin)
	assert.Equal(t, 12, movement.Quantity)
	assert.Equal(t, "Cafezinho", movement.ProductName)
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, CreateProductInput{SKU: "DUP-1", Name: "One", PriceCents: 100, IsActive: true})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, CreateProductInput{SKU: "DUP-1", Name: "Two", PriceCents: 100, IsActive: true})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestCreateCategoryDuplicateName(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, CategoryInput{Name: "Bebidas"})
	require.NoError(t, err)

	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "bebidas"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code(), "name match is case-insensitive")
}

func TestDeleteCategoryWithProducts(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestCatalog(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, CategoryInput{Name: "Lanches"})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, CreateProductInput{
		SKU:        "SNACK-1",
		Name:       "Coxinha",
		CategoryID: &category.ID,
		PriceCents: 800,
		IsActive:   true,
	})
	require.NoError(t, err)

	err = svc.DeleteCategory(ctx, category.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestListProductsReportsAvailability(t *testing.T) {
	t.Parallel()

	svc, inventorySvc, _ := newTestCatalog(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, CreateProductInput{
		SKU:          "TEA-1",
		Name:         "Iced Tea",
		PriceCents:   700,
		InitialStock: 10,
		IsActive:     true,
	})
	require.NoError(t, err)

	// Hold part of the stock and check the listing reflects it.
	held, err := inventorySvc.Reserve(ctx, inventory.ReserveInput{
		ProductID: product.ID,
		Quantity:  4,
		Kind:      enums.ReservationKindCart,
	})
	require.NoError(t, err)
	require.True(t, held)

	result, err := svc.ListProducts(ctx, ListProductsInput{ActiveOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, product.ID, result.Items[0].ID)
	assert.Equal(t, 6, result.Items[0].AvailableQty)
	assert.Nil(t, result.NextCursor)
}
