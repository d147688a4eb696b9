package favorites

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

func setupFavoritesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:favorites_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
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
);`, `
CREATE TABLE IF NOT EXISTS favorite_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  created_at DATETIME,
  UNIQUE (user_id, product_id)
);`}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type favoritesHarness struct {
	svc       Service
	inventory inventory.Service
	conn      *gorm.DB
}

func newTestFavorites(t *testing.T) *favoritesHarness {
	t.Helper()

	conn := setupFavoritesTestDB(t)
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

	svc, err := NewService(NewRepository(conn), invRepo, invSvc, logg)
	require.NoError(t, err)

	return &favoritesHarness{svc: svc, inventory: invSvc, conn: conn}
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

func TestAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newTestFavorites(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10)
	userID := uuid.New()

	first, err := h.svc.Add(ctx, userID, coffee.ID)
	require.NoError(t, err)

	second, err := h.svc.Add(ctx, userID, coffee.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, err := h.svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAddUnknownProduct(t *testing.T) {
	ctx := context.Background()
	h := newTestFavorites(t)

	_, err := h.svc.Add(ctx, uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestListReportsAvailability(t *testing.T) {
	ctx := context.Background()
	h := newTestFavorites(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10)
	userID := uuid.New()

	_, err := h.svc.Add(ctx, userID, coffee.ID)
	require.NoError(t, err)

	held, err := h.inventory.Reserve(ctx, inventory.ReserveInput{
		ProductID: coffee.ID,
		Quantity:  4,
		Kind:      enums.ReservationKindCart,
	})
	require.NoError(t, err)
	require.True(t, held)

	list, err := h.svc.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 6, list[0].AvailableQty)
	require.NotNil(t, list[0].Product)
	assert.Equal(t, coffee.Name, list[0].Product.Name)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	h := newTestFavorites(t)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10)
	userID := uuid.New()

	_, err := h.svc.Add(ctx, userID, coffee.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.Remove(ctx, userID, coffee.ID))

	err = h.svc.Remove(ctx, userID, coffee.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
