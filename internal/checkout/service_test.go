package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/internal/cart"
	"github.com/vmachado/lojapos-backend/internal/inventory"
	"github.com/vmachado/lojapos-backend/internal/ordernumber"
	"github.com/vmachado/lojapos-backend/internal/orders"
	"github.com/vmachado/lojapos-backend/internal/payments"
	"github.com/vmachado/lojapos-backend/internal/tables"
	"github.com/vmachado/lojapos-backend/pkg/broadcast"
	"github.com/vmachado/lojapos-backend/pkg/config"
	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/gateway"
	"github.com/vmachado/lojapos-backend/pkg/kvstore"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/outbox"
)

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:checkout_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
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
);`, `
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
);`, `
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
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  number INTEGER NOT NULL,
  business_date TEXT NOT NULL,
  table_id TEXT,
  cart_id TEXT,
  user_id TEXT,
  customer_name TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_method TEXT,
  subtotal_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL DEFAULT 0,
  placed_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (business_date, number)
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  line_subtotal_cents INTEGER NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  method TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount_cents INTEGER NOT NULL,
  gateway_reference TEXT UNIQUE,
  gateway_payload TEXT,
  confirmed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type checkoutHarness struct {
	svc       Service
	carts     cart.Service
	tables    tables.Service
	inventory inventory.Service
	conn      *gorm.DB
}

func newTestCheckout(t *testing.T, gw *gateway.Client) *checkoutHarness {
	t.Helper()

	conn := setupCheckoutTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	client := db.NewWithConn(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	invRepo := inventory.NewRepository(conn)

	invSvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:    invRepo,
		DB:      client,
		Store:   kvstore.NewMemory(),
		Outbox:  outboxSvc,
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

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Repo:      cart.NewRepository(conn),
		Products:  invRepo,
		Inventory: invSvc,
		Logger:    logg,
	})
	require.NoError(t, err)

	tablesSvc, err := tables.NewService(tables.ServiceParams{
		Repo:      tables.NewRepository(conn),
		Products:  invRepo,
		Inventory: invSvc,
		Allocator: allocator,
		Logger:    logg,
	})
	require.NoError(t, err)

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(conn),
		DB:        client,
		Inventory: invSvc,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	require.NoError(t, err)

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:   payments.NewRepository(conn),
		DB:     client,
		Outbox: outboxSvc,
		Logger: logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Carts:     cartSvc,
		Tables:    tablesSvc,
		Orders:    ordersSvc,
		Payments:  paymentsSvc,
		Inventory: invSvc,
		Allocator: allocator,
		Gateway:   gw,
		DB:        client,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	require.NoError(t, err)

	return &checkoutHarness{
		svc:       svc,
		carts:     cartSvc,
		tables:    tablesSvc,
		inventory: invSvc,
		conn:      conn,
	}
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

func TestExecuteOnlineWithCounterPayment(t *testing.T) {
	ctx := context.Background()
	h := newTestCheckout(t, nil)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10, 800)

	_, err := h.carts.AddItem(ctx, "sess-1", cart.AddItemInput{ProductID: coffee.ID, Quantity: 2})
	require.NoError(t, err)

	result, err := h.svc.ExecuteOnline(ctx, OnlineInput{
		SessionID: "sess-1",
		Method:    enums.PaymentMethodPix,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Order.Number)
	assert.Equal(t, 1600, result.Order.TotalCents)
	assert.Equal(t, enums.PaymentStatusConfirmed, result.Payment.Status)
	assert.Nil(t, result.Preference)

	// The hold settled: two units left the shelf and nothing is still
	// reserved.
	onHand, err := h.inventory.OnHand(ctx, coffee.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, onHand)
	available, err := h.inventory.AvailableStock(ctx, coffee.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, available)

	converted, err := h.carts.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusConverted, converted.Status)

	var movement models.StockMovement
	require.NoError(t, h.conn.First(&movement, "origin = ?", enums.MovementOriginOnlineSale).Error)
	assert.Equal(t, 2, movement.Quantity)

	for _, eventType := range []enums.OutboxEventType{
		enums.EventOrderCreated,
		enums.EventPaymentConfirmed,
		enums.EventStockMovementRecorded,
	} {
		var count int64
		require.NoError(t, h.conn.Model(&models.OutboxEvent{}).
			Where("event_type = ?", eventType).Count(&count).Error)
		assert.Equal(t, int64(1), count, "one %s event queued", eventType)
	}
}

func TestExecuteOnlineEmptyCart(t *testing.T) {
	ctx := context.Background()
	h := newTestCheckout(t, nil)

	_, err := h.carts.GetOrCreate(ctx, "sess-1")
	require.NoError(t, err)

	_, err = h.svc.ExecuteOnline(ctx, OnlineInput{SessionID: "sess-1", Method: enums.PaymentMethodCash})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestExecuteOnlineGatewayPreference(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/checkout/preferences", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pref-abc","init_point":"https://pay.example/pref-abc"}`))
	}))
	defer server.Close()

	gw, err := gateway.NewClient(config.GatewayConfig{BaseURL: server.URL, AccessToken: "token"})
	require.NoError(t, err)

	h := newTestCheckout(t, gw)
	coffee := mustCreateProduct(t, h.conn, "Café Coado", 10, 800)

	_, err = h.carts.AddItem(ctx, "sess-1", cart.AddItemInput{ProductID: coffee.ID, Quantity: 1})
	require.NoError(t, err)

	result, err := h.svc.ExecuteOnline(ctx, OnlineInput{
		SessionID:  "sess-1",
		Method:     enums.PaymentMethodGateway,
		PayerEmail: "ana@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Preference)
	assert.Equal(t, "pref-abc", result.Preference.ID)
	assert.Equal(t, enums.PaymentStatusPending, result.Payment.Status)
	require.NotNil(t, result.Payment.GatewayReference)
	assert.Equal(t, result.Order.ID.String(), *result.Payment.GatewayReference)
}

func TestExecuteOnlineWithoutGatewayConfigured(t *testing.T) {
	ctx := context.Background()
	h := newTestCheckout(t, nil)

	_, err := h.svc.ExecuteOnline(ctx, OnlineInput{SessionID: "sess-1", Method: enums.PaymentMethodGateway})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestSettleTableCashWithChange(t *testing.T) {
	ctx := context.Background()
	h := newTestCheckout(t, nil)
	feijoada := mustCreateProduct(t, h.conn, "Feijoada", 10, 3500)

	table, err := h.tables.Create(ctx, 1)
	require.NoError(t, err)
	after, err := h.tables.AddItem(ctx, table.ID, tables.AddItemInput{ProductID: feijoada.ID, Quantity: 2})
	require.NoError(t, err)
	claimedNumber := after.OrderNumber

	result, err := h.svc.SettleTable(ctx, TableSettleInput{
		TableID:             table.ID,
		Method:              enums.PaymentMethodCash,
		AmountTenderedCents: 10000,
	})
	require.NoError(t, err)
	assert.Equal(t, claimedNumber, result.Order.Number)
	assert.Equal(t, 7000, result.Order.TotalCents)
	assert.Equal(t, 3000, result.ChangeCents)
	assert.Equal(t, enums.PaymentStatusConfirmed, result.Payment.Status)

	onHand, err := h.inventory.OnHand(ctx, feijoada.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, onHand)

	freed, err := h.tables.Get(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusFree, freed.Status)
	assert.Empty(t, freed.Items)
	assert.Equal(t, int64(0), freed.OrderNumber)
	require.NotNil(t, freed.ClosedAt)

	var count int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventTableFinalized).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSettleTableCashBelowBill(t *testing.T) {
	ctx := context.Background()
	h := newTestCheckout(t, nil)
	feijoada := mustCreateProduct(t, h.conn, "Feijoada", 10, 3500)

	table, err := h.tables.Create(ctx, 1)
	require.NoError(t, err)
	_, err = h.tables.AddItem(ctx, table.ID, tables.AddItemInput{ProductID: feijoada.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = h.svc.SettleTable(ctx, TableSettleInput{
		TableID:             table.ID,
		Method:              enums.PaymentMethodCash,
		AmountTenderedCents: 1000,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	// The failed attempt left the table untouched.
	still, err := h.tables.Get(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, still.Items, 1)
	assert.NotEqual(t, int64(0), still.OrderNumber)
}

func TestSettleTableWithoutOpenOrder(t *testing.T) {
	ctx := context.Background()
	h := newTestCheckout(t, nil)

	table, err := h.tables.Create(ctx, 1)
	require.NoError(t, err)

	_, err = h.svc.SettleTable(ctx, TableSettleInput{TableID: table.ID, Method: enums.PaymentMethodCash})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}
