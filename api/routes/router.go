package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vmachado/lojapos-backend/api/controllers"
	webhookcontrollers "github.com/vmachado/lojapos-backend/api/controllers/webhooks"
	"github.com/vmachado/lojapos-backend/api/middleware"
	authsvc "github.com/vmachado/lojapos-backend/internal/auth"
	cartsvc "github.com/vmachado/lojapos-backend/internal/cart"
	catalogsvc "github.com/vmachado/lojapos-backend/internal/catalog"
	checkoutsvc "github.com/vmachado/lojapos-backend/internal/checkout"
	favoritesvc "github.com/vmachado/lojapos-backend/internal/favorites"
	inventorysvc "github.com/vmachado/lojapos-backend/internal/inventory"
	ordersvc "github.com/vmachado/lojapos-backend/internal/orders"
	paymentsvc "github.com/vmachado/lojapos-backend/internal/payments"
	reviewsvc "github.com/vmachado/lojapos-backend/internal/reviews"
	tablesvc "github.com/vmachado/lojapos-backend/internal/tables"
	gatewaywebhook "github.com/vmachado/lojapos-backend/internal/webhooks/gateway"
	"github.com/vmachado/lojapos-backend/pkg/config"
	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/redis"
)

type Services struct {
	Auth      authsvc.Service
	Catalog   catalogsvc.Service
	Inventory inventorysvc.Service
	Tables    tablesvc.Service
	Cart      cartsvc.Service
	Checkout  checkoutsvc.Service
	Orders    ordersvc.Service
	Payments  paymentsvc.Service
	Favorites favoritesvc.Service
	Reviews   reviewsvc.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	services Services,
	gatewayWebhookService webhookcontrollers.GatewayWebhookService,
	gatewayWebhookGuard *gatewaywebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(gatewayWebhookService, gatewayWebhookGuard, cfg.Gateway.WebhookSecret, logg))
	})

	// Public storefront reads. No auth so the menu loads before login.
	r.Group(func(r chi.Router) {
		r.Get("/api/v1/products", controllers.ProductList(services.Catalog, logg))
		r.Get("/api/v1/products/{productId}", controllers.ProductDetail(services.Catalog, logg))
		r.Get("/api/v1/products/{productId}/reviews", controllers.ReviewListForProduct(services.Reviews, logg))
		r.Get("/api/v1/products/{productId}/reviews/summary", controllers.ReviewSummary(services.Reviews, logg))
		r.Get("/api/v1/categories", controllers.CategoryList(services.Catalog, logg))
		// QR codes on tables link straight here by slug.
		r.Get("/api/v1/tables/{tableId}", controllers.TableDetail(services.Tables, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(services.Auth, logg))
		r.Use(middleware.Idempotency(redisClient, logg))
		r.Post("/api/v1/auth/register", controllers.AuthRegister(services.Auth, logg))
		r.Post("/api/v1/auth/login", controllers.AuthLogin(services.Auth, logg))
	})

	// Storefront session routes. Anonymous shoppers carry X-Session-Id;
	// logged-in shoppers get the cart attached to their account.
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionID())
		r.Use(middleware.OptionalAuth(services.Auth, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/api/v1/cart", controllers.CartFetch(services.Cart, logg))
		r.Post("/api/v1/cart/items", controllers.CartAddItem(services.Cart, logg))
		r.Patch("/api/v1/cart/items/{itemId}", controllers.CartUpdateItem(services.Cart, logg))
		r.Delete("/api/v1/cart/items/{itemId}", controllers.CartRemoveItem(services.Cart, logg))
		r.Delete("/api/v1/cart", controllers.CartClear(services.Cart, logg))

		r.Post("/api/v1/checkout", controllers.Checkout(services.Checkout, logg))
	})

	// Authenticated customer routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(services.Auth, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Post("/api/v1/auth/logout", controllers.AuthLogout(services.Auth, logg))
		r.Get("/api/v1/auth/me", controllers.AuthMe(services.Auth, logg))

		r.Get("/api/v1/favorites", controllers.FavoriteList(services.Favorites, logg))
		r.Post("/api/v1/favorites/{productId}", controllers.FavoriteAdd(services.Favorites, logg))
		r.Delete("/api/v1/favorites/{productId}", controllers.FavoriteRemove(services.Favorites, logg))

		r.Post("/api/v1/products/{productId}/reviews", controllers.ReviewCreate(services.Reviews, logg))
		r.Patch("/api/v1/reviews/{reviewId}", controllers.ReviewUpdate(services.Reviews, logg))
		r.Delete("/api/v1/reviews/{reviewId}", controllers.ReviewDelete(services.Reviews, logg))

		r.Get("/api/v1/orders", controllers.OrderList(services.Orders, logg))
		r.Get("/api/v1/orders/{orderId}", controllers.OrderDetail(services.Orders, logg))
		r.Post("/api/v1/orders/{orderId}/cancel", controllers.OrderCancel(services.Orders, logg))
	})

	// POS staff routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(services.Auth, logg))
		r.Use(middleware.RequireStaff(logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Post("/api/v1/products", controllers.ProductCreate(services.Catalog, logg))
		r.Patch("/api/v1/products/{productId}", controllers.ProductUpdate(services.Catalog, logg))
		r.Delete("/api/v1/products/{productId}", controllers.ProductDelete(services.Catalog, logg))
		r.Post("/api/v1/categories", controllers.CategoryCreate(services.Catalog, logg))
		r.Patch("/api/v1/categories/{categoryId}", controllers.CategoryUpdate(services.Catalog, logg))
		r.Delete("/api/v1/categories/{categoryId}", controllers.CategoryDelete(services.Catalog, logg))

		r.Get("/api/v1/tables", controllers.TableList(services.Tables, logg))
		r.Post("/api/v1/tables", controllers.TableCreate(services.Tables, logg))
		r.Delete("/api/v1/tables/{tableId}", controllers.TableDelete(services.Tables, logg))
		r.Patch("/api/v1/tables/{tableId}/status", controllers.TableUpdateStatus(services.Tables, logg))
		r.Post("/api/v1/tables/{tableId}/items", controllers.TableAddItem(services.Tables, logg))
		r.Delete("/api/v1/tables/{tableId}/items/{itemId}", controllers.TableRemoveItem(services.Tables, logg))
		r.Post("/api/v1/tables/{tableId}/cancel-order", controllers.TableCancelOrder(services.Tables, logg))
		r.Post("/api/v1/tables/{tableId}/switch-user", controllers.TableSwitchUser(services.Tables, logg))
		r.Post("/api/v1/tables/{tableId}/settle", controllers.SettleTable(services.Checkout, logg))

		r.Get("/api/v1/orders/by-day/{businessDate}/{number}", controllers.OrderByDayAndNumber(services.Orders, logg))
		r.Patch("/api/v1/orders/{orderId}/status", controllers.OrderUpdateStatus(services.Orders, logg))
		r.Get("/api/v1/orders/{orderId}/payments", controllers.PaymentListForOrder(services.Payments, logg))
		r.Get("/api/v1/payments/{paymentId}", controllers.PaymentDetail(services.Payments, logg))

		r.Post("/api/v1/stock/movements", controllers.StockMovementRecord(services.Inventory, logg))
		r.Get("/api/v1/stock/movements", controllers.StockMovementList(services.Inventory, logg))
		r.Get("/api/v1/stock/{productId}/availability", controllers.StockAvailability(services.Inventory, logg))
	})

	return r
}
