package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	webhookcontrollers "github.com/vmachado/lojapos-backend/api/controllers/webhooks"
	"github.com/vmachado/lojapos-backend/api/routes"
	"github.com/vmachado/lojapos-backend/internal/auth"
	"github.com/vmachado/lojapos-backend/internal/cart"
	"github.com/vmachado/lojapos-backend/internal/catalog"
	"github.com/vmachado/lojapos-backend/internal/checkout"
	"github.com/vmachado/lojapos-backend/internal/favorites"
	"github.com/vmachado/lojapos-backend/internal/inventory"
	"github.com/vmachado/lojapos-backend/internal/ordernumber"
	"github.com/vmachado/lojapos-backend/internal/orders"
	"github.com/vmachado/lojapos-backend/internal/payments"
	"github.com/vmachado/lojapos-backend/internal/reviews"
	"github.com/vmachado/lojapos-backend/internal/tables"
	gatewaywebhook "github.com/vmachado/lojapos-backend/internal/webhooks/gateway"
	"github.com/vmachado/lojapos-backend/pkg/broadcast"
	"github.com/vmachado/lojapos-backend/pkg/config"
	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/gateway"
	"github.com/vmachado/lojapos-backend/pkg/kvstore"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/migrate"
	"github.com/vmachado/lojapos-backend/pkg/outbox"
	"github.com/vmachado/lojapos-backend/pkg/redis"
)

const gatewayWebhookDedupTTL = 48 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, allocator, gatewayClient, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	// Peer processes announce claimed order numbers over the broadcast
	// channel; the listener ratchets the local counter to match.
	listenCtx, stopListener := context.WithCancel(context.Background())
	defer stopListener()
	go func() {
		if err := allocator.Listen(listenCtx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(context.Background(), "order number listener stopped", err)
		}
	}()

	// Left nil when the gateway is not configured so the webhook route
	// reports itself unavailable instead of calling a dead client.
	var webhookService webhookcontrollers.GatewayWebhookService
	if gatewayClient != nil {
		webhookService, err = gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
			Gateway:  gatewayClient,
			Payments: services.Payments,
			Logger:   logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to wire gateway webhook service", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "payment gateway not configured; gateway checkout and webhooks disabled")
	}

	webhookGuard, err := gatewaywebhook.NewIdempotencyGuard(redisClient, gatewayWebhookDedupTTL, "gateway-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to wire webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, services, webhookService, webhookGuard),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	errs := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	case sig := <-shutdown:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, ordernumber.Service, *gateway.Client, error) {
	gormDB := dbClient.DB()

	store, err := kvstore.NewRedis(redisClient)
	if err != nil {
		return routes.Services{}, nil, nil, err
	}
	bcast, err := broadcast.NewRedis(redisClient, cfg.Counter.Channel, logg)
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:    inventory.NewRepository(gormDB),
		DB:      dbClient,
		Store:   store,
		Outbox:  outboxSvc,
		Logger:  logg,
		CartTTL: cfg.Inventory.CartReservationTTL,
	})
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	catalogRepo := catalog.NewRepository(gormDB)
	catalogSvc, err := catalog.NewService(catalogRepo, inventorySvc, logg)
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	allocator, err := ordernumber.NewService(ordernumber.ServiceParams{
		Store:     store,
		Broadcast: bcast,
		Logger:    logg,
		Attempts:  cfg.Counter.ClaimAttempts,
	})
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	tableSvc, err := tables.NewService(tables.ServiceParams{
		Repo:      tables.NewRepository(gormDB),
		Products:  catalogRepo,
		Inventory: inventorySvc,
		Allocator: allocator,
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Repo:      cart.NewRepository(gormDB),
		Products:  catalogRepo,
		Inventory: inventorySvc,
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(gormDB),
		DB:        dbClient,
		Inventory: inventorySvc,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:   payments.NewRepository(gormDB),
		DB:     dbClient,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	var gatewayClient *gateway.Client
	if cfg.Gateway.BaseURL != "" {
		gatewayClient, err = gateway.NewClient(cfg.Gateway)
		if err != nil {
			return routes.Services{}, nil, nil, err
		}
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Carts:     cartSvc,
		Tables:    tableSvc,
		Orders:    orderSvc,
		Payments:  paymentSvc,
		Inventory: inventorySvc,
		Allocator: allocator,
		Gateway:   gatewayClient,
		DB:        dbClient,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	authSvc, err := auth.NewService(auth.ServiceParams{
		Repo:     auth.NewRepository(gormDB),
		Sessions: redisClient,
		JWT:      cfg.JWT,
		Password: cfg.Password,
		Logger:   logg,
	})
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	favoriteSvc, err := favorites.NewService(favorites.NewRepository(gormDB), catalogRepo, inventorySvc, logg)
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	reviewSvc, err := reviews.NewService(reviews.NewRepository(gormDB), catalogRepo, logg)
	if err != nil {
		return routes.Services{}, nil, nil, err
	}

	return routes.Services{
		Auth:      authSvc,
		Catalog:   catalogSvc,
		Inventory: inventorySvc,
		Tables:    tableSvc,
		Cart:      cartSvc,
		Checkout:  checkoutSvc,
		Orders:    orderSvc,
		Payments:  paymentSvc,
		Favorites: favoriteSvc,
		Reviews:   reviewSvc,
	}, allocator, gatewayClient, nil
}
