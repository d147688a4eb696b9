// Package inventory owns the stock ledger, the reservation manager and
// the movement log as one service, so callers never juggle the three
// behind each other's back.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	"github.com/vmachado/lojapos-backend/pkg/kvstore"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/outbox"
)

// Service exposes stock bookkeeping: on-hand balances, tentative
// reservations and the append-only movement audit trail.
type Service interface {
	// OnHand returns the ledger balance for the product.
	OnHand(ctx context.Context, productID uuid.UUID) (int, error)

	// AvailableStock returns max(0, on-hand minus reserved) after an
	// expiry sweep.
	AvailableStock(ctx context.Context, productID uuid.UUID) (int, error)

	// AvailableStockMany answers for a whole listing with one sweep.
	AvailableStockMany(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error)

	// Reserve places a hold against available stock. A false return
	// means insufficient stock or unknown product; nothing changed.
	Reserve(ctx context.Context, input ReserveInput) (bool, error)

	// Release hands back previously reserved quantity, oldest holds
	// first.
	Release(ctx context.Context, input ReleaseInput) error

	// ConfirmConsumption converts matching holds into a recorded sale:
	// holds are flagged confirmed, the exit movement decrements the
	// ledger, then the holds leave the reservation list.
	ConfirmConsumption(ctx context.Context, input ConfirmInput) (*models.StockMovement, error)

	// ExpireCartReservations drops cart holds older than the TTL and
	// returns how many were removed.
	ExpireCartReservations(ctx context.Context) (int, error)

	// CancelTableReservations drops every unconfirmed hold for the
	// table across all products. Confirmed holds stay; undoing those
	// goes through RecordCancellation instead.
	CancelTableReservations(ctx context.Context, tableID int64) error

	// RecordMovement appends an audit entry and applies its delta to
	// the ledger.
	RecordMovement(ctx context.Context, input RecordMovementInput) (*models.StockMovement, error)

	// RecordCancellation restores stock for an already-settled sale
	// with an entry movement carrying a cancellation origin.
	RecordCancellation(ctx context.Context, input CancellationInput) (*models.StockMovement, error)

	// PruneMovements deletes audit entries older than the retention
	// window and returns the number removed.
	PruneMovements(ctx context.Context, retentionDays int) (int64, error)

	// ListMovements pages through the audit trail, newest first.
	ListMovements(ctx context.Context, input ListMovementsInput) (*MovementListResult, error)
}

// ReserveInput describes one hold request. TableID is zero for cart
// holds.
type ReserveInput struct {
	ProductID uuid.UUID
	Quantity  int
	Kind      enums.ReservationKind
	TableID   int64
}

// ReleaseInput mirrors ReserveInput; quantities should align with how
// they were reserved because a single hold is never split.
type ReleaseInput struct {
	ProductID uuid.UUID
	Quantity  int
	Kind      enums.ReservationKind
	TableID   int64
}

// ConfirmInput settles matching holds as a sale.
type ConfirmInput struct {
	ProductID uuid.UUID
	Quantity  int
	Kind      enums.ReservationKind
	TableID   int64
	Origin    enums.MovementOrigin
	Reference *string
}

// ServiceParams packages the dependencies for the inventory service.
type ServiceParams struct {
	Repo    *Repository
	DB      *db.Client
	Store   kvstore.Store
	Outbox  *outbox.Service
	Logger  *logger.Logger
	CartTTL time.Duration
}

type service struct {
	repo    *Repository
	db      *db.Client
	store   kvstore.Store
	outbox  *outbox.Service
	logg    *logger.Logger
	cartTTL time.Duration
	now     func() time.Time
}

// NewService wires the inventory service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.CartTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &service{
		repo:    params.Repo,
		db:      params.DB,
		store:   params.Store,
		outbox:  params.Outbox,
		logg:    params.Logger,
		cartTTL: ttl,
		now:     time.Now,
	}, nil
}
