// Package orders owns the order ledger: placing, listing, status
// transitions and cancellation with stock restore.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/internal/inventory"
	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/outbox"
	"github.com/vmachado/lojapos-backend/pkg/outbox/payloads"
	"github.com/vmachado/lojapos-backend/pkg/pagination"
)

// Service manages placed orders.
type Service interface {
	// Place records a new order with its line snapshots and queues the
	// order-created event in the same transaction.
	Place(ctx context.Context, input PlaceInput) (*models.Order, error)

	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByDayAndNumber(ctx context.Context, businessDate string, number int64) (*models.Order, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)

	// UpdateStatus moves the order one step along
	// pending -> preparing -> ready -> delivered. Cancellation has its
	// own path.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (*models.Order, error)

	// Cancel voids a non-terminal order and restores its stock with
	// cancellation movements.
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
}

// PlaceInput describes a new order.
type PlaceInput struct {
	Number        int64
	BusinessDate  string
	TableID       *uuid.UUID
	CartID        *uuid.UUID
	UserID        *uuid.UUID
	CustomerName  *string
	PaymentMethod *enums.PaymentMethod
	DiscountCents int
	Items         []PlaceItem
}

// PlaceItem is one line snapshot for a new order.
type PlaceItem struct {
	ProductID      uuid.UUID
	ProductName    string
	Quantity       int
	UnitPriceCents int
}

// ListInput narrows and pages the order listing.
type ListInput struct {
	Status       *enums.OrderStatus
	BusinessDate *string
	TableID      *uuid.UUID
	UserID       *uuid.UUID
	Limit        int
	Cursor       string
}

// ListResult is one page of orders, newest first.
type ListResult struct {
	Orders     []models.Order
	NextCursor string
}

// ServiceParams packages the dependencies for the orders service.
type ServiceParams struct {
	Repo      *Repository
	DB        *db.Client
	Inventory inventory.Service
	Outbox    *outbox.Service
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	db        *db.Client
	inventory inventory.Service
	outbox    *outbox.Service
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		db:        params.DB,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) Place(ctx context.Context, input PlaceInput) (*models.Order, error) {
	if input.Number <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	if input.BusinessDate == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business date required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	if input.PaymentMethod != nil && !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.DiscountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}

	subtotal := 0
	items := make([]models.OrderItem, 0, len(input.Items))
	orderID := uuid.New()
	for _, line := range input.Items {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order line quantity must be positive")
		}
		lineSubtotal := line.Quantity * line.UnitPriceCents
		subtotal += lineSubtotal
		items = append(items, models.OrderItem{
			ID:                uuid.New(),
			OrderID:           orderID,
			ProductID:         line.ProductID,
			ProductName:       line.ProductName,
			Quantity:          line.Quantity,
			UnitPriceCents:    line.UnitPriceCents,
			LineSubtotalCents: lineSubtotal,
		})
	}
	total := subtotal - input.DiscountCents
	if total < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds subtotal")
	}

	order := &models.Order{
		ID:            orderID,
		Number:        input.Number,
		BusinessDate:  input.BusinessDate,
		TableID:       input.TableID,
		CartID:        input.CartID,
		UserID:        input.UserID,
		CustomerName:  input.CustomerName,
		Status:        enums.OrderStatusPending,
		PaymentMethod: input.PaymentMethod,
		SubtotalCents: subtotal,
		DiscountCents: input.DiscountCents,
		TotalCents:    total,
		PlacedAt:      s.now(),
		Items:         items,
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCreatedEvent{
				OrderID:      order.ID,
				Number:       order.Number,
				BusinessDate: order.BusinessDate,
				TableID:      order.TableID,
				TotalCents:   order.TotalCents,
			},
			Version:    1,
			OccurredAt: order.PlacedAt,
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order number already taken for this day")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "placing order")
	}

	logCtx := s.logg.WithField(ctx, "order_number", order.Number)
	s.logg.Info(logCtx, "order placed")
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

func (s *service) GetByDayAndNumber(ctx context.Context, businessDate string, number int64) (*models.Order, error) {
	order, err := s.repo.FindByDayAndNumber(ctx, businessDate, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	limit := pagination.NormalizeLimit(input.Limit)
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, ListFilter{
		Status:       input.Status,
		BusinessDate: input.BusinessDate,
		TableID:      input.TableID,
		UserID:       input.UserID,
	}, limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}

	result := &ListResult{Orders: rows}
	if len(rows) > limit {
		result.Orders = rows[:limit]
		last := result.Orders[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

// nextStatuses maps each state to the transitions UpdateStatus allows.
var nextStatuses = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusPending:   enums.OrderStatusPreparing,
	enums.OrderStatusPreparing: enums.OrderStatusReady,
	enums.OrderStatusReady:     enums.OrderStatusDelivered,
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus) (*models.Order, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if to == enums.OrderStatusCanceled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation goes through the cancel operation")
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already closed")
	}
	if nextStatuses[order.Status] != to {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, to))
	}

	from := order.Status
	order.Status = to
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderStatusChangedEvent{
				OrderID: order.ID,
				Number:  order.Number,
				From:    from,
				To:      to,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order status")
	}
	return order, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already closed")
	}

	canceledAt := s.now()
	order.Status = enums.OrderStatusCanceled
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCanceledEvent{
				OrderID:    order.ID,
				Number:     order.Number,
				CanceledAt: canceledAt,
				Reason:     reason,
			},
			Version:    1,
			OccurredAt: canceledAt,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "canceling order")
	}

	origin := enums.MovementOriginOnlineSaleCancellation
	if order.TableID != nil {
		origin = enums.MovementOriginInPersonCancellation
	}
	reference := order.ID.String()

	// The order is already marked canceled; restore stock line by line
	// and surface every failure rather than stopping at the first.
	var restoreErr error
	for _, item := range order.Items {
		_, movementErr := s.inventory.RecordCancellation(ctx, inventory.CancellationInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Origin:    origin,
			Reference: &reference,
		})
		restoreErr = multierr.Append(restoreErr, movementErr)
	}
	if restoreErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, restoreErr, "restoring stock for canceled order")
	}

	s.logg.Info(s.logg.WithField(ctx, "order_number", order.Number), "order canceled")
	return order, nil
}
