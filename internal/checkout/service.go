// Package checkout orchestrates the two settlement flows: online carts
// converting into paid orders and dine-in tables closing their bill.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/internal/cart"
	"github.com/vmachado/lojapos-backend/internal/inventory"
	"github.com/vmachado/lojapos-backend/internal/ordernumber"
	"github.com/vmachado/lojapos-backend/internal/orders"
	"github.com/vmachado/lojapos-backend/internal/payments"
	"github.com/vmachado/lojapos-backend/internal/tables"
	"github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/gateway"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/outbox"
	"github.com/vmachado/lojapos-backend/pkg/outbox/payloads"
)

// Service executes checkouts.
type Service interface {
	// ExecuteOnline turns the session's cart into a placed order: holds
	// settle as consumption, the order claims its daily number, payment
	// is recorded and the cart converts.
	ExecuteOnline(ctx context.Context, input OnlineInput) (*OnlineResult, error)

	// SettleTable closes a dine-in table: its holds settle as
	// consumption, the table's order number becomes a placed order,
	// payment is recorded and the table frees up.
	SettleTable(ctx context.Context, input TableSettleInput) (*TableSettleResult, error)
}

// OnlineInput describes an online checkout request.
type OnlineInput struct {
	SessionID    string
	Method       enums.PaymentMethod
	CustomerName *string
	UserID       *uuid.UUID
	PayerEmail   string
}

// OnlineResult is the placed order plus its payment handle. Preference
// is set only for gateway payments.
type OnlineResult struct {
	Order      *models.Order
	Payment    *models.Payment
	Preference *gateway.Preference
}

// TableSettleInput describes closing a table's bill.
type TableSettleInput struct {
	TableID             uuid.UUID
	Method              enums.PaymentMethod
	DiscountCents       int
	AmountTenderedCents int
}

// TableSettleResult is the placed order, its payment and the cash
// change owed, zero for non-cash methods.
type TableSettleResult struct {
	Order       *models.Order
	Payment     *models.Payment
	ChangeCents int
}

// ServiceParams packages the dependencies for the checkout service.
type ServiceParams struct {
	Carts     cart.Service
	Tables    tables.Service
	Orders    orders.Service
	Payments  payments.Service
	Inventory inventory.Service
	Allocator ordernumber.Service
	// Gateway may be nil; gateway-method checkouts then fail with a
	// dependency error.
	Gateway *gateway.Client
	DB      *db.Client
	Outbox  *outbox.Service
	Logger  *logger.Logger
}

type service struct {
	carts     cart.Service
	tables    tables.Service
	orders    orders.Service
	payments  payments.Service
	inventory inventory.Service
	allocator ordernumber.Service
	gateway   *gateway.Client
	db        *db.Client
	outbox    *outbox.Service
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Tables == nil {
		return nil, fmt.Errorf("tables service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Allocator == nil {
		return nil, fmt.Errorf("order number allocator required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		carts:     params.Carts,
		tables:    params.Tables,
		orders:    params.Orders,
		payments:  params.Payments,
		inventory: params.Inventory,
		allocator: params.Allocator,
		gateway:   params.Gateway,
		db:        params.DB,
		outbox:    params.Outbox,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) ExecuteOnline(ctx context.Context, input OnlineInput) (*OnlineResult, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.Method.RequiresGateway() && s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}

	cartDTO, err := s.carts.Get(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if cartDTO.Status != enums.CartStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is not active")
	}
	if len(cartDTO.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	reference := cartDTO.ID.String()
	lines := make([]orders.PlaceItem, 0, len(cartDTO.Items))
	for _, item := range cartDTO.Items {
		lines = append(lines, orders.PlaceItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	if err := s.settleLines(ctx, lines, enums.ReservationKindCart, 0, enums.MovementOriginOnlineSale, reference); err != nil {
		return nil, err
	}

	number, err := s.allocator.Next(ctx)
	if err != nil {
		s.restoreLines(ctx, lines, enums.MovementOriginOnlineSaleCancellation, reference)
		return nil, err
	}

	userID := input.UserID
	if userID == nil {
		userID = cartDTO.UserID
	}
	cartID := cartDTO.ID
	method := input.Method
	order, err := s.orders.Place(ctx, orders.PlaceInput{
		Number:        number,
		BusinessDate:  s.allocator.BusinessDate(),
		CartID:        &cartID,
		UserID:        userID,
		CustomerName:  input.CustomerName,
		PaymentMethod: &method,
		Items:         lines,
	})
	if err != nil {
		s.restoreLines(ctx, lines, enums.MovementOriginOnlineSaleCancellation, reference)
		return nil, err
	}

	result := &OnlineResult{Order: order}
	if input.Method.RequiresGateway() {
		preference, payment, err := s.openGatewayPayment(ctx, order, input.PayerEmail)
		if err != nil {
			return nil, err
		}
		result.Preference = preference
		result.Payment = payment
	} else {
		payment, err := s.payments.Settle(ctx, payments.SettleInput{
			OrderID:     order.ID,
			Method:      input.Method,
			AmountCents: order.TotalCents,
		})
		if err != nil {
			return nil, err
		}
		result.Payment = payment
	}

	if _, err := s.carts.MarkConverted(ctx, input.SessionID); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "order_number", order.Number), "online checkout completed")
	return result, nil
}

func (s *service) SettleTable(ctx context.Context, input TableSettleInput) (*TableSettleResult, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.Method.RequiresGateway() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tables settle at the counter")
	}
	if input.DiscountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}

	table, err := s.tables.Get(ctx, input.TableID)
	if err != nil {
		return nil, err
	}
	if len(table.Items) == 0 || table.OrderNumber == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "table has no open order")
	}

	total := table.TotalCents - input.DiscountCents
	if total < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds the bill")
	}
	change := 0
	if input.Method == enums.PaymentMethodCash {
		if input.AmountTenderedCents < total {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount tendered is below the bill")
		}
		change = input.AmountTenderedCents - total
	}

	reference := table.Slug
	lines := make([]orders.PlaceItem, 0, len(table.Items))
	for _, item := range table.Items {
		lines = append(lines, orders.PlaceItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	if err := s.settleLines(ctx, lines, enums.ReservationKindTable, int64(table.Number), enums.MovementOriginInPersonSale, reference); err != nil {
		return nil, err
	}

	tableID := table.ID
	method := input.Method
	order, err := s.orders.Place(ctx, orders.PlaceInput{
		Number:        table.OrderNumber,
		BusinessDate:  s.allocator.BusinessDate(),
		TableID:       &tableID,
		UserID:        table.UserID,
		PaymentMethod: &method,
		DiscountCents: input.DiscountCents,
		Items:         lines,
	})
	if err != nil {
		s.restoreLines(ctx, lines, enums.MovementOriginInPersonCancellation, reference)
		return nil, err
	}

	payment, err := s.payments.Settle(ctx, payments.SettleInput{
		OrderID:     order.ID,
		Method:      input.Method,
		AmountCents: total,
	})
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTableFinalized,
			AggregateType: enums.AggregateTable,
			AggregateID:   table.ID,
			Data: payloads.TableFinalizedEvent{
				TableID:     table.ID,
				TableNumber: table.Number,
				OrderID:     order.ID,
				TotalCents:  total,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queuing table finalized event")
	}

	if err := s.tables.Finalize(ctx, table.ID); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithTableID(ctx, int64(table.Number)), "table settled")
	return &TableSettleResult{Order: order, Payment: payment, ChangeCents: change}, nil
}

// settleLines converts each line's hold into a recorded sale. When a
// line fails, the ones already settled are restored before returning.
func (s *service) settleLines(ctx context.Context, lines []orders.PlaceItem, kind enums.ReservationKind, tableID int64, origin enums.MovementOrigin, reference string) error {
	for i, line := range lines {
		_, err := s.inventory.ConfirmConsumption(ctx, inventory.ConfirmInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Kind:      kind,
			TableID:   tableID,
			Origin:    origin,
			Reference: &reference,
		})
		if err != nil {
			cancelOrigin := enums.MovementOriginOnlineSaleCancellation
			if origin == enums.MovementOriginInPersonSale {
				cancelOrigin = enums.MovementOriginInPersonCancellation
			}
			s.restoreLines(ctx, lines[:i], cancelOrigin, reference)
			return err
		}
	}
	return nil
}

// restoreLines puts already-settled quantities back on the shelf after
// a later step failed. Failures here are logged; the movement log still
// holds the truth for manual reconciliation.
func (s *service) restoreLines(ctx context.Context, lines []orders.PlaceItem, origin enums.MovementOrigin, reference string) {
	for _, line := range lines {
		_, err := s.inventory.RecordCancellation(ctx, inventory.CancellationInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Origin:    origin,
			Reference: &reference,
		})
		if err != nil {
			s.logg.Error(s.logg.WithProductID(ctx, line.ProductID.String()), "restoring settled line", err)
		}
	}
}

func (s *service) openGatewayPayment(ctx context.Context, order *models.Order, payerEmail string) (*gateway.Preference, *models.Payment, error) {
	items := make([]gateway.PreferenceItem, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, gateway.PreferenceItem{
			Title:     line.ProductName,
			Quantity:  line.Quantity,
			UnitPrice: decimal.NewFromInt(int64(line.UnitPriceCents)).Div(decimal.NewFromInt(100)),
		})
	}
	preference, err := s.gateway.CreatePreference(ctx, gateway.PreferenceRequest{
		ExternalReference: order.ID,
		Items:             items,
		PayerEmail:        payerEmail,
	})
	if err != nil {
		return nil, nil, err
	}
	// The provider echoes the external reference back on webhook
	// notifications, so the pending payment is keyed by order ID.
	payment, err := s.payments.CreatePending(ctx, payments.PendingInput{
		OrderID:          order.ID,
		AmountCents:      order.TotalCents,
		GatewayReference: order.ID.String(),
	})
	if err != nil {
		return nil, nil, err
	}
	return preference, payment, nil
}
