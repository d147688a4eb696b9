package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/vmachado/lojapos-backend/pkg/enums"
)

// StockMovementRecordedEvent mirrors one movement-log entry to the
// reporting pipeline. The row it mirrors is already committed; losing
// this event never loses the movement itself.
type StockMovementRecordedEvent struct {
	MovementID   uuid.UUID            `json:"movement_id"`
	ProductID    uuid.UUID            `json:"product_id"`
	ProductName  string               `json:"product_name"`
	Kind         enums.MovementKind   `json:"kind"`
	Origin       enums.MovementOrigin `json:"origin"`
	Quantity     int                  `json:"quantity"`
	BalanceAfter int                  `json:"balance_after"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// OrderCreatedEvent signals a newly placed order.
type OrderCreatedEvent struct {
	OrderID      uuid.UUID  `json:"order_id"`
	Number       int64      `json:"number"`
	BusinessDate string     `json:"business_date"`
	TableID      *uuid.UUID `json:"table_id,omitempty"`
	TotalCents   int        `json:"total_cents"`
}

// OrderStatusChangedEvent reports a status transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	Number  int64             `json:"number"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// OrderCanceledEvent is emitted when an order is canceled and its
// stock handed back.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	Number     int64     `json:"number"`
	CanceledAt time.Time `json:"canceled_at"`
	Reason     string    `json:"reason,omitempty"`
}

// TableFinalizedEvent is emitted when a dine-in table closes out.
type TableFinalizedEvent struct {
	TableID     uuid.UUID `json:"table_id"`
	TableNumber int       `json:"table_number"`
	OrderID     uuid.UUID `json:"order_id"`
	TotalCents  int       `json:"total_cents"`
}

// PaymentConfirmedEvent reports a settled payment.
type PaymentConfirmedEvent struct {
	PaymentID   uuid.UUID           `json:"payment_id"`
	OrderID     uuid.UUID           `json:"order_id"`
	Method      enums.PaymentMethod `json:"method"`
	AmountCents int                 `json:"amount_cents"`
	ConfirmedAt time.Time           `json:"confirmed_at"`
}

// PaymentFailedEvent reports a failed settlement attempt.
type PaymentFailedEvent struct {
	PaymentID uuid.UUID           `json:"payment_id"`
	OrderID   uuid.UUID           `json:"order_id"`
	Method    enums.PaymentMethod `json:"method"`
	Reason    string              `json:"reason,omitempty"`
}
