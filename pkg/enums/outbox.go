package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateProduct       OutboxAggregateType = "product"
	AggregateOrder         OutboxAggregateType = "order"
	AggregateTable         OutboxAggregateType = "table"
	AggregatePayment       OutboxAggregateType = "payment"
	AggregateStockMovement OutboxAggregateType = "stock_movement"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateProduct,
	AggregateOrder,
	AggregateTable,
	AggregatePayment,
	AggregateStockMovement,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventStockMovementRecorded OutboxEventType = "stock_movement_recorded"
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventOrderCanceled         OutboxEventType = "order_canceled"
	EventTableFinalized        OutboxEventType = "table_finalized"
	EventPaymentConfirmed      OutboxEventType = "payment_confirmed"
	EventPaymentFailed         OutboxEventType = "payment_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventStockMovementRecorded,
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderCanceled,
	EventTableFinalized,
	EventPaymentConfirmed,
	EventPaymentFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
