package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vmachado/lojapos-backend/pkg/enums"
)

// Payment is one settlement attempt against an order. Gateway-settled
// payments keep the provider's reference and raw response for audit.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Method           enums.PaymentMethod `gorm:"column:method;not null"`
	Status           enums.PaymentStatus `gorm:"column:status;not null;default:'pending'"`
	AmountCents      int                 `gorm:"column:amount_cents;not null"`
	GatewayReference *string             `gorm:"column:gateway_reference;uniqueIndex"`
	GatewayPayload   json.RawMessage     `gorm:"column:gateway_payload;type:jsonb"`
	ConfirmedAt      *time.Time          `gorm:"column:confirmed_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
