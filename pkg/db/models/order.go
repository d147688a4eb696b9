package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vmachado/lojapos-backend/pkg/enums"
)

// Order is a placed order, in-person or online. Number is the
// human-facing daily sequence; it restarts every business day, so the
// pair (business_date, number) is what is unique, not Number alone.
type Order struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number        int64                `gorm:"column:number;not null;uniqueIndex:idx_orders_day_number"`
	BusinessDate  string               `gorm:"column:business_date;not null;uniqueIndex:idx_orders_day_number"`
	TableID       *uuid.UUID           `gorm:"column:table_id;type:uuid"`
	CartID        *uuid.UUID           `gorm:"column:cart_id;type:uuid"`
	UserID        *uuid.UUID           `gorm:"column:user_id;type:uuid"`
	CustomerName  *string              `gorm:"column:customer_name"`
	Status        enums.OrderStatus    `gorm:"column:status;not null;default:'pending'"`
	PaymentMethod *enums.PaymentMethod `gorm:"column:payment_method"`
	SubtotalCents int                  `gorm:"column:subtotal_cents;not null;default:0"`
	DiscountCents int                  `gorm:"column:discount_cents;not null;default:0"`
	TotalCents    int                  `gorm:"column:total_cents;not null;default:0"`
	PlacedAt      time.Time            `gorm:"column:placed_at;not null"`
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments      []Payment            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
