package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vmachado/lojapos-backend/pkg/enums"
)

// StockMovement is one append-only entry in the movement log. Rows are
// never updated or individually deleted; the retention job prunes by
// age. ProductName is denormalized so the history stays readable after
// the product is renamed or removed.
type StockMovement struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID    uuid.UUID            `gorm:"column:product_id;type:uuid;not null;index"`
	ProductName  string               `gorm:"column:product_name;not null"`
	Kind         enums.MovementKind   `gorm:"column:kind;not null"`
	Origin       enums.MovementOrigin `gorm:"column:origin;not null"`
	Quantity     int                  `gorm:"column:quantity;not null"`
	BalanceAfter int                  `gorm:"column:balance_after;not null"`
	Notes        *string              `gorm:"column:notes"`
	Reference    *string              `gorm:"column:reference"`
	OccurredAt   time.Time            `gorm:"column:occurred_at;not null;index"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
}
