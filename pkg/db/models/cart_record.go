package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vmachado/lojapos-backend/pkg/enums"
)

// CartRecord is an online shopper's cart. SessionID ties it to the
// anonymous storefront session; UserID is set once the shopper logs in.
type CartRecord struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID     string           `gorm:"column:session_id;not null;uniqueIndex"`
	UserID        *uuid.UUID       `gorm:"column:user_id;type:uuid"`
	Status        enums.CartStatus `gorm:"column:status;not null;default:'active'"`
	SubtotalCents int              `gorm:"column:subtotal_cents;not null;default:0"`
	TotalCents    int              `gorm:"column:total_cents;not null;default:0"`
	ConvertedAt   *time.Time       `gorm:"column:converted_at"`
	Items         []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
