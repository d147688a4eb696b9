package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product is the canonical catalog entry. StockQty is the on-hand
// balance the stock ledger moves; reserved quantities live in the
// key-value store, never here.
type Product struct {
	ID                  uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CategoryID          *uuid.UUID     `gorm:"column:category_id;type:uuid"`
	SKU                 string         `gorm:"column:sku;not null;uniqueIndex"`
	Name                string         `gorm:"column:name;not null"`
	Description         *string        `gorm:"column:description"`
	PriceCents          int            `gorm:"column:price_cents;not null"`
	CompareAtPriceCents *int           `gorm:"column:compare_at_price_cents"`
	ImageURLs           pq.StringArray `gorm:"column:image_urls;type:text[];not null;default:ARRAY[]::text[]"`
	StockQty            int            `gorm:"column:stock_qty;not null;default:0"`
	IsActive            bool           `gorm:"column:is_active;not null;default:true"`
	Category            *Category      `gorm:"foreignKey:CategoryID"`
	CreatedAt           time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
