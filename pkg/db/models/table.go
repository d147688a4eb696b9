package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vmachado/lojapos-backend/pkg/enums"
)

// Table is a dine-in table tracked by the counter. Slug carries the
// zero-padded display form ("Mesa-01") derived from Number.
type Table struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number    int               `gorm:"column:number;not null;uniqueIndex"`
	Slug      string            `gorm:"column:slug;not null;uniqueIndex"`
	Status    enums.TableStatus `gorm:"column:status;not null;default:'free'"`
	// OrderNumber is the daily advisory number claimed when the first
	// item lands; zero means no open order. It survives item edits for
	// the life of the current order.
	OrderNumber int64       `gorm:"column:order_number;not null;default:0"`
	UserID      *uuid.UUID  `gorm:"column:user_id;type:uuid"`
	Items       []TableItem `gorm:"foreignKey:TableID;constraint:OnDelete:CASCADE"`
	OpenedAt  *time.Time        `gorm:"column:opened_at"`
	ClosedAt  *time.Time        `gorm:"column:closed_at"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
