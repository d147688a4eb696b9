package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/pagination"
)

// Repository persists products' stock balances and movement rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindProduct loads the product without associations.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// StockQty returns the current on-hand balance.
func (r *Repository) StockQty(ctx context.Context, productID uuid.UUID) (int, error) {
	var qty int
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Pluck("stock_qty", &qty).Error
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// StockQtys returns on-hand balances keyed by product id.
func (r *Repository) StockQtys(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	type row struct {
		ID       uuid.UUID
		StockQty int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Select("id", "stock_qty").
		Where("id IN ?", productIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	balances := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		balances[r.ID] = r.StockQty
	}
	return balances, nil
}

// SetStockQty overwrites the on-hand balance.
func (r *Repository) SetStockQty(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock_qty", qty).Error
}

// InsertMovement appends one audit row.
func (r *Repository) InsertMovement(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

// DeleteMovementsBefore removes audit rows older than the cutoff and
// returns how many went away.
func (r *Repository) DeleteMovementsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&models.StockMovement{})
	return res.RowsAffected, res.Error
}

// ListMovements pages the audit trail newest first. A nil productID
// spans all products.
func (r *Repository) ListMovements(ctx context.Context, productID *uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.StockMovement, error) {
	query := r.db.WithContext(ctx).Model(&models.StockMovement{})
	if productID != nil {
		query = query.Where("product_id = ?", *productID)
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var rows []models.StockMovement
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
