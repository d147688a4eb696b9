package favorites

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/pkg/db/models"
)

// Repository persists favorite marks.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, favorite *models.FavoriteItem) error {
	return r.db.WithContext(ctx).Create(favorite).Error
}

func (r *Repository) Find(ctx context.Context, userID, productID uuid.UUID) (*models.FavoriteItem, error) {
	var favorite models.FavoriteItem
	err := r.db.WithContext(ctx).
		First(&favorite, "user_id = ? AND product_id = ?", userID, productID).Error
	if err != nil {
		return nil, err
	}
	return &favorite, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.FavoriteItem, error) {
	var rows []models.FavoriteItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Order("created_at DESC").
		Find(&rows, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) Delete(ctx context.Context, userID, productID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Delete(&models.FavoriteItem{}, "user_id = ? AND product_id = ?", userID, productID)
	return result.RowsAffected, result.Error
}
