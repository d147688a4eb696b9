package tables

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vmachado/lojapos-backend/pkg/db/models"
)

// Repository persists dine-in tables and their items.
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

func (r *Repository) Create(ctx context.Context, table *models.Table) error {
	return r.db.WithContext(ctx).Create(table).Error
}

// Save writes the table row only; items are managed through their own
// methods.
func (r *Repository) Save(ctx context.Context, table *models.Table) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(table).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Table{}, "id = ?", id).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Table, error) {
	var table models.Table
	if err := r.db.WithContext(ctx).Preload("Items").First(&table, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Table, error) {
	var table models.Table
	if err := r.db.WithContext(ctx).Preload("Items").First(&table, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *Repository) FindByNumber(ctx context.Context, number int) (*models.Table, error) {
	var table models.Table
	if err := r.db.WithContext(ctx).Preload("Items").First(&table, "number = ?", number).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *Repository) List(ctx context.Context) ([]models.Table, error) {
	var rows []models.Table
	err := r.db.WithContext(ctx).
		Preload("Items").
		Order("number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.TableItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) FindItem(ctx context.Context, tableID, itemID uuid.UUID) (*models.TableItem, error) {
	var item models.TableItem
	err := r.db.WithContext(ctx).
		First(&item, "id = ? AND table_id = ?", itemID, tableID).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.TableItem{}, "id = ?", itemID).Error
}

func (r *Repository) DeleteItems(ctx context.Context, tableID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.TableItem{}, "table_id = ?", tableID).Error
}

func (r *Repository) CountItems(ctx context.Context, tableID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TableItem{}).
		Where("table_id = ?", tableID).
		Count(&count).Error
	return count, err
}
