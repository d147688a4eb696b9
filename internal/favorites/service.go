// Package favorites lets shoppers pin products on the storefront.
package favorites

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/internal/inventory"
	dbpkg "github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

// Service manages a user's favorite products.
type Service interface {
	// Add pins the product. Pinning twice is a no-op.
	Add(ctx context.Context, userID, productID uuid.UUID) (*models.FavoriteItem, error)

	// List returns the user's favorites, newest first, with live
	// availability per product.
	List(ctx context.Context, userID uuid.UUID) ([]FavoriteDTO, error)

	// Remove unpins the product.
	Remove(ctx context.Context, userID, productID uuid.UUID) error
}

// FavoriteDTO carries the pinned product and its availability.
type FavoriteDTO struct {
	models.FavoriteItem
	AvailableQty int `json:"available_qty"`
}

type productLoader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type service struct {
	repo      *Repository
	products  productLoader
	inventory inventory.Service
	logg      *logger.Logger
}

// NewService wires the favorites service.
func NewService(repo *Repository, products productLoader, inventorySvc inventory.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("favorites repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, products: products, inventory: inventorySvc, logg: logg}, nil
}

func (s *service) Add(ctx context.Context, userID, productID uuid.UUID) (*models.FavoriteItem, error) {
	if _, err := s.products.FindProduct(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}

	favorite := &models.FavoriteItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
	}
	if err := s.repo.Create(ctx, favorite); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return s.existing(ctx, userID, productID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "pinning favorite")
	}
	return favorite, nil
}

func (s *service) existing(ctx context.Context, userID, productID uuid.UUID) (*models.FavoriteItem, error) {
	favorite, err := s.repo.Find(ctx, userID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading favorite")
	}
	return favorite, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]FavoriteDTO, error) {
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing favorites")
	}
	if len(rows) == 0 {
		return []FavoriteDTO{}, nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	available, err := s.inventory.AvailableStockMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	dtos := make([]FavoriteDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FavoriteDTO{
			FavoriteItem: row,
			AvailableQty: available[row.ProductID],
		})
	}
	return dtos, nil
}

func (s *service) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unpinning favorite")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "favorite not found")
	}
	return nil
}
