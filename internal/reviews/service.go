// Package reviews handles product ratings, one review per shopper per
// product.
package reviews

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/logger"
	"github.com/vmachado/lojapos-backend/pkg/pagination"
)

// Service manages product reviews.
type Service interface {
	// Create records a review; a second one for the same product by
	// the same shopper is rejected.
	Create(ctx context.Context, input CreateInput) (*models.Review, error)

	// Update rewrites the shopper's own review.
	Update(ctx context.Context, userID, reviewID uuid.UUID, rating int, comment *string) (*models.Review, error)

	// Delete removes the shopper's own review.
	Delete(ctx context.Context, userID, reviewID uuid.UUID) error

	ListForProduct(ctx context.Context, productID uuid.UUID, limit int, cursor string) (*ListResult, error)
	Summary(ctx context.Context, productID uuid.UUID) (*Summary, error)
}

// CreateInput describes a new review.
type CreateInput struct {
	ProductID uuid.UUID
	UserID    uuid.UUID
	Rating    int
	Comment   *string
}

// ListResult is one page of reviews, newest first.
type ListResult struct {
	Reviews    []models.Review
	NextCursor string
}

// Summary aggregates a product's ratings.
type Summary struct {
	ProductID     uuid.UUID `json:"product_id"`
	AverageRating float64   `json:"average_rating"`
	ReviewCount   int64     `json:"review_count"`
}

type productLoader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type service struct {
	repo     *Repository
	products productLoader
	logg     *logger.Logger
}

// NewService wires the reviews service.
func NewService(repo *Repository, products productLoader, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, products: products, logg: logg}, nil
}

func validRating(rating int) bool {
	return rating >= 1 && rating <= 5
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Review, error) {
	if !validRating(input.Rating) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	if _, err := s.products.FindProduct(ctx, input.ProductID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}

	review := &models.Review{
		ID:        uuid.New(),
		ProductID: input.ProductID,
		UserID:    input.UserID,
		Rating:    input.Rating,
		Comment:   input.Comment,
	}
	if err := s.repo.Create(ctx, review); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already reviewed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating review")
	}
	return review, nil
}

func (s *service) Update(ctx context.Context, userID, reviewID uuid.UUID, rating int, comment *string) (*models.Review, error) {
	if !validRating(rating) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	review, err := s.ownedReview(ctx, userID, reviewID)
	if err != nil {
		return nil, err
	}
	review.Rating = rating
	review.Comment = comment
	if err := s.repo.Save(ctx, review); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating review")
	}
	return review, nil
}

func (s *service) Delete(ctx context.Context, userID, reviewID uuid.UUID) error {
	review, err := s.ownedReview(ctx, userID, reviewID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, review.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting review")
	}
	return nil
}

// ownedReview loads the review and verifies the shopper wrote it.
// Others' reviews are reported as not found rather than forbidden.
func (s *service) ownedReview(ctx context.Context, userID, reviewID uuid.UUID) (*models.Review, error) {
	review, err := s.repo.FindByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading review")
	}
	if review.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
	}
	return review, nil
}

func (s *service) ListForProduct(ctx context.Context, productID uuid.UUID, limit int, cursorToken string) (*ListResult, error) {
	normalized := pagination.NormalizeLimit(limit)
	cursor, err := pagination.ParseCursor(cursorToken)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	rows, err := s.repo.ListForProduct(ctx, productID, normalized, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing reviews")
	}

	result := &ListResult{Reviews: rows}
	if len(rows) > normalized {
		result.Reviews = rows[:normalized]
		last := result.Reviews[normalized-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

func (s *service) Summary(ctx context.Context, productID uuid.UUID) (*Summary, error) {
	average, count, err := s.repo.RatingSummary(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregating reviews")
	}
	return &Summary{ProductID: productID, AverageRating: average, ReviewCount: count}, nil
}
