package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
)

// OnHand returns the ledger balance for the product.
func (s *service) OnHand(ctx context.Context, productID uuid.UUID) (int, error) {
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product stock")
	}
	return product.StockQty, nil
}

// applyDelta moves the on-hand balance by delta inside tx and returns
// the new balance. Exits clamp at zero so the ledger never goes
// negative.
func (s *service) applyDelta(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) (int, error) {
	repo := s.repo.WithTx(tx)
	current, err := repo.StockQty(ctx, productID)
	if err != nil {
		return 0, err
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	if err := repo.SetStockQty(ctx, productID, next); err != nil {
		return 0, err
	}
	return next, nil
}
