package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/outbox"
	"github.com/vmachado/lojapos-backend/pkg/outbox/payloads"
	"github.com/vmachado/lojapos-backend/pkg/pagination"
)

// RecordMovementInput describes one audit entry. OccurredAt defaults
// to now.
type RecordMovementInput struct {
	ProductID  uuid.UUID
	Kind       enums.MovementKind
	Origin     enums.MovementOrigin
	Quantity   int
	Notes      *string
	Reference  *string
	OccurredAt time.Time
}

// CancellationInput undoes a settled sale by putting stock back.
type CancellationInput struct {
	ProductID uuid.UUID
	Quantity  int
	Origin    enums.MovementOrigin
	Notes     *string
	Reference *string
}

// ListMovementsInput filters and pages the audit trail.
type ListMovementsInput struct {
	ProductID *uuid.UUID
	Limit     int
	Cursor    string
}

// MovementListResult is one page of audit entries, newest first.
type MovementListResult struct {
	Items      []models.StockMovement
	NextCursor *string
}

// RecordMovement implements Service. The row and its ledger delta
// commit together; the outbox mirror rides the same transaction but a
// publish failure later never takes the row with it.
func (s *service) RecordMovement(ctx context.Context, input RecordMovementInput) (*models.StockMovement, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid movement kind")
	}
	if !input.Origin.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid movement origin")
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	var movement *models.StockMovement
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeInternal, "movement recorded for unknown product")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product for movement")
		}

		delta := input.Quantity
		if input.Kind == enums.MovementKindExit {
			delta = -input.Quantity
		}
		balance, err := s.applyDelta(ctx, tx, input.ProductID, delta)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "applying stock delta")
		}

		movement = &models.StockMovement{
			ID:           uuid.New(),
			ProductID:    product.ID,
			ProductName:  product.Name,
			Kind:         input.Kind,
			Origin:       input.Origin,
			Quantity:     input.Quantity,
			BalanceAfter: balance,
			Notes:        input.Notes,
			Reference:    input.Reference,
			OccurredAt:   occurredAt,
		}
		if err := repo.InsertMovement(ctx, movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "inserting stock movement")
		}

		if s.outbox == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockMovementRecorded,
			AggregateType: enums.AggregateStockMovement,
			AggregateID:   movement.ID,
			Version:       1,
			OccurredAt:    occurredAt,
			Data: payloads.StockMovementRecordedEvent{
				MovementID:   movement.ID,
				ProductID:    movement.ProductID,
				ProductName:  movement.ProductName,
				Kind:         movement.Kind,
				Origin:       movement.Origin,
				Quantity:     movement.Quantity,
				BalanceAfter: movement.BalanceAfter,
				OccurredAt:   occurredAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"movement_id": movement.ID.String(),
		"kind":        movement.Kind,
		"origin":      movement.Origin,
		"quantity":    movement.Quantity,
	})
	s.logg.Info(s.logg.WithProductID(logCtx, movement.ProductID.String()), "stock movement recorded")
	return movement, nil
}

// RecordCancellation implements Service.
func (s *service) RecordCancellation(ctx context.Context, input CancellationInput) (*models.StockMovement, error) {
	if !input.Origin.IsCancellation() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "origin must be a cancellation")
	}
	return s.RecordMovement(ctx, RecordMovementInput{
		ProductID: input.ProductID,
		Kind:      enums.MovementKindEntry,
		Origin:    input.Origin,
		Quantity:  input.Quantity,
		Notes:     input.Notes,
		Reference: input.Reference,
	})
}

// PruneMovements implements Service.
func (s *service) PruneMovements(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "retention days must be positive")
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	removed, err := s.repo.DeleteMovementsBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "pruning stock movements")
	}
	if removed > 0 {
		s.logg.Info(s.logg.WithField(ctx, "pruned_movements", removed), "stock movements pruned")
	}
	return removed, nil
}

// ListMovements implements Service.
func (s *service) ListMovements(ctx context.Context, input ListMovementsInput) (*MovementListResult, error) {
	limit := pagination.NormalizeLimit(input.Limit)
	var cursor *pagination.Cursor
	if input.Cursor != "" {
		parsed, err := pagination.ParseCursor(input.Cursor)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
		}
		cursor = parsed
	}
	rows, err := s.repo.ListMovements(ctx, input.ProductID, limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing stock movements")
	}
	result := &MovementListResult{Items: rows}
	if len(rows) > limit {
		result.Items = rows[:limit]
		last := result.Items[len(result.Items)-1]
		next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		result.NextCursor = &next
	}
	return result, nil
}
