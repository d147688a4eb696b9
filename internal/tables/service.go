// Package tables runs the dine-in side of the counter: mesas, their
// items, their stock holds and their daily order numbers.
package tables

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/internal/inventory"
	"github.com/vmachado/lojapos-backend/internal/ordernumber"
	dbpkg "github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

// Service manages dine-in tables.
type Service interface {
	List(ctx context.Context) ([]TableDTO, error)
	Get(ctx context.Context, tableID uuid.UUID) (*TableDTO, error)
	GetBySlug(ctx context.Context, slug string) (*TableDTO, error)
	Create(ctx context.Context, number int) (*TableDTO, error)
	Delete(ctx context.Context, tableID uuid.UUID) error
	UpdateStatus(ctx context.Context, tableID uuid.UUID, status enums.TableStatus) (*TableDTO, error)

	// AddItem holds stock for the line and, on the first item of an
	// order, claims a daily order number. An authoritative number from
	// the till ratchets the shared counter instead of claiming.
	AddItem(ctx context.Context, tableID uuid.UUID, input AddItemInput) (*TableDTO, error)

	// RemoveItem releases the line's hold; an emptied table resets to
	// free with no order number or assigned user.
	RemoveItem(ctx context.Context, tableID, itemID uuid.UUID) (*TableDTO, error)

	// CancelOrder drops the table's unconfirmed holds, clears its
	// items and frees it. Settled lines are untouched here.
	CancelOrder(ctx context.Context, tableID uuid.UUID) error

	// Finalize clears a settled table. Its holds were already consumed
	// during settlement, so nothing is released.
	Finalize(ctx context.Context, tableID uuid.UUID) error

	SwitchUser(ctx context.Context, tableID uuid.UUID, userID *uuid.UUID) (*TableDTO, error)
}

// TableDTO is a table with its computed bill.
type TableDTO struct {
	models.Table
	TotalCents int `json:"total_cents"`
}

// AddItemInput describes one line for a table.
type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	Notes     *string
	// AuthoritativeNumber carries a number already assigned by the
	// till; the shared counter advances to it, never past claims.
	AuthoritativeNumber *int64
}

type productLoader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// ServiceParams packages the dependencies for the tables service.
type ServiceParams struct {
	Repo      *Repository
	Products  productLoader
	Inventory inventory.Service
	Allocator ordernumber.Service
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	products  productLoader
	inventory inventory.Service
	allocator ordernumber.Service
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the tables service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("tables repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Allocator == nil {
		return nil, fmt.Errorf("order number allocator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		products:  params.Products,
		inventory: params.Inventory,
		allocator: params.Allocator,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Slug builds the display form for a table number, "Mesa-01" style.
func Slug(number int) string {
	return fmt.Sprintf("Mesa-%02d", number)
}

func toDTO(table *models.Table) *TableDTO {
	total := 0
	for _, item := range table.Items {
		total += item.Quantity * item.UnitPriceCents
	}
	return &TableDTO{Table: *table, TotalCents: total}
}

func (s *service) load(ctx context.Context, tableID uuid.UUID) (*models.Table, error) {
	table, err := s.repo.FindByID(ctx, tableID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading table")
	}
	return table, nil
}

func (s *service) List(ctx context.Context) ([]TableDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing tables")
	}
	dtos := make([]TableDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *toDTO(&rows[i]))
	}
	return dtos, nil
}

func (s *service) Get(ctx context.Context, tableID uuid.UUID) (*TableDTO, error) {
	table, err := s.load(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return toDTO(table), nil
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*TableDTO, error) {
	table, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading table")
	}
	return toDTO(table), nil
}

func (s *service) Create(ctx context.Context, number int) (*TableDTO, error) {
	if number <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table number must be positive")
	}
	table := &models.Table{
		ID:     uuid.New(),
		Number: number,
		Slug:   Slug(number),
		Status: enums.TableStatusFree,
	}
	if err := s.repo.Create(ctx, table); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "table number already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating table")
	}
	return toDTO(table), nil
}

func (s *service) Delete(ctx context.Context, tableID uuid.UUID) error {
	table, err := s.load(ctx, tableID)
	if err != nil {
		return err
	}
	if table.Status != enums.TableStatusFree || len(table.Items) > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "table has an open order")
	}
	if err := s.repo.Delete(ctx, tableID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting table")
	}
	return nil
}

func (s *service) UpdateStatus(ctx context.Context, tableID uuid.UUID, status enums.TableStatus) (*TableDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid table status")
	}
	table, err := s.load(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if status == enums.TableStatusFree && len(table.Items) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "table still has items; cancel or settle first")
	}
	table.Status = status
	if err := s.repo.Save(ctx, table); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating table status")
	}
	return toDTO(table), nil
}

func (s *service) AddItem(ctx context.Context, tableID uuid.UUID, input AddItemInput) (*TableDTO, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	table, err := s.load(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.Status == enums.TableStatusFinished {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "table is being settled")
	}

	product, err := s.products.FindProduct(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}

	held, err := s.inventory.Reserve(ctx, inventory.ReserveInput{
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Kind:      enums.ReservationKindTable,
		TableID:   int64(table.Number),
	})
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")
	}

	releaseHold := func() {
		releaseErr := s.inventory.Release(ctx, inventory.ReleaseInput{
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
			Kind:      enums.ReservationKindTable,
			TableID:   int64(table.Number),
		})
		if releaseErr != nil {
			s.logg.Error(ctx, "releasing hold after failed add", releaseErr)
		}
	}

	if table.OrderNumber == 0 {
		number, err := s.claimOrderNumber(ctx, input.AuthoritativeNumber)
		if err != nil {
			releaseHold()
			return nil, err
		}
		table.OrderNumber = number
	} else if input.AuthoritativeNumber != nil {
		// The table keeps its number for the life of the order; the
		// counter still learns about the till's assignment.
		if err := s.allocator.AdvanceTo(ctx, *input.AuthoritativeNumber); err != nil {
			s.logg.Error(ctx, "advancing counter to authoritative number", err)
		}
	}

	item := &models.TableItem{
		ID:             uuid.New(),
		TableID:        table.ID,
		ProductID:      product.ID,
		ProductName:    product.Name,
		Quantity:       input.Quantity,
		UnitPriceCents: product.PriceCents,
		Notes:          input.Notes,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		releaseHold()
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adding table item")
	}

	if table.Status == enums.TableStatusFree {
		table.Status = enums.TableStatusOccupied
		openedAt := s.now()
		table.OpenedAt = &openedAt
	}
	if err := s.repo.Save(ctx, table); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving table")
	}

	logCtx := s.logg.WithTableID(ctx, int64(table.Number))
	s.logg.Info(s.logg.WithProductID(logCtx, product.ID.String()), "table item added")
	return s.Get(ctx, tableID)
}

// claimOrderNumber prefers the till's number and falls back to the
// shared allocator.
func (s *service) claimOrderNumber(ctx context.Context, authoritative *int64) (int64, error) {
	if authoritative != nil && *authoritative > 0 {
		if err := s.allocator.AdvanceTo(ctx, *authoritative); err != nil {
			return 0, err
		}
		return *authoritative, nil
	}
	return s.allocator.Next(ctx)
}

func (s *service) RemoveItem(ctx context.Context, tableID, itemID uuid.UUID) (*TableDTO, error) {
	table, err := s.load(ctx, tableID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindItem(ctx, tableID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "table item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading table item")
	}

	if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "removing table item")
	}
	if err := s.inventory.Release(ctx, inventory.ReleaseInput{
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Kind:      enums.ReservationKindTable,
		TableID:   int64(table.Number),
	}); err != nil {
		return nil, err
	}

	remaining, err := s.repo.CountItems(ctx, tableID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting table items")
	}
	if remaining == 0 {
		s.resetTable(table)
		if err := s.repo.Save(ctx, table); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resetting table")
		}
	}
	return s.Get(ctx, tableID)
}

func (s *service) CancelOrder(ctx context.Context, tableID uuid.UUID) error {
	table, err := s.load(ctx, tableID)
	if err != nil {
		return err
	}
	if err := s.inventory.CancelTableReservations(ctx, int64(table.Number)); err != nil {
		return err
	}
	if err := s.repo.DeleteItems(ctx, tableID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing table items")
	}
	s.resetTable(table)
	if err := s.repo.Save(ctx, table); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resetting table")
	}
	s.logg.Info(s.logg.WithTableID(ctx, int64(table.Number)), "table order canceled")
	return nil
}

func (s *service) Finalize(ctx context.Context, tableID uuid.UUID) error {
	table, err := s.load(ctx, tableID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItems(ctx, tableID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing table items")
	}
	s.resetTable(table)
	closedAt := s.now()
	table.ClosedAt = &closedAt
	if err := s.repo.Save(ctx, table); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalizing table")
	}
	s.logg.Info(s.logg.WithTableID(ctx, int64(table.Number)), "table finalized")
	return nil
}

func (s *service) SwitchUser(ctx context.Context, tableID uuid.UUID, userID *uuid.UUID) (*TableDTO, error) {
	table, err := s.load(ctx, tableID)
	if err != nil {
		return nil, err
	}
	table.UserID = userID
	if err := s.repo.Save(ctx, table); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "switching table user")
	}
	return toDTO(table), nil
}

// resetTable returns a table to its idle state. The order number goes
// back to zero; the next order claims a fresh one.
func (s *service) resetTable(table *models.Table) {
	table.Status = enums.TableStatusFree
	table.OrderNumber = 0
	table.UserID = nil
	table.OpenedAt = nil
	table.ClosedAt = nil
	table.Items = nil
}
