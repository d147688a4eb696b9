// Package cart manages online shopping carts: one record per storefront
// session, with lines backed by short-lived stock holds.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vmachado/lojapos-backend/internal/inventory"
	dbpkg "github.com/vmachado/lojapos-backend/pkg/db"
	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

// Service manages session carts. Holds placed through it expire on the
// cart TTL unless the cart converts first.
type Service interface {
	// GetOrCreate returns the session's active cart, creating or
	// reactivating one as needed.
	GetOrCreate(ctx context.Context, sessionID string) (*CartDTO, error)

	// Get returns the session's cart with live availability per line.
	Get(ctx context.Context, sessionID string) (*CartDTO, error)

	// AddItem holds stock for the added quantity and merges it into an
	// existing line for the same product.
	AddItem(ctx context.Context, sessionID string, input AddItemInput) (*CartDTO, error)

	// UpdateItemQuantity moves a line to the given quantity, adjusting
	// holds to match. Zero removes the line.
	UpdateItemQuantity(ctx context.Context, sessionID string, itemID uuid.UUID, quantity int) (*CartDTO, error)

	// RemoveItem drops the line and releases its hold.
	RemoveItem(ctx context.Context, sessionID string, itemID uuid.UUID) (*CartDTO, error)

	// Clear releases every hold and empties the cart.
	Clear(ctx context.Context, sessionID string) (*CartDTO, error)

	// AttachUser ties the anonymous cart to a logged-in shopper.
	AttachUser(ctx context.Context, sessionID string, userID uuid.UUID) (*CartDTO, error)

	// MarkConverted closes the cart after checkout. Holds are not
	// released here; checkout settles them as consumption.
	MarkConverted(ctx context.Context, sessionID string) (*models.CartRecord, error)
}

// CartDTO is a cart with per-line availability snapshots.
type CartDTO struct {
	models.CartRecord
	Items []CartItemDTO `json:"items"`
}

// CartItemDTO carries the line plus how much of the product is still
// available right now, holds included.
type CartItemDTO struct {
	models.CartItem
	AvailableQty int `json:"available_qty"`
}

// AddItemInput describes a quantity of a product to add.
type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

type productLoader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// ServiceParams packages the dependencies for the cart service.
type ServiceParams struct {
	Repo      *Repository
	Products  productLoader
	Inventory inventory.Service
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	products  productLoader
	inventory inventory.Service
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the cart service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		products:  params.Products,
		inventory: params.Inventory,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) GetOrCreate(ctx context.Context, sessionID string) (*CartDTO, error) {
	cart, err := s.ensureCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.toDTO(ctx, cart)
}

func (s *service) Get(ctx context.Context, sessionID string) (*CartDTO, error) {
	cart, err := s.findCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.toDTO(ctx, cart)
}

func (s *service) AddItem(ctx context.Context, sessionID string, input AddItemInput) (*CartDTO, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	cart, err := s.ensureCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	product, err := s.products.FindProduct(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "product is not for sale")
	}

	// One hold per added delta; the line quantity merges.
	held, err := s.inventory.Reserve(ctx, inventory.ReserveInput{
		ProductID: product.ID,
		Quantity:  input.Quantity,
		Kind:      enums.ReservationKindCart,
	})
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")
	}

	item, err := s.repo.FindItemByProduct(ctx, cart.ID, product.ID)
	switch {
	case err == nil:
		item.Quantity += input.Quantity
		item.LineSubtotalCents = item.Quantity * item.UnitPriceCents
		if err := s.repo.SaveItem(ctx, item); err != nil {
			s.releaseHold(ctx, product.ID, input.Quantity)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating cart line")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		item = &models.CartItem{
			ID:                uuid.New(),
			CartID:            cart.ID,
			ProductID:         product.ID,
			ProductName:       product.Name,
			Quantity:          input.Quantity,
			UnitPriceCents:    product.PriceCents,
			LineSubtotalCents: input.Quantity * product.PriceCents,
		}
		if err := s.repo.CreateItem(ctx, item); err != nil {
			s.releaseHold(ctx, product.ID, input.Quantity)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating cart line")
		}
	default:
		s.releaseHold(ctx, product.ID, input.Quantity)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart line")
	}

	return s.refreshTotals(ctx, cart.ID)
}

func (s *service) UpdateItemQuantity(ctx context.Context, sessionID string, itemID uuid.UUID, quantity int) (*CartDTO, error) {
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, sessionID, itemID)
	}

	cart, err := s.findCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindItem(ctx, cart.ID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart line")
	}
	if quantity == item.Quantity {
		return s.toDTO(ctx, cart)
	}

	if quantity > item.Quantity {
		held, err := s.inventory.Reserve(ctx, inventory.ReserveInput{
			ProductID: item.ProductID,
			Quantity:  quantity - item.Quantity,
			Kind:      enums.ReservationKindCart,
		})
		if err != nil {
			return nil, err
		}
		if !held {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")
		}
	} else {
		// Holds only release whole, so hand back the full line and
		// re-reserve the smaller quantity as one fresh hold.
		s.releaseHold(ctx, item.ProductID, item.Quantity)
		held, err := s.inventory.Reserve(ctx, inventory.ReserveInput{
			ProductID: item.ProductID,
			Quantity:  quantity,
			Kind:      enums.ReservationKindCart,
		})
		if err != nil {
			return nil, err
		}
		if !held {
			// Someone grabbed the freed stock before we could. The
			// line no longer has a hold behind it, so drop it.
			if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "removing cart line")
			}
			if _, err := s.refreshTotals(ctx, cart.ID); err != nil {
				return nil, err
			}
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "stock no longer available")
		}
	}

	item.Quantity = quantity
	item.LineSubtotalCents = quantity * item.UnitPriceCents
	if err := s.repo.SaveItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating cart line")
	}
	return s.refreshTotals(ctx, cart.ID)
}

func (s *service) RemoveItem(ctx context.Context, sessionID string, itemID uuid.UUID) (*CartDTO, error) {
	cart, err := s.findCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindItem(ctx, cart.ID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart line")
	}

	s.releaseHold(ctx, item.ProductID, item.Quantity)
	if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "removing cart line")
	}
	return s.refreshTotals(ctx, cart.ID)
}

func (s *service) Clear(ctx context.Context, sessionID string) (*CartDTO, error) {
	cart, err := s.findCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, item := range cart.Items {
		s.releaseHold(ctx, item.ProductID, item.Quantity)
	}
	if err := s.repo.DeleteItems(ctx, cart.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing cart")
	}
	return s.refreshTotals(ctx, cart.ID)
}

func (s *service) AttachUser(ctx context.Context, sessionID string, userID uuid.UUID) (*CartDTO, error) {
	cart, err := s.findCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cart.UserID = &userID
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attaching user to cart")
	}
	return s.toDTO(ctx, cart)
}

func (s *service) MarkConverted(ctx context.Context, sessionID string) (*models.CartRecord, error) {
	cart, err := s.findCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cart.Status != enums.CartStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is not active")
	}
	now := s.now()
	cart.Status = enums.CartStatusConverted
	cart.ConvertedAt = &now
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "converting cart")
	}
	return cart, nil
}

func (s *service) findCart(ctx context.Context, sessionID string) (*models.CartRecord, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	cart, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	return cart, nil
}

// ensureCart returns the session's active cart. A converted or
// abandoned cart is reset in place; the session keeps its one row.
func (s *service) ensureCart(ctx context.Context, sessionID string) (*models.CartRecord, error) {
	cart, err := s.findCart(ctx, sessionID)
	if err != nil {
		if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
			return nil, err
		}
		cart = &models.CartRecord{
			ID:        uuid.New(),
			SessionID: sessionID,
			Status:    enums.CartStatusActive,
		}
		if createErr := s.repo.Create(ctx, cart); createErr != nil {
			if dbpkg.IsUniqueViolation(createErr, "") {
				return s.findCart(ctx, sessionID)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, createErr, "creating cart")
		}
		return cart, nil
	}
	if cart.Status != enums.CartStatusActive {
		if err := s.repo.DeleteItems(ctx, cart.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resetting cart")
		}
		cart.Status = enums.CartStatusActive
		cart.SubtotalCents = 0
		cart.TotalCents = 0
		cart.ConvertedAt = nil
		cart.Items = nil
		if err := s.repo.Save(ctx, cart); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resetting cart")
		}
	}
	return cart, nil
}

// refreshTotals reloads the cart, recomputes its money fields and
// persists them.
func (s *service) refreshTotals(ctx context.Context, cartID uuid.UUID) (*CartDTO, error) {
	cart, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading cart")
	}
	subtotal := 0
	for _, item := range cart.Items {
		subtotal += item.LineSubtotalCents
	}
	cart.SubtotalCents = subtotal
	cart.TotalCents = subtotal
	if err := s.repo.Save(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving cart totals")
	}
	return s.toDTO(ctx, cart)
}

func (s *service) toDTO(ctx context.Context, cart *models.CartRecord) (*CartDTO, error) {
	dto := &CartDTO{CartRecord: *cart, Items: make([]CartItemDTO, 0, len(cart.Items))}
	if len(cart.Items) == 0 {
		return dto, nil
	}
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	available, err := s.inventory.AvailableStockMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range cart.Items {
		dto.Items = append(dto.Items, CartItemDTO{
			CartItem:     item,
			AvailableQty: available[item.ProductID],
		})
	}
	return dto, nil
}

// releaseHold hands back a cart hold; failure is logged, not fatal,
// since the expiry sweep reclaims strays.
func (s *service) releaseHold(ctx context.Context, productID uuid.UUID, quantity int) {
	err := s.inventory.Release(ctx, inventory.ReleaseInput{
		ProductID: productID,
		Quantity:  quantity,
		Kind:      enums.ReservationKindCart,
	})
	if err != nil {
		s.logg.Error(s.logg.WithProductID(ctx, productID.String()), "releasing cart hold", err)
	}
}
