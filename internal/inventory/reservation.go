package inventory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
)

// Reservation blobs live under a single key so one compare-and-swap
// covers every product; contention is per-store, not per-product, which
// is fine at POS scale.
const reservedStockKey = "reserved_stock"

const reservedCASAttempts = 8

// Reservation is one tentative hold against a product's stock.
type Reservation struct {
	ID        string                `json:"id"`
	Quantity  int                   `json:"quantity"`
	Kind      enums.ReservationKind `json:"kind"`
	CreatedAt time.Time             `json:"created_at"`
	TableID   int64                 `json:"table_id,omitempty"`
	Confirmed bool                  `json:"confirmed"`
}

// ReservedStock groups a product's holds. TotalReserved always equals
// the sum of the constituent quantities; a record with no holds is
// deleted, never kept at zero.
type ReservedStock struct {
	ProductID     string        `json:"product_id"`
	TotalReserved int           `json:"total_reserved"`
	Reservations  []Reservation `json:"reservations"`
}

type reservedState map[string]*ReservedStock

// mutateReserved runs fn against the decoded reservation state and
// writes the result back with compare-and-swap, retrying on contention.
// A corrupted blob is replaced rather than left to wedge every caller.
func (s *service) mutateReserved(ctx context.Context, fn func(state reservedState)) error {
	for attempt := 0; attempt < reservedCASAttempts; attempt++ {
		raw, ok, err := s.store.Get(ctx, reservedStockKey)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading reservation state")
		}
		state := reservedState{}
		if ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &state); err != nil {
				s.logg.Warn(ctx, "reservation blob corrupted, resetting")
				state = reservedState{}
			}
		}

		fn(state)

		for productID, record := range state {
			record.TotalReserved = sumQuantities(record.Reservations)
			if len(record.Reservations) == 0 {
				delete(state, productID)
			}
		}

		next := ""
		if len(state) > 0 {
			encoded, err := json.Marshal(state)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding reservation state")
			}
			next = string(encoded)
		}
		expected := ""
		if ok {
			expected = raw
		}
		if next == expected {
			return nil
		}
		swapped, err := s.store.CompareAndSwap(ctx, reservedStockKey, expected, next)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing reservation state")
		}
		if swapped {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation state contention")
}

func (s *service) loadReserved(ctx context.Context) (reservedState, error) {
	raw, ok, err := s.store.Get(ctx, reservedStockKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading reservation state")
	}
	state := reservedState{}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return reservedState{}, nil
		}
	}
	return state, nil
}

func sumQuantities(holds []Reservation) int {
	total := 0
	for _, hold := range holds {
		total += hold.Quantity
	}
	return total
}

// sweepExpired drops unconfirmed cart holds older than the TTL. Table
// holds never expire on age.
func sweepExpired(state reservedState, now time.Time, ttl time.Duration) int {
	removed := 0
	for _, record := range state {
		kept := record.Reservations[:0]
		for _, hold := range record.Reservations {
			expired := hold.Kind == enums.ReservationKindCart &&
				!hold.Confirmed &&
				now.Sub(hold.CreatedAt) > ttl
			if expired {
				removed++
				continue
			}
			kept = append(kept, hold)
		}
		record.Reservations = kept
	}
	return removed
}

// releaseFrom drops matching holds oldest first until quantity is
// covered. A hold is only removed whole: callers release quantities
// aligned with how they reserved them, a single hold is never split.
func releaseFrom(record *ReservedStock, quantity int, kind enums.ReservationKind, tableID int64) {
	remaining := quantity
	kept := record.Reservations[:0]
	for _, hold := range record.Reservations {
		matches := hold.Kind == kind && (tableID == 0 || hold.TableID == tableID)
		if remaining > 0 && matches && hold.Quantity <= remaining {
			remaining -= hold.Quantity
			continue
		}
		kept = append(kept, hold)
	}
	record.Reservations = kept
}

// Reserve implements Service. False means the product is unknown or
// available stock does not cover the quantity; no state changed.
func (s *service) Reserve(ctx context.Context, input ReserveInput) (bool, error) {
	if input.Quantity <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !input.Kind.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid reservation kind")
	}
	if input.Kind == enums.ReservationKindTable && input.TableID == 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "table id required for table holds")
	}

	onHand, err := s.OnHand(ctx, input.ProductID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return false, nil
		}
		return false, err
	}

	reserved := false
	err = s.mutateReserved(ctx, func(state reservedState) {
		sweepExpired(state, s.now(), s.cartTTL)
		reserved = false

		productKey := input.ProductID.String()
		record := state[productKey]
		held := 0
		if record != nil {
			held = sumQuantities(record.Reservations)
		}
		if onHand-held < input.Quantity {
			return
		}
		if record == nil {
			record = &ReservedStock{ProductID: productKey}
			state[productKey] = record
		}
		record.Reservations = append(record.Reservations, Reservation{
			ID:        uuid.NewString(),
			Quantity:  input.Quantity,
			Kind:      input.Kind,
			CreatedAt: s.now(),
			TableID:   input.TableID,
		})
		reserved = true
	})
	if err != nil {
		return false, err
	}
	return reserved, nil
}

// Release implements Service.
func (s *service) Release(ctx context.Context, input ReleaseInput) error {
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid reservation kind")
	}
	return s.mutateReserved(ctx, func(state reservedState) {
		sweepExpired(state, s.now(), s.cartTTL)
		record := state[input.ProductID.String()]
		if record == nil {
			return
		}
		releaseFrom(record, input.Quantity, input.Kind, input.TableID)
	})
}

// ConfirmConsumption implements Service. Holds are flagged confirmed
// before the ledger moves so the cancellation path can tell settled
// sales from pending holds, then the exit movement lands, then the
// holds leave the list.
func (s *service) ConfirmConsumption(ctx context.Context, input ConfirmInput) (*models.StockMovement, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid reservation kind")
	}
	origin := input.Origin
	if origin == "" {
		origin = enums.MovementOriginOnlineSale
		if input.Kind == enums.ReservationKindTable {
			origin = enums.MovementOriginInPersonSale
		}
	}
	if origin.IsCancellation() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation origins go through RecordCancellation")
	}

	err := s.mutateReserved(ctx, func(state reservedState) {
		sweepExpired(state, s.now(), s.cartTTL)
		record := state[input.ProductID.String()]
		if record == nil {
			return
		}
		// Oldest matching holds up to the settled quantity; holds
		// beyond it stay pending and keep their expiry behavior.
		remaining := input.Quantity
		for i := range record.Reservations {
			hold := &record.Reservations[i]
			matches := hold.Kind == input.Kind && (input.TableID == 0 || hold.TableID == input.TableID)
			if matches && remaining > 0 && hold.Quantity <= remaining {
				hold.Confirmed = true
				remaining -= hold.Quantity
			}
		}
	})
	if err != nil {
		return nil, err
	}

	movement, err := s.RecordMovement(ctx, RecordMovementInput{
		ProductID: input.ProductID,
		Kind:      enums.MovementKindExit,
		Origin:    origin,
		Quantity:  input.Quantity,
		Reference: input.Reference,
	})
	if err != nil {
		return nil, err
	}

	err = s.mutateReserved(ctx, func(state reservedState) {
		record := state[input.ProductID.String()]
		if record == nil {
			return
		}
		releaseFrom(record, input.Quantity, input.Kind, input.TableID)
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// AvailableStock implements Service.
func (s *service) AvailableStock(ctx context.Context, productID uuid.UUID) (int, error) {
	if err := s.mutateReserved(ctx, func(state reservedState) {
		sweepExpired(state, s.now(), s.cartTTL)
	}); err != nil {
		return 0, err
	}
	onHand, err := s.OnHand(ctx, productID)
	if err != nil {
		return 0, err
	}
	state, err := s.loadReserved(ctx)
	if err != nil {
		return 0, err
	}
	held := 0
	if record := state[productID.String()]; record != nil {
		held = record.TotalReserved
	}
	available := onHand - held
	if available < 0 {
		available = 0
	}
	return available, nil
}

// AvailableStockMany implements Service. Products missing from the
// catalog are simply absent from the result.
func (s *service) AvailableStockMany(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	if len(productIDs) == 0 {
		return map[uuid.UUID]int{}, nil
	}
	if err := s.mutateReserved(ctx, func(state reservedState) {
		sweepExpired(state, s.now(), s.cartTTL)
	}); err != nil {
		return nil, err
	}
	balances, err := s.repo.StockQtys(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading stock balances")
	}
	state, err := s.loadReserved(ctx)
	if err != nil {
		return nil, err
	}
	available := make(map[uuid.UUID]int, len(balances))
	for id, onHand := range balances {
		held := 0
		if record := state[id.String()]; record != nil {
			held = record.TotalReserved
		}
		free := onHand - held
		if free < 0 {
			free = 0
		}
		available[id] = free
	}
	return available, nil
}

// ExpireCartReservations implements Service.
func (s *service) ExpireCartReservations(ctx context.Context) (int, error) {
	removed := 0
	err := s.mutateReserved(ctx, func(state reservedState) {
		removed = sweepExpired(state, s.now(), s.cartTTL)
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired_holds", removed), "cart reservations expired")
	}
	return removed, nil
}

// CancelTableReservations implements Service. Confirmed holds stay
// untouched: those are settled sales and come back only through a
// cancellation movement.
func (s *service) CancelTableReservations(ctx context.Context, tableID int64) error {
	if tableID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "table id required")
	}
	return s.mutateReserved(ctx, func(state reservedState) {
		sweepExpired(state, s.now(), s.cartTTL)
		for _, record := range state {
			kept := record.Reservations[:0]
			for _, hold := range record.Reservations {
				if hold.Kind == enums.ReservationKindTable && hold.TableID == tableID && !hold.Confirmed {
					continue
				}
				kept = append(kept, hold)
			}
			record.Reservations = kept
		}
	})
}
