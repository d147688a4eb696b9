package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmachado/lojapos-backend/pkg/db/models"
	"github.com/vmachado/lojapos-backend/pkg/enums"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
)

func TestReserveAndReleaseRoundTrip(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Espresso Beans", 10)

	ok, err := h.svc.Reserve(ctx, ReserveInput{
		ProductID: product.ID,
		Quantity:  7,
		Kind:      enums.ReservationKindCart,
	})
	require.NoError(t, err)
	require.True(t, ok)

	available, err := h.svc.AvailableStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, available)

	ok, err = h.svc.Reserve(ctx, ReserveInput{
		ProductID: product.ID,
		Quantity:  5,
		Kind:      enums.ReservationKindCart,
	})
	require.NoError(t, err)
	assert.False(t, ok, "5 exceeds the 3 still available")

	available, err = h.svc.AvailableStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, available, "failed reserve must not change state")

	err = h.svc.Release(ctx, ReleaseInput{
		ProductID: product.ID,
		Quantity:  7,
		Kind:      enums.ReservationKindCart,
	})
	require.NoError(t, err)

	available, err = h.svc.AvailableStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	onHand, err := h.svc.OnHand(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, onHand, "holds never touch the ledger")
}

func TestReserveUnknownProduct(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ok, err := h.svc.Reserve(context.Background(), ReserveInput{
		ProductID: uuid.New(),
		Quantity:  1,
		Kind:      enums.ReservationKindCart,
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReserveValidation(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ctx := context.Background()

	_, err := h.svc.Reserve(ctx, ReserveInput{ProductID: uuid.New(), Quantity: 0, Kind: enums.ReservationKindCart})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = h.svc.Reserve(ctx, ReserveInput{ProductID: uuid.New(), Quantity: 1, Kind: enums.ReservationKindTable})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code(), "table hold without table id")
}

func TestTotalReservedMatchesHolds(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Green Tea", 20)

	for _, qty := range []int{3, 4, 5} {
		ok, err := h.svc.Reserve(ctx, ReserveInput{
			ProductID: product.ID,
			Quantity:  qty,
			Kind:      enums.ReservationKindCart,
		})
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, h.svc.Release(ctx, ReleaseInput{
		ProductID: product.ID,
		Quantity:  4,
		Kind:      enums.ReservationKindCart,
	}))

	state, err := h.svc.loadReserved(ctx)
	require.NoError(t, err)
	record := state[product.ID.String()]
	require.NotNil(t, record)
	assert.Equal(t, record.TotalReserved, sumQuantities(record.Reservations))
}

func TestReleaseConsumesWholeHoldsOldestFirst(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Oat Milk", 20)

	for _, qty := range []int{3, 4} {
		ok, err := h.svc.Reserve(ctx, ReserveInput{
			ProductID: product.ID,
			Quantity:  qty,
			Kind:      enums.ReservationKindCart,
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	// 5 covers the whole first hold (3) but not the second (4), so the
	// second survives untouched.
	require.NoError(t, h.svc.Release(ctx, ReleaseInput{
		ProductID: product.ID,
		Quantity:  5,
		Kind:      enums.ReservationKindCart,
	}))

	state, err := h.svc.loadReserved(ctx)
	require.NoError(t, err)
	record := state[product.ID.String()]
	require.NotNil(t, record)
	require.Len(t, record.Reservations, 1)
	assert.Equal(t, 4, record.Reservations[0].Quantity)
	assert.Equal(t, 4, record.TotalReserved)
}

func TestReleaseDeletesEmptyRecord(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Espresso Cups", 5)

	ok, err := h.svc.Reserve(ctx, ReserveInput{
		ProductID: product.ID,
		Quantity:  2,
		Kind:      enums.ReservationKindCart,
	})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, h.svc.Release(ctx, ReleaseInput{
		ProductID: product.ID,
		Quantity:  2,
		Kind:      enums.ReservationKindCart,
	}))

	state, err := h.svc.loadReserved(ctx)
	require.NoError(t, err)
	assert.Nil(t, state[product.ID.String()], "empty record is deleted, not kept at zero")
}

func TestCartHoldsExpireAfterTTL(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Cold Brew", 10)

	base := time.Now()
	h.svc.now = func() time.Time { return base }

	ok, err := h.svc.Reserve(ctx, ReserveInput{
		ProductID: product.ID,
		Quantity:  4,
		Kind:      enums.ReservationKindCart,
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.svc.Reserve(ctx, ReserveInput{
		ProductID: product.ID,
		Quantity:  3,
		Kind:      enums.ReservationKindTable,
		TableID:   2,
	})
	require.NoError(t, err)
	require.True(t, ok)

	h.svc.now = func() time.Time { return base.Add(31 * time.Minute) }

	removed, err := h.svc.ExpireCartReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the cart hold expires")

	available, err := h.svc.AvailableStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, available, "table hold still counts")
}

func TestConfirmConsumptionSettlesTableHold(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "House Burger", 10)

	ok, err := h.svc.Reserve(ctx, ReserveInput{
		ProductID: product.ID,
		Quantity:  2,
		Kind:      enums.ReservationKindTable,
		TableID:   4,
	})
	require.NoError(t, err)
	require.True(t, ok)

	movement, err := h.svc.ConfirmConsumption(ctx, ConfirmInput{
		ProductID: product.ID,
		Quantity:  2,
		Kind:      enums.ReservationKindTable,
		TableID:   4,
	})
	require.NoError(t, err)
	require.NotNil(t, movement)
	assert.Equal(t, enums.MovementKindExit, movement.Kind)
	assert.Equal(t, enums.MovementOriginInPersonSale, movement.Origin)
	assert.Equal(t, 8, movement.BalanceAfter)

	onHand, err := h.svc.OnHand(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, onHand)

	state, err := h.svc.loadReserved(ctx)
	require.NoError(t, err)
	assert.Nil(t, state[product.ID.String()], "no hold remains for the table")

	var outboxCount int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount, "movement mirror queued")
}

func TestCancelTableReservationsKeepsConfirmedHolds(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ctx := context.Background()
	productA := mustCreateProduct(t, h.conn, "Fries", 10)
	productB := mustCreateProduct(t, h.conn, "Soda", 10)

	for _, in := range []ReserveInput{
		{ProductID: productA.ID, Quantity: 2, Kind: enums.ReservationKindTable, TableID: 7},
		{ProductID: productB.ID, Quantity: 1, Kind: enums.ReservationKindTable, TableID: 7},
		{ProductID: productB.ID, Quantity: 3, Kind: enums.ReservationKindTable, TableID: 8},
	} {
		ok, err := h.svc.Reserve(ctx, in)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Flag table 7's hold on product A as a settled sale.
	require.NoError(t, h.svc.mutateReserved(ctx, func(state reservedState) {
		record := state[productA.ID.String()]
		require.NotNil(t, record)
		record.Reservations[0].Confirmed = true
	}))

	require.NoError(t, h.svc.CancelTableReservations(ctx, 7))

	state, err := h.svc.loadReserved(ctx)
	require.NoError(t, err)

	recordA := state[productA.ID.String()]
	require.NotNil(t, recordA, "confirmed hold stays")
	assert.True(t, recordA.Reservations[0].Confirmed)

	recordB := state[productB.ID.String()]
	require.NotNil(t, recordB)
	require.Len(t, recordB.Reservations, 1)
	assert.Equal(t, int64(8), recordB.Reservations[0].TableID, "table 8 untouched")
}

func TestAvailableStockClampsAtZero(t *testing.T) {
	t.Parallel()

	h := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, h.conn, "Last Slice", 2)

	ok, err := h.svc.Reserve(ctx, ReserveInput{
		ProductID: product.ID,
		Quantity:  2,
		Kind:      enums.ReservationKindCart,
	})
	require.NoError(t, err)
	require.True(t, ok)

	// The ledger moves underneath the hold.
	_, err = h.svc.RecordMovement(ctx, RecordMovementInput{
		ProductID: product.ID,
		Kind:      enums.MovementKindExit,
		Origin:    enums.MovementOriginInPersonSale,
		Quantity:  2,
	})
	require.NoError(t, err)

	available, err := h.svc.AvailableStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}
