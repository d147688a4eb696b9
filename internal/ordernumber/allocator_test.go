package ordernumber

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmachado/lojapos-backend/pkg/broadcast"
	"github.com/vmachado/lojapos-backend/pkg/kvstore"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

func newTestAllocator(t *testing.T, store kvstore.Store, bcast broadcast.Broadcaster, attempts int) *service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Store:     store,
		Broadcast: bcast,
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Attempts:  attempts,
	})
	require.NoError(t, err)
	return svc.(*service)
}

func TestNextStartsAtOneAndIncrements(t *testing.T) {
	t.Parallel()

	svc := newTestAllocator(t, kvstore.NewMemory(), broadcast.NewMemory(), 0)
	ctx := context.Background()

	first, err := svc.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := svc.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)
}

func TestNextResetsOnNewDay(t *testing.T) {
	t.Parallel()

	svc := newTestAllocator(t, kvstore.NewMemory(), broadcast.NewMemory(), 0)
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	for want := int64(1); want <= 3; want++ {
		got, err := svc.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	svc.now = func() time.Time { return day.AddDate(0, 0, 1) }

	got, err := svc.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "counter rolls over with the calendar day")
}

func TestNextHealsMalformedCounter(t *testing.T) {
	t.Parallel()

	store := kvstore.NewMemory()
	svc := newTestAllocator(t, store, broadcast.NewMemory(), 0)
	ctx := context.Background()

	// A valid marker keeps the rollover from clearing the bad value
	// before the claim loop sees it.
	_, err := svc.ResetIfNewDay(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, counterKey, "not-a-number"))

	got, err := svc.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestAdvanceToNeverDecreases(t *testing.T) {
	t.Parallel()

	svc := newTestAllocator(t, kvstore.NewMemory(), broadcast.NewMemory(), 0)
	ctx := context.Background()

	require.NoError(t, svc.AdvanceTo(ctx, 10))
	require.NoError(t, svc.AdvanceTo(ctx, 5))

	got, err := svc.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got, "authoritative 10 sticks, stale 5 is ignored")
}

func TestConcurrentClaimsAreUnique(t *testing.T) {
	t.Parallel()

	store := kvstore.NewMemory()
	bcast := broadcast.NewMemory()
	svc := newTestAllocator(t, store, bcast, 128)
	ctx := context.Background()

	// Settle the daily rollover first so the claims only race each
	// other, not the counter reset.
	_, err := svc.ResetIfNewDay(ctx)
	require.NoError(t, err)

	const claimers = 16
	var wg sync.WaitGroup
	numbers := make(chan int64, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.Next(ctx)
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			numbers <- n
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[int64]bool{}
	for n := range numbers {
		assert.False(t, seen[n], "number %d claimed twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, claimers)
}

func TestListenRatchetsOnPeerClaims(t *testing.T) {
	t.Parallel()

	store := kvstore.NewMemory()
	bcast := broadcast.NewMemory()
	svc := newTestAllocator(t, store, bcast, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pin today's marker so the lazy rollover cannot wipe the
	// ratcheted value below.
	_, err := svc.ResetIfNewDay(ctx)
	require.NoError(t, err)

	go func() { _ = svc.Listen(ctx) }()

	// Republish until the subscription is live; the ratchet makes the
	// claim idempotent.
	require.Eventually(t, func() bool {
		require.NoError(t, bcast.Publish(ctx, broadcast.Message{Type: broadcast.TypeClaimed, Number: 10}))
		n, _, _, err := svc.readCounter(ctx)
		return err == nil && n == 10
	}, time.Second, 10*time.Millisecond)

	got, err := svc.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got, "allocation continues past the peer's claim")
}
