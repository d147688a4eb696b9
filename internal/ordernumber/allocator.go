// Package ordernumber hands out daily sequential order numbers shared
// across processes through the key-value store, with claim
// announcements fanned out so peers advance without colliding.
package ordernumber

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vmachado/lojapos-backend/pkg/broadcast"
	pkgerrors "github.com/vmachado/lojapos-backend/pkg/errors"
	"github.com/vmachado/lojapos-backend/pkg/kvstore"
	"github.com/vmachado/lojapos-backend/pkg/logger"
)

const (
	counterKey   = "counter:highest_order_number"
	resetDateKey = "counter:last_reset_date"
	dateLayout   = "2006-01-02"

	defaultClaimAttempts = 8
)

// Service allocates order numbers.
type Service interface {
	// Next claims the next number for today. Numbers are never reused
	// within a day; the unverified fallback after exhausted attempts
	// can in theory hand out a duplicate under heavy contention, a
	// trade of uniqueness for termination.
	Next(ctx context.Context) (int64, error)

	// AdvanceTo ratchets the counter up to n when an authoritative
	// number arrives from elsewhere. The counter never goes down.
	AdvanceTo(ctx context.Context, n int64) error

	// ResetIfNewDay rolls the counter back to zero on the first call
	// of a calendar day. Next does this lazily; the cron worker calls
	// it eagerly.
	ResetIfNewDay(ctx context.Context) (bool, error)

	// Listen applies peer claim announcements through the ratchet
	// until the context is canceled.
	Listen(ctx context.Context) error

	// BusinessDate returns today's date key, shared with order rows.
	BusinessDate() string
}

// ServiceParams packages the allocator dependencies.
type ServiceParams struct {
	Store     kvstore.Store
	Broadcast broadcast.Broadcaster
	Logger    *logger.Logger
	Attempts  int
}

type service struct {
	store    kvstore.Store
	bcast    broadcast.Broadcaster
	logg     *logger.Logger
	attempts int
	now      func() time.Time
}

// NewService wires an allocator.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if params.Broadcast == nil {
		return nil, fmt.Errorf("broadcaster required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	attempts := params.Attempts
	if attempts <= 0 {
		attempts = defaultClaimAttempts
	}
	return &service{
		store:    params.Store,
		bcast:    params.Broadcast,
		logg:     params.Logger,
		attempts: attempts,
		now:      time.Now,
	}, nil
}

func (s *service) BusinessDate() string {
	return s.now().Format(dateLayout)
}

// readCounter returns the stored value and the raw string the CAS must
// match. A malformed value is reported as corrupt so callers can heal
// it instead of propagating garbage.
func (s *service) readCounter(ctx context.Context) (current int64, raw string, corrupt bool, err error) {
	value, ok, err := s.store.Get(ctx, counterKey)
	if err != nil {
		return 0, "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading order counter")
	}
	if !ok {
		return 0, "", false, nil
	}
	parsed, perr := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if perr != nil || parsed < 0 {
		return 0, value, true, nil
	}
	return parsed, value, false, nil
}

func (s *service) Next(ctx context.Context) (int64, error) {
	if _, err := s.ResetIfNewDay(ctx); err != nil {
		return 0, err
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		current, raw, corrupt, err := s.readCounter(ctx)
		if err != nil {
			return 0, err
		}
		if corrupt {
			s.logg.Warn(ctx, "order counter malformed, resetting to zero")
			if _, err := s.store.CompareAndSwap(ctx, counterKey, raw, "0"); err != nil {
				return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "healing order counter")
			}
			continue
		}
		candidate := current + 1
		swapped, err := s.store.CompareAndSwap(ctx, counterKey, raw, strconv.FormatInt(candidate, 10))
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claiming order number")
		}
		if swapped {
			s.announce(ctx, candidate)
			return candidate, nil
		}
	}

	// Every verified attempt lost to a concurrent claimer. Take one
	// unverified step so the caller still gets a number; collision is
	// possible here and accepted.
	current, _, corrupt, err := s.readCounter(ctx)
	if err != nil {
		return 0, err
	}
	if corrupt {
		current = 0
	}
	candidate := current + 1
	if err := s.store.Set(ctx, counterKey, strconv.FormatInt(candidate, 10)); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing order counter")
	}
	s.logg.Warn(s.logg.WithField(ctx, "number", candidate), "order number claimed without verification")
	s.announce(ctx, candidate)
	return candidate, nil
}

func (s *service) AdvanceTo(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	for attempt := 0; attempt < s.attempts; attempt++ {
		current, raw, corrupt, err := s.readCounter(ctx)
		if err != nil {
			return err
		}
		if !corrupt && n <= current {
			return nil
		}
		swapped, err := s.store.CompareAndSwap(ctx, counterKey, raw, strconv.FormatInt(n, 10))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advancing order counter")
		}
		if swapped {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order counter contention")
}

func (s *service) ResetIfNewDay(ctx context.Context) (bool, error) {
	today := s.BusinessDate()
	marker, ok, err := s.store.Get(ctx, resetDateKey)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading counter reset marker")
	}
	if ok && marker == today {
		return false, nil
	}
	expected := ""
	if ok {
		expected = marker
	}
	swapped, err := s.store.CompareAndSwap(ctx, resetDateKey, expected, today)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing counter reset marker")
	}
	if !swapped {
		// A peer won the rollover and owns the counter reset.
		return false, nil
	}
	if err := s.store.Set(ctx, counterKey, "0"); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resetting order counter")
	}
	s.logg.Info(s.logg.WithField(ctx, "business_date", today), "order counter reset for new day")
	return true, nil
}

func (s *service) Listen(ctx context.Context) error {
	return s.bcast.Subscribe(ctx, func(msg broadcast.Message) {
		if msg.Type != broadcast.TypeClaimed {
			return
		}
		if err := s.AdvanceTo(ctx, msg.Number); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "number", msg.Number), "applying peer claim failed")
		}
	})
}

// announce publishes the claim. Delivery is advisory; a publish
// failure never fails the allocation.
func (s *service) announce(ctx context.Context, number int64) {
	if err := s.bcast.Publish(ctx, broadcast.Message{Type: broadcast.TypeClaimed, Number: number}); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "number", number), "broadcasting claim failed")
	}
}
