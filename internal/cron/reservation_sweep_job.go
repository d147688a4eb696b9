package cron

import (
	"context"
	"fmt"

	"github.com/vmachado/lojapos-backend/pkg/logger"
)

// ReservationSweepJobParams configures the cart reservation sweep.
type ReservationSweepJobParams struct {
	Logger    *logger.Logger
	Inventory reservationSweeper
}

type reservationSweeper interface {
	ExpireCartReservations(ctx context.Context) (int, error)
}

// NewReservationSweepJob constructs the job that returns stock held
// by abandoned carts to the sellable pool.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &reservationSweepJob{
		logg:      params.Logger,
		inventory: params.Inventory,
	}, nil
}

type reservationSweepJob struct {
	logg      *logger.Logger
	inventory reservationSweeper
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	expired, err := j.inventory.ExpireCartReservations(ctx)
	if err != nil {
		return fmt.Errorf("reservation sweep: %w", err)
	}
	if expired == 0 {
		return nil
	}
	j.logg.Info(j.logg.WithField(ctx, "holds_expired", expired), "expired cart reservations released")
	return nil
}
