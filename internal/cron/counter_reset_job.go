package cron

import (
	"context"
	"fmt"

	"github.com/vmachado/lojapos-backend/pkg/logger"
)

// CounterResetJobParams configures the daily order number reset.
type CounterResetJobParams struct {
	Logger    *logger.Logger
	Allocator counterResetter
}

type counterResetter interface {
	ResetIfNewDay(ctx context.Context) (bool, error)
	BusinessDate() string
}

// NewCounterResetJob constructs the job that rolls the order number
// counter back to zero when the business date changes. The allocator
// also resets lazily on first use, so this job only shortens the
// window where yesterday's counter is still visible.
func NewCounterResetJob(params CounterResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Allocator == nil {
		return nil, fmt.Errorf("allocator required")
	}
	return &counterResetJob{
		logg:      params.Logger,
		allocator: params.Allocator,
	}, nil
}

type counterResetJob struct {
	logg      *logger.Logger
	allocator counterResetter
}

func (j *counterResetJob) Name() string { return "counter-reset" }

func (j *counterResetJob) Run(ctx context.Context) error {
	rolled, err := j.allocator.ResetIfNewDay(ctx)
	if err != nil {
		return fmt.Errorf("counter reset: %w", err)
	}
	if !rolled {
		return nil
	}
	logCtx := j.logg.WithField(ctx, "business_date", j.allocator.BusinessDate())
	j.logg.Info(logCtx, "order number counter reset for new business day")
	return nil
}
