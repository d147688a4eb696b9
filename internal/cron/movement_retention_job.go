package cron

import (
	"context"
	"fmt"

	"github.com/vmachado/lojapos-backend/pkg/logger"
)

const defaultMovementRetentionDays = 90

// MovementRetentionJobParams configures the stock movement cleanup.
type MovementRetentionJobParams struct {
	Logger    *logger.Logger
	Inventory movementPruner
	Retention int
}

type movementPruner interface {
	PruneMovements(ctx context.Context, retentionDays int) (int64, error)
}

// NewMovementRetentionJob constructs the job that trims old audit
// entries from the movement ledger.
func NewMovementRetentionJob(params MovementRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultMovementRetentionDays
	}
	return &movementRetentionJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		retention: retention,
	}, nil
}

type movementRetentionJob struct {
	logg      *logger.Logger
	inventory movementPruner
	retention int
}

func (j *movementRetentionJob) Name() string { return "movement-retention" }

func (j *movementRetentionJob) Run(ctx context.Context) error {
	deleted, err := j.inventory.PruneMovements(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("movement retention: %w", err)
	}
	if deleted == 0 {
		return nil
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "movement retention cleanup complete")
	return nil
}
