package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/vmachado/lojapos-backend/pkg/logger"
)

type fakeResetter struct {
	rolled bool
	err    error
	calls  int
}

func (f *fakeResetter) ResetIfNewDay(context.Context) (bool, error) {
	f.calls++
	return f.rolled, f.err
}

func (f *fakeResetter) BusinessDate() string { return "2026-08-29" }

func TestCounterResetJobRuns(t *testing.T) {
	resetter := &fakeResetter{rolled: true}
	job, err := NewCounterResetJob(CounterResetJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Allocator: resetter,
	})
	if err != nil {
		t.Fatalf("NewCounterResetJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resetter.calls != 1 {
		t.Fatalf("expected one reset attempt, got %d", resetter.calls)
	}
}

func TestCounterResetJobPropagatesError(t *testing.T) {
	job, err := NewCounterResetJob(CounterResetJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Allocator: &fakeResetter{err: errors.New("redis down")},
	})
	if err != nil {
		t.Fatalf("NewCounterResetJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
