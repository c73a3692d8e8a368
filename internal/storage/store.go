package storage

import (
	"context"
	"errors"

	"predictivelab/internal/model"
)

var ErrRunNotFound = errors.New("run not found")

// Store persists lab runs and their signal traces.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first; limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SaveTrace(ctx context.Context, runID string, samples []model.SignalSample) error
	GetTrace(ctx context.Context, runID string) ([]model.SignalSample, bool, error)
}
