package storage

import (
	"context"

	"decipher/internal/model"
)

// Store defines persistence for solve runs, their score traces and cached
// reference models.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first. limit <= 0 returns all of them.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SaveTrace(ctx context.Context, runID string, trace []model.TracePoint) error
	GetTrace(ctx context.Context, runID string) ([]model.TracePoint, bool, error)
	SaveReferenceModel(ctx context.Context, ref model.ReferenceModel) error
	GetReferenceModel(ctx context.Context, digest string) (model.ReferenceModel, bool, error)
}
