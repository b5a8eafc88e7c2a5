package storage

import (
	"context"
	"sort"

	"melodyrl/internal/model"
)

// Store defines transaction-like persistence operations for training runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SaveRewardHistory(ctx context.Context, runID string, history []float64) error
	GetRewardHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveMelody(ctx context.Context, melody model.MelodyRecord) error
	GetMelody(ctx context.Context, runID string) (model.MelodyRecord, bool, error)
}

// Resetter is implemented by stores that can drop all persisted state.
type Resetter interface {
	Reset(ctx context.Context) error
}

// sortRunsNewestFirst orders runs by creation time descending with id as tie-break.
func sortRunsNewestFirst(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC == runs[j].CreatedAtUTC {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
	})
}
