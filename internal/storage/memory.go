package storage

import (
	"context"
	"errors"
	"sync"

	"melodyrl/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	history     map[string][]float64
	melodies    map[string]model.MelodyRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]float64)
	s.melodies = make(map[string]model.MelodyRecord)
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]float64)
	s.melodies = make(map[string]model.MelodyRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRunsNewestFirst(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) SaveRewardHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetRewardHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SaveMelody(_ context.Context, melody model.MelodyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	melody.Notes = append([]model.NoteRecord(nil), melody.Notes...)
	s.melodies[melody.RunID] = melody
	return nil
}

func (s *MemoryStore) GetMelody(_ context.Context, runID string) (model.MelodyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	melody, ok := s.melodies[runID]
	if !ok {
		return model.MelodyRecord{}, false, nil
	}
	melody.Notes = append([]model.NoteRecord(nil), melody.Notes...)
	return melody, true, nil
}
