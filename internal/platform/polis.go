package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"melodyrl/internal/model"
	"melodyrl/internal/music"
	"melodyrl/internal/storage"

	"gonum.org/v1/gonum/floats"
)

// recordTimeLayout is fixed width so records sort chronologically as strings.
const recordTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Config struct {
	Store  storage.Store
	Logger *slog.Logger
	Now    func() time.Time
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

// RunConfig is one persisted training run.
type RunConfig struct {
	RunID    string
	Tempo    int
	Training TrainingConfig
}

// RunResult carries everything a run produced, including the trainer so
// callers can render or export with the same random source.
type RunResult struct {
	Record  model.RunRecord
	Train   TrainResult
	Melody  Melody
	Trainer *Trainer
}

// Polis owns the run store. All runs go through it so their records land in
// one place.
type Polis struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time

	mu             sync.RWMutex
	active         map[string]struct{}
	started        bool
	lastStopReason StopReason
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Polis{
		store:          cfg.Store,
		logger:         logger,
		now:            now,
		active:         make(map[string]struct{}),
		lastStopReason: StopReasonNormal,
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Polis) Reset(ctx context.Context) error {
	_ = p.StopWithReason(StopReasonShutdown)
	if err := p.Init(ctx); err != nil {
		return err
	}
	if resetter, ok := p.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	p.logger.Info("store reset")
	return nil
}

func (p *Polis) Store() storage.Store {
	return p.store
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStopReason
}

func (p *Polis) Stop() {
	_ = p.StopWithReason(StopReasonNormal)
}

func (p *Polis) StopWithReason(reason StopReason) error {
	if reason != StopReasonNormal && reason != StopReasonShutdown {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = false
	p.lastStopReason = reason
	return nil
}

// RunTraining trains a fresh learner, generates one melody and persists the
// run record, reward history and melody under cfg.RunID.
func (p *Polis) RunTraining(ctx context.Context, cfg RunConfig) (RunResult, error) {
	if !p.Started() {
		return RunResult{}, fmt.Errorf("polis is not initialized")
	}
	training := cfg.Training
	if training.Logger == nil {
		training.Logger = p.logger
	}
	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("run:%d:%d", training.Seed, training.Episodes)
	}
	if err := p.registerRun(runID); err != nil {
		return RunResult{}, err
	}
	defer p.unregisterRun(runID)

	trainer, err := NewTrainer(training)
	if err != nil {
		return RunResult{}, err
	}
	trained, err := trainer.Train(ctx)
	if err != nil {
		return RunResult{}, err
	}
	melody, err := trainer.Generate(ctx)
	if err != nil {
		return RunResult{}, err
	}

	record := model.RunRecord{
		VersionedRecord:   storage.Versioned(),
		ID:                runID,
		CreatedAtUTC:      p.now().UTC().Format(recordTimeLayout),
		Episodes:          training.Episodes,
		Seed:              training.Seed,
		LearningRate:      training.LearningRate,
		Gamma:             training.Gamma,
		InitialEpsilon:    trained.InitialEpsilon,
		FinalEpsilon:      trained.FinalEpsilon,
		EpsilonSchedule:   trainer.Agent().ScheduleName(),
		PatternThreshold:  training.PatternThreshold,
		States:            trained.States,
		Patterns:          trained.Patterns,
		MeasuresCompleted: trained.MeasuresCompleted,
		FinalReward:       lastOrZero(trained.EpisodeRewards),
		BestReward:        bestOrZero(trained.EpisodeRewards),
		MelodyReward:      melody.TotalReward,
		MelodyNotes:       len(melody.Notes),
	}

	if err := p.store.SaveRun(ctx, record); err != nil {
		return RunResult{}, fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := p.store.SaveRewardHistory(ctx, runID, trained.EpisodeRewards); err != nil {
		return RunResult{}, fmt.Errorf("save reward history %s: %w", runID, err)
	}
	if err := p.store.SaveMelody(ctx, ToMelodyRecord(runID, cfg.Tempo, melody)); err != nil {
		return RunResult{}, fmt.Errorf("save melody %s: %w", runID, err)
	}
	p.logger.Info("run persisted", slog.String("run_id", runID), slog.Int("notes", len(melody.Notes)))

	return RunResult{
		Record:  record,
		Train:   trained,
		Melody:  melody,
		Trainer: trainer,
	}, nil
}

// ToMelodyRecord converts a generated melody into its persisted form.
func ToMelodyRecord(runID string, tempo int, melody Melody) model.MelodyRecord {
	notes := make([]model.NoteRecord, 0, len(melody.Notes))
	for _, note := range melody.Notes {
		notes = append(notes, model.NoteRecord{
			Pitch:    note.Pitch.String(),
			Duration: note.Duration.String(),
			Beats:    note.Duration.Beats(),
			MIDI:     note.Pitch.MIDI(),
		})
	}
	return model.MelodyRecord{
		VersionedRecord: storage.Versioned(),
		RunID:           runID,
		Tempo:           tempo,
		TotalReward:     melody.TotalReward,
		TotalBeats:      melody.TotalBeats,
		Notes:           notes,
	}
}

// FromMelodyRecord rebuilds the note sequence of a persisted melody.
func FromMelodyRecord(record model.MelodyRecord) ([]music.Note, error) {
	notes := make([]music.Note, 0, len(record.Notes))
	for i, n := range record.Notes {
		note, err := music.ParseNote(n.Pitch + ":" + n.Duration)
		if err != nil {
			return nil, fmt.Errorf("note %d: %w", i, err)
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func (p *Polis) registerRun(runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.active[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.active[runID] = struct{}{}
	return nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, runID)
}

func lastOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func bestOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values)
}
