// Package melodyrl is the client surface used by the melodyctl CLI: train a
// composer, generate and export a melody, and inspect stored runs.
package melodyrl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"melodyrl/internal/midiout"
	"melodyrl/internal/music"
	"melodyrl/internal/platform"
	"melodyrl/internal/scape"
	"melodyrl/internal/stats"
	"melodyrl/internal/storage"

	"github.com/google/uuid"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "melodyrl.db"
	defaultRunsLimit    = 20
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
	// NewRunID overrides run id generation. Defaults to random UUIDs.
	NewRunID func() string
	Now      func() time.Time
}

type Client struct {
	store storage.Store
	polis *platform.Polis

	artifactsDir string
	exportsDir   string
	logger       *slog.Logger
	newRunID     func() string
	now          func() time.Time
}

// RunRequest configures one train-then-generate run. Zero numeric fields
// take the package defaults.
type RunRequest struct {
	Episodes         int
	Seed             int64
	LearningRate     float64
	Gamma            float64
	Epsilon          float64
	GenerateEpsilon  float64
	EpsilonSchedule  string
	PatternThreshold float64
	Tempo            int
	LogEvery         int
	NoDrums          bool
	NoChords         bool
}

type RunSummary struct {
	RunID          string
	ArtifactsDir   string
	MIDIPath       string
	EpisodeRewards []float64
	Rewards        stats.RewardSummary
	FinalEpsilon   float64
	States         int
	Patterns       int
	Layout         scape.Layout
	Melody         []music.Note
	MelodyReward   float64
	InvalidNotes   int
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Episodes     int
	Seed         int64
	FinalEpsilon float64
	BestReward   float64
	MelodyReward float64
	MelodyNotes  int
}

type RewardsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type MelodyRequest struct {
	RunID  string
	Latest bool
}

type MelodyView struct {
	RunID       string
	Tempo       int
	TotalReward float64
	TotalBeats  float64
	Notes       []music.Note
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
		logger:       logger,
		newRunID:     newRunID,
		now:          now,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Reset drops every stored run. Artifact directories on disk are kept.
func (c *Client) Reset(ctx context.Context) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.Reset(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	training := trainingConfig(req, c.logger)
	tempo := req.Tempo
	if tempo <= 0 {
		tempo = midiout.DefaultTempo
	}
	runID := c.newRunID()

	result, err := p.RunTraining(ctx, platform.RunConfig{
		RunID:    runID,
		Tempo:    tempo,
		Training: training,
	})
	if err != nil {
		return RunSummary{}, err
	}
	layout := result.Trainer.Config().Layout
	rewards := stats.SummarizeRewards(result.Train.EpisodeRewards, stats.DefaultRewardWindow)

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:             runID,
			Episodes:          training.Episodes,
			Seed:              training.Seed,
			LearningRate:      training.LearningRate,
			Gamma:             training.Gamma,
			Epsilon:           training.Epsilon,
			GenerateEpsilon:   training.GenerateEpsilon,
			EpsilonSchedule:   result.Record.EpsilonSchedule,
			PatternThreshold:  training.PatternThreshold,
			Tempo:             tempo,
			BeatsPerMeasure:   layout.BeatsPerMeasure,
			MeasuresPerPhrase: layout.MeasuresPerPhrase,
			Phrases:           layout.Phrases,
		},
		EpisodeRewards: result.Train.EpisodeRewards,
		Summary:        rewards,
		Melody:         platform.ToMelodyRecord(runID, tempo, result.Melody),
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("write artifacts: %w", err)
	}

	midiPath := filepath.Join(runDir, stats.MIDIFile)
	midiOpts := midiout.DefaultOptions(result.Trainer.Rand())
	midiOpts.Tempo = tempo
	midiOpts.BeatsPerMeasure = layout.BeatsPerMeasure
	midiOpts.Drums = !req.NoDrums
	midiOpts.Chords = !req.NoChords
	if err := midiout.WriteFile(midiPath, result.Melody.Notes, midiOpts); err != nil {
		return RunSummary{}, fmt.Errorf("write midi: %w", err)
	}

	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		Episodes:     training.Episodes,
		Seed:         training.Seed,
		FinalReward:  result.Record.FinalReward,
		BestReward:   result.Record.BestReward,
		MelodyReward: result.Melody.TotalReward,
		CreatedAtUTC: stats.FormatIndexTime(c.now()),
	}); err != nil {
		return RunSummary{}, err
	}
	c.logger.Info("run complete", slog.String("run_id", runID), slog.String("dir", runDir))

	return RunSummary{
		RunID:          runID,
		ArtifactsDir:   filepath.Clean(runDir),
		MIDIPath:       filepath.Clean(midiPath),
		EpisodeRewards: append([]float64(nil), result.Train.EpisodeRewards...),
		Rewards:        rewards,
		FinalEpsilon:   result.Train.FinalEpsilon,
		States:         result.Train.States,
		Patterns:       result.Train.Patterns,
		Layout:         layout,
		Melody:         append([]music.Note(nil), result.Melody.Notes...),
		MelodyReward:   result.Melody.TotalReward,
		InvalidNotes:   result.Melody.InvalidNotes,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunItem{
			RunID:        run.ID,
			CreatedAtUTC: run.CreatedAtUTC,
			Episodes:     run.Episodes,
			Seed:         run.Seed,
			FinalEpsilon: run.FinalEpsilon,
			BestReward:   run.BestReward,
			MelodyReward: run.MelodyReward,
			MelodyNotes:  run.MelodyNotes,
		})
	}
	return out, nil
}

func (c *Client) Rewards(ctx context.Context, req RewardsRequest) ([]float64, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetRewardHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: reward history for %s", ErrRunNotFound, runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Melody(ctx context.Context, req MelodyRequest) (MelodyView, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return MelodyView{}, err
	}

	record, ok, err := c.store.GetMelody(ctx, runID)
	if err != nil {
		return MelodyView{}, err
	}
	if !ok {
		return MelodyView{}, fmt.Errorf("%w: melody for %s", ErrRunNotFound, runID)
	}
	notes, err := platform.FromMelodyRecord(record)
	if err != nil {
		return MelodyView{}, fmt.Errorf("decode melody %s: %w", runID, err)
	}
	return MelodyView{
		RunID:       runID,
		Tempo:       record.Tempo,
		TotalReward: record.TotalReward,
		TotalBeats:  record.TotalBeats,
		Notes:       notes,
	}, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return "", err
	}
	if !latest {
		return runID, nil
	}

	runs, err := c.store.ListRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no runs available", ErrRunNotFound)
	}
	return runs[0].ID, nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{Store: c.store, Logger: c.logger, Now: c.now})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func trainingConfig(req RunRequest, logger *slog.Logger) platform.TrainingConfig {
	cfg := platform.DefaultTrainingConfig()
	if req.Episodes > 0 {
		cfg.Episodes = req.Episodes
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	if req.LearningRate > 0 {
		cfg.LearningRate = req.LearningRate
	}
	if req.Gamma > 0 {
		cfg.Gamma = req.Gamma
	}
	if req.Epsilon > 0 {
		cfg.Epsilon = req.Epsilon
	}
	cfg.GenerateEpsilon = req.GenerateEpsilon
	if req.EpsilonSchedule != "" {
		cfg.EpsilonSchedule = req.EpsilonSchedule
	}
	if req.PatternThreshold > 0 {
		cfg.PatternThreshold = req.PatternThreshold
	}
	if req.LogEvery > 0 {
		cfg.LogEvery = req.LogEvery
	}
	cfg.Logger = logger
	return cfg
}
