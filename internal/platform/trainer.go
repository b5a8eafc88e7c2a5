package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"melodyrl/internal/agent"
	"melodyrl/internal/music"
	"melodyrl/internal/scape"
	"melodyrl/internal/tuning"
)

const (
	DefaultEpisodes        = 2000
	DefaultTrainingEpsilon = 1.0
	DefaultLogEvery        = 100
	defaultAgentID         = "composer"
)

var ErrInvalidConfig = errors.New("invalid training config")

// TrainingConfig drives one train-then-generate run.
type TrainingConfig struct {
	Episodes         int
	LearningRate     float64
	Gamma            float64
	Epsilon          float64
	GenerateEpsilon  float64
	EpsilonSchedule  string
	PatternThreshold float64
	Seed             int64
	LogEvery         int
	Layout           scape.Layout
	Logger           *slog.Logger
}

func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Episodes:         DefaultEpisodes,
		LearningRate:     agent.DefaultLearningRate,
		Gamma:            agent.DefaultGamma,
		Epsilon:          DefaultTrainingEpsilon,
		EpsilonSchedule:  tuning.ScheduleStochasticName,
		PatternThreshold: agent.DefaultPatternThreshold,
		Seed:             1,
		LogEvery:         DefaultLogEvery,
		Layout:           scape.DefaultLayout,
	}
}

func (c TrainingConfig) Validate() error {
	if c.Episodes < 0 {
		return fmt.Errorf("%w: episodes must be >= 0, got %d", ErrInvalidConfig, c.Episodes)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("%w: learning rate must be in (0, 1], got %v", ErrInvalidConfig, c.LearningRate)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("%w: gamma must be in [0, 1], got %v", ErrInvalidConfig, c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("%w: epsilon must be in [0, 1], got %v", ErrInvalidConfig, c.Epsilon)
	}
	if c.GenerateEpsilon < 0 || c.GenerateEpsilon > 1 {
		return fmt.Errorf("%w: generate epsilon must be in [0, 1], got %v", ErrInvalidConfig, c.GenerateEpsilon)
	}
	if c.LogEvery < 0 {
		return fmt.Errorf("%w: log cadence must be >= 0, got %d", ErrInvalidConfig, c.LogEvery)
	}
	if _, err := tuning.EpsilonScheduleFromName(c.EpsilonSchedule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Layout != (scape.Layout{}) {
		if err := c.Layout.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// TrainResult summarises a completed training loop.
type TrainResult struct {
	EpisodeRewards    []float64
	InitialEpsilon    float64
	FinalEpsilon      float64
	States            int
	Patterns          int
	MeasuresCompleted int
}

// Melody is one generated episode.
type Melody struct {
	Notes            []music.Note
	Rewards          []float64
	TotalReward      float64
	TotalBeats       float64
	InvalidNotes     int
	MeasuresComplete int
}

// Trainer owns one environment, one learner and the single random source
// shared by both training and generation.
type Trainer struct {
	cfg     TrainingConfig
	env     *scape.CompositionScape
	learner *agent.QLearner
	rng     *rand.Rand
	logger  *slog.Logger
}

func NewTrainer(cfg TrainingConfig) (*Trainer, error) {
	if cfg.Layout == (scape.Layout{}) {
		cfg.Layout = scape.DefaultLayout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	schedule, err := tuning.EpsilonScheduleFromName(cfg.EpsilonSchedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	actions := music.DefaultActionSpace()
	env, err := scape.NewCompositionScapeWithLayout(cfg.Layout, actions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	learner, err := agent.NewQLearner(defaultAgentID, actions, agent.Config{
		LearningRate:     cfg.LearningRate,
		Gamma:            cfg.Gamma,
		Epsilon:          cfg.Epsilon,
		PatternThreshold: cfg.PatternThreshold,
		BeatsPerMeasure:  cfg.Layout.BeatsPerMeasure,
		Schedule:         schedule,
	}, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Trainer{
		cfg:     cfg,
		env:     env,
		learner: learner,
		rng:     rng,
		logger:  logger,
	}, nil
}

func (t *Trainer) Config() TrainingConfig {
	return t.cfg
}

func (t *Trainer) Agent() *agent.QLearner {
	return t.learner
}

func (t *Trainer) Environment() *scape.CompositionScape {
	return t.env
}

// Rand is the run's random source. Collaborators such as the MIDI writer
// draw from it after generation so a seed reproduces the whole run.
func (t *Trainer) Rand() *rand.Rand {
	return t.rng
}

// Train runs the configured number of learning episodes. Cancellation is
// checked between episodes only.
func (t *Trainer) Train(ctx context.Context) (TrainResult, error) {
	result := TrainResult{
		EpisodeRewards: make([]float64, 0, t.cfg.Episodes),
		InitialEpsilon: t.learner.Epsilon(),
	}
	t.logger.Info("training started",
		slog.Int("episodes", t.cfg.Episodes),
		slog.Int64("seed", t.cfg.Seed),
		slog.Float64("epsilon", t.learner.Epsilon()),
		slog.String("schedule", t.cfg.EpsilonSchedule),
	)

	for episode := 0; episode < t.cfg.Episodes; episode++ {
		if err := ctx.Err(); err != nil {
			return TrainResult{}, err
		}
		total := t.RunEpisode()
		result.EpisodeRewards = append(result.EpisodeRewards, total)

		if t.cfg.LogEvery > 0 && (episode+1)%t.cfg.LogEvery == 0 {
			t.logger.Info("episode complete",
				slog.Int("episode", episode+1),
				slog.Float64("total_reward", total),
				slog.Float64("epsilon", t.learner.Epsilon()),
				slog.Int("patterns", t.learner.Memory().Len()),
				slog.Int("states", t.learner.Table().Len()),
			)
		} else {
			t.logger.Debug("episode complete",
				slog.Int("episode", episode+1),
				slog.Float64("total_reward", total),
			)
		}
	}

	result.FinalEpsilon = t.learner.Epsilon()
	result.States = t.learner.Table().Len()
	result.Patterns = t.learner.Memory().Len()
	result.MeasuresCompleted = t.learner.Memory().MeasuresSeen()
	t.logger.Info("training finished",
		slog.Float64("final_epsilon", result.FinalEpsilon),
		slog.Int("states", result.States),
		slog.Int("patterns", result.Patterns),
	)
	return result, nil
}

// RunEpisode plays one learning episode and decays epsilon afterwards. It
// returns the episode's total reward.
func (t *Trainer) RunEpisode() float64 {
	state := t.env.Reset()
	total := 0.0
	for {
		action := t.learner.SelectAction(state, t.env.CurrentBeat(), t.env.IsValidDurationAt)
		next, reward, done, info := t.env.Step(action)
		t.learner.Update(state, action, reward, next, done, info.Note.Duration, info.MeasureComplete)
		total += reward
		state = next
		if done {
			break
		}
	}
	t.learner.EndEpisode()
	t.learner.DecayEpsilon()
	return total
}

// Generate plays one episode without learning at the configured generation
// epsilon. The learner's training epsilon is restored afterwards.
func (t *Trainer) Generate(ctx context.Context) (Melody, error) {
	previous := t.learner.Epsilon()
	t.learner.SetEpsilon(t.cfg.GenerateEpsilon)
	defer t.learner.SetEpsilon(previous)

	fitness, trace, err := t.env.Evaluate(ctx, t.learner)
	if err != nil {
		return Melody{}, fmt.Errorf("generate melody: %w", err)
	}

	melody := Melody{TotalReward: float64(fitness)}
	if notes, ok := trace["melody"].([]music.Note); ok {
		melody.Notes = notes
	}
	if rewards, ok := trace["rewards"].([]float64); ok {
		melody.Rewards = rewards
	}
	if beats, ok := trace["total_beats"].(float64); ok {
		melody.TotalBeats = beats
	}
	if invalid, ok := trace["invalid_notes"].(int); ok {
		melody.InvalidNotes = invalid
	}
	if measures, ok := trace["measures_complete"].(int); ok {
		melody.MeasuresComplete = measures
	}
	t.logger.Info("melody generated",
		slog.Int("notes", len(melody.Notes)),
		slog.Float64("total_reward", melody.TotalReward),
		slog.Int("invalid_notes", melody.InvalidNotes),
	)
	return melody, nil
}
