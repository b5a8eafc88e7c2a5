package platform

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"melodyrl/internal/agent"
	"melodyrl/internal/scape"
)

func smallConfig(episodes int, seed int64) TrainingConfig {
	cfg := DefaultTrainingConfig()
	cfg.Episodes = episodes
	cfg.Seed = seed
	cfg.LogEvery = 0
	return cfg
}

func TestTrainingConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TrainingConfig)
	}{
		{name: "negative episodes", mutate: func(c *TrainingConfig) { c.Episodes = -1 }},
		{name: "zero learning rate", mutate: func(c *TrainingConfig) { c.LearningRate = 0 }},
		{name: "gamma above one", mutate: func(c *TrainingConfig) { c.Gamma = 1.5 }},
		{name: "epsilon above one", mutate: func(c *TrainingConfig) { c.Epsilon = 2 }},
		{name: "generate epsilon negative", mutate: func(c *TrainingConfig) { c.GenerateEpsilon = -0.1 }},
		{name: "unknown schedule", mutate: func(c *TrainingConfig) { c.EpsilonSchedule = "cosine" }},
		{name: "bad layout", mutate: func(c *TrainingConfig) { c.Layout = scape.Layout{BeatsPerMeasure: 4} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultTrainingConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if _, err := NewTrainer(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected trainer construction to fail with ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := DefaultTrainingConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestTrainRecordsOneRewardPerEpisode(t *testing.T) {
	trainer, err := NewTrainer(smallConfig(5, 7))
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	result, err := trainer.Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(result.EpisodeRewards) != 5 {
		t.Fatalf("expected 5 episode rewards, got %d", len(result.EpisodeRewards))
	}
	if result.InitialEpsilon != 1.0 {
		t.Fatalf("expected initial epsilon 1.0, got %v", result.InitialEpsilon)
	}
	if result.FinalEpsilon >= result.InitialEpsilon {
		t.Fatalf("expected epsilon to decay, initial=%v final=%v", result.InitialEpsilon, result.FinalEpsilon)
	}
	if result.States == 0 {
		t.Fatal("expected visited states in the value table")
	}
	if result.Patterns > result.MeasuresCompleted {
		t.Fatalf("pattern memory %d exceeds completed measures %d", result.Patterns, result.MeasuresCompleted)
	}
}

func TestTrainHonoursCancellation(t *testing.T) {
	trainer, err := NewTrainer(smallConfig(10, 1))
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := trainer.Train(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTrainLogsProgress(t *testing.T) {
	var buf bytes.Buffer
	cfg := smallConfig(4, 3)
	cfg.LogEvery = 2
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	trainer, err := NewTrainer(cfg)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if _, err := trainer.Train(context.Background()); err != nil {
		t.Fatalf("train: %v", err)
	}
	out := buf.String()
	if strings.Count(out, "msg=\"episode complete\"") != 2 {
		t.Fatalf("expected two progress lines, got:\n%s", out)
	}
	if !strings.Contains(out, "episode=4") || !strings.Contains(out, "total_reward=") {
		t.Fatalf("missing progress attributes:\n%s", out)
	}
}

func TestGenerateFillsTheHorizonAndRestoresEpsilon(t *testing.T) {
	trainer, err := NewTrainer(smallConfig(3, 11))
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if _, err := trainer.Train(context.Background()); err != nil {
		t.Fatalf("train: %v", err)
	}
	before := trainer.Agent().Epsilon()

	melody, err := trainer.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if trainer.Agent().Epsilon() != before {
		t.Fatalf("expected epsilon %v restored, got %v", before, trainer.Agent().Epsilon())
	}
	if len(melody.Notes) == 0 || len(melody.Notes) != len(melody.Rewards) {
		t.Fatalf("unexpected melody shape: notes=%d rewards=%d", len(melody.Notes), len(melody.Rewards))
	}
	if melody.TotalBeats < float64(scape.DefaultLayout.TotalBeats()) {
		t.Fatalf("expected melody to reach the horizon, got %v beats", melody.TotalBeats)
	}
	sum := 0.0
	for _, r := range melody.Rewards {
		sum += r
	}
	if math.Abs(sum-melody.TotalReward) > 1e-9 {
		t.Fatalf("reward sum %v does not match total %v", sum, melody.TotalReward)
	}
}

func TestSameSeedReproducesTrainingAndMelody(t *testing.T) {
	run := func() ([]float64, Melody) {
		trainer, err := NewTrainer(smallConfig(4, 99))
		if err != nil {
			t.Fatalf("new trainer: %v", err)
		}
		result, err := trainer.Train(context.Background())
		if err != nil {
			t.Fatalf("train: %v", err)
		}
		melody, err := trainer.Generate(context.Background())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		return result.EpisodeRewards, melody
	}

	rewardsA, melodyA := run()
	rewardsB, melodyB := run()
	for i := range rewardsA {
		if rewardsA[i] != rewardsB[i] {
			t.Fatalf("episode %d reward differs: %v vs %v", i, rewardsA[i], rewardsB[i])
		}
	}
	if len(melodyA.Notes) != len(melodyB.Notes) {
		t.Fatalf("melody lengths differ: %d vs %d", len(melodyA.Notes), len(melodyB.Notes))
	}
	for i := range melodyA.Notes {
		if melodyA.Notes[i] != melodyB.Notes[i] {
			t.Fatalf("note %d differs: %s vs %s", i, melodyA.Notes[i], melodyB.Notes[i])
		}
	}
}

func TestGreedyReplayFollowsHighestValuedAction(t *testing.T) {
	cfg := smallConfig(1, 5)
	cfg.Epsilon = 1.0
	trainer, err := NewTrainer(cfg)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if _, err := trainer.Train(context.Background()); err != nil {
		t.Fatalf("train: %v", err)
	}

	learner := trainer.Agent()
	table := learner.Table()
	nonZero := false
	for _, state := range table.States() {
		values, _ := table.Values(state)
		for _, v := range values {
			if v != 0 {
				nonZero = true
			}
		}
	}
	if !nonZero {
		t.Fatal("expected at least one non-zero value after training")
	}

	learner.SetEpsilon(0)
	env := trainer.Environment()
	actions := env.Actions()
	state := env.Reset()
	greedySteps := 0
	for !env.Done() {
		beat := env.CurrentBeat()
		expected := -1
		best := math.Inf(-1)
		values, seen := table.Values(state)
		for a := 0; a < actions.Size(); a++ {
			if !env.IsValidDurationAt(beat, actions.MustNote(a).Duration) {
				continue
			}
			v := 0.0
			if seen {
				v = values[a]
			}
			if v > best {
				best = v
				expected = a
			}
		}

		action, source := learner.Decide(state, beat, env.IsValidDurationAt)
		if source == agent.SourceGreedy {
			greedySteps++
			if expected >= 0 && action != expected {
				t.Fatalf("state %q beat %v: greedy action %d, expected %d", state, beat, action, expected)
			}
		}
		if source == agent.SourceExplore {
			t.Fatalf("epsilon 0 must never explore (state %q)", state)
		}
		next, _, done, _ := env.Step(action)
		state = next
		if done {
			break
		}
	}
	if greedySteps == 0 {
		t.Fatal("expected at least one greedy step")
	}
}
