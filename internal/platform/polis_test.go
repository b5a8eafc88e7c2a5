package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"melodyrl/internal/model"
	"melodyrl/internal/storage"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestPolis(t *testing.T) *Polis {
	t.Helper()
	p := NewPolis(Config{Store: storage.NewMemoryStore(), Now: fixedClock})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return p
}

func TestPolisInitRequiresStore(t *testing.T) {
	p := NewPolis(Config{})
	if err := p.Init(context.Background()); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestPolisRunTrainingPersistsRecords(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)

	result, err := p.RunTraining(ctx, RunConfig{
		RunID:    "run-1",
		Tempo:    100,
		Training: smallConfig(3, 21),
	})
	if err != nil {
		t.Fatalf("run training: %v", err)
	}
	if result.Trainer == nil {
		t.Fatal("expected trainer in result")
	}
	if result.Record.CreatedAtUTC != "2026-03-01T12:00:00.000000000Z" {
		t.Fatalf("unexpected timestamp: %s", result.Record.CreatedAtUTC)
	}

	run, ok, err := p.Store().GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if run.Episodes != 3 || run.Seed != 21 || run.EpsilonSchedule != "stochastic" {
		t.Fatalf("unexpected run record: %+v", run)
	}
	if run.MelodyNotes != len(result.Melody.Notes) {
		t.Fatalf("melody note count mismatch: record=%d melody=%d", run.MelodyNotes, len(result.Melody.Notes))
	}

	history, ok, err := p.Store().GetRewardHistory(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%t err=%v", ok, err)
	}
	if len(history) != 3 || history[2] != run.FinalReward {
		t.Fatalf("unexpected history %v for final reward %v", history, run.FinalReward)
	}

	melody, ok, err := p.Store().GetMelody(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get melody: ok=%t err=%v", ok, err)
	}
	if melody.Tempo != 100 || len(melody.Notes) != len(result.Melody.Notes) {
		t.Fatalf("unexpected melody record: tempo=%d notes=%d", melody.Tempo, len(melody.Notes))
	}
}

func TestPolisRunTrainingRejectsInvalidConfig(t *testing.T) {
	p := newTestPolis(t)
	cfg := smallConfig(1, 1)
	cfg.Gamma = -1
	if _, err := p.RunTraining(context.Background(), RunConfig{RunID: "bad", Training: cfg}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, ok, _ := p.Store().GetRun(context.Background(), "bad"); ok {
		t.Fatal("invalid run must not be persisted")
	}
}

func TestPolisRunTrainingRequiresInit(t *testing.T) {
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	if _, err := p.RunTraining(context.Background(), RunConfig{Training: smallConfig(1, 1)}); err == nil {
		t.Fatal("expected not initialized error")
	}
}

func TestPolisResetClearsStore(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	if _, err := p.RunTraining(ctx, RunConfig{RunID: "run-1", Training: smallConfig(1, 2)}); err != nil {
		t.Fatalf("run training: %v", err)
	}

	if err := p.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !p.Started() {
		t.Fatal("expected polis to be started after reset")
	}
	if p.LastStopReason() != StopReasonShutdown {
		t.Fatalf("unexpected stop reason: %s", p.LastStopReason())
	}
	if _, ok, _ := p.Store().GetRun(ctx, "run-1"); ok {
		t.Fatal("expected run to be cleared")
	}
}

func TestPolisStopWithReason(t *testing.T) {
	p := newTestPolis(t)
	if err := p.StopWithReason("crash"); err == nil {
		t.Fatal("expected unsupported stop reason error")
	}
	p.Stop()
	if p.Started() || p.LastStopReason() != StopReasonNormal {
		t.Fatalf("unexpected state after stop: started=%t reason=%s", p.Started(), p.LastStopReason())
	}
}

func TestMelodyRecordRoundTrip(t *testing.T) {
	trainer, err := NewTrainer(smallConfig(1, 4))
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	melody, err := trainer.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	record := ToMelodyRecord("run-x", 120, melody)
	notes, err := FromMelodyRecord(record)
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if len(notes) != len(melody.Notes) {
		t.Fatalf("length mismatch: %d vs %d", len(notes), len(melody.Notes))
	}
	for i := range notes {
		if notes[i] != melody.Notes[i] {
			t.Fatalf("note %d mismatch: %s vs %s", i, notes[i], melody.Notes[i])
		}
	}

	if _, err := FromMelodyRecord(model.MelodyRecord{Notes: []model.NoteRecord{{Pitch: "H9", Duration: "QUARTER"}}}); err == nil {
		t.Fatal("expected parse error for unknown pitch")
	}
}
