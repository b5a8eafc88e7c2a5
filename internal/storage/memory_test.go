package storage

import (
	"context"
	"testing"

	"melodyrl/internal/model"
)

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	run := model.RunRecord{VersionedRecord: Versioned(), ID: "run-1", Episodes: 5}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	loaded, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if loaded.Episodes != 5 {
		t.Fatalf("unexpected run: %+v", loaded)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%t err=%v", ok, err)
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), model.RunRecord{ID: "run-1"}); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestMemoryStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, run := range []model.RunRecord{
		{ID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{ID: "b", CreatedAtUTC: "2026-01-03T00:00:00Z"},
		{ID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z"},
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "b" || runs[1].ID != "c" || runs[2].ID != "a" {
		t.Fatalf("unexpected run order: %+v", runs)
	}

	limited, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "b" {
		t.Fatalf("unexpected limited runs: %+v", limited)
	}
}

func TestMemoryStoreRewardHistoryIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []float64{1.5, -2, 3}
	if err := store.SaveRewardHistory(ctx, "run-1", input); err != nil {
		t.Fatalf("save history: %v", err)
	}
	input[0] = 100

	output, ok, err := store.GetRewardHistory(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%t err=%v", ok, err)
	}
	if output[0] != 1.5 || len(output) != 3 {
		t.Fatalf("unexpected history: %+v", output)
	}
}

func TestMemoryStoreMelodyAndReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	melody := model.MelodyRecord{
		VersionedRecord: Versioned(),
		RunID:           "run-1",
		Tempo:           120,
		Notes:           []model.NoteRecord{{Pitch: "C4", Duration: "WHOLE", Beats: 4, MIDI: 60}},
	}
	if err := store.SaveMelody(ctx, melody); err != nil {
		t.Fatalf("save melody: %v", err)
	}
	loaded, ok, err := store.GetMelody(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get melody: ok=%t err=%v", ok, err)
	}
	if len(loaded.Notes) != 1 || loaded.Notes[0].MIDI != 60 {
		t.Fatalf("unexpected melody: %+v", loaded)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := store.GetMelody(ctx, "run-1"); ok {
		t.Fatal("expected melody to be cleared by reset")
	}
}
