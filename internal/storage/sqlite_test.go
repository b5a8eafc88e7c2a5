package storage

import (
	"context"
	"path/filepath"
	"testing"

	"melodyrl/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "melodyrl.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	if err := NewSQLiteStore("").Init(context.Background()); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestSQLiteStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	run := model.RunRecord{
		VersionedRecord: Versioned(),
		ID:              "run-1",
		CreatedAtUTC:    "2026-01-01T00:00:00Z",
		Episodes:        20,
		FinalEpsilon:    0.04,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	run.Episodes = 30
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("upsert run: %v", err)
	}

	loaded, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected run")
	}
	if loaded.Episodes != 30 || loaded.FinalEpsilon != 0.04 {
		t.Fatalf("unexpected run: %+v", loaded)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	for _, run := range []model.RunRecord{
		{VersionedRecord: Versioned(), ID: "old", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{VersionedRecord: Versioned(), ID: "new", CreatedAtUTC: "2026-02-01T00:00:00Z"},
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "old" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "new" {
		t.Fatalf("unexpected limited runs: %+v", limited)
	}
}

func TestSQLiteStoreHistoryMelodyAndReset(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	if err := store.SaveRewardHistory(ctx, "run-1", []float64{-4, 2.5, 9}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history, ok, err := store.GetRewardHistory(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%t err=%v", ok, err)
	}
	if len(history) != 3 || history[1] != 2.5 {
		t.Fatalf("unexpected history: %+v", history)
	}

	melody := model.MelodyRecord{
		VersionedRecord: Versioned(),
		RunID:           "run-1",
		Tempo:           96,
		Notes:           []model.NoteRecord{{Pitch: "G4", Duration: "EIGHTH", Beats: 0.5, MIDI: 67}},
	}
	if err := store.SaveMelody(ctx, melody); err != nil {
		t.Fatalf("save melody: %v", err)
	}
	loaded, ok, err := store.GetMelody(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get melody: ok=%t err=%v", ok, err)
	}
	if loaded.Tempo != 96 || len(loaded.Notes) != 1 || loaded.Notes[0].Pitch != "G4" {
		t.Fatalf("unexpected melody: %+v", loaded)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, err := store.GetRewardHistory(ctx, "run-1"); err != nil || ok {
		t.Fatalf("expected history cleared, ok=%t err=%v", ok, err)
	}
	if _, ok, err := store.GetMelody(ctx, "run-1"); err != nil || ok {
		t.Fatalf("expected melody cleared, ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStoreNotInitialized(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"))
	if _, _, err := store.GetRun(context.Background(), "run-1"); err == nil {
		t.Fatal("expected not initialized error")
	}
}
