package storage

import (
	"path/filepath"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore(KindSQLite, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestCloseIfSupportedMemory(t *testing.T) {
	if err := CloseIfSupported(NewMemoryStore()); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}
