package badger

import (
	"context"
	"testing"

	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/storagetest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(OpenOptions{InMemory: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPositionStore(t *testing.T) {
	storagetest.RunPositionStore(t, func(t *testing.T) storage.PositionStore {
		return NewPositionStore(openTestDB(t))
	})
}

func TestPositionStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(OpenOptions{Path: dir})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := NewPositionStore(db).SaveTrade(ctx, storagetest.SamplePosition("p1", 1000)); err != nil {
		t.Fatalf("SaveTrade failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err = Open(OpenOptions{Path: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	open, err := NewPositionStore(db).LoadOpenPositions(ctx)
	if err != nil {
		t.Fatalf("LoadOpenPositions failed: %v", err)
	}
	if len(open) != 1 || open[0].ID != "p1" {
		t.Fatalf("expected p1 after reopen, got %+v", open)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(OpenOptions{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}
