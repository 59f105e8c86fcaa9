package txlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

const hash = "0x88DF016429689C079F3B2F6AD39FA052532C56795B733DA78A91EBE6A713944B"

func sample() Record {
	return Record{
		TxHash:         hash,
		TxType:         "mint",
		WalletAddress:  "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		TelegramUserID: "279058397",
		CreatedAt:      time.UnixMilli(1_700_000_000_000).UTC(),
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if rec, err := store.Get(ctx, "missing"); err != nil || rec != nil {
		t.Fatalf("expected nil for missing hash, got %+v, %v", rec, err)
	}

	inserted, err := store.Save(ctx, sample())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first save to insert")
	}

	dup := sample()
	dup.TxType = "claim"
	inserted, err = store.Save(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate save failed: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate save to be ignored")
	}

	got, err := store.Get(ctx, "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.TxType != "mint" || got.TelegramUserID != "279058397" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.CreatedAt.Equal(sample().CreatedAt) {
		t.Fatalf("created_at changed: %v", got.CreatedAt)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "txlog.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	exerciseStore(t, store)
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("re-open store: %v", err)
	}
	defer reopened.Close()

	got, _ := reopened.Get(ctx, hash)
	if got == nil || got.WalletAddress != sample().WalletAddress {
		t.Fatalf("unexpected record after reopen: %+v", got)
	}
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
