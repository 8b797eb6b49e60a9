package memory

import (
	"context"
	"errors"
	"testing"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

func TestSnapshotStore_SaveAndLatest(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	if _, err := store.Latest(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}

	for _, seq := range []uint64{10, 30, 20} {
		snap := &domain.Snapshot{Seq: seq, Index: seq * 2, Digest: "d", State: []byte{byte(seq)}}
		if err := store.Save(ctx, snap); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Seq != 30 {
		t.Errorf("Latest seq mismatch: got %d, want 30", latest.Seq)
	}

	got, err := store.GetBySeq(ctx, 20)
	if err != nil {
		t.Fatalf("GetBySeq failed: %v", err)
	}
	if got.Index != 40 || got.State[0] != 20 {
		t.Errorf("GetBySeq returned wrong snapshot: %+v", got)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 || list[0].Seq != 10 || list[2].Seq != 30 {
		t.Errorf("List not ordered by seq")
	}
}

func TestSnapshotStore_Errors(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	if err := store.Save(ctx, &domain.Snapshot{Seq: 1}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for missing digest, got %v", err)
	}

	snap := &domain.Snapshot{Seq: 1, Digest: "d"}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, snap); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetBySeq(ctx, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
