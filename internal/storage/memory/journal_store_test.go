package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

func entry(seq uint64, kind domain.EntryKind) *domain.JournalEntry {
	return &domain.JournalEntry{
		Seq:    seq,
		Kind:   kind,
		Index:  100 + seq,
		Caller: "alice",
		PoolID: 0,
		User:   "alice",
		Amount: big.NewInt(int64(seq)),
	}
}

func TestJournalStore_AppendAndGet(t *testing.T) {
	store := NewJournalStore()
	ctx := context.Background()

	err := store.Append(ctx, entry(1, domain.EntryDeposit), entry(2, domain.EntryClaim))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, entry(3, domain.EntryWithdraw)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	last, err := store.Last(ctx)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if last != 3 {
		t.Errorf("Last mismatch: got %d, want 3", last)
	}

	got, err := store.GetRange(ctx, 2, 10)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 2 || got[1].Kind != domain.EntryWithdraw {
		t.Errorf("GetRange returned %d entries, want seqs 2..3", len(got))
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("GetAll returned %d entries, want 3", len(all))
	}

	// Returned entries are copies
	all[0].Amount.SetInt64(999)
	again, _ := store.GetRange(ctx, 1, 1)
	if again[0].Amount.Int64() != 1 {
		t.Errorf("stored entry was mutated through returned copy")
	}
}

func TestJournalStore_SeqContinuity(t *testing.T) {
	store := NewJournalStore()
	ctx := context.Background()

	err := store.Append(ctx, entry(2, domain.EntryDeposit))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for gap, got %v", err)
	}

	if err := store.Append(ctx, entry(1, domain.EntryDeposit)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	err = store.Append(ctx, entry(1, domain.EntryDeposit))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// A bad entry fails the whole batch
	err = store.Append(ctx, entry(2, domain.EntryDeposit), entry(3, "bogus"))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if last, _ := store.Last(ctx); last != 1 {
		t.Errorf("Last mismatch after failed batch: got %d, want 1", last)
	}
}
