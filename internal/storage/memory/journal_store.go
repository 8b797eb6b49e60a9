package memory

import (
	"context"
	"fmt"
	"sync"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

// JournalStore is an in-memory implementation of storage.JournalStore.
type JournalStore struct {
	mu      sync.RWMutex
	entries []*domain.JournalEntry // entries[i].Seq == i+1
}

// NewJournalStore creates a new in-memory journal store.
func NewJournalStore() *JournalStore {
	return &JournalStore{}
}

// Append adds entries atomically. Seqs must continue the journal without gaps.
func (s *JournalStore) Append(_ context.Context, entries ...*domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: validate the whole batch
	next := uint64(len(s.entries)) + 1
	for _, e := range entries {
		if e == nil || !e.Kind.IsValid() {
			return storage.ErrInvalidInput
		}
		if e.Seq < next {
			return storage.ErrDuplicateKey
		}
		if e.Seq > next {
			return fmt.Errorf("%w: expected seq %d, got %d", storage.ErrInvalidInput, next, e.Seq)
		}
		next++
	}

	// Second pass: insert all
	for _, e := range entries {
		s.entries = append(s.entries, e.Clone())
	}

	return nil
}

// GetRange retrieves entries with from <= seq <= to, ordered by seq ASC.
func (s *JournalStore) GetRange(_ context.Context, from, to uint64) ([]*domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.JournalEntry
	if from == 0 {
		from = 1
	}
	for seq := from; seq <= to && seq <= uint64(len(s.entries)); seq++ {
		result = append(result, s.entries[seq-1].Clone())
	}
	return result, nil
}

// GetAll retrieves every entry ordered by seq ASC.
func (s *JournalStore) GetAll(_ context.Context) ([]*domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.JournalEntry, len(s.entries))
	for i, e := range s.entries {
		result[i] = e.Clone()
	}
	return result, nil
}

// Last returns the highest stored seq.
func (s *JournalStore) Last(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.entries)), nil
}

var _ storage.JournalStore = (*JournalStore)(nil)
