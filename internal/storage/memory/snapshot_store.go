package memory

import (
	"context"
	"sort"
	"sync"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.Snapshot // keyed by seq
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[uint64]*domain.Snapshot),
	}
}

// Save stores a snapshot. Returns ErrDuplicateKey if seq exists.
func (s *SnapshotStore) Save(_ context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.Digest == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[snap.Seq]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[snap.Seq] = snap.Clone()
	return nil
}

// Latest returns the snapshot with the highest seq.
func (s *SnapshotStore) Latest(_ context.Context) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Snapshot
	for _, snap := range s.data {
		if latest == nil || snap.Seq > latest.Seq {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest.Clone(), nil
}

// GetBySeq retrieves a snapshot by seq. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetBySeq(_ context.Context, seq uint64) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.data[seq]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return snap.Clone(), nil
}

// List returns all snapshots ordered by seq ASC.
func (s *SnapshotStore) List(_ context.Context) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Snapshot, 0, len(s.data))
	for _, snap := range s.data {
		result = append(result, snap.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
