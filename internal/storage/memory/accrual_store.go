package memory

import (
	"context"
	"sort"
	"sync"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

type accrualKey struct {
	poolID int
	seq    uint64
}

// AccrualStore is an in-memory implementation of storage.AccrualStore.
type AccrualStore struct {
	mu   sync.RWMutex
	data map[accrualKey]*domain.AccrualPoint
}

// NewAccrualStore creates a new in-memory accrual store.
func NewAccrualStore() *AccrualStore {
	return &AccrualStore{
		data: make(map[accrualKey]*domain.AccrualPoint),
	}
}

// InsertBulk adds points atomically. Fails entire batch on duplicate (pool_id, seq).
func (s *AccrualStore) InsertBulk(_ context.Context, points []*domain.AccrualPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[accrualKey]struct{}, len(points))
	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
		k := accrualKey{p.PoolID, p.Seq}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, p := range points {
		s.data[accrualKey{p.PoolID, p.Seq}] = p.Clone()
	}
	return nil
}

// GetByPool retrieves all points of a pool, ordered by index ASC.
func (s *AccrualStore) GetByPool(ctx context.Context, poolID int) ([]*domain.AccrualPoint, error) {
	return s.GetByIndexRange(ctx, poolID, 0, ^uint64(0))
}

// GetByIndexRange retrieves points of a pool within [from, to] (inclusive).
func (s *AccrualStore) GetByIndexRange(_ context.Context, poolID int, from, to uint64) ([]*domain.AccrualPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AccrualPoint
	for k, p := range s.data {
		if k.poolID == poolID && p.Index >= from && p.Index <= to {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Index != result[j].Index {
			return result[i].Index < result[j].Index
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

var _ storage.AccrualStore = (*AccrualStore)(nil)
