package memory

import (
	"context"
	"sort"
	"sync"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

type payoutKey struct {
	seq    uint64
	poolID int
	user   domain.Account
}

// PayoutStore is an in-memory implementation of storage.PayoutStore.
type PayoutStore struct {
	mu   sync.RWMutex
	data map[payoutKey]*domain.Payout
}

// NewPayoutStore creates a new in-memory payout store.
func NewPayoutStore() *PayoutStore {
	return &PayoutStore{
		data: make(map[payoutKey]*domain.Payout),
	}
}

// InsertBulk adds payouts atomically. Fails entire batch on duplicate (seq, pool_id, user).
func (s *PayoutStore) InsertBulk(_ context.Context, payouts []*domain.Payout) error {
	if len(payouts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[payoutKey]struct{}, len(payouts))
	for _, p := range payouts {
		if p == nil || p.User.IsZero() {
			return storage.ErrInvalidInput
		}
		k := payoutKey{p.Seq, p.PoolID, p.User}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, p := range payouts {
		s.data[payoutKey{p.Seq, p.PoolID, p.User}] = p.Clone()
	}
	return nil
}

// GetByUser retrieves all payouts to a user, ordered by seq ASC.
func (s *PayoutStore) GetByUser(_ context.Context, user domain.Account) ([]*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Payout
	for k, p := range s.data {
		if k.user == user {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Seq != result[j].Seq {
			return result[i].Seq < result[j].Seq
		}
		return result[i].PoolID < result[j].PoolID
	})
	return result, nil
}

var _ storage.PayoutStore = (*PayoutStore)(nil)
