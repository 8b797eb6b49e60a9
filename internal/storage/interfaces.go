package storage

import (
	"context"

	"stagefarm/internal/domain"
)

// JournalStore provides access to the append-only operation journal.
type JournalStore interface {
	// Append adds entries. Returns ErrDuplicateKey if a seq exists and
	// ErrInvalidInput if seqs do not continue the journal without gaps.
	Append(ctx context.Context, entries ...*domain.JournalEntry) error

	// GetRange retrieves entries with from <= seq <= to, ordered by seq ASC.
	GetRange(ctx context.Context, from, to uint64) ([]*domain.JournalEntry, error)

	// GetAll retrieves every entry ordered by seq ASC.
	GetAll(ctx context.Context) ([]*domain.JournalEntry, error)

	// Last returns the highest stored seq, or 0 for an empty journal.
	Last(ctx context.Context) (uint64, error)
}

// SnapshotStore provides access to encoded engine state snapshots.
type SnapshotStore interface {
	// Save stores a snapshot. Returns ErrDuplicateKey if seq exists.
	Save(ctx context.Context, s *domain.Snapshot) error

	// Latest returns the snapshot with the highest seq. Returns ErrNotFound if empty.
	Latest(ctx context.Context) (*domain.Snapshot, error)

	// GetBySeq retrieves the snapshot taken after entry seq. Returns ErrNotFound if not exists.
	GetBySeq(ctx context.Context, seq uint64) (*domain.Snapshot, error)

	// List returns all snapshots ordered by seq ASC.
	List(ctx context.Context) ([]*domain.Snapshot, error)
}

// AccrualStore provides access to the accumulator advance history.
type AccrualStore interface {
	// InsertBulk adds points. Fails entire batch on duplicate (pool_id, seq).
	InsertBulk(ctx context.Context, points []*domain.AccrualPoint) error

	// GetByPool retrieves all points of a pool, ordered by index ASC.
	GetByPool(ctx context.Context, poolID int) ([]*domain.AccrualPoint, error)

	// GetByIndexRange retrieves points of a pool with from <= index <= to (inclusive).
	GetByIndexRange(ctx context.Context, poolID int, from, to uint64) ([]*domain.AccrualPoint, error)
}

// PayoutStore provides access to settled reward payouts.
type PayoutStore interface {
	// InsertBulk adds payouts. Fails entire batch on duplicate (seq, pool_id, user).
	InsertBulk(ctx context.Context, payouts []*domain.Payout) error

	// GetByUser retrieves all payouts to a user, ordered by seq ASC.
	GetByUser(ctx context.Context, user domain.Account) ([]*domain.Payout, error)
}
