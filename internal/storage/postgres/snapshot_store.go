package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save stores a snapshot. Returns ErrDuplicateKey if seq exists.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.Digest == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO snapshots (seq, clock_index, digest, state, created_at)
		VALUES ($1, $2::numeric, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		int64(snap.Seq),
		uintArg(snap.Index),
		snap.Digest,
		snap.State,
		snap.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the snapshot with the highest seq. Returns ErrNotFound if empty.
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.Snapshot, error) {
	query := `
		SELECT seq, clock_index::text, digest, state, created_at
		FROM snapshots
		ORDER BY seq DESC
		LIMIT 1
	`

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snap, nil
}

// GetBySeq retrieves the snapshot taken after entry seq. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetBySeq(ctx context.Context, seq uint64) (*domain.Snapshot, error) {
	query := `
		SELECT seq, clock_index::text, digest, state, created_at
		FROM snapshots
		WHERE seq = $1
	`

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, int64(seq)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by seq: %w", err)
	}
	return snap, nil
}

// List returns all snapshots ordered by seq ASC.
func (s *SnapshotStore) List(ctx context.Context) ([]*domain.Snapshot, error) {
	query := `
		SELECT seq, clock_index::text, digest, state, created_at
		FROM snapshots
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snaps, nil
}

// scanSnapshot scans a single row into a Snapshot.
func scanSnapshot(row pgx.Row) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var seq int64
	var index string

	if err := row.Scan(&seq, &index, &snap.Digest, &snap.State, &snap.CreatedAt); err != nil {
		return nil, err
	}

	idx, err := parseUint(index)
	if err != nil {
		return nil, err
	}
	snap.Seq = uint64(seq)
	snap.Index = idx
	return &snap, nil
}
