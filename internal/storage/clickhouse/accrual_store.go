package clickhouse

import (
	"context"
	"fmt"
	"math/big"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

// AccrualStore implements storage.AccrualStore using ClickHouse.
// Amounts are stored as UInt256.
type AccrualStore struct {
	conn *Conn
}

// NewAccrualStore creates a new AccrualStore.
func NewAccrualStore(conn *Conn) *AccrualStore {
	return &AccrualStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AccrualStore = (*AccrualStore)(nil)

// InsertBulk adds points. Fails entire batch on duplicate (pool_id, seq).
func (s *AccrualStore) InsertBulk(ctx context.Context, points []*domain.AccrualPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		poolID int
		seq    uint64
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		if p == nil || p.PoolID < 0 {
			return storage.ErrInvalidInput
		}
		k := key{p.PoolID, p.Seq}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// MergeTree does not enforce keys; check existing rows explicitly.
	for _, p := range points {
		exists, err := s.exists(ctx, p.PoolID, p.Seq)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO accrual_points (
			seq, pool_id, from_index, clock_index, primary_reward, secondary_reward,
			acc_primary_per_share, acc_secondary_per_share, total_shares
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.Seq, uint32(p.PoolID), p.FromIndex, p.Index,
			domain.CloneInt(p.PrimaryReward), domain.CloneInt(p.SecondaryReward),
			domain.CloneInt(p.AccPrimaryPerShare), domain.CloneInt(p.AccSecondaryPerShare),
			domain.CloneInt(p.TotalShares),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPool retrieves all points of a pool, ordered by index ASC.
func (s *AccrualStore) GetByPool(ctx context.Context, poolID int) ([]*domain.AccrualPoint, error) {
	query := `
		SELECT seq, pool_id, from_index, clock_index, primary_reward, secondary_reward,
			acc_primary_per_share, acc_secondary_per_share, total_shares
		FROM accrual_points
		WHERE pool_id = ?
		ORDER BY clock_index ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, uint32(poolID))
	if err != nil {
		return nil, fmt.Errorf("query by pool: %w", err)
	}
	defer rows.Close()

	return scanAccrualPoints(rows)
}

// GetByIndexRange retrieves points of a pool within [from, to] (inclusive).
func (s *AccrualStore) GetByIndexRange(ctx context.Context, poolID int, from, to uint64) ([]*domain.AccrualPoint, error) {
	query := `
		SELECT seq, pool_id, from_index, clock_index, primary_reward, secondary_reward,
			acc_primary_per_share, acc_secondary_per_share, total_shares
		FROM accrual_points
		WHERE pool_id = ? AND clock_index >= ? AND clock_index <= ?
		ORDER BY clock_index ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, uint32(poolID), from, to)
	if err != nil {
		return nil, fmt.Errorf("query by index range: %w", err)
	}
	defer rows.Close()

	return scanAccrualPoints(rows)
}

// exists checks if a point with the given key exists.
func (s *AccrualStore) exists(ctx context.Context, poolID int, seq uint64) (bool, error) {
	query := `
		SELECT count(*) FROM accrual_points
		WHERE pool_id = ? AND seq = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, uint32(poolID), seq).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanAccrualPoints scans multiple rows.
func scanAccrualPoints(rows chRows) ([]*domain.AccrualPoint, error) {
	var points []*domain.AccrualPoint

	for rows.Next() {
		p := domain.AccrualPoint{
			PrimaryReward:        new(big.Int),
			SecondaryReward:      new(big.Int),
			AccPrimaryPerShare:   new(big.Int),
			AccSecondaryPerShare: new(big.Int),
			TotalShares:          new(big.Int),
		}
		var poolID uint32

		err := rows.Scan(
			&p.Seq, &poolID, &p.FromIndex, &p.Index,
			p.PrimaryReward, p.SecondaryReward,
			p.AccPrimaryPerShare, p.AccSecondaryPerShare, p.TotalShares,
		)
		if err != nil {
			return nil, fmt.Errorf("scan accrual row: %w", err)
		}

		p.PoolID = int(poolID)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accrual rows: %w", err)
	}

	return points, nil
}
