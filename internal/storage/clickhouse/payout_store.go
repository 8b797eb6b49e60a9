package clickhouse

import (
	"context"
	"fmt"
	"math/big"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

// PayoutStore implements storage.PayoutStore using ClickHouse.
type PayoutStore struct {
	conn *Conn
}

// NewPayoutStore creates a new PayoutStore.
func NewPayoutStore(conn *Conn) *PayoutStore {
	return &PayoutStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PayoutStore = (*PayoutStore)(nil)

// InsertBulk adds payouts. Fails entire batch on duplicate (seq, pool_id, user).
func (s *PayoutStore) InsertBulk(ctx context.Context, payouts []*domain.Payout) error {
	if len(payouts) == 0 {
		return nil
	}

	type key struct {
		seq    uint64
		poolID int
		user   domain.Account
	}
	seen := make(map[key]struct{})
	for _, p := range payouts {
		if p == nil || p.User.IsZero() || p.PoolID < 0 {
			return storage.ErrInvalidInput
		}
		k := key{p.Seq, p.PoolID, p.User}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, p := range payouts {
		exists, err := s.exists(ctx, p)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO payouts (
			seq, pool_id, user_account, clock_index, gross_primary, fee, net_primary, secondary
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range payouts {
		err = batch.Append(
			p.Seq, uint32(p.PoolID), string(p.User), p.Index,
			domain.CloneInt(p.GrossPrimary), domain.CloneInt(p.Fee),
			domain.CloneInt(p.NetPrimary), domain.CloneInt(p.Secondary),
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

// GetByUser retrieves all payouts to a user, ordered by seq ASC.
func (s *PayoutStore) GetByUser(ctx context.Context, user domain.Account) ([]*domain.Payout, error) {
	query := `
		SELECT seq, pool_id, user_account, clock_index, gross_primary, fee, net_primary, secondary
		FROM payouts
		WHERE user_account = ?
		ORDER BY seq ASC, pool_id ASC
	`

	rows, err := s.conn.Query(ctx, query, string(user))
	if err != nil {
		return nil, fmt.Errorf("query by user: %w", err)
	}
	defer rows.Close()

	var payouts []*domain.Payout
	for rows.Next() {
		p := domain.Payout{
			GrossPrimary: new(big.Int),
			Fee:          new(big.Int),
			NetPrimary:   new(big.Int),
			Secondary:    new(big.Int),
		}
		var poolID uint32
		var account string

		err := rows.Scan(
			&p.Seq, &poolID, &account, &p.Index,
			p.GrossPrimary, p.Fee, p.NetPrimary, p.Secondary,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payout row: %w", err)
		}

		p.PoolID = int(poolID)
		p.User = domain.Account(account)
		payouts = append(payouts, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout rows: %w", err)
	}

	return payouts, nil
}

func (s *PayoutStore) exists(ctx context.Context, p *domain.Payout) (bool, error) {
	query := `
		SELECT count(*) FROM payouts
		WHERE seq = ? AND pool_id = ? AND user_account = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, p.Seq, uint32(p.PoolID), string(p.User)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
