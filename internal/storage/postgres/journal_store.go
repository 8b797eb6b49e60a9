package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage"
)

// JournalStore implements storage.JournalStore using PostgreSQL.
type JournalStore struct {
	pool *Pool
}

// NewJournalStore creates a new JournalStore.
func NewJournalStore(pool *Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JournalStore = (*JournalStore)(nil)

const journalColumns = `
	seq, entry_id, kind, clock_index::text, caller, pool_id, user_account, lp_token,
	amount::text, weight::text, recalc_all, stage_start::text, stage_end::text,
	primary_rate::text, secondary_rate::text, fee_ppm, address, recorded_at
`

// Append adds entries atomically. Seqs must continue the journal without gaps.
func (s *JournalStore) Append(ctx context.Context, entries ...*domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := appendEntries(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

const insertJournalQuery = `
	INSERT INTO journal_entries (
		seq, entry_id, kind, clock_index, caller, pool_id, user_account, lp_token,
		amount, weight, recalc_all, stage_start, stage_end, primary_rate, secondary_rate,
		fee_ppm, address, recorded_at
	) VALUES (
		$1, $2, $3, $4::numeric, $5, $6, $7, $8,
		$9::numeric, $10::numeric, $11, $12::numeric, $13::numeric, $14::numeric, $15::numeric,
		$16, $17, $18
	)
`

// appendEntries inserts entries inside tx after checking seq continuity.
func appendEntries(ctx context.Context, tx pgx.Tx, entries []*domain.JournalEntry) error {
	// Serialize appenders so the continuity check holds until commit.
	if _, err := tx.Exec(ctx, `LOCK TABLE journal_entries IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}

	var last int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM journal_entries`).Scan(&last); err != nil {
		return fmt.Errorf("read last seq: %w", err)
	}

	next := uint64(last) + 1
	for _, e := range entries {
		if e == nil || !e.Kind.IsValid() || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if e.Seq < next {
			return storage.ErrDuplicateKey
		}
		if e.Seq > next {
			return fmt.Errorf("%w: expected seq %d, got %d", storage.ErrInvalidInput, next, e.Seq)
		}
		next++

		var stageStart, stageEnd any
		var primaryRate, secondaryRate any
		if e.Stage != nil {
			stageStart = uintArg(e.Stage.StartIndex)
			stageEnd = uintArg(e.Stage.EndIndex)
			primaryRate = numericArg(e.Stage.PrimaryRate)
			secondaryRate = numericArg(e.Stage.SecondaryRate)
		}

		_, err := tx.Exec(ctx, insertJournalQuery,
			int64(e.Seq),
			e.ID,
			string(e.Kind),
			uintArg(e.Index),
			string(e.Caller),
			e.PoolID,
			string(e.User),
			string(e.LPToken),
			numericArg(e.Amount),
			uintArg(e.Weight),
			e.RecalcAll,
			stageStart,
			stageEnd,
			primaryRate,
			secondaryRate,
			int64(e.FeePpm),
			string(e.Address),
			e.RecordedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert journal entry %d: %w", e.Seq, err)
		}
	}

	return nil
}

// GetRange retrieves entries with from <= seq <= to, ordered by seq ASC.
func (s *JournalStore) GetRange(ctx context.Context, from, to uint64) ([]*domain.JournalEntry, error) {
	query := `SELECT ` + journalColumns + `
		FROM journal_entries
		WHERE seq >= $1 AND seq <= $2
		ORDER BY seq ASC
	`

	// seq is BIGINT; clamp the open upper bound.
	const maxSeq = uint64(1<<63 - 1)
	if to > maxSeq {
		to = maxSeq
	}
	if from > to {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, query, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("get journal range: %w", err)
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

// GetAll retrieves every entry ordered by seq ASC.
func (s *JournalStore) GetAll(ctx context.Context) ([]*domain.JournalEntry, error) {
	query := `SELECT ` + journalColumns + `
		FROM journal_entries
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get journal: %w", err)
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

// Last returns the highest stored seq.
func (s *JournalStore) Last(ctx context.Context) (uint64, error) {
	var last int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM journal_entries`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return uint64(last), nil
}

// scanJournalEntries scans multiple rows into a slice of JournalEntry.
func scanJournalEntries(rows pgx.Rows) ([]*domain.JournalEntry, error) {
	var entries []*domain.JournalEntry

	for rows.Next() {
		var (
			e                          domain.JournalEntry
			seq, feePpm                int64
			kind, index, weight        string
			caller, user, lp, addr     string
			amount                     *string
			stageStart, stageEnd       *string
			primaryRate, secondaryRate *string
		)

		err := rows.Scan(
			&seq, &e.ID, &kind, &index, &caller, &e.PoolID, &user, &lp,
			&amount, &weight, &e.RecalcAll, &stageStart, &stageEnd,
			&primaryRate, &secondaryRate, &feePpm, &addr, &e.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		e.Seq = uint64(seq)
		e.Kind = domain.EntryKind(kind)
		e.Caller = domain.Account(caller)
		e.User = domain.Account(user)
		e.LPToken = domain.TokenID(lp)
		e.Address = domain.Account(addr)
		e.FeePpm = uint32(feePpm)

		if e.Index, err = parseUint(index); err != nil {
			return nil, fmt.Errorf("journal entry %d index: %w", seq, err)
		}
		if e.Weight, err = parseUint(weight); err != nil {
			return nil, fmt.Errorf("journal entry %d weight: %w", seq, err)
		}
		if e.Amount, err = parseNumeric(amount); err != nil {
			return nil, fmt.Errorf("journal entry %d amount: %w", seq, err)
		}

		if stageStart != nil && stageEnd != nil {
			st := domain.Stage{}
			if st.StartIndex, err = parseUint(*stageStart); err != nil {
				return nil, fmt.Errorf("journal entry %d stage start: %w", seq, err)
			}
			if st.EndIndex, err = parseUint(*stageEnd); err != nil {
				return nil, fmt.Errorf("journal entry %d stage end: %w", seq, err)
			}
			if st.PrimaryRate, err = parseNumeric(primaryRate); err != nil {
				return nil, fmt.Errorf("journal entry %d primary rate: %w", seq, err)
			}
			if st.SecondaryRate, err = parseNumeric(secondaryRate); err != nil {
				return nil, fmt.Errorf("journal entry %d secondary rate: %w", seq, err)
			}
			e.Stage = &st
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}

	return entries, nil
}
