package postgres

import (
	"context"
	"fmt"
	"math/big"

	"stagefarm/internal/domain"
	"stagefarm/internal/ledger"
)

// Ledger implements ledger.Ledger on the balances table. Apply runs in one
// transaction; a failed op rolls back every earlier op of the batch.
type Ledger struct {
	pool     *Pool
	mintable map[domain.TokenID]struct{}
}

// NewLedger creates a Postgres-backed ledger. Only tokens listed in mintable may be minted.
func NewLedger(pool *Pool, mintable ...domain.TokenID) *Ledger {
	l := &Ledger{
		pool:     pool,
		mintable: make(map[domain.TokenID]struct{}, len(mintable)),
	}
	for _, t := range mintable {
		l.mintable[t] = struct{}{}
	}
	return l
}

// Compile-time interface checks.
var (
	_ ledger.Ledger    = (*Ledger)(nil)
	_ ledger.Journaled = (*Ledger)(nil)
)

const creditQuery = `
	INSERT INTO balances (token, account, amount)
	VALUES ($1, $2, $3::numeric)
	ON CONFLICT (token, account)
	DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()
`

const debitQuery = `
	UPDATE balances
	SET amount = amount - $3::numeric, updated_at = NOW()
	WHERE token = $1 AND account = $2 AND amount >= $3::numeric
`

// BalanceOf returns the balance of account in token. Unknown accounts hold zero.
func (l *Ledger) BalanceOf(ctx context.Context, token domain.TokenID, account domain.Account) (*big.Int, error) {
	query := `SELECT amount::text FROM balances WHERE token = $1 AND account = $2`

	var amount string
	err := l.pool.QueryRow(ctx, query, string(token), string(account)).Scan(&amount)
	if err != nil {
		if isNotFoundError(err) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}

	bal, err := parseNumeric(&amount)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return bal, nil
}

// Credit adds amount to an account outside of any batch. Used to seed balances.
func (l *Ledger) Credit(ctx context.Context, token domain.TokenID, account domain.Account, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: credit amount must be non-negative", ledger.ErrInvalidOp)
	}
	if _, err := l.pool.Exec(ctx, creditQuery, string(token), string(account), amount.String()); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

// Apply executes ops in one transaction, all or nothing.
func (l *Ledger) Apply(ctx context.Context, ops []ledger.Op) error {
	if len(ops) == 0 {
		return nil
	}
	return l.apply(ctx, ops, nil)
}

// ApplyJournaled executes ops and appends entry to journal_entries in one
// transaction. The journal must live in the same database as the balances.
func (l *Ledger) ApplyJournaled(ctx context.Context, ops []ledger.Op, entry *domain.JournalEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil journal entry", ledger.ErrInvalidOp)
	}
	return l.apply(ctx, ops, entry)
}

func (l *Ledger) apply(ctx context.Context, ops []ledger.Op, entry *domain.JournalEntry) error {
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
		if op.Kind == ledger.OpMint {
			if _, ok := l.mintable[op.Token]; !ok {
				return fmt.Errorf("op %d: %w: %s", i, ledger.ErrMintNotAllowed, op.Token)
			}
		}
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, op := range ops {
		if op.Amount.Sign() == 0 {
			continue
		}
		amount := op.Amount.String()

		if op.Kind == ledger.OpTransfer {
			tag, err := tx.Exec(ctx, debitQuery, string(op.Token), string(op.From), amount)
			if err != nil {
				if isCheckViolation(err) {
					return fmt.Errorf("op %d: %w", i, ledger.ErrInsufficientBalance)
				}
				return fmt.Errorf("op %d: debit %s: %w", i, op.From, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("op %d: %w: %s lacks %s %s",
					i, ledger.ErrInsufficientBalance, op.From, amount, op.Token)
			}
		}

		if _, err := tx.Exec(ctx, creditQuery, string(op.Token), string(op.To), amount); err != nil {
			return fmt.Errorf("op %d: credit %s: %w", i, op.To, err)
		}
	}

	if entry != nil {
		if err := appendEntries(ctx, tx, []*domain.JournalEntry{entry}); err != nil {
			return fmt.Errorf("%w: %w", ledger.ErrJournal, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
