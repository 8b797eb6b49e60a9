package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"stagefarm/internal/domain"
	"stagefarm/internal/ledger"
)

type balanceKey struct {
	token   domain.TokenID
	account domain.Account
}

// Ledger is an in-memory implementation of ledger.Ledger.
type Ledger struct {
	mu       sync.RWMutex
	balances map[balanceKey]*big.Int
	mintable map[domain.TokenID]struct{}
}

// NewLedger creates an empty ledger. Only tokens listed in mintable may be minted.
func NewLedger(mintable ...domain.TokenID) *Ledger {
	l := &Ledger{
		balances: make(map[balanceKey]*big.Int),
		mintable: make(map[domain.TokenID]struct{}, len(mintable)),
	}
	for _, t := range mintable {
		l.mintable[t] = struct{}{}
	}
	return l
}

// Compile-time interface check.
var _ ledger.Ledger = (*Ledger)(nil)

// Credit adds amount to an account outside of any batch. Used to seed balances.
func (l *Ledger) Credit(token domain.TokenID, account domain.Account, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := balanceKey{token, account}
	cur, ok := l.balances[k]
	if !ok {
		cur = new(big.Int)
		l.balances[k] = cur
	}
	cur.Add(cur, amount)
}

// BalanceOf returns the balance of account in token.
func (l *Ledger) BalanceOf(_ context.Context, token domain.TokenID, account domain.Account) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if bal, ok := l.balances[balanceKey{token, account}]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

// Apply executes ops atomically. Fails entire batch on any invalid op or shortfall.
func (l *Ledger) Apply(_ context.Context, ops []ledger.Op) error {
	if len(ops) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// First pass: run every op against scratch balances
	scratch := make(map[balanceKey]*big.Int)
	balance := func(k balanceKey) *big.Int {
		if b, ok := scratch[k]; ok {
			return b
		}
		b := new(big.Int)
		if cur, ok := l.balances[k]; ok {
			b.Set(cur)
		}
		scratch[k] = b
		return b
	}

	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}

		switch op.Kind {
		case ledger.OpMint:
			if _, ok := l.mintable[op.Token]; !ok {
				return fmt.Errorf("op %d: %w: %s", i, ledger.ErrMintNotAllowed, op.Token)
			}
		case ledger.OpTransfer:
			from := balance(balanceKey{op.Token, op.From})
			if from.Cmp(op.Amount) < 0 {
				return fmt.Errorf("op %d: %w: %s holds %s %s, needs %s",
					i, ledger.ErrInsufficientBalance, op.From, from, op.Token, op.Amount)
			}
			from.Sub(from, op.Amount)
		}

		to := balance(balanceKey{op.Token, op.To})
		to.Add(to, op.Amount)
	}

	// Second pass: publish
	for k, b := range scratch {
		l.balances[k] = b
	}

	return nil
}
