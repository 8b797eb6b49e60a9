package ledger

import (
	"context"
	"math/big"

	"stagefarm/internal/domain"
)

type balanceKey struct {
	token   domain.TokenID
	account domain.Account
}

// Batch stages operations against a ledger and applies them in one call.
// BalanceOf reflects staged operations so later steps of the same engine
// operation observe earlier ones.
type Batch struct {
	ledger Ledger
	ops    []Op
	deltas map[balanceKey]*big.Int
}

// NewBatch creates an empty batch over l.
func NewBatch(l Ledger) *Batch {
	return &Batch{
		ledger: l,
		deltas: make(map[balanceKey]*big.Int),
	}
}

// Transfer stages a transfer. Zero amounts are dropped.
func (b *Batch) Transfer(token domain.TokenID, from, to domain.Account, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	amt := new(big.Int).Set(amount)
	b.ops = append(b.ops, Op{Kind: OpTransfer, Token: token, From: from, To: to, Amount: amt})
	b.add(token, from, new(big.Int).Neg(amt))
	b.add(token, to, amt)
}

// Mint stages a mint. Zero amounts are dropped.
func (b *Batch) Mint(token domain.TokenID, to domain.Account, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	amt := new(big.Int).Set(amount)
	b.ops = append(b.ops, Op{Kind: OpMint, Token: token, To: to, Amount: amt})
	b.add(token, to, amt)
}

func (b *Batch) add(token domain.TokenID, account domain.Account, delta *big.Int) {
	k := balanceKey{token, account}
	cur, ok := b.deltas[k]
	if !ok {
		cur = new(big.Int)
		b.deltas[k] = cur
	}
	cur.Add(cur, delta)
}

// BalanceOf returns the ledger balance plus staged changes.
func (b *Batch) BalanceOf(ctx context.Context, token domain.TokenID, account domain.Account) (*big.Int, error) {
	bal, err := b.ledger.BalanceOf(ctx, token, account)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Set(bal)
	if d, ok := b.deltas[balanceKey{token, account}]; ok {
		out.Add(out, d)
	}
	return out, nil
}

// Ops returns the staged operations.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Commit applies all staged operations. An empty batch is a no-op.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ledger.Apply(ctx, b.ops)
}
