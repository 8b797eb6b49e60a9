package ledger_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefarm/internal/domain"
	"stagefarm/internal/ledger"
	"stagefarm/internal/storage/memory"
)

const (
	tokenLP  domain.TokenID = "LP"
	tokenESM domain.TokenID = "ESM"
)

func TestBatch_BalanceOfSeesStagedOps(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger(tokenESM)
	l.Credit(tokenLP, "alice", big.NewInt(10))

	b := ledger.NewBatch(l)
	b.Transfer(tokenLP, "alice", "farm", big.NewInt(4))
	b.Mint(tokenESM, "farm", big.NewInt(9))
	b.Transfer(tokenESM, "farm", "alice", big.NewInt(5))

	got, err := b.BalanceOf(ctx, tokenLP, "alice")
	require.NoError(t, err)
	assert.Equal(t, "6", got.String())

	got, err = b.BalanceOf(ctx, tokenESM, "farm")
	require.NoError(t, err)
	assert.Equal(t, "4", got.String())

	// Nothing reaches the ledger before Commit.
	bal, err := l.BalanceOf(ctx, tokenLP, "farm")
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())

	require.NoError(t, b.Commit(ctx))

	bal, err = l.BalanceOf(ctx, tokenESM, "alice")
	require.NoError(t, err)
	assert.Equal(t, "5", bal.String())
}

func TestBatch_DropsZeroAmounts(t *testing.T) {
	b := ledger.NewBatch(memory.NewLedger())
	b.Transfer(tokenLP, "alice", "farm", big.NewInt(0))
	b.Mint(tokenESM, "farm", nil)

	assert.Zero(t, b.Len())
	assert.Empty(t, b.Ops())
	assert.NoError(t, b.Commit(context.Background()))
}

func TestBatch_CopiesAmounts(t *testing.T) {
	amt := big.NewInt(3)
	b := ledger.NewBatch(memory.NewLedger())
	b.Transfer(tokenLP, "alice", "farm", amt)
	amt.SetInt64(100)

	require.Len(t, b.Ops(), 1)
	assert.Equal(t, "3", b.Ops()[0].Amount.String())
}

func TestBatch_CommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	l.Credit(tokenLP, "alice", big.NewInt(5))

	b := ledger.NewBatch(l)
	b.Transfer(tokenLP, "alice", "farm", big.NewInt(5))
	b.Mint(tokenESM, "farm", big.NewInt(1))

	err := b.Commit(ctx)
	require.ErrorIs(t, err, ledger.ErrMintNotAllowed)

	bal, err := l.BalanceOf(ctx, tokenLP, "alice")
	require.NoError(t, err)
	assert.Equal(t, "5", bal.String())
}

func TestOp_Validate(t *testing.T) {
	tests := []struct {
		name    string
		op      ledger.Op
		wantErr bool
	}{
		{"transfer", ledger.Op{Kind: ledger.OpTransfer, Token: tokenLP, From: "a", To: "b", Amount: big.NewInt(1)}, false},
		{"mint", ledger.Op{Kind: ledger.OpMint, Token: tokenLP, To: "b", Amount: big.NewInt(1)}, false},
		{"no sender", ledger.Op{Kind: ledger.OpTransfer, Token: tokenLP, To: "b", Amount: big.NewInt(1)}, true},
		{"no token", ledger.Op{Kind: ledger.OpMint, To: "b", Amount: big.NewInt(1)}, true},
		{"negative", ledger.Op{Kind: ledger.OpMint, Token: tokenLP, To: "b", Amount: big.NewInt(-1)}, true},
		{"unknown kind", ledger.Op{Kind: "burn", Token: tokenLP, To: "b", Amount: big.NewInt(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ledger.ErrInvalidOp)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
