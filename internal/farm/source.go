package farm

import (
	"context"
	"fmt"
	"math/big"

	"stagefarm/internal/domain"
	"stagefarm/internal/ledger"
)

// RewardSource backs accumulator growth with real token movements into custody.
// Fund stages the movements on the operation's batch; nothing is applied until commit.
type RewardSource interface {
	Fund(ctx context.Context, b *ledger.Batch, reward domain.Reward) error
	Mode() string
}

// Reward source modes.
const (
	SourceTreasury  = "treasury"
	SourceMint      = "mint"
	SourcePrefunded = "prefunded"
)

// TreasurySource moves accrued rewards from a pre-funded treasury account to custody.
type TreasurySource struct {
	Treasury       domain.Account
	Custody        domain.Account
	PrimaryToken   domain.TokenID
	SecondaryToken domain.TokenID
}

// Fund stages treasury to custody transfers, failing early when the treasury is short.
func (s *TreasurySource) Fund(ctx context.Context, b *ledger.Batch, reward domain.Reward) error {
	// Both reward tokens may be the same token; check the combined need.
	tokens := []domain.TokenID{s.PrimaryToken}
	need := map[domain.TokenID]*big.Int{s.PrimaryToken: new(big.Int).Set(reward.Primary)}
	if cur, ok := need[s.SecondaryToken]; ok {
		cur.Add(cur, reward.Secondary)
	} else {
		tokens = append(tokens, s.SecondaryToken)
		need[s.SecondaryToken] = new(big.Int).Set(reward.Secondary)
	}

	for _, token := range tokens {
		amount := need[token]
		if amount.Sign() == 0 {
			continue
		}
		bal, err := b.BalanceOf(ctx, token, s.Treasury)
		if err != nil {
			return fmt.Errorf("%w: read treasury balance: %w", ErrTransferFailed, err)
		}
		if bal.Cmp(amount) < 0 {
			return fmt.Errorf("%w: treasury holds %s %s, accrual needs %s",
				ErrInsufficientBalance, bal, token, amount)
		}
	}

	b.Transfer(s.PrimaryToken, s.Treasury, s.Custody, reward.Primary)
	b.Transfer(s.SecondaryToken, s.Treasury, s.Custody, reward.Secondary)
	return nil
}

// Mode returns SourceTreasury.
func (s *TreasurySource) Mode() string { return SourceTreasury }

// MintSource mints accrued rewards directly into custody.
type MintSource struct {
	Custody        domain.Account
	PrimaryToken   domain.TokenID
	SecondaryToken domain.TokenID
}

// Fund stages mints into custody.
func (s *MintSource) Fund(_ context.Context, b *ledger.Batch, reward domain.Reward) error {
	b.Mint(s.PrimaryToken, s.Custody, reward.Primary)
	b.Mint(s.SecondaryToken, s.Custody, reward.Secondary)
	return nil
}

// Mode returns SourceMint.
func (s *MintSource) Mode() string { return SourceMint }

// PrefundedSource assumes custody was funded up front and moves nothing.
type PrefundedSource struct{}

// Fund does nothing.
func (PrefundedSource) Fund(context.Context, *ledger.Batch, domain.Reward) error { return nil }

// Mode returns SourcePrefunded.
func (PrefundedSource) Mode() string { return SourcePrefunded }
