package farm

import (
	"fmt"
	"math/big"

	"stagefarm/internal/domain"
)

// settle pays out the position's pending reward against the staged pool.
func (t *txn) settle(p *domain.Pool, pos *domain.Position) error {
	if pos.Amount.Sign() == 0 {
		return nil
	}

	pendingP := owed(pos.Amount, p.AccPrimaryPerShare, pos.PrimaryDebt)
	pendingS := owed(pos.Amount, p.AccSecondaryPerShare, pos.SecondaryDebt)
	if pendingP.Sign() == 0 && pendingS.Sign() == 0 {
		return nil
	}

	payout, err := t.payout(pos.User, pendingP)
	if err != nil {
		return err
	}

	secondary, err := t.capped(t.e.cfg.SecondaryToken, pendingS)
	if err != nil {
		return err
	}
	t.batch.Transfer(t.e.cfg.SecondaryToken, t.e.cfg.Custody, pos.User, secondary)

	payout.PoolID = p.ID
	payout.Index = t.now
	payout.Secondary = secondary
	t.payouts = append(t.payouts, payout)
	return nil
}

// payout splits a gross primary amount into the developer fee and the user's net
// amount and stages both transfers out of custody.
func (t *txn) payout(user domain.Account, gross *big.Int) (*domain.Payout, error) {
	gross, err := t.capped(t.e.cfg.PrimaryToken, gross)
	if err != nil {
		return nil, err
	}

	fee := new(big.Int).Mul(gross, new(big.Int).SetUint64(uint64(t.e.devFeePpm)))
	fee.Quo(fee, feeDenominator)
	net := new(big.Int).Sub(gross, fee)

	t.batch.Transfer(t.e.cfg.PrimaryToken, t.e.cfg.Custody, t.e.devAddress, fee)
	t.batch.Transfer(t.e.cfg.PrimaryToken, t.e.cfg.Custody, user, net)

	return &domain.Payout{
		User:         user,
		GrossPrimary: gross,
		Fee:          fee,
		NetPrimary:   net,
	}, nil
}

// capped limits amount to the custody balance when payouts are capped.
func (t *txn) capped(token domain.TokenID, amount *big.Int) (*big.Int, error) {
	if !t.e.cfg.CapPayoutsAtBalance || amount.Sign() == 0 {
		return amount, nil
	}
	bal, err := t.batch.BalanceOf(t.ctx, token, t.e.cfg.Custody)
	if err != nil {
		return nil, fmt.Errorf("%w: read custody %s balance: %w", ErrTransferFailed, token, err)
	}
	if bal.Cmp(amount) < 0 {
		if bal.Sign() < 0 {
			return new(big.Int), nil
		}
		return bal, nil
	}
	return amount, nil
}
