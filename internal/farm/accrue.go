package farm

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"stagefarm/internal/domain"
)

// accrual is the result of integrating the schedule over (pool.LastAccrualIndex, now].
type accrual struct {
	reward domain.Reward // pool share of the emission
	accP   *big.Int      // accumulators after the window
	accS   *big.Int
}

// accrue computes the pool's accumulators as of now without mutating the pool.
// The caller guarantees now > LastAccrualIndex and shares > 0.
func (e *Engine) accrue(p *domain.Pool, now uint64, shares *big.Int) accrual {
	out := accrual{
		reward: domain.ZeroReward(),
		accP:   new(big.Int).Set(p.AccPrimaryPerShare),
		accS:   new(big.Int).Set(p.AccSecondaryPerShare),
	}
	if e.totalWeight == 0 || p.AllocationWeight == 0 {
		return out
	}

	// The unit at LastAccrualIndex was already covered by the previous window.
	primary, secondary := e.schedule.TotalReward(p.LastAccrualIndex+1, now)

	weight := new(big.Int).SetUint64(p.AllocationWeight)
	total := new(big.Int).SetUint64(e.totalWeight)

	out.reward.Primary.Mul(primary, weight).Quo(out.reward.Primary, total)
	out.reward.Secondary.Mul(secondary, weight).Quo(out.reward.Secondary, total)

	out.accP.Add(out.accP, perShare(out.reward.Primary, shares))
	out.accS.Add(out.accS, perShare(out.reward.Secondary, shares))
	return out
}

// perShare returns amount * Scale / shares, truncated.
func perShare(amount, shares *big.Int) *big.Int {
	v := new(big.Int).Mul(amount, scale)
	return v.Quo(v, shares)
}

// shares returns the pool's deposited LP balance as seen by the transaction.
func (t *txn) shares(p *domain.Pool) (*big.Int, error) {
	bal, err := t.batch.BalanceOf(t.ctx, p.LPToken, t.e.cfg.Custody)
	if err != nil {
		return nil, fmt.Errorf("%w: read pool %d shares: %w", ErrTransferFailed, p.ID, err)
	}
	return bal, nil
}

// advance brings a staged pool's accumulators up to the transaction's index
// and stages the reward backing movements.
func (t *txn) advance(p *domain.Pool) error {
	if t.now <= p.LastAccrualIndex {
		return nil
	}

	shares, err := t.shares(p)
	if err != nil {
		return err
	}

	from := p.LastAccrualIndex
	if shares.Sign() == 0 {
		// Nobody staked: the window is skipped, not banked.
		p.LastAccrualIndex = t.now
		return nil
	}

	a := t.e.accrue(p, t.now, shares)
	p.AccPrimaryPerShare = a.accP
	p.AccSecondaryPerShare = a.accS
	p.LastAccrualIndex = t.now

	if a.reward.IsZero() {
		return nil
	}

	if err := t.e.source.Fund(t.ctx, t.batch, a.reward); err != nil {
		return fmt.Errorf("fund pool %d: %w", p.ID, err)
	}

	t.accruals = append(t.accruals, &domain.AccrualPoint{
		PoolID:               p.ID,
		FromIndex:            from,
		Index:                t.now,
		PrimaryReward:        a.reward.Primary,
		SecondaryReward:      a.reward.Secondary,
		AccPrimaryPerShare:   new(big.Int).Set(a.accP),
		AccSecondaryPerShare: new(big.Int).Set(a.accS),
		TotalShares:          shares,
	})

	t.e.logger.Debug("pool advanced",
		zap.Int("pool_id", p.ID),
		zap.Uint64("from", from),
		zap.Uint64("index", t.now),
		zap.String("primary", a.reward.Primary.String()),
		zap.String("secondary", a.reward.Secondary.String()))
	return nil
}

// advanceAll advances every registered pool in id order.
func (t *txn) advanceAll() error {
	for id := range t.e.pools {
		p, err := t.pool(id)
		if err != nil {
			return err
		}
		if err := t.advance(p); err != nil {
			return err
		}
	}
	return nil
}
