package farm

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"stagefarm/internal/domain"
)

// PendingReward returns the user's unclaimed reward as of now. It never mutates state.
func (e *Engine) PendingReward(ctx context.Context, poolID int, user domain.Account) (domain.Reward, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now()
	p, err := e.poolLocked(poolID)
	if err != nil {
		return domain.Reward{}, err
	}

	pos, ok := e.positions[positionKey{poolID, user}]
	if !ok || pos.Amount.Sign() == 0 {
		return domain.ZeroReward(), nil
	}

	accP, accS := p.AccPrimaryPerShare, p.AccSecondaryPerShare
	if now > p.LastAccrualIndex {
		shares, err := e.ledger.BalanceOf(ctx, p.LPToken, e.cfg.Custody)
		if err != nil {
			return domain.Reward{}, fmt.Errorf("%w: read pool %d shares: %w", ErrTransferFailed, poolID, err)
		}
		if shares.Sign() > 0 {
			a := e.accrue(p, now, shares)
			accP, accS = a.accP, a.accS
		}
	}

	return domain.Reward{
		Primary:   owed(pos.Amount, accP, pos.PrimaryDebt),
		Secondary: owed(pos.Amount, accS, pos.SecondaryDebt),
	}, nil
}

// PendingPrimary returns the unclaimed primary reward.
func (e *Engine) PendingPrimary(ctx context.Context, poolID int, user domain.Account) (*big.Int, error) {
	r, err := e.PendingReward(ctx, poolID, user)
	if err != nil {
		return nil, err
	}
	return r.Primary, nil
}

// PendingSecondary returns the unclaimed secondary reward.
func (e *Engine) PendingSecondary(ctx context.Context, poolID int, user domain.Account) (*big.Int, error) {
	r, err := e.PendingReward(ctx, poolID, user)
	if err != nil {
		return nil, err
	}
	return r.Secondary, nil
}

// owed returns amount * acc / Scale - debt, clamped at zero.
func owed(amount, acc, debt *big.Int) *big.Int {
	v := debtFor(amount, acc)
	v.Sub(v, debt)
	if v.Sign() < 0 {
		v.SetInt64(0)
	}
	return v
}

// debtFor returns amount * acc / Scale, truncated.
func debtFor(amount, acc *big.Int) *big.Int {
	v := new(big.Int).Mul(amount, acc)
	return v.Quo(v, scale)
}

func resetDebt(p *domain.Pool, pos *domain.Position) {
	pos.PrimaryDebt = debtFor(pos.Amount, p.AccPrimaryPerShare)
	pos.SecondaryDebt = debtFor(pos.Amount, p.AccSecondaryPerShare)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

func (e *Engine) checkUser(user domain.Account) error {
	if user.IsZero() {
		return fmt.Errorf("%w: empty user", ErrInvalidInput)
	}
	if user == e.cfg.Custody {
		return fmt.Errorf("%w: custody cannot hold positions", ErrInvalidInput)
	}
	return nil
}

// Deposit settles pending reward and moves amount LP shares from user into custody.
// A zero amount only settles.
func (e *Engine) Deposit(ctx context.Context, poolID int, user domain.Account, amount *big.Int) error {
	kind := domain.EntryDeposit
	if amount != nil && amount.Sign() == 0 {
		kind = domain.EntryClaim
	}
	return e.deposit(ctx, poolID, user, amount, kind)
}

// Claim settles pending reward without moving shares.
func (e *Engine) Claim(ctx context.Context, poolID int, user domain.Account) error {
	return e.deposit(ctx, poolID, user, new(big.Int), domain.EntryClaim)
}

func (e *Engine) deposit(ctx context.Context, poolID int, user domain.Account, amount *big.Int, kind domain.EntryKind) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := e.checkUser(user); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if amount.Sign() == 0 {
		// A claim without a position has nothing to settle.
		if _, err := e.poolLocked(poolID); err != nil {
			return err
		}
		if _, ok := e.positions[positionKey{poolID, user}]; !ok {
			return nil
		}
	}

	t := e.begin(ctx)
	p, err := t.pool(poolID)
	if err != nil {
		return err
	}
	if err := t.advance(p); err != nil {
		return err
	}

	pos := t.position(poolID, user)
	if err := t.settle(p, pos); err != nil {
		return err
	}

	if amount.Sign() > 0 {
		t.batch.Transfer(p.LPToken, user, e.cfg.Custody, amount)
		pos.Amount.Add(pos.Amount, amount)
	}
	resetDebt(p, pos)

	return t.commit(&domain.JournalEntry{
		Kind:   kind,
		Caller: user,
		PoolID: poolID,
		User:   user,
		Amount: new(big.Int).Set(amount),
	})
}

// Withdraw settles pending reward and returns amount LP shares to the user.
func (e *Engine) Withdraw(ctx context.Context, poolID int, user domain.Account, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := e.checkUser(user); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.poolLocked(poolID); err != nil {
		return err
	}
	cur, ok := e.positions[positionKey{poolID, user}]
	if !ok {
		if amount.Sign() > 0 {
			return fmt.Errorf("%w: withdraw %s, deposited 0", ErrInsufficientBalance, amount)
		}
		// Nothing to settle for a user who never deposited.
		return nil
	}
	if amount.Cmp(cur.Amount) > 0 {
		return fmt.Errorf("%w: withdraw %s, deposited %s", ErrInsufficientBalance, amount, cur.Amount)
	}

	t := e.begin(ctx)
	p, err := t.pool(poolID)
	if err != nil {
		return err
	}
	if err := t.advance(p); err != nil {
		return err
	}

	pos := t.position(poolID, user)
	if err := t.settle(p, pos); err != nil {
		return err
	}

	if amount.Sign() > 0 {
		pos.Amount.Sub(pos.Amount, amount)
		t.batch.Transfer(p.LPToken, e.cfg.Custody, user, amount)
	}
	resetDebt(p, pos)

	return t.commit(&domain.JournalEntry{
		Kind:   domain.EntryWithdraw,
		Caller: user,
		PoolID: poolID,
		User:   user,
		Amount: new(big.Int).Set(amount),
	})
}

// EmergencyWithdraw returns the user's whole deposit without settling, forfeiting
// pending reward. It does not touch the accumulators.
func (e *Engine) EmergencyWithdraw(ctx context.Context, poolID int, user domain.Account) error {
	if err := e.checkUser(user); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.poolLocked(poolID); err != nil {
		return err
	}
	if _, ok := e.positions[positionKey{poolID, user}]; !ok {
		return nil
	}

	t := e.begin(ctx)
	p, err := t.pool(poolID)
	if err != nil {
		return err
	}

	pos := t.position(poolID, user)
	amount := new(big.Int).Set(pos.Amount)
	t.batch.Transfer(p.LPToken, e.cfg.Custody, user, amount)

	pos.Amount.SetInt64(0)
	pos.PrimaryDebt.SetInt64(0)
	pos.SecondaryDebt.SetInt64(0)

	if err := t.commit(&domain.JournalEntry{
		Kind:   domain.EntryEmergencyWithdraw,
		Caller: user,
		PoolID: poolID,
		User:   user,
		Amount: amount,
	}); err != nil {
		return err
	}

	e.logger.Warn("emergency withdraw",
		zap.Int("pool_id", poolID),
		zap.String("user", user.String()),
		zap.String("amount", amount.String()))
	return nil
}
