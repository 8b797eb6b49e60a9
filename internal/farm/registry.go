package farm

import (
	"context"
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"stagefarm/internal/domain"
)

// RegisterPool appends a pool for lpToken with the given weight and returns its id.
// With recalcAll every existing pool is advanced first so the new weight does not
// dilute rewards already emitted. The pool starts accruing at max(now, schedule start).
func (e *Engine) RegisterPool(ctx context.Context, caller domain.Account, weight uint64, lpToken domain.TokenID, recalcAll bool) (int, error) {
	if err := e.requireOwner(ctx, caller); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if lpToken == "" {
		return 0, fmt.Errorf("%w: empty lp token", ErrInvalidInput)
	}
	if lpToken == e.cfg.PrimaryToken || lpToken == e.cfg.SecondaryToken {
		return 0, fmt.Errorf("%w: lp token %s is a reward token", ErrInvalidInput, lpToken)
	}
	if _, exists := e.lpTokens[lpToken]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicatePool, lpToken)
	}

	newTotal, carry := bits.Add64(e.totalWeight, weight, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: total weight overflows", ErrInvalidInput)
	}
	if newTotal == 0 {
		return 0, ErrZeroTotalWeight
	}

	t := e.begin(ctx)
	if recalcAll {
		if err := t.advanceAll(); err != nil {
			return 0, err
		}
	}

	start := t.now
	if s, ok := e.schedule.Start(); ok && s > start {
		start = s
	}

	id := len(e.pools)
	pool := domain.NewPool(id, lpToken, weight, start)
	t.onCommit(func() {
		e.pools = append(e.pools, pool)
		e.lpTokens[lpToken] = id
		e.totalWeight = newTotal
	})

	err := t.commit(&domain.JournalEntry{
		Kind:      domain.EntryPoolRegistered,
		Caller:    caller,
		PoolID:    id,
		LPToken:   lpToken,
		Weight:    weight,
		RecalcAll: recalcAll,
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("pool registered",
		zap.Int("pool_id", id),
		zap.String("lp_token", lpToken.String()),
		zap.Uint64("weight", weight),
		zap.Uint64("start", start))
	return id, nil
}

// UpdatePoolWeight changes a pool's allocation weight, optionally advancing all pools first.
func (e *Engine) UpdatePoolWeight(ctx context.Context, caller domain.Account, poolID int, weight uint64, recalcAll bool) error {
	if err := e.requireOwner(ctx, caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.poolLocked(poolID)
	if err != nil {
		return err
	}

	newTotal, carry := bits.Add64(e.totalWeight-cur.AllocationWeight, weight, 0)
	if carry != 0 {
		return fmt.Errorf("%w: total weight overflows", ErrInvalidInput)
	}
	if newTotal == 0 {
		return ErrZeroTotalWeight
	}

	t := e.begin(ctx)
	if recalcAll {
		if err := t.advanceAll(); err != nil {
			return err
		}
	}

	p, err := t.pool(poolID)
	if err != nil {
		return err
	}
	p.AllocationWeight = weight
	t.onCommit(func() { e.totalWeight = newTotal })

	return t.commit(&domain.JournalEntry{
		Kind:      domain.EntryPoolWeightUpdated,
		Caller:    caller,
		PoolID:    poolID,
		Weight:    weight,
		RecalcAll: recalcAll,
	})
}

// UpdatePool advances one pool's accumulators to the current index.
func (e *Engine) UpdatePool(ctx context.Context, caller domain.Account, poolID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.begin(ctx)
	p, err := t.pool(poolID)
	if err != nil {
		return err
	}
	if err := t.advance(p); err != nil {
		return err
	}

	return t.commit(&domain.JournalEntry{
		Kind:   domain.EntryPoolUpdated,
		Caller: caller,
		PoolID: poolID,
	})
}

// MassUpdatePools advances every pool to the current index.
func (e *Engine) MassUpdatePools(ctx context.Context, caller domain.Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.begin(ctx)
	if err := t.advanceAll(); err != nil {
		return err
	}

	return t.commit(&domain.JournalEntry{
		Kind:   domain.EntryPoolsMassUpdated,
		Caller: caller,
		PoolID: -1,
	})
}
