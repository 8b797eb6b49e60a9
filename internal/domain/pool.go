package domain

import "math/big"

// Pool is a reward-bearing pool wrapping one LP token.
// Accumulators are fixed point values scaled by the engine SCALE.
type Pool struct {
	ID                   int
	LPToken              TokenID
	AllocationWeight     uint64
	LastAccrualIndex     uint64
	AccPrimaryPerShare   *big.Int
	AccSecondaryPerShare *big.Int
}

// NewPool returns a pool with zeroed accumulators.
func NewPool(id int, lpToken TokenID, weight, lastAccrual uint64) *Pool {
	return &Pool{
		ID:                   id,
		LPToken:              lpToken,
		AllocationWeight:     weight,
		LastAccrualIndex:     lastAccrual,
		AccPrimaryPerShare:   new(big.Int),
		AccSecondaryPerShare: new(big.Int),
	}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	c := *p
	c.AccPrimaryPerShare = CloneInt(p.AccPrimaryPerShare)
	c.AccSecondaryPerShare = CloneInt(p.AccSecondaryPerShare)
	return &c
}
