package domain

import "math/big"

// Position is a user's deposit in one pool together with the reward debt snapshot
// taken at the last settlement.
type Position struct {
	PoolID        int
	User          Account
	Amount        *big.Int
	PrimaryDebt   *big.Int
	SecondaryDebt *big.Int
}

// NewPosition returns an empty position.
func NewPosition(poolID int, user Account) *Position {
	return &Position{
		PoolID:        poolID,
		User:          user,
		Amount:        new(big.Int),
		PrimaryDebt:   new(big.Int),
		SecondaryDebt: new(big.Int),
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	c := *p
	c.Amount = CloneInt(p.Amount)
	c.PrimaryDebt = CloneInt(p.PrimaryDebt)
	c.SecondaryDebt = CloneInt(p.SecondaryDebt)
	return &c
}

// Reward is an amount of each reward token.
type Reward struct {
	Primary   *big.Int
	Secondary *big.Int
}

// ZeroReward returns a reward with both amounts set to zero.
func ZeroReward() Reward {
	return Reward{Primary: new(big.Int), Secondary: new(big.Int)}
}

// IsZero reports whether both amounts are zero.
func (r Reward) IsZero() bool {
	return r.Primary.Sign() == 0 && r.Secondary.Sign() == 0
}

// CloneInt copies a big integer, treating nil as zero.
func CloneInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
