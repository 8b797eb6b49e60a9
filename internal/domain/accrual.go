package domain

import "math/big"

// AccrualPoint records one accumulator advance of a pool over (FromIndex, Index].
type AccrualPoint struct {
	Seq                  uint64 // journal entry that caused the advance
	PoolID               int
	FromIndex            uint64 // last accrual index before the advance
	Index                uint64 // clock index of the advance
	PrimaryReward        *big.Int
	SecondaryReward      *big.Int
	AccPrimaryPerShare   *big.Int // after the advance
	AccSecondaryPerShare *big.Int // after the advance
	TotalShares          *big.Int
}

// Payout records one settlement of pending reward to a user.
type Payout struct {
	Seq          uint64 // journal entry that settled it
	PoolID       int
	User         Account
	Index        uint64
	GrossPrimary *big.Int
	Fee          *big.Int
	NetPrimary   *big.Int
	Secondary    *big.Int
}

// Clone returns a deep copy of the point.
func (a *AccrualPoint) Clone() *AccrualPoint {
	c := *a
	c.PrimaryReward = CloneInt(a.PrimaryReward)
	c.SecondaryReward = CloneInt(a.SecondaryReward)
	c.AccPrimaryPerShare = CloneInt(a.AccPrimaryPerShare)
	c.AccSecondaryPerShare = CloneInt(a.AccSecondaryPerShare)
	c.TotalShares = CloneInt(a.TotalShares)
	return &c
}

// Clone returns a deep copy of the payout.
func (p *Payout) Clone() *Payout {
	c := *p
	c.GrossPrimary = CloneInt(p.GrossPrimary)
	c.Fee = CloneInt(p.Fee)
	c.NetPrimary = CloneInt(p.NetPrimary)
	c.Secondary = CloneInt(p.Secondary)
	return &c
}
