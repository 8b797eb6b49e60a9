// Package verification checks that replaying the journal reproduces recorded engine state.
package verification

import (
	"fmt"
	"math/big"

	"stagefarm/internal/domain"
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // dotted path, e.g. pools[0].acc_primary
	Expected string // stored value
	Actual   string // replayed value
}

// CompareStates compares a stored state with a replayed one and returns divergences.
// Amounts must match exactly.
func CompareStates(stored, replayed *domain.State) []FieldDivergence {
	var c comparison

	c.uint("index", stored.Index, replayed.Index)
	c.uint("total_weight", stored.TotalWeight, replayed.TotalWeight)
	c.uint("dev_fee_ppm", uint64(stored.DevFeePpm), uint64(replayed.DevFeePpm))
	c.str("dev_address", string(stored.DevAddress), string(replayed.DevAddress))

	if c.uint("stages.len", uint64(len(stored.Stages)), uint64(len(replayed.Stages))) {
		for i := range stored.Stages {
			s, r := stored.Stages[i], replayed.Stages[i]
			p := fmt.Sprintf("stages[%d].", i)
			c.uint(p+"start", s.StartIndex, r.StartIndex)
			c.uint(p+"end", s.EndIndex, r.EndIndex)
			c.int(p+"primary_rate", s.PrimaryRate, r.PrimaryRate)
			c.int(p+"secondary_rate", s.SecondaryRate, r.SecondaryRate)
		}
	}

	if c.uint("pools.len", uint64(len(stored.Pools)), uint64(len(replayed.Pools))) {
		for i := range stored.Pools {
			s, r := stored.Pools[i], replayed.Pools[i]
			p := fmt.Sprintf("pools[%d].", i)
			c.str(p+"lp_token", string(s.LPToken), string(r.LPToken))
			c.uint(p+"weight", s.AllocationWeight, r.AllocationWeight)
			c.uint(p+"last_accrual", s.LastAccrualIndex, r.LastAccrualIndex)
			c.int(p+"acc_primary", s.AccPrimaryPerShare, r.AccPrimaryPerShare)
			c.int(p+"acc_secondary", s.AccSecondaryPerShare, r.AccSecondaryPerShare)
		}
	}

	replayedPos := make(map[string]*domain.Position, len(replayed.Positions))
	for _, pos := range replayed.Positions {
		replayedPos[positionKey(pos)] = pos
	}
	for _, s := range stored.Positions {
		key := positionKey(s)
		r, ok := replayedPos[key]
		if !ok {
			c.add("positions["+key+"]", "present", "missing")
			continue
		}
		delete(replayedPos, key)
		p := "positions[" + key + "]."
		c.int(p+"amount", s.Amount, r.Amount)
		c.int(p+"primary_debt", s.PrimaryDebt, r.PrimaryDebt)
		c.int(p+"secondary_debt", s.SecondaryDebt, r.SecondaryDebt)
	}
	for _, r := range replayed.Positions {
		if key := positionKey(r); replayedPos[key] != nil {
			c.add("positions["+key+"]", "missing", "present")
		}
	}

	return c.divergences
}

func positionKey(p *domain.Position) string {
	return fmt.Sprintf("%d/%s", p.PoolID, p.User)
}

type comparison struct {
	divergences []FieldDivergence
}

func (c *comparison) add(field, expected, actual string) {
	c.divergences = append(c.divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
}

// uint reports whether the values match.
func (c *comparison) uint(field string, expected, actual uint64) bool {
	if expected == actual {
		return true
	}
	c.add(field, fmt.Sprint(expected), fmt.Sprint(actual))
	return false
}

func (c *comparison) str(field, expected, actual string) {
	if expected != actual {
		c.add(field, expected, actual)
	}
}

func (c *comparison) int(field string, expected, actual *big.Int) {
	e, a := domain.CloneInt(expected), domain.CloneInt(actual)
	if e.Cmp(a) != 0 {
		c.add(field, e.String(), a.String())
	}
}
