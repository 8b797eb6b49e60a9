package domain

import "math/big"

// Stage is an inclusive [StartIndex, EndIndex] emission period.
// Rates are reward units emitted per index unit.
type Stage struct {
	StartIndex    uint64
	EndIndex      uint64
	PrimaryRate   *big.Int
	SecondaryRate *big.Int
}

// Len returns the number of index units covered by the stage.
func (s Stage) Len() uint64 {
	return s.EndIndex - s.StartIndex + 1
}

// Clone returns a deep copy of the stage.
func (s Stage) Clone() Stage {
	return Stage{
		StartIndex:    s.StartIndex,
		EndIndex:      s.EndIndex,
		PrimaryRate:   CloneInt(s.PrimaryRate),
		SecondaryRate: CloneInt(s.SecondaryRate),
	}
}
