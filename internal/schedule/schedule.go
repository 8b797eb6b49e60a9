// Package schedule holds the stage emission schedule and integrates it over index ranges.
package schedule

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"stagefarm/internal/domain"
)

var (
	// ErrInvalidRange is returned when a stage ends before it starts or has a negative rate.
	ErrInvalidRange = errors.New("invalid stage range")

	// ErrNonAdjacent is returned when a stage does not start right after the previous one.
	ErrNonAdjacent = errors.New("stage is not adjacent to the previous stage")

	// ErrStageNotFound is returned when a stage index is out of range.
	ErrStageNotFound = errors.New("stage not found")
)

// Schedule is an append-only list of contiguous stages.
// Not safe for concurrent use; the engine serializes access.
type Schedule struct {
	stages     []domain.Stage
	genesis    uint64
	hasGenesis bool
}

// Option configures a Schedule.
type Option func(*Schedule)

// WithGenesis requires the first stage to start at index.
func WithGenesis(index uint64) Option {
	return func(s *Schedule) {
		s.genesis = index
		s.hasGenesis = true
	}
}

// New creates an empty schedule.
func New(opts ...Option) *Schedule {
	s := &Schedule{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks whether the stage could be appended without modifying the schedule.
// Range is checked before adjacency.
func (s *Schedule) Validate(start, end uint64, primaryRate, secondaryRate *big.Int) error {
	if end < start {
		return fmt.Errorf("%w: end %d < start %d", ErrInvalidRange, end, start)
	}
	if primaryRate == nil || secondaryRate == nil || primaryRate.Sign() < 0 || secondaryRate.Sign() < 0 {
		return fmt.Errorf("%w: rates must be non-negative", ErrInvalidRange)
	}

	if n := len(s.stages); n > 0 {
		last := s.stages[n-1]
		if last.EndIndex == ^uint64(0) || start != last.EndIndex+1 {
			return fmt.Errorf("%w: start %d, previous end %d", ErrNonAdjacent, start, last.EndIndex)
		}
	} else if s.hasGenesis && start != s.genesis {
		return fmt.Errorf("%w: first stage must start at %d, got %d", ErrNonAdjacent, s.genesis, start)
	}

	return nil
}

// Append adds a stage after validating it. Rates are copied.
func (s *Schedule) Append(start, end uint64, primaryRate, secondaryRate *big.Int) error {
	if err := s.Validate(start, end, primaryRate, secondaryRate); err != nil {
		return err
	}

	s.stages = append(s.stages, domain.Stage{
		StartIndex:    start,
		EndIndex:      end,
		PrimaryRate:   new(big.Int).Set(primaryRate),
		SecondaryRate: new(big.Int).Set(secondaryRate),
	})
	return nil
}

// TotalReward returns the emission of both tokens over the inclusive range [from, to].
// Indices not covered by any stage contribute zero. from > to yields zero.
func (s *Schedule) TotalReward(from, to uint64) (primary, secondary *big.Int) {
	primary, secondary = new(big.Int), new(big.Int)
	if from > to {
		return primary, secondary
	}

	// First stage that ends at or after from.
	i := sort.Search(len(s.stages), func(i int) bool {
		return s.stages[i].EndIndex >= from
	})

	span := new(big.Int)
	for ; i < len(s.stages); i++ {
		st := s.stages[i]
		if st.StartIndex > to {
			break
		}

		lo := max(st.StartIndex, from)
		hi := min(st.EndIndex, to)
		if hi < lo {
			continue
		}

		span.SetUint64(hi - lo + 1)
		primary.Add(primary, new(big.Int).Mul(st.PrimaryRate, span))
		secondary.Add(secondary, new(big.Int).Mul(st.SecondaryRate, span))
	}

	return primary, secondary
}

// Stage returns a copy of the i-th stage.
func (s *Schedule) Stage(i int) (domain.Stage, error) {
	if i < 0 || i >= len(s.stages) {
		return domain.Stage{}, fmt.Errorf("%w: index %d, have %d", ErrStageNotFound, i, len(s.stages))
	}
	return s.stages[i].Clone(), nil
}

// Len returns the number of stages.
func (s *Schedule) Len() int {
	return len(s.stages)
}

// Stages returns copies of all stages in order.
func (s *Schedule) Stages() []domain.Stage {
	out := make([]domain.Stage, len(s.stages))
	for i, st := range s.stages {
		out[i] = st.Clone()
	}
	return out
}

// Start returns the index rewards begin at: the first stage start, or the configured
// genesis when no stage exists yet.
func (s *Schedule) Start() (uint64, bool) {
	if len(s.stages) > 0 {
		return s.stages[0].StartIndex, true
	}
	return s.genesis, s.hasGenesis
}

// End returns the last index covered by the schedule.
func (s *Schedule) End() (uint64, bool) {
	if len(s.stages) == 0 {
		return 0, false
	}
	return s.stages[len(s.stages)-1].EndIndex, true
}
