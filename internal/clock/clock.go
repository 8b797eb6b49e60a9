// Package clock provides the monotonic index the engine accrues against.
package clock

import "sync/atomic"

// Clock returns the current index.
type Clock interface {
	Now() uint64
}

// ManualClock is advanced explicitly. Used by tests, replay and the manual server mode.
type ManualClock struct {
	now atomic.Uint64
}

// NewManualClock creates a clock at index start.
func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

// Compile-time interface check.
var _ Clock = (*ManualClock)(nil)

// Now returns the current index.
func (c *ManualClock) Now() uint64 {
	return c.now.Load()
}

// Set moves the clock to index. Unlike the production clock it may move backwards.
func (c *ManualClock) Set(index uint64) {
	c.now.Store(index)
}

// Advance moves the clock forward by n and returns the new index.
func (c *ManualClock) Advance(n uint64) uint64 {
	return c.now.Add(n)
}
