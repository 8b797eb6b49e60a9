package farm

import (
	"context"
	"errors"

	"stagefarm/internal/domain"
)

// Commit describes one committed operation.
type Commit struct {
	Entry    *domain.JournalEntry
	Accruals []*domain.AccrualPoint
	Payouts  []*domain.Payout

	state func() *domain.State
}

// State returns engine state right after the commit.
// Only valid while the observer is being called.
func (c *Commit) State() *domain.State {
	if c.state == nil {
		return nil
	}
	return c.state()
}

// Observer is notified of every committed operation, in commit order.
// Observers run while the engine is locked and must not call back into it.
// They see entries already written to the Journal, so their errors are logged
// and the operation stays committed.
type Observer interface {
	OnCommit(ctx context.Context, c *Commit) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, c *Commit) error

// OnCommit calls f.
func (f ObserverFunc) OnCommit(ctx context.Context, c *Commit) error {
	return f(ctx, c)
}

// Observers fans a commit out to several observers. Every observer runs;
// the errors are joined.
type Observers []Observer

// OnCommit notifies each observer in order.
func (o Observers) OnCommit(ctx context.Context, c *Commit) error {
	var errs []error
	for _, obs := range o {
		if obs == nil {
			continue
		}
		if err := obs.OnCommit(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
