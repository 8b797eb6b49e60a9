// Package recorder persists what is derived from committed engine operations:
// periodic state snapshots and the accrual and payout history. The journal
// itself is written by the engine before an operation is published.
package recorder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stagefarm/internal/farm"
	"stagefarm/internal/storage"
	"stagefarm/internal/verification"
)

// Options contains the stores a Recorder writes to. At least one is required.
type Options struct {
	Snapshots storage.SnapshotStore
	Accruals  storage.AccrualStore
	Payouts   storage.PayoutStore
	// SnapshotEvery takes a snapshot after every N-th entry; 0 disables snapshots.
	SnapshotEvery uint64
	Logger        *zap.Logger
}

// Recorder is a farm.Observer that persists each commit.
type Recorder struct {
	snapshots storage.SnapshotStore
	accruals  storage.AccrualStore
	payouts   storage.PayoutStore
	every     uint64
	logger    *zap.Logger
}

// New creates a new Recorder.
func New(opts Options) (*Recorder, error) {
	if opts.Snapshots == nil && opts.Accruals == nil && opts.Payouts == nil {
		return nil, errors.New("recorder: no store configured")
	}
	if opts.SnapshotEvery > 0 && opts.Snapshots == nil {
		return nil, errors.New("recorder: snapshot interval set without a snapshot store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		snapshots: opts.Snapshots,
		accruals:  opts.Accruals,
		payouts:   opts.Payouts,
		every:     opts.SnapshotEvery,
		logger:    logger,
	}, nil
}

// Compile-time interface check.
var _ farm.Observer = (*Recorder)(nil)

// OnCommit stores the commit's history and, every N entries, a snapshot.
// Every store is attempted; the errors are joined.
func (r *Recorder) OnCommit(ctx context.Context, c *farm.Commit) error {
	e := c.Entry

	var errs []error
	if r.accruals != nil && len(c.Accruals) > 0 {
		if err := r.accruals.InsertBulk(ctx, c.Accruals); err != nil {
			errs = append(errs, fmt.Errorf("accruals seq %d: %w", e.Seq, err))
		}
	}
	if r.payouts != nil && len(c.Payouts) > 0 {
		if err := r.payouts.InsertBulk(ctx, c.Payouts); err != nil {
			errs = append(errs, fmt.Errorf("payouts seq %d: %w", e.Seq, err))
		}
	}

	if r.every > 0 && e.Seq%r.every == 0 {
		st := c.State()
		// The clock may have moved since the operation read it.
		st.Index = e.Index
		snap, err := verification.NewSnapshot(e.Seq, st)
		if err == nil {
			err = r.snapshots.Save(ctx, snap)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("snapshot seq %d: %w", e.Seq, err))
		} else {
			r.logger.Debug("snapshot saved",
				zap.Uint64("seq", snap.Seq),
				zap.String("digest", snap.Digest))
		}
	}

	return errors.Join(errs...)
}
