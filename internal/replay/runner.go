package replay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
	"stagefarm/internal/storage"
)

// StateDecoder decodes an encoded snapshot state.
type StateDecoder func(data []byte) (*domain.State, error)

// Runner loads the journal from storage and replays it.
type Runner struct {
	journal   storage.JournalStore
	snapshots storage.SnapshotStore // optional
	decode    StateDecoder
	replayer  *Replayer
	logger    *zap.Logger
}

// NewRunner creates a new replay runner. snapshots and decode may be nil,
// in which case replay always starts from an empty engine.
func NewRunner(journal storage.JournalStore, snapshots storage.SnapshotStore, decode StateDecoder, replayer *Replayer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		journal:   journal,
		snapshots: snapshots,
		decode:    decode,
		replayer:  replayer,
		logger:    logger,
	}
}

// RunAll replays the whole journal from an empty engine, calling step after each entry.
func (r *Runner) RunAll(ctx context.Context, step StepFunc) (*farm.Engine, error) {
	entries, err := r.journal.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	SortEntries(entries)

	sess, err := r.replayer.Start()
	if err != nil {
		return nil, err
	}
	if err := sess.Apply(ctx, entries, step); err != nil {
		return nil, err
	}
	return sess.Engine(), nil
}

// Rebuild restores the latest snapshot, if any, and replays the journal tail.
func (r *Runner) Rebuild(ctx context.Context) (*farm.Engine, error) {
	if r.snapshots == nil || r.decode == nil {
		return r.RunAll(ctx, nil)
	}

	snap, err := r.snapshots.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return r.RunAll(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	st, err := r.decode(snap.State)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", snap.Seq, err)
	}

	sess, err := r.replayer.StartFrom(ctx, st, snap.Seq)
	if err != nil {
		return nil, err
	}

	last, err := r.journal.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("load journal head: %w", err)
	}
	tail, err := r.journal.GetRange(ctx, snap.Seq+1, last)
	if err != nil {
		return nil, fmt.Errorf("load journal tail: %w", err)
	}
	SortEntries(tail)

	r.logger.Info("rebuilding from snapshot",
		zap.Uint64("snapshot_seq", snap.Seq),
		zap.Int("tail", len(tail)))

	if err := sess.Apply(ctx, tail, nil); err != nil {
		return nil, err
	}
	return sess.Engine(), nil
}
