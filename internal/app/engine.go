package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stagefarm/internal/access"
	"stagefarm/internal/clock"
	"stagefarm/internal/config"
	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
	"stagefarm/internal/replay"
	"stagefarm/internal/schedule"
	"stagefarm/internal/storage"
	"stagefarm/internal/verification"
)

// NewReplayer returns a replayer matching the configured engine.
func NewReplayer(cfg *config.Config, logger *zap.Logger) *replay.Replayer {
	return replay.New(cfg.FarmConfig(), logger, cfg.ScheduleOptions()...)
}

// NewRunner returns a replay runner over the stores' journal and snapshots.
func NewRunner(cfg *config.Config, stores *Stores, logger *zap.Logger) *replay.Runner {
	return replay.NewRunner(stores.Journal, stores.Snapshots, verification.Decode, NewReplayer(cfg, logger), logger)
}

// CurrentOwner returns the owner after the last ownership transfer in journal,
// or initial if ownership never moved.
func CurrentOwner(ctx context.Context, journal storage.JournalStore, initial domain.Account) (domain.Account, error) {
	entries, err := journal.GetAll(ctx)
	if err != nil {
		return "", fmt.Errorf("load journal: %w", err)
	}
	owner := initial
	for _, e := range entries {
		if e.Kind == domain.EntryOwnershipTransferred {
			owner = e.Address
		}
	}
	return owner, nil
}

// EngineOptions contains the collaborators of the live engine.
type EngineOptions struct {
	Config   *config.Config
	Stores   *Stores
	Clock    clock.Clock
	Observer farm.Observer // optional
	Logger   *zap.Logger
}

// NewEngine builds the live engine over the store's journal. When the journal
// already holds entries, engine state is rebuilt by replay and the owner is
// taken from the last ownership transfer.
func NewEngine(ctx context.Context, opts EngineOptions) (*farm.Engine, *access.OwnerGate, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	owner, err := CurrentOwner(ctx, opts.Stores.Journal, domain.Account(cfg.Engine.Owner))
	if err != nil {
		return nil, nil, err
	}
	gate := access.NewOwnerGate(owner)

	eng, err := farm.New(farm.Options{
		Config:   cfg.FarmConfig(),
		Ledger:   opts.Stores.Ledger,
		Gate:     gate,
		Clock:    opts.Clock,
		Schedule: schedule.New(cfg.ScheduleOptions()...),
		Source:   cfg.RewardSource(),
		Journal:  opts.Stores.Journal,
		Observer: opts.Observer,
		Logger:   logger.Named("farm"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}

	last, err := opts.Stores.Journal.Last(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load journal head: %w", err)
	}
	if last == 0 {
		return eng, gate, nil
	}

	shadow, err := NewRunner(cfg, opts.Stores, logger).Rebuild(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild engine state: %w", err)
	}
	st := shadow.State()
	if err := eng.Restore(st, shadow.Seq(), cfg.ScheduleOptions()...); err != nil {
		return nil, nil, fmt.Errorf("restore engine state: %w", err)
	}
	if mc, ok := opts.Clock.(*clock.ManualClock); ok && mc.Now() < st.Index {
		mc.Set(st.Index)
	}

	logger.Info("engine rebuilt from journal",
		zap.Uint64("seq", shadow.Seq()),
		zap.Uint64("index", st.Index),
		zap.String("owner", owner.String()))
	return eng, gate, nil
}
