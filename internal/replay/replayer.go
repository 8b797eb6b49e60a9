// Package replay rebuilds engine state deterministically from the operation journal.
package replay

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"stagefarm/internal/access"
	"stagefarm/internal/clock"
	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
	"stagefarm/internal/schedule"
	"stagefarm/internal/storage/memory"
)

// StepFunc is called after each replayed entry with the engine in its post-entry state.
type StepFunc func(ctx context.Context, e *domain.JournalEntry, eng *farm.Engine) error

// Replayer re-executes journal entries against a fresh engine.
//
// The replay engine runs over an in-memory ledger that mints rewards into custody
// and caps payouts at the custody balance. Engine state does not depend on how
// much was paid out, so it matches the live engine whatever its reward source.
type Replayer struct {
	cfg       farm.Config
	schedOpts []schedule.Option
	logger    *zap.Logger
}

// New creates a replayer for an engine configured with cfg. schedOpts must match
// the live engine's schedule options.
func New(cfg farm.Config, logger *zap.Logger, schedOpts ...schedule.Option) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{cfg: cfg, schedOpts: schedOpts, logger: logger}
}

// Session is one replay in progress: an engine plus the ledger and clock it runs on.
type Session struct {
	r      *Replayer
	engine *farm.Engine
	ledger *memory.Ledger
	clock  *clock.ManualClock
	last   *domain.JournalEntry
}

// Start creates a session with an empty engine.
func (r *Replayer) Start() (*Session, error) {
	cfg := r.cfg
	cfg.CapPayoutsAtBalance = true

	s := &Session{
		r:      r,
		ledger: memory.NewLedger(cfg.PrimaryToken, cfg.SecondaryToken),
		clock:  clock.NewManualClock(0),
	}

	eng, err := farm.New(farm.Options{
		Config:   cfg,
		Ledger:   s.ledger,
		Gate:     replayGate{},
		Clock:    s.clock,
		Schedule: schedule.New(r.schedOpts...),
		Source: &farm.MintSource{
			Custody:        cfg.Custody,
			PrimaryToken:   cfg.PrimaryToken,
			SecondaryToken: cfg.SecondaryToken,
		},
		Observer: farm.ObserverFunc(func(_ context.Context, c *farm.Commit) error {
			s.last = c.Entry
			return nil
		}),
		Logger: r.logger.Named("replay"),
	})
	if err != nil {
		return nil, fmt.Errorf("create replay engine: %w", err)
	}
	s.engine = eng
	return s, nil
}

// StartFrom creates a session restored from a state taken after entry seq.
// Custody is seeded with every pool's deposited shares.
func (r *Replayer) StartFrom(ctx context.Context, st *domain.State, seq uint64) (*Session, error) {
	s, err := r.Start()
	if err != nil {
		return nil, err
	}
	if err := s.engine.Restore(st, seq, r.schedOpts...); err != nil {
		return nil, err
	}

	shares := make(map[int]*big.Int)
	for _, pos := range st.Positions {
		if _, ok := shares[pos.PoolID]; !ok {
			shares[pos.PoolID] = new(big.Int)
		}
		shares[pos.PoolID].Add(shares[pos.PoolID], pos.Amount)
	}
	for _, p := range st.Pools {
		if amt, ok := shares[p.ID]; ok && amt.Sign() > 0 {
			s.ledger.Credit(p.LPToken, r.cfg.Custody, amt)
		}
	}
	s.clock.Set(st.Index)

	r.logger.Debug("replay restored from state",
		zap.Uint64("seq", seq),
		zap.Uint64("index", st.Index))
	return s, nil
}

// Engine returns the session's engine.
func (s *Session) Engine() *farm.Engine {
	return s.engine
}

// Apply replays entries in order, calling step after each one.
func (s *Session) Apply(ctx context.Context, entries []*domain.JournalEntry, step StepFunc) error {
	if err := ValidateOrdering(entries, s.engine.Seq()); err != nil {
		return err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.apply(ctx, e); err != nil {
			return fmt.Errorf("replay seq %d (%s): %w", e.Seq, e.Kind, err)
		}
		if got := s.engine.Seq(); got != e.Seq {
			return fmt.Errorf("%w: seq %d replayed as %d", ErrDivergence, e.Seq, got)
		}
		if e.ID != "" && s.last.ID != e.ID {
			return fmt.Errorf("%w: seq %d replayed with id %s, journal has %s", ErrDivergence, e.Seq, s.last.ID, e.ID)
		}
		if step != nil {
			if err := step(ctx, e, s.engine); err != nil {
				return err
			}
		}
	}

	s.r.logger.Info("journal replayed",
		zap.Int("entries", len(entries)),
		zap.Uint64("seq", s.engine.Seq()),
		zap.Uint64("index", s.clock.Now()))
	return nil
}

func (s *Session) apply(ctx context.Context, e *domain.JournalEntry) error {
	s.clock.Set(e.Index)
	eng := s.engine

	switch e.Kind {
	case domain.EntryStageAppended:
		if e.Stage == nil {
			return fmt.Errorf("%w: stage entry without stage", ErrDivergence)
		}
		st := e.Stage
		return eng.AppendStage(ctx, e.Caller, st.StartIndex, st.EndIndex, st.PrimaryRate, st.SecondaryRate)

	case domain.EntryPoolRegistered:
		id, err := eng.RegisterPool(ctx, e.Caller, e.Weight, e.LPToken, e.RecalcAll)
		if err != nil {
			return err
		}
		if id != e.PoolID {
			return fmt.Errorf("%w: pool registered as %d, journal has %d", ErrDivergence, id, e.PoolID)
		}
		return nil

	case domain.EntryPoolWeightUpdated:
		return eng.UpdatePoolWeight(ctx, e.Caller, e.PoolID, e.Weight, e.RecalcAll)

	case domain.EntryPoolUpdated:
		return eng.UpdatePool(ctx, e.Caller, e.PoolID)

	case domain.EntryPoolsMassUpdated:
		return eng.MassUpdatePools(ctx, e.Caller)

	case domain.EntryDeposit:
		p, err := eng.Pool(e.PoolID)
		if err != nil {
			return err
		}
		// The journal does not carry wallet balances; hand the user the shares it deposited.
		s.ledger.Credit(p.LPToken, e.User, e.Amount)
		return eng.Deposit(ctx, e.PoolID, e.User, e.Amount)

	case domain.EntryWithdraw:
		return eng.Withdraw(ctx, e.PoolID, e.User, e.Amount)

	case domain.EntryClaim:
		return eng.Claim(ctx, e.PoolID, e.User)

	case domain.EntryEmergencyWithdraw:
		return eng.EmergencyWithdraw(ctx, e.PoolID, e.User)

	case domain.EntryDevFeeSet:
		return eng.SetDevFee(ctx, e.Caller, e.FeePpm)

	case domain.EntryDevAddressSet:
		return eng.SetDevAddress(ctx, e.Caller, e.Address)

	case domain.EntryOwnershipTransferred:
		return eng.TransferOwnership(ctx, e.Caller, e.Address)
	}

	return fmt.Errorf("%w: unknown kind %q", ErrInvalidOrdering, e.Kind)
}

// replayGate admits every journaled call; authorization happened when it was recorded.
type replayGate struct {
	access.Open
}

func (replayGate) TransferOwnership(context.Context, domain.Account, domain.Account) error {
	return nil
}
