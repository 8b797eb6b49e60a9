// Package farm implements the staged multi-token reward accrual engine.
package farm

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"go.uber.org/zap"

	"stagefarm/internal/access"
	"stagefarm/internal/clock"
	"stagefarm/internal/domain"
	"stagefarm/internal/ledger"
	"stagefarm/internal/schedule"
)

const (
	// Scale is the fixed-point factor of the reward-per-share accumulators.
	Scale = 1_000_000_000_000
	// FeeDenominator is the parts-per-million base of the developer fee.
	FeeDenominator = 1_000_000
)

var (
	scale          = big.NewInt(Scale)
	feeDenominator = big.NewInt(FeeDenominator)
)

// Config holds engine parameters.
type Config struct {
	PrimaryToken   domain.TokenID
	SecondaryToken domain.TokenID
	// Custody holds deposited LP shares and accrued rewards awaiting payout.
	Custody    domain.Account
	DevAddress domain.Account
	DevFeePpm  uint32
	// CapPayoutsAtBalance pays min(pending, custody balance) instead of failing.
	CapPayoutsAtBalance bool
}

// Options contains the collaborators for creating an Engine.
type Options struct {
	Config   Config
	Ledger   ledger.Ledger
	Gate     access.Gate
	Clock    clock.Clock
	Schedule *schedule.Schedule // optional, empty schedule if nil
	Source   RewardSource       // optional, PrefundedSource if nil
	// Journal receives every entry before its state is published. When Ledger
	// implements ledger.Journaled it writes the entries itself, in the ledger
	// transaction, and Journal must name the same store. Optional.
	Journal  Journal
	Observer Observer    // optional
	Logger   *zap.Logger // optional
}

type positionKey struct {
	poolID int
	user   domain.Account
}

// Engine is the reward accounting engine. All mutating operations are
// serialized; reads run concurrently against committed state.
type Engine struct {
	mu sync.RWMutex

	cfg      Config
	ledger   ledger.Ledger
	gate     access.Gate
	clock    clock.Clock
	source   RewardSource
	journal  Journal
	observer Observer
	logger   *zap.Logger

	schedule    *schedule.Schedule
	pools       []*domain.Pool
	lpTokens    map[domain.TokenID]int
	positions   map[positionKey]*domain.Position
	totalWeight uint64
	devFeePpm   uint32
	devAddress  domain.Account
	seq         uint64
	halted      error
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg.PrimaryToken == "" || cfg.SecondaryToken == "" || cfg.Custody.IsZero() {
		return nil, fmt.Errorf("%w: reward tokens and custody are required", ErrInvalidInput)
	}
	if cfg.DevFeePpm > FeeDenominator {
		return nil, fmt.Errorf("%w: %d ppm", ErrInvalidFee, cfg.DevFeePpm)
	}
	if cfg.DevFeePpm > 0 && cfg.DevAddress.IsZero() {
		return nil, fmt.Errorf("%w: dev fee set without dev address", ErrInvalidInput)
	}
	if opts.Ledger == nil || opts.Gate == nil || opts.Clock == nil {
		return nil, fmt.Errorf("%w: ledger, gate and clock are required", ErrInvalidInput)
	}

	e := &Engine{
		cfg:        cfg,
		ledger:     opts.Ledger,
		gate:       opts.Gate,
		clock:      opts.Clock,
		source:     opts.Source,
		journal:    opts.Journal,
		observer:   opts.Observer,
		logger:     opts.Logger,
		schedule:   opts.Schedule,
		lpTokens:   make(map[domain.TokenID]int),
		positions:  make(map[positionKey]*domain.Position),
		devFeePpm:  cfg.DevFeePpm,
		devAddress: cfg.DevAddress,
	}
	if e.source == nil {
		e.source = PrefundedSource{}
	}
	if e.schedule == nil {
		e.schedule = schedule.New()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}

	return e, nil
}

// Config returns the engine configuration with the current fee settings.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cfg := e.cfg
	cfg.DevFeePpm = e.devFeePpm
	cfg.DevAddress = e.devAddress
	return cfg
}

// Now returns the clock index.
func (e *Engine) Now() uint64 {
	return e.clock.Now()
}

// Seq returns the sequence number of the last committed operation.
func (e *Engine) Seq() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq
}

// RewardSourceMode returns the backing mode of accrued rewards.
func (e *Engine) RewardSourceMode() string {
	return e.source.Mode()
}

// Pool returns a copy of the pool with the given id.
func (e *Engine) Pool(id int) (*domain.Pool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, err := e.poolLocked(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Pools returns copies of all pools ordered by id.
func (e *Engine) Pools() []*domain.Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.Pool, len(e.pools))
	for i, p := range e.pools {
		out[i] = p.Clone()
	}
	return out
}

// PoolLength returns the number of registered pools.
func (e *Engine) PoolLength() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pools)
}

// TotalAllocationWeight returns the sum of all pool weights.
func (e *Engine) TotalAllocationWeight() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalWeight
}

// Stage returns a copy of the i-th stage.
func (e *Engine) Stage(i int) (domain.Stage, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schedule.Stage(i)
}

// StageCount returns the number of stages.
func (e *Engine) StageCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schedule.Len()
}

// Stages returns copies of all stages.
func (e *Engine) Stages() []domain.Stage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schedule.Stages()
}

// TotalReward returns the schedule's emission over the inclusive range [from, to].
func (e *Engine) TotalReward(from, to uint64) domain.Reward {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, s := e.schedule.TotalReward(from, to)
	return domain.Reward{Primary: p, Secondary: s}
}

// Position returns a copy of the user's position, or an empty one if the user never deposited.
func (e *Engine) Position(poolID int, user domain.Account) (*domain.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.poolLocked(poolID); err != nil {
		return nil, err
	}
	if pos, ok := e.positions[positionKey{poolID, user}]; ok {
		return pos.Clone(), nil
	}
	return domain.NewPosition(poolID, user), nil
}

// DevFeePpm returns the developer fee in parts per million.
func (e *Engine) DevFeePpm() uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.devFeePpm
}

// DevAddress returns the developer fee recipient.
func (e *Engine) DevAddress() domain.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.devAddress
}

func (e *Engine) poolLocked(id int) (*domain.Pool, error) {
	if id < 0 || id >= len(e.pools) {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, id)
	}
	return e.pools[id], nil
}

// State returns the canonical view of committed state.
func (e *Engine) State() *domain.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() *domain.State {
	st := &domain.State{
		Index:       e.clock.Now(),
		Stages:      e.schedule.Stages(),
		Pools:       make([]*domain.Pool, len(e.pools)),
		Positions:   make([]*domain.Position, 0, len(e.positions)),
		TotalWeight: e.totalWeight,
		DevFeePpm:   e.devFeePpm,
		DevAddress:  e.devAddress,
	}
	for i, p := range e.pools {
		st.Pools[i] = p.Clone()
	}
	for _, pos := range e.positions {
		st.Positions = append(st.Positions, pos.Clone())
	}
	sort.Slice(st.Positions, func(i, j int) bool {
		a, b := st.Positions[i], st.Positions[j]
		if a.PoolID != b.PoolID {
			return a.PoolID < b.PoolID
		}
		return a.User < b.User
	})
	return st
}

// Restore replaces engine state with st, as of journal sequence seq.
// The schedule is rebuilt with opts so genesis rules keep applying.
func (e *Engine) Restore(st *domain.State, seq uint64, opts ...schedule.Option) error {
	sched := schedule.New(opts...)
	for _, s := range st.Stages {
		if err := sched.Append(s.StartIndex, s.EndIndex, s.PrimaryRate, s.SecondaryRate); err != nil {
			return fmt.Errorf("restore stage %d-%d: %w", s.StartIndex, s.EndIndex, err)
		}
	}

	pools := make([]*domain.Pool, len(st.Pools))
	lpTokens := make(map[domain.TokenID]int, len(st.Pools))
	var total uint64
	for i, p := range st.Pools {
		if p.ID != i {
			return fmt.Errorf("%w: pool %d stored at position %d", ErrInvalidInput, p.ID, i)
		}
		if _, dup := lpTokens[p.LPToken]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePool, p.LPToken)
		}
		pools[i] = p.Clone()
		lpTokens[p.LPToken] = i
		total += p.AllocationWeight
	}

	positions := make(map[positionKey]*domain.Position, len(st.Positions))
	for _, pos := range st.Positions {
		if pos.PoolID < 0 || pos.PoolID >= len(pools) {
			return fmt.Errorf("%w: position in pool %d", ErrPoolNotFound, pos.PoolID)
		}
		positions[positionKey{pos.PoolID, pos.User}] = pos.Clone()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.schedule = sched
	e.pools = pools
	e.lpTokens = lpTokens
	e.positions = positions
	e.totalWeight = total
	e.devFeePpm = st.DevFeePpm
	e.devAddress = st.DevAddress
	e.seq = seq

	e.logger.Info("engine state restored",
		zap.Uint64("seq", seq),
		zap.Int("pools", len(pools)),
		zap.Int("positions", len(positions)),
		zap.Int("stages", sched.Len()))
	return nil
}

// requireOwner checks the admin capability.
func (e *Engine) requireOwner(ctx context.Context, caller domain.Account) error {
	return e.gate.Require(ctx, caller, access.CapOwner)
}
