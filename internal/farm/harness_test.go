package farm

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stagefarm/internal/access"
	"stagefarm/internal/clock"
	"stagefarm/internal/domain"
	"stagefarm/internal/ledger"
	"stagefarm/internal/storage/memory"
)

const (
	owner    domain.Account = "owner"
	custody  domain.Account = "farm"
	treasury domain.Account = "treasury"
	devAddr  domain.Account = "dev"

	alice domain.Account = "alice"
	bob   domain.Account = "bob"
	carol domain.Account = "carol"

	tokenESM domain.TokenID = "ESM"
	tokenESG domain.TokenID = "ESG"
	tokenLP  domain.TokenID = "LP"
	tokenLP2 domain.TokenID = "LP2"
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *clock.ManualClock
	ledger *memory.Ledger
	gate   *access.OwnerGate
	engine *Engine
}

type harnessOption func(*Options)

func withConfig(fn func(*Config)) harnessOption {
	return func(o *Options) { fn(&o.Config) }
}

func withSource(src RewardSource) harnessOption {
	return func(o *Options) { o.Source = src }
}

func withJournal(j Journal) harnessOption {
	return func(o *Options) { o.Journal = j }
}

func withLedger(l ledger.Ledger) harnessOption {
	return func(o *Options) { o.Ledger = l }
}

func withObserver(obs Observer) harnessOption {
	return func(o *Options) { o.Observer = obs }
}

// newHarness builds an engine over a memory ledger that mints rewards into custody,
// with the clock at start.
func newHarness(t *testing.T, start uint64, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		clock:  clock.NewManualClock(start),
		ledger: memory.NewLedger(tokenESM, tokenESG),
		gate:   access.NewOwnerGate(owner),
	}

	o := Options{
		Config: Config{
			PrimaryToken:   tokenESM,
			SecondaryToken: tokenESG,
			Custody:        custody,
		},
		Ledger: h.ledger,
		Gate:   h.gate,
		Clock:  h.clock,
		Source: &MintSource{Custody: custody, PrimaryToken: tokenESM, SecondaryToken: tokenESG},
	}
	for _, opt := range opts {
		opt(&o)
	}

	e, err := New(o)
	require.NoError(t, err)
	h.engine = e
	return h
}

func (h *harness) at(index uint64) *harness {
	h.clock.Set(index)
	return h
}

func (h *harness) stage(start, end uint64, primary, secondary int64) {
	h.t.Helper()
	require.NoError(h.t, h.engine.AppendStage(h.ctx, owner, start, end, big.NewInt(primary), big.NewInt(secondary)))
}

func (h *harness) pool(weight uint64, lp domain.TokenID) int {
	h.t.Helper()
	id, err := h.engine.RegisterPool(h.ctx, owner, weight, lp, false)
	require.NoError(h.t, err)
	return id
}

func (h *harness) fund(token domain.TokenID, acct domain.Account, amount int64) {
	h.ledger.Credit(token, acct, big.NewInt(amount))
}

func (h *harness) deposit(poolID int, user domain.Account, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Deposit(h.ctx, poolID, user, big.NewInt(amount)))
}

func (h *harness) withdraw(poolID int, user domain.Account, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Withdraw(h.ctx, poolID, user, big.NewInt(amount)))
}

func (h *harness) pending(poolID int, user domain.Account) (int64, int64) {
	h.t.Helper()
	r, err := h.engine.PendingReward(h.ctx, poolID, user)
	require.NoError(h.t, err)
	return r.Primary.Int64(), r.Secondary.Int64()
}

func (h *harness) balance(token domain.TokenID, acct domain.Account) int64 {
	h.t.Helper()
	bal, err := h.ledger.BalanceOf(h.ctx, token, acct)
	require.NoError(h.t, err)
	return bal.Int64()
}
