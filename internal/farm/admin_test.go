package farm

import (
	"context"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefarm/internal/access"
	"stagefarm/internal/clock"
	"stagefarm/internal/domain"
	"stagefarm/internal/storage/memory"
)

func TestNew_Validation(t *testing.T) {
	base := func() Options {
		return Options{
			Config: Config{PrimaryToken: tokenESM, SecondaryToken: tokenESG, Custody: custody},
			Ledger: memory.NewLedger(),
			Gate:   access.NewOwnerGate(owner),
			Clock:  clock.NewManualClock(0),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr error
	}{
		{"valid", func(*Options) {}, nil},
		{"missing custody", func(o *Options) { o.Config.Custody = "" }, ErrInvalidInput},
		{"missing reward token", func(o *Options) { o.Config.SecondaryToken = "" }, ErrInvalidInput},
		{"fee too high", func(o *Options) {
			o.Config.DevAddress = devAddr
			o.Config.DevFeePpm = FeeDenominator + 1
		}, ErrInvalidFee},
		{"fee without address", func(o *Options) { o.Config.DevFeePpm = 10 }, ErrInvalidInput},
		{"missing ledger", func(o *Options) { o.Ledger = nil }, ErrInvalidInput},
		{"missing clock", func(o *Options) { o.Clock = nil }, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base()
			tt.mutate(&o)
			e, err := New(o)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, SourcePrefunded, e.RewardSourceMode())
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAdmin_RequiresOwner(t *testing.T) {
	h := newHarness(t, 0)
	h.stage(100, 200, 1, 1)
	pid := h.pool(10, tokenLP)
	ctx := h.ctx

	checks := map[string]func() error{
		"append stage": func() error {
			return h.engine.AppendStage(ctx, alice, 201, 300, big.NewInt(1), big.NewInt(1))
		},
		"register pool": func() error {
			_, err := h.engine.RegisterPool(ctx, alice, 10, tokenLP2, false)
			return err
		},
		"update weight": func() error { return h.engine.UpdatePoolWeight(ctx, alice, pid, 5, false) },
		"set dev fee":   func() error { return h.engine.SetDevFee(ctx, alice, 0) },
		"set dev addr":  func() error { return h.engine.SetDevAddress(ctx, alice, devAddr) },
		"transfer":      func() error { return h.engine.TransferOwnership(ctx, alice, alice) },
	}

	for name, fn := range checks {
		t.Run(name, func(t *testing.T) {
			seq := h.engine.Seq()
			assert.ErrorIs(t, fn(), ErrUnauthorized)
			assert.Equal(t, seq, h.engine.Seq())
		})
	}

	assert.Equal(t, 1, h.engine.StageCount())
	assert.Equal(t, 1, h.engine.PoolLength())
	assert.Equal(t, uint64(10), h.engine.TotalAllocationWeight())
}

func TestAdmin_AppendStage(t *testing.T) {
	h := newHarness(t, 0)
	h.stage(100, 199, 12, 6)

	err := h.engine.AppendStage(h.ctx, owner, 201, 300, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNonAdjacent)

	err = h.engine.AppendStage(h.ctx, owner, 200, 199, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidRange)

	h.stage(200, 299, 4, 2)
	require.Equal(t, 2, h.engine.StageCount())

	st, err := h.engine.Stage(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), st.StartIndex)
	assert.Equal(t, "4", st.PrimaryRate.String())

	_, err = h.engine.Stage(2)
	assert.ErrorIs(t, err, ErrStageNotFound)
}

func TestAdmin_RegisterPool(t *testing.T) {
	h := newHarness(t, 50)
	h.stage(100, 199, 12, 6)

	_, err := h.engine.RegisterPool(h.ctx, owner, 0, tokenLP, false)
	assert.ErrorIs(t, err, ErrZeroTotalWeight)

	_, err = h.engine.RegisterPool(h.ctx, owner, 10, tokenESM, false)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.engine.RegisterPool(h.ctx, owner, 10, "", false)
	assert.ErrorIs(t, err, ErrInvalidInput)

	first := h.pool(10, tokenLP)
	assert.Equal(t, 0, first)

	_, err = h.engine.RegisterPool(h.ctx, owner, 10, tokenLP, false)
	assert.ErrorIs(t, err, ErrDuplicatePool)

	// A zero-weight pool is fine once the total is positive.
	second := h.pool(0, tokenLP2)
	assert.Equal(t, 1, second)
	assert.Equal(t, uint64(10), h.engine.TotalAllocationWeight())

	p, err := h.engine.Pool(first)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), p.LastAccrualIndex, "accrual starts at the schedule start")

	// Registered after the schedule started: accrual starts now.
	p2, err := h.at(150).engine.RegisterPool(h.ctx, owner, 5, "LP3", false)
	require.NoError(t, err)
	pool, err := h.engine.Pool(p2)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), pool.LastAccrualIndex)

	_, err = h.engine.RegisterPool(h.ctx, owner, math.MaxUint64, "LP4", false)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 3, h.engine.PoolLength())
}

func TestAdmin_UpdatePoolWeight(t *testing.T) {
	h := newHarness(t, 0)
	pid := h.pool(10, tokenLP)

	err := h.engine.UpdatePoolWeight(h.ctx, owner, pid, 0, false)
	assert.ErrorIs(t, err, ErrZeroTotalWeight)

	err = h.engine.UpdatePoolWeight(h.ctx, owner, 7, 1, false)
	assert.ErrorIs(t, err, ErrPoolNotFound)

	require.NoError(t, h.engine.UpdatePoolWeight(h.ctx, owner, pid, 30, false))
	assert.Equal(t, uint64(30), h.engine.TotalAllocationWeight())

	p, err := h.engine.Pool(pid)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), p.AllocationWeight)
}

func TestAdmin_DevFee(t *testing.T) {
	h := newHarness(t, 0)

	err := h.engine.SetDevFee(h.ctx, owner, 10)
	assert.ErrorIs(t, err, ErrInvalidInput, "fee needs a recipient")

	err = h.engine.SetDevAddress(h.ctx, owner, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, h.engine.SetDevAddress(h.ctx, owner, devAddr))

	err = h.engine.SetDevFee(h.ctx, owner, FeeDenominator+1)
	assert.ErrorIs(t, err, ErrInvalidFee)

	require.NoError(t, h.engine.SetDevFee(h.ctx, owner, FeeDenominator))
	assert.Equal(t, uint32(FeeDenominator), h.engine.DevFeePpm())
	assert.Equal(t, devAddr, h.engine.DevAddress())

	cfg := h.engine.Config()
	assert.Equal(t, uint32(FeeDenominator), cfg.DevFeePpm)
	assert.Equal(t, devAddr, cfg.DevAddress)
}

func TestAdmin_TransferOwnership(t *testing.T) {
	h := newHarness(t, 0)

	require.NoError(t, h.engine.TransferOwnership(h.ctx, owner, alice))
	assert.Equal(t, alice, h.gate.Owner())

	_, err := h.engine.RegisterPool(h.ctx, owner, 10, tokenLP, false)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.engine.RegisterPool(h.ctx, alice, 10, tokenLP, false)
	assert.NoError(t, err)

	err = h.engine.TransferOwnership(h.ctx, alice, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, alice, h.gate.Owner())
	assert.Equal(t, uint64(2), h.engine.Seq())
}

func TestAdmin_TransferOwnershipUnsupportedGate(t *testing.T) {
	e, err := New(Options{
		Config: Config{PrimaryToken: tokenESM, SecondaryToken: tokenESG, Custody: custody},
		Ledger: memory.NewLedger(),
		Gate:   access.Open{},
		Clock:  clock.NewManualClock(0),
	})
	require.NoError(t, err)

	err = e.TransferOwnership(context.Background(), owner, alice)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, e.Seq())
}

func TestEngine_StateRestore(t *testing.T) {
	h := newHarness(t, 90)
	h.stage(100, 1000, 100, 10)
	a := h.pool(100, tokenLP)
	b := h.pool(50, tokenLP2)
	h.fund(tokenLP, alice, 10)
	h.fund(tokenLP2, bob, 10)
	h.deposit(a, alice, 10)
	h.deposit(b, bob, 4)
	h.at(130).deposit(b, bob, 6)

	st := h.engine.State()
	require.Len(t, st.Pools, 2)
	require.Len(t, st.Positions, 2)
	assert.Equal(t, alice, st.Positions[0].User)
	assert.Equal(t, uint64(150), st.TotalWeight)

	restored, err := New(Options{
		Config: h.engine.Config(),
		Ledger: h.ledger,
		Gate:   h.gate,
		Clock:  h.clock,
		Source: &MintSource{Custody: custody, PrimaryToken: tokenESM, SecondaryToken: tokenESG},
	})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(st, h.engine.Seq()))

	assert.Equal(t, h.engine.Seq(), restored.Seq())
	assert.Equal(t, h.engine.TotalAllocationWeight(), restored.TotalAllocationWeight())

	h.at(170)
	for _, k := range []struct {
		pool int
		user domain.Account
	}{{a, alice}, {b, bob}} {
		want, err := h.engine.PendingReward(h.ctx, k.pool, k.user)
		require.NoError(t, err)
		got, err := restored.PendingReward(h.ctx, k.pool, k.user)
		require.NoError(t, err)
		assert.Zero(t, want.Primary.Cmp(got.Primary), "%s primary", k.user)
		assert.Zero(t, want.Secondary.Cmp(got.Secondary), "%s secondary", k.user)
	}

	_, err = restored.RegisterPool(h.ctx, owner, 1, tokenLP, false)
	assert.ErrorIs(t, err, ErrDuplicatePool)
}

func TestEngine_RestoreRejectsBrokenState(t *testing.T) {
	h := newHarness(t, 0)

	bad := &domain.State{
		Pools: []*domain.Pool{domain.NewPool(1, tokenLP, 1, 0)},
	}
	assert.ErrorIs(t, h.engine.Restore(bad, 1), ErrInvalidInput)

	bad = &domain.State{
		Stages: []domain.Stage{
			{StartIndex: 10, EndIndex: 20, PrimaryRate: big.NewInt(1), SecondaryRate: big.NewInt(1)},
			{StartIndex: 30, EndIndex: 40, PrimaryRate: big.NewInt(1), SecondaryRate: big.NewInt(1)},
		},
	}
	assert.ErrorIs(t, h.engine.Restore(bad, 1), ErrNonAdjacent)
	assert.Zero(t, h.engine.Seq())
}
