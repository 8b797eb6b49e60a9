package farm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefarm/internal/domain"
	"stagefarm/internal/storage/memory"
)

type recorder struct {
	commits []*Commit
	states  []*domain.State
}

func (r *recorder) OnCommit(_ context.Context, c *Commit) error {
	r.commits = append(r.commits, c)
	r.states = append(r.states, c.State())
	return nil
}

func TestObserver_SeesEveryCommitInOrder(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, 90, withObserver(rec))
	h.stage(100, 199, 12, 6)
	pid := h.pool(100, tokenLP)
	h.fund(tokenLP, bob, 100)
	h.deposit(pid, bob, 100)
	h.at(101).deposit(pid, bob, 0)

	require.Len(t, rec.commits, 4)

	kinds := []domain.EntryKind{
		domain.EntryStageAppended,
		domain.EntryPoolRegistered,
		domain.EntryDeposit,
		domain.EntryClaim,
	}
	ids := make(map[string]struct{})
	for i, c := range rec.commits {
		assert.Equal(t, uint64(i+1), c.Entry.Seq)
		assert.Equal(t, kinds[i], c.Entry.Kind)
		assert.NotEmpty(t, c.Entry.ID)
		ids[c.Entry.ID] = struct{}{}
	}
	assert.Len(t, ids, 4)

	claim := rec.commits[3]
	assert.Equal(t, uint64(101), claim.Entry.Index)
	assert.Equal(t, bob, claim.Entry.User)

	require.Len(t, claim.Accruals, 1)
	acc := claim.Accruals[0]
	assert.Equal(t, uint64(100), acc.FromIndex)
	assert.Equal(t, uint64(101), acc.Index)
	assert.Equal(t, "12", acc.PrimaryReward.String())
	assert.Equal(t, "6", acc.SecondaryReward.String())
	assert.Equal(t, "100", acc.TotalShares.String())

	require.Len(t, claim.Payouts, 1)
	pay := claim.Payouts[0]
	assert.Equal(t, "12", pay.GrossPrimary.String())
	assert.Equal(t, "0", pay.Fee.String())
	assert.Equal(t, "12", pay.NetPrimary.String())
	assert.Equal(t, "6", pay.Secondary.String())

	st := rec.states[3]
	require.Len(t, st.Positions, 1)
	assert.Equal(t, "12", st.Positions[0].PrimaryDebt.String())
	assert.Equal(t, uint64(101), st.Pools[0].LastAccrualIndex)
}

func TestObserver_FailedOperationIsNotObserved(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, 0, withObserver(rec))

	_, err := h.engine.RegisterPool(h.ctx, alice, 1, tokenLP, false)
	require.Error(t, err)
	assert.Empty(t, rec.commits)
}

func TestObserver_ErrorLeavesJournaledCommit(t *testing.T) {
	boom := errors.New("boom")
	journal := memory.NewJournalStore()
	var journaled uint64
	failing := ObserverFunc(func(ctx context.Context, _ *Commit) error {
		last, err := journal.Last(ctx)
		require.NoError(t, err)
		journaled = last
		return boom
	})
	rec := &recorder{}

	h := newHarness(t, 0, withJournal(journal), withObserver(Observers{failing, nil, rec}))
	h.stage(100, 200, 1, 1)

	assert.Equal(t, uint64(1), journaled, "entry is journaled before observers run")
	assert.Len(t, rec.commits, 1, "later observers still run")
	assert.Equal(t, uint64(1), h.engine.Seq())
	assert.Equal(t, 1, h.engine.StageCount())
	assert.NoError(t, h.engine.Halted())
}

func TestObservers_JoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	obs := Observers{
		ObserverFunc(func(context.Context, *Commit) error { return errA }),
		ObserverFunc(func(context.Context, *Commit) error { return nil }),
		ObserverFunc(func(context.Context, *Commit) error { return errB }),
	}

	err := obs.OnCommit(context.Background(), &Commit{})
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Nil(t, (&Commit{}).State())
}
