package recorder_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefarm/internal/access"
	"stagefarm/internal/clock"
	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
	"stagefarm/internal/recorder"
	"stagefarm/internal/storage"
	"stagefarm/internal/storage/memory"
	"stagefarm/internal/verification"
)

const (
	owner   domain.Account = "owner"
	custody domain.Account = "farm"
	alice   domain.Account = "alice"
)

type stores struct {
	journal   *memory.JournalStore
	snapshots *memory.SnapshotStore
	accruals  *memory.AccrualStore
	payouts   *memory.PayoutStore
}

func newStores() *stores {
	return &stores{
		journal:   memory.NewJournalStore(),
		snapshots: memory.NewSnapshotStore(),
		accruals:  memory.NewAccrualStore(),
		payouts:   memory.NewPayoutStore(),
	}
}

func newEngine(t *testing.T, clk *clock.ManualClock, journal farm.Journal, obs farm.Observer) (*farm.Engine, *memory.Ledger) {
	t.Helper()
	l := memory.NewLedger("ESM", "ESG")
	l.Credit("LP", alice, big.NewInt(1_000))

	eng, err := farm.New(farm.Options{
		Config:   farm.Config{PrimaryToken: "ESM", SecondaryToken: "ESG", Custody: custody},
		Ledger:   l,
		Gate:     access.NewOwnerGate(owner),
		Clock:    clk,
		Source:   &farm.MintSource{Custody: custody, PrimaryToken: "ESM", SecondaryToken: "ESG"},
		Journal:  journal,
		Observer: obs,
	})
	require.NoError(t, err)
	return eng, l
}

func TestRecorder_PersistsCommits(t *testing.T) {
	ctx := context.Background()
	s := newStores()
	rec, err := recorder.New(recorder.Options{
		Snapshots:     s.snapshots,
		Accruals:      s.accruals,
		Payouts:       s.payouts,
		SnapshotEvery: 2,
	})
	require.NoError(t, err)

	clk := clock.NewManualClock(100)
	eng, _ := newEngine(t, clk, s.journal, rec)

	require.NoError(t, eng.AppendStage(ctx, owner, 100, 199, big.NewInt(12), big.NewInt(6)))
	_, err = eng.RegisterPool(ctx, owner, 1, "LP", false)
	require.NoError(t, err)
	require.NoError(t, eng.Deposit(ctx, 0, alice, big.NewInt(100)))
	clk.Set(103)
	require.NoError(t, eng.Claim(ctx, 0, alice))

	entries, err := s.journal.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, domain.EntryClaim, entries[3].Kind)
	assert.Equal(t, uint64(103), entries[3].Index)

	snaps, err := s.snapshots.List(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, uint64(2), snaps[0].Seq)
	assert.Equal(t, uint64(4), snaps[1].Seq)
	assert.Equal(t, uint64(103), snaps[1].Index)

	st, err := verification.Decode(snaps[1].State)
	require.NoError(t, err)
	require.Len(t, st.Positions, 1)
	assert.Equal(t, "36", st.Positions[0].PrimaryDebt.String())

	live := eng.State()
	digest, err := verification.Digest(live)
	require.NoError(t, err)
	assert.Equal(t, digest, snaps[1].Digest)

	points, err := s.accruals.GetByPool(ctx, 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, uint64(4), points[0].Seq)
	assert.Equal(t, "36", points[0].PrimaryReward.String())

	payouts, err := s.payouts.GetByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, "36", payouts[0].NetPrimary.String())
	assert.Equal(t, "18", payouts[0].Secondary.String())
}

func TestRecorder_SnapshotUsesEntryIndex(t *testing.T) {
	ctx := context.Background()
	s := newStores()
	rec, err := recorder.New(recorder.Options{Snapshots: s.snapshots, SnapshotEvery: 1})
	require.NoError(t, err)

	clk := clock.NewManualClock(50)
	// Move the clock while the commit is being recorded.
	moving := farm.Observers{farm.ObserverFunc(func(context.Context, *farm.Commit) error {
		clk.Advance(1)
		return nil
	}), rec}
	eng, _ := newEngine(t, clk, s.journal, moving)

	require.NoError(t, eng.AppendStage(ctx, owner, 100, 199, big.NewInt(1), big.NewInt(1)))
	require.NoError(t, eng.SetDevFee(ctx, owner, 10))

	snap, err := s.snapshots.GetBySeq(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(51), snap.Index)
	assert.Equal(t, uint64(52), clk.Now())
}

type failingAccruals struct {
	storage.AccrualStore
}

func (failingAccruals) InsertBulk(context.Context, []*domain.AccrualPoint) error {
	return errors.New("disk full")
}

func TestRecorder_HistoryFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newStores()
	rec, err := recorder.New(recorder.Options{
		Snapshots:     s.snapshots,
		Accruals:      failingAccruals{s.accruals},
		Payouts:       s.payouts,
		SnapshotEvery: 4,
	})
	require.NoError(t, err)

	var recordErr error
	obs := farm.ObserverFunc(func(ctx context.Context, c *farm.Commit) error {
		recordErr = rec.OnCommit(ctx, c)
		return recordErr
	})

	clk := clock.NewManualClock(100)
	eng, _ := newEngine(t, clk, s.journal, obs)
	require.NoError(t, eng.AppendStage(ctx, owner, 100, 199, big.NewInt(12), big.NewInt(6)))
	_, err = eng.RegisterPool(ctx, owner, 1, "LP", false)
	require.NoError(t, err)
	require.NoError(t, eng.Deposit(ctx, 0, alice, big.NewInt(100)))
	clk.Set(103)
	// The claim is journaled even though its accrual point is lost.
	require.NoError(t, eng.Claim(ctx, 0, alice))
	require.ErrorContains(t, recordErr, "accruals seq 4")

	last, err := s.journal.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), last)

	snap, err := s.snapshots.GetBySeq(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(103), snap.Index)

	payouts, err := s.payouts.GetByUser(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, payouts, 1)
}

func TestNew_Validation(t *testing.T) {
	_, err := recorder.New(recorder.Options{})
	assert.Error(t, err)

	_, err = recorder.New(recorder.Options{Accruals: memory.NewAccrualStore(), SnapshotEvery: 5})
	assert.Error(t, err)
}
