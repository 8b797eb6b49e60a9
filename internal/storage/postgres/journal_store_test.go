package postgres

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefarm/internal/domain"
	"stagefarm/internal/idhash"
	"stagefarm/internal/storage"
)

func testEntry(seq uint64, kind domain.EntryKind) *domain.JournalEntry {
	e := &domain.JournalEntry{
		Seq:        seq,
		Kind:       kind,
		Index:      1000 + seq,
		Caller:     "alice",
		PoolID:     0,
		User:       "alice",
		Amount:     big.NewInt(int64(seq) * 10),
		RecordedAt: 1700000000000,
	}
	e.ID = idhash.EntryID(e)
	return e
}

func TestJournalStore_AppendAndGetAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewJournalStore(pool)
	ctx := context.Background()

	huge, ok := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	require.True(t, ok)

	stage := &domain.JournalEntry{
		Seq:    1,
		Kind:   domain.EntryStageAppended,
		Index:  ^uint64(0),
		Caller: "owner",
		PoolID: -1,
		Stage: &domain.Stage{
			StartIndex:    100,
			EndIndex:      ^uint64(0),
			PrimaryRate:   huge,
			SecondaryRate: big.NewInt(6),
		},
		RecordedAt: 1700000000000,
	}
	stage.ID = idhash.EntryID(stage)

	register := &domain.JournalEntry{
		Seq:        2,
		Kind:       domain.EntryPoolRegistered,
		Index:      90,
		Caller:     "owner",
		PoolID:     0,
		LPToken:    "LP",
		Weight:     ^uint64(0),
		RecalcAll:  true,
		RecordedAt: 1700000000001,
	}
	register.ID = idhash.EntryID(register)

	require.NoError(t, store.Append(ctx, stage, register))
	require.NoError(t, store.Append(ctx, testEntry(3, domain.EntryDeposit)))

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, stage.ID, got[0].ID)
	assert.Equal(t, ^uint64(0), got[0].Index)
	require.NotNil(t, got[0].Stage)
	assert.Equal(t, ^uint64(0), got[0].Stage.EndIndex)
	assert.Equal(t, huge.String(), got[0].Stage.PrimaryRate.String())
	assert.Nil(t, got[0].Amount)

	assert.Equal(t, domain.TokenID("LP"), got[1].LPToken)
	assert.Equal(t, ^uint64(0), got[1].Weight)
	assert.True(t, got[1].RecalcAll)
	assert.Nil(t, got[1].Stage)

	assert.Equal(t, "30", got[2].Amount.String())
	assert.Equal(t, domain.Account("alice"), got[2].User)

	last, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)
}

func TestJournalStore_GetRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewJournalStore(pool)
	ctx := context.Background()

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, store.Append(ctx, testEntry(seq, domain.EntryClaim)))
	}

	got, err := store.GetRange(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[0].Seq)
	assert.Equal(t, uint64(4), got[2].Seq)

	got, err = store.GetRange(ctx, 4, ^uint64(0))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestJournalStore_Continuity(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewJournalStore(pool)
	ctx := context.Background()

	err := store.Append(ctx, testEntry(2, domain.EntryDeposit))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	require.NoError(t, store.Append(ctx, testEntry(1, domain.EntryDeposit)))

	err = store.Append(ctx, testEntry(1, domain.EntryDeposit))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The valid first entry of a failing batch is rolled back too.
	err = store.Append(ctx, testEntry(2, domain.EntryDeposit), testEntry(4, domain.EntryDeposit))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	last, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)
}
