package verification

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefarm/internal/domain"
)

func sampleState() *domain.State {
	acc, _ := new(big.Int).SetString("340282366920938463463374607431768211457", 10)
	return &domain.State{
		Index: 316,
		Stages: []domain.Stage{
			{StartIndex: 100, EndIndex: 199, PrimaryRate: big.NewInt(12), SecondaryRate: big.NewInt(6)},
		},
		Pools: []*domain.Pool{
			{ID: 0, LPToken: "LP", AllocationWeight: 100, LastAccrualIndex: 316, AccPrimaryPerShare: acc, AccSecondaryPerShare: big.NewInt(7)},
		},
		Positions: []*domain.Position{
			{PoolID: 0, User: "alice", Amount: big.NewInt(10), PrimaryDebt: big.NewInt(433), SecondaryDebt: new(big.Int)},
			{PoolID: 0, User: "bob", Amount: big.NewInt(20), PrimaryDebt: new(big.Int), SecondaryDebt: new(big.Int)},
		},
		TotalWeight: 100,
		DevFeePpm:   50_000,
		DevAddress:  "dev",
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a, err := Encode(sampleState())
	require.NoError(t, err)
	b, err := Encode(sampleState())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Amounts equal in value but built differently encode the same.
	st := sampleState()
	st.Positions[1].PrimaryDebt = new(big.Int).Sub(big.NewInt(5), big.NewInt(5))
	c, err := Encode(st)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestDecode_RoundTrip(t *testing.T) {
	want := sampleState()
	data, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, CompareStates(want, got))
	assert.Equal(t, "340282366920938463463374607431768211457", got.Pools[0].AccPrimaryPerShare.String())
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrMalformedState)

	w := wireState{Pools: []wirePool{{AccPrimary: "12x", AccSecondary: "0"}}}
	data, err := encMode.Marshal(w)
	require.NoError(t, err)
	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrMalformedState)
}

func TestDigest(t *testing.T) {
	d1, err := Digest(sampleState())
	require.NoError(t, err)
	assert.Len(t, d1, 64)

	st := sampleState()
	st.Positions[0].Amount.SetInt64(11)
	d2, err := Digest(st)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

func TestNewSnapshot(t *testing.T) {
	snap, err := NewSnapshot(42, sampleState())
	require.NoError(t, err)

	assert.Equal(t, uint64(42), snap.Seq)
	assert.Equal(t, uint64(316), snap.Index)
	assert.Equal(t, DigestBytes(snap.State), snap.Digest)
}

func TestCompareStates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.State)
		fields []string
	}{
		{
			name:   "identical",
			mutate: func(*domain.State) {},
		},
		{
			name:   "accumulator",
			mutate: func(s *domain.State) { s.Pools[0].AccSecondaryPerShare = big.NewInt(8) },
			fields: []string{"pools[0].acc_secondary"},
		},
		{
			name: "position debt and fee",
			mutate: func(s *domain.State) {
				s.Positions[0].PrimaryDebt = big.NewInt(432)
				s.DevFeePpm = 0
			},
			fields: []string{"dev_fee_ppm", "positions[0/alice].primary_debt"},
		},
		{
			name:   "missing position",
			mutate: func(s *domain.State) { s.Positions = s.Positions[:1] },
			fields: []string{"positions[0/bob]"},
		},
		{
			name: "extra position",
			mutate: func(s *domain.State) {
				s.Positions = append(s.Positions, domain.NewPosition(0, "carol"))
			},
			fields: []string{"positions[0/carol]"},
		},
		{
			name:   "pool count",
			mutate: func(s *domain.State) { s.Pools = nil },
			fields: []string{"pools.len"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replayed := sampleState()
			tt.mutate(replayed)

			var fields []string
			for _, d := range CompareStates(sampleState(), replayed) {
				fields = append(fields, d.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}
