package observability

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
)

func TestMetrics_OnCommit(t *testing.T) {
	m := NewMetrics("", nil)

	c := &farm.Commit{
		Entry: &domain.JournalEntry{Seq: 7, Kind: domain.EntryClaim, Index: 316, PoolID: 0},
		Accruals: []*domain.AccrualPoint{
			{PoolID: 0, PrimaryReward: big.NewInt(100), SecondaryReward: big.NewInt(10)},
		},
		Payouts: []*domain.Payout{
			{PoolID: 0, GrossPrimary: big.NewInt(433), Fee: big.NewInt(21), NetPrimary: big.NewInt(412), Secondary: big.NewInt(43)},
		},
	}
	require.NoError(t, m.OnCommit(context.Background(), c))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("claim")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.JournalSeq))
	assert.Equal(t, 316.0, testutil.ToFloat64(m.ClockIndex))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccrualsTotal.WithLabelValues("0")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.RewardAccrued.WithLabelValues("0", "primary")))
	assert.Equal(t, 412.0, testutil.ToFloat64(m.RewardPaid.WithLabelValues("0", "primary")))
	assert.Equal(t, 43.0, testutil.ToFloat64(m.RewardPaid.WithLabelValues("0", "secondary")))
	assert.Equal(t, 21.0, testutil.ToFloat64(m.DevFeesPaid))
}

func TestMetrics_PoolsRegistered(t *testing.T) {
	m := NewMetrics("", nil)
	for id := 0; id < 3; id++ {
		require.NoError(t, m.OnCommit(context.Background(), &farm.Commit{
			Entry: &domain.JournalEntry{Seq: uint64(id + 1), Kind: domain.EntryPoolRegistered, PoolID: id},
		}))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PoolsRegistered))
}

func TestMetrics_Named(t *testing.T) {
	m := NewMetrics("", nil)
	boom := errors.New("boom")
	obs := m.Named("journal", farm.ObserverFunc(func(context.Context, *farm.Commit) error {
		return boom
	}))

	err := obs.OnCommit(context.Background(), &farm.Commit{Entry: &domain.JournalEntry{}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObserverFailures.WithLabelValues("journal")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("farmtest", nil)
	m.RecordHTTPRequest("/v1/pools", http.MethodGet, http.StatusOK, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `farmtest_api_requests_total{method="GET",route="/v1/pools",status="200"} 1`), body)
}
