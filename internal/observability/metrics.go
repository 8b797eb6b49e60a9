// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Engine metrics
	CommitsTotal     *prometheus.CounterVec
	JournalSeq       prometheus.Gauge
	ClockIndex       prometheus.Gauge
	PoolsRegistered  prometheus.Gauge
	AccrualsTotal    *prometheus.CounterVec
	RewardAccrued    *prometheus.CounterVec
	PayoutsTotal     *prometheus.CounterVec
	RewardPaid       *prometheus.CounterVec
	DevFeesPaid      prometheus.Counter
	ObserverFailures *prometheus.CounterVec

	// API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg creates a private registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "stagefarm"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		CommitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "commits_total",
			Help:      "Total number of committed operations by kind",
		}, []string{"kind"}),
		JournalSeq: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "journal_seq",
			Help:      "Sequence number of the last committed operation",
		}),
		ClockIndex: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "clock_index",
			Help:      "Clock index of the last committed operation",
		}),
		PoolsRegistered: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "pools",
			Help:      "Number of registered pools",
		}),
		AccrualsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "accruals_total",
			Help:      "Total number of accumulator advances by pool",
		}, []string{"pool"}),
		RewardAccrued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "accrued_units_total",
			Help:      "Reward units accrued to pools by pool and token",
		}, []string{"pool", "token"}),
		PayoutsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "payouts_total",
			Help:      "Total number of settlements by pool",
		}, []string{"pool"}),
		RewardPaid: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "paid_units_total",
			Help:      "Reward units paid to users by pool and token",
		}, []string{"pool", "token"}),
		DevFeesPaid: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "dev_fee_units_total",
			Help:      "Primary reward units paid to the developer address",
		}),
		ObserverFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "observer_failures_total",
			Help:      "Total number of failed commit observers by observer",
		}, []string{"observer"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"route", "method"}),

		registry: reg,
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Compile-time interface check.
var _ farm.Observer = (*Metrics)(nil)

// OnCommit records a committed operation.
func (m *Metrics) OnCommit(_ context.Context, c *farm.Commit) error {
	e := c.Entry
	m.CommitsTotal.WithLabelValues(e.Kind.String()).Inc()
	m.JournalSeq.Set(float64(e.Seq))
	m.ClockIndex.Set(float64(e.Index))
	if e.Kind == domain.EntryPoolRegistered {
		m.PoolsRegistered.Set(float64(e.PoolID + 1))
	}

	for _, a := range c.Accruals {
		pool := strconv.Itoa(a.PoolID)
		m.AccrualsTotal.WithLabelValues(pool).Inc()
		m.RewardAccrued.WithLabelValues(pool, "primary").Add(units(a.PrimaryReward))
		m.RewardAccrued.WithLabelValues(pool, "secondary").Add(units(a.SecondaryReward))
	}
	for _, p := range c.Payouts {
		pool := strconv.Itoa(p.PoolID)
		m.PayoutsTotal.WithLabelValues(pool).Inc()
		m.RewardPaid.WithLabelValues(pool, "primary").Add(units(p.NetPrimary))
		m.RewardPaid.WithLabelValues(pool, "secondary").Add(units(p.Secondary))
		m.DevFeesPaid.Add(units(p.Fee))
	}
	return nil
}

// Named wraps obs so that its failures are counted under name.
func (m *Metrics) Named(name string, obs farm.Observer) farm.Observer {
	return farm.ObserverFunc(func(ctx context.Context, c *farm.Commit) error {
		err := obs.OnCommit(ctx, c)
		if err != nil {
			m.ObserverFailures.WithLabelValues(name).Inc()
		}
		return err
	})
}

// RecordHTTPRequest records one API request.
func (m *Metrics) RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// units converts an amount to a float for counters; precision loss is acceptable here.
func units(x *big.Int) float64 {
	if x == nil || x.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
