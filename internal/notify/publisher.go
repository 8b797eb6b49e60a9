// Package notify publishes committed engine operations to a Redis stream.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
)

// DefaultStreamMaxLen caps the stream when no length is configured.
const DefaultStreamMaxLen = 10000

// StreamAdder is the part of the Redis client the publisher uses.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Options configures a Publisher.
type Options struct {
	Stream       string
	MaxLen       int64 // approximate MAXLEN; 0 uses DefaultStreamMaxLen, negative disables
	QueueSize    int   // pending events before OnCommit blocks; 0 is unbounded
	WriteTimeout time.Duration
}

// Publisher is a farm.Observer that appends every commit to a Redis stream.
// Publishing is best effort and happens off the engine lock on a single worker,
// so events keep commit order.
type Publisher struct {
	rdb     StreamAdder
	stream  string
	maxLen  int64
	timeout time.Duration
	pool    pond.Pool
	logger  *zap.Logger
}

// NewPublisher creates a Publisher writing through rdb.
func NewPublisher(rdb StreamAdder, opts Options, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxLen := opts.MaxLen
	if maxLen == 0 {
		maxLen = DefaultStreamMaxLen
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	var poolOpts []pond.Option
	if opts.QueueSize > 0 {
		poolOpts = append(poolOpts, pond.WithQueueSize(opts.QueueSize))
	}

	return &Publisher{
		rdb:     rdb,
		stream:  opts.Stream,
		maxLen:  maxLen,
		timeout: timeout,
		pool:    pond.NewPool(1, poolOpts...),
		logger:  logger,
	}
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Compile-time interface check.
var _ farm.Observer = (*Publisher)(nil)

// OnCommit queues the commit for publishing. It fails only after Close.
func (p *Publisher) OnCommit(_ context.Context, c *farm.Commit) error {
	values, err := Values(c)
	if err != nil {
		return err
	}
	seq := c.Entry.Seq

	return p.pool.Go(func() {
		args := &redis.XAddArgs{
			Stream: p.stream,
			Values: values,
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
			p.logger.Warn("failed to publish commit",
				zap.String("stream", p.stream),
				zap.Uint64("seq", seq),
				zap.Error(err))
		}
	})
}

// Close publishes everything queued and stops the worker.
func (p *Publisher) Close() {
	p.pool.StopAndWait()
}

type amountPair struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

type payoutEvent struct {
	PoolID    int    `json:"pool_id"`
	User      string `json:"user"`
	Gross     string `json:"gross_primary"`
	Fee       string `json:"fee"`
	Net       string `json:"net_primary"`
	Secondary string `json:"secondary"`
}

// Values renders a commit as stream fields.
func Values(c *farm.Commit) (map[string]interface{}, error) {
	e := c.Entry
	v := map[string]interface{}{
		"seq":     strconv.FormatUint(e.Seq, 10),
		"id":      e.ID,
		"kind":    e.Kind.String(),
		"index":   strconv.FormatUint(e.Index, 10),
		"caller":  string(e.Caller),
		"pool_id": strconv.Itoa(e.PoolID),
	}
	if e.User != "" {
		v["user"] = string(e.User)
	}
	if e.Amount != nil {
		v["amount"] = e.Amount.String()
	}

	if len(c.Accruals) > 0 {
		accrued := make(map[string]amountPair, len(c.Accruals))
		for _, a := range c.Accruals {
			accrued[strconv.Itoa(a.PoolID)] = amountPair{
				Primary:   domain.CloneInt(a.PrimaryReward).String(),
				Secondary: domain.CloneInt(a.SecondaryReward).String(),
			}
		}
		data, err := json.Marshal(accrued)
		if err != nil {
			return nil, fmt.Errorf("encode accruals: %w", err)
		}
		v["accrued"] = string(data)
	}

	if len(c.Payouts) > 0 {
		payouts := make([]payoutEvent, len(c.Payouts))
		for i, p := range c.Payouts {
			payouts[i] = payoutEvent{
				PoolID:    p.PoolID,
				User:      string(p.User),
				Gross:     domain.CloneInt(p.GrossPrimary).String(),
				Fee:       domain.CloneInt(p.Fee).String(),
				Net:       domain.CloneInt(p.NetPrimary).String(),
				Secondary: domain.CloneInt(p.Secondary).String(),
			}
		}
		data, err := json.Marshal(payouts)
		if err != nil {
			return nil, fmt.Errorf("encode payouts: %w", err)
		}
		v["payouts"] = string(data)
	}
	return v, nil
}
