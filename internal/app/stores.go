// Package app wires configuration, storage and the engine for the binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stagefarm/internal/config"
	"stagefarm/internal/ledger"
	"stagefarm/internal/retry"
	"stagefarm/internal/storage"
	chstore "stagefarm/internal/storage/clickhouse"
	"stagefarm/internal/storage/memory"
	"stagefarm/internal/storage/postgres"
)

// Stores holds the storage backends selected by configuration.
type Stores struct {
	Journal   storage.JournalStore
	Snapshots storage.SnapshotStore
	Accruals  storage.AccrualStore
	Payouts   storage.PayoutStore
	Ledger    ledger.Ledger

	// Persistent reports whether the journal outlives the process.
	Persistent bool

	closers []func()
}

// OpenStores connects the configured backends. Memory mode keeps everything in process;
// postgres mode stores the journal, snapshots and balances in Postgres. Accrual and
// payout history go to ClickHouse whenever a ClickHouse DSN is set.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stores{}

	switch cfg.Storage.Mode {
	case config.StoragePostgres:
		pool, err := ConnectPostgres(ctx, cfg.Storage.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		s.Journal = postgres.NewJournalStore(pool)
		s.Snapshots = postgres.NewSnapshotStore(pool)
		s.Ledger = postgres.NewLedger(pool, cfg.MintableTokens()...)
		s.Persistent = true
	default:
		s.Journal = memory.NewJournalStore()
		s.Snapshots = memory.NewSnapshotStore()
		s.Ledger = memory.NewLedger(cfg.MintableTokens()...)
	}

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := ConnectClickHouse(ctx, cfg.Storage.ClickHouseDSN, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.Accruals = chstore.NewAccrualStore(conn)
		s.Payouts = chstore.NewPayoutStore(conn)
	} else {
		s.Accruals = memory.NewAccrualStore()
		s.Payouts = memory.NewPayoutStore()
	}

	logger.Info("storage opened",
		zap.String("mode", cfg.Storage.Mode),
		zap.Bool("clickhouse", cfg.Storage.ClickHouseDSN != ""))
	return s, nil
}

// Close releases backend connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// ConnectPostgres opens a Postgres pool, retrying while the server comes up.
func ConnectPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*postgres.Pool, error) {
	var pool *postgres.Pool
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "connect postgres", func() error {
		p, err := postgres.NewPool(ctx, dsn)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// ConnectClickHouse opens a ClickHouse connection, retrying while the server comes up.
func ConnectClickHouse(ctx context.Context, dsn string, logger *zap.Logger) (*chstore.Conn, error) {
	var conn *chstore.Conn
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "connect clickhouse", func() error {
		c, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	return conn, nil
}
