// Package main applies the embedded Postgres and ClickHouse migrations.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"stagefarm/internal/app"
	"stagefarm/internal/config"
	"stagefarm/internal/retry"
	"stagefarm/internal/storage/migrations"
)

func main() {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "stagefarm-migrate",
		Short:         "Apply database migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := app.Load(cmd, v)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return migrate(ctx, cfg, logger)
		},
	}
	if err := app.BindFlags(cmd, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Storage.PostgresDSN == "" && cfg.Storage.ClickHouseDSN == "" {
		return errors.New("nothing to migrate: set postgres_dsn or clickhouse_dsn")
	}

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := app.ConnectPostgres(ctx, dsn, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return err
		}
		logger.Info("postgres migrations applied", zap.Strings("applied", applied))
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		err := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "migrate clickhouse", func() error {
			conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
			if err != nil {
				return err
			}
			return conn.Close()
		})
		if err != nil {
			return err
		}
		logger.Info("clickhouse migrations applied")
	}
	return nil
}
