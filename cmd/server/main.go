// Package main runs the reward engine behind the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"stagefarm/internal/api"
	"stagefarm/internal/app"
	"stagefarm/internal/clock"
	"stagefarm/internal/config"
	"stagefarm/internal/farm"
	"stagefarm/internal/notify"
	"stagefarm/internal/observability"
	"stagefarm/internal/recorder"
	"stagefarm/internal/retry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "stagefarm-server",
		Short:         "Serve the staged reward engine over HTTP",
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
			return run(ctx, cfg, logger)
		},
	}
	if err := app.BindFlags(cmd, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flags := cmd.Flags()
	flags.String("http-addr", ":8080", "HTTP listen address")
	flags.String("clock-mode", config.ClockManual, "clock mode: manual or slot")
	flags.String("ws-endpoint", "", "websocket endpoint of the slot feed")
	flags.Bool("redis", false, "publish commits to the Redis stream")
	for name, key := range map[string]string{
		"http-addr":   "http.addr",
		"clock-mode":  "clock.mode",
		"ws-endpoint": "clock.ws_endpoint",
		"redis":       "redis.enabled",
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	var (
		clk    clock.Clock
		manual *clock.ManualClock
	)
	switch cfg.Clock.Mode {
	case config.ClockSlot:
		sc, err := clock.NewSlotClock(ctx, cfg.Clock.WSEndpoint, nil, logger.Named("clock"))
		if err != nil {
			return fmt.Errorf("start slot clock: %w", err)
		}
		defer sc.Close()
		clk = sc
	default:
		manual = clock.NewManualClock(cfg.Clock.StartIndex)
		clk = manual
	}

	metrics := observability.NewMetrics("", prometheus.NewRegistry())

	rec, err := recorder.New(recorder.Options{
		Snapshots:     stores.Snapshots,
		Accruals:      stores.Accruals,
		Payouts:       stores.Payouts,
		SnapshotEvery: cfg.Snapshot.Every,
		Logger:        logger.Named("recorder"),
	})
	if err != nil {
		return err
	}
	observers := farm.Observers{
		metrics.Named("recorder", rec),
		metrics,
	}

	if cfg.Redis.Enabled {
		var pub *notify.Publisher
		err := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "connect redis", func() error {
			rdb, err := notify.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			pub = notify.NewPublisher(rdb, notify.Options{
				Stream: cfg.Redis.Stream,
				MaxLen: cfg.Redis.MaxLen,
			}, logger.Named("notify"))
			return nil
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		observers = append(observers, metrics.Named("notify", pub))
	}

	eng, gate, err := app.NewEngine(ctx, app.EngineOptions{
		Config:   cfg,
		Stores:   stores,
		Clock:    clk,
		Observer: observers,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	srv := api.NewServer(api.Options{
		Engine:            eng,
		Gate:              gate,
		Clock:             manual,
		Metrics:           metrics,
		PrimaryDecimals:   cfg.Engine.PrimaryDecimals,
		SecondaryDecimals: cfg.Engine.SecondaryDecimals,
		Logger:            logger.Named("api"),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("clock", cfg.Clock.Mode),
			zap.String("reward_source", eng.RewardSourceMode()),
			zap.Uint64("seq", eng.Seq()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("shutdown complete", zap.Uint64("seq", eng.Seq()))
	return nil
}
