// Package main rebuilds engine state from the journal and prints its digest.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"stagefarm/internal/app"
	"stagefarm/internal/farm"
	"stagefarm/internal/verification"
)

type result struct {
	Seq       uint64 `json:"seq"`
	Index     uint64 `json:"index"`
	Pools     int    `json:"pools"`
	Stages    int    `json:"stages"`
	Positions int    `json:"positions"`
	Digest    string `json:"digest"`
}

func main() {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "stagefarm-replay",
		Short:         "Rebuild engine state from the operation journal",
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

			stores, err := app.OpenStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			runner := app.NewRunner(cfg, stores, logger)
			var eng *farm.Engine
			if full, _ := cmd.Flags().GetBool("full"); full {
				eng, err = runner.RunAll(ctx, nil)
			} else {
				eng, err = runner.Rebuild(ctx)
			}
			if err != nil {
				return err
			}

			st := eng.State()
			digest, err := verification.Digest(st)
			if err != nil {
				return err
			}
			res := result{
				Seq:       eng.Seq(),
				Index:     st.Index,
				Pools:     len(st.Pools),
				Stages:    len(st.Stages),
				Positions: len(st.Positions),
				Digest:    digest,
			}
			logger.Info("replay complete", zap.Uint64("seq", res.Seq), zap.String("digest", res.Digest))

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "seq:       %d\n", res.Seq)
			fmt.Fprintf(out, "index:     %d\n", res.Index)
			fmt.Fprintf(out, "stages:    %d\n", res.Stages)
			fmt.Fprintf(out, "pools:     %d\n", res.Pools)
			fmt.Fprintf(out, "positions: %d\n", res.Positions)
			fmt.Fprintf(out, "digest:    %s\n", res.Digest)
			return nil
		},
	}
	if err := app.BindFlags(cmd, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cmd.Flags().Bool("full", false, "replay from the first entry instead of the latest snapshot")
	cmd.Flags().Bool("json", false, "print the result as JSON")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
