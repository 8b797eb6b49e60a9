// Package main replays the journal and checks every stored snapshot against it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"stagefarm/internal/app"
	"stagefarm/internal/verification"
)

var errDivergent = errors.New("replay diverges from stored snapshots")

func main() {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "stagefarm-verify",
		Short:         "Verify stored snapshots against a replay of the journal",
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

			verifier := verification.NewVerifier(stores.Journal, stores.Snapshots, app.NewReplayer(cfg, logger), logger)
			report, err := verifier.VerifyAll(ctx)
			if err != nil {
				return err
			}
			logger.Info("verification complete",
				zap.Int("entries", report.Entries),
				zap.Int("snapshots", report.TotalSnapshots),
				zap.Int("divergent", report.DivergentSnapshots))

			asJSON, _ := cmd.Flags().GetBool("json")
			if err := printReport(cmd.OutOrStdout(), report, asJSON); err != nil {
				return err
			}
			if !report.OK() {
				return errDivergent
			}
			return nil
		},
	}
	if err := app.BindFlags(cmd, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cmd.Flags().Bool("json", false, "print the report as JSON")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printReport(w io.Writer, r *verification.VerificationReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "entries replayed:    %d\n", r.Entries)
	fmt.Fprintf(w, "snapshots checked:   %d\n", r.TotalSnapshots)
	fmt.Fprintf(w, "snapshots matched:   %d\n", r.MatchedSnapshots)
	fmt.Fprintf(w, "snapshots divergent: %d\n", r.DivergentSnapshots)
	fmt.Fprintf(w, "final seq:           %d\n", r.FinalSeq)
	fmt.Fprintf(w, "final digest:        %s\n", r.FinalDigest)

	for _, res := range r.Results {
		if res.Match {
			continue
		}
		fmt.Fprintf(w, "\nsnapshot %d: stored %s, replayed %s\n", res.Seq, res.StoredDigest, res.ReplayedDigest)
		for _, d := range res.Divergences {
			fmt.Fprintf(w, "  %s: expected %s, got %s\n", d.Field, d.Expected, d.Actual)
		}
	}
	return nil
}
