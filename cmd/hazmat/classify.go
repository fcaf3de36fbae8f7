package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/hazmat/internal/api"
	"github.com/opensource-finance/hazmat/internal/batch"
	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/report"
	"github.com/opensource-finance/hazmat/internal/rules"
)

func newClassifyCmd(a *app) *cobra.Command {
	var file, mode, out string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a JSON array of bookings offline",
		Long: `Classify reads a JSON array of bookings and writes the results.

In fail-fast mode the output is the result array and the first failing
record aborts the run. In best-effort mode the output carries one item per
record plus a summary.`,
		Example: `  hazmat classify --file bookings.json
  hazmat generate --count 1000 | hazmat classify --file - --mode best-effort`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(cmd, os.Stderr)
			if err != nil {
				return err
			}
			batchMode, ok := domain.ParseBatchMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q: use fail-fast or best-effort", mode)
			}

			bookings, err := readBookings(file)
			if err != nil {
				return err
			}

			store, release, err := a.offlineStore(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			runner := batch.NewRunner(rules.NewEngine(store), cfg.Batch)
			outcome, err := runner.Run(cmd.Context(), batchMode, bookings)
			if err != nil {
				return err
			}
			slog.Info("batch classified",
				"mode", outcome.Mode,
				"records", len(bookings),
				"lexicon_version", outcome.LexiconVersion,
				"elapsed", outcome.Elapsed.String(),
			)

			if outcome.Mode == domain.ModeBestEffort {
				return writeOutput(out, cmd.OutOrStdout(), api.BestEffortResponse{
					LexiconVersion: outcome.LexiconVersion,
					Items:          outcome.Items,
					Summary:        report.Summarize(outcome.Items, report.DefaultTopReasons),
				})
			}
			return writeOutput(out, cmd.OutOrStdout(), outcome.Results())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `bookings JSON file ("-" for stdin)`)
	cmd.Flags().StringVar(&mode, "mode", string(domain.ModeFailFast), "fail-fast or best-effort")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
