package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/hazmat/internal/batch"
	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/report"
	"github.com/opensource-finance/hazmat/internal/rules"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var file string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Measure the lexicon against bookings labelled with expectedIsHazardous",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(cmd, os.Stderr)
			if err != nil {
				return err
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
			outcome, err := runner.Run(cmd.Context(), domain.ModeBestEffort, bookings)
			if err != nil {
				return err
			}

			m := report.Evaluate(bookings, outcome.Items)
			if asJSON {
				return writeOutput("", cmd.OutOrStdout(), evaluation{
					LexiconVersion: outcome.LexiconVersion,
					Metrics:        m,
					Precision:      m.Precision(),
					Recall:         m.Recall(),
					F1:             m.F1(),
					Accuracy:       m.Accuracy(),
				})
			}
			printEvaluation(cmd.OutOrStdout(), outcome.LexiconVersion, m, len(bookings), outcome.Elapsed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `labelled bookings JSON file ("-" for stdin)`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a report")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type evaluation struct {
	LexiconVersion string `json:"lexiconVersion"`
	report.Metrics
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Accuracy  float64 `json:"accuracy"`
}

func printEvaluation(w io.Writer, version string, m report.Metrics, total int, elapsed time.Duration) {
	hazardous := m.TruePositives + m.FalseNegatives
	safe := m.FalsePositives + m.TrueNegatives

	fmt.Fprintln(w, "\nEVALUATION RESULTS")
	fmt.Fprintf(w, "  Lexicon:          %s\n", version)

	fmt.Fprintln(w, "\nDATASET")
	fmt.Fprintf(w, "  Total Bookings:   %d\n", total)
	fmt.Fprintf(w, "  Hazardous:        %d\n", hazardous)
	fmt.Fprintf(w, "  Non-Hazardous:    %d\n", safe)
	fmt.Fprintf(w, "  Unlabeled:        %d\n", m.Unlabeled)
	fmt.Fprintf(w, "  Errors:           %d\n", m.Errors)

	fmt.Fprintln(w, "\nCONFUSION MATRIX")
	fmt.Fprintln(w, "                        Predicted")
	fmt.Fprintln(w, "                    HAZ         SAFE")
	fmt.Fprintln(w, "              +----------+----------+")
	fmt.Fprintf(w, "   Actual  H  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Fprintln(w, "              +----------+----------+")
	fmt.Fprintf(w, "           S  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Fprintln(w, "              +----------+----------+")

	fmt.Fprintln(w, "\nDETECTION METRICS")
	fmt.Fprintf(w, "  Precision:  %.4f  (of flagged bookings, how many were hazardous)\n", m.Precision())
	fmt.Fprintf(w, "  Recall:     %.4f  (of hazardous bookings, how many were flagged)\n", m.Recall())
	fmt.Fprintf(w, "  F1-Score:   %.4f\n", m.F1())
	fmt.Fprintf(w, "  Accuracy:   %.4f\n", m.Accuracy())

	if hazardous > 0 {
		fmt.Fprintf(w, "\n  Hazardous Missed: %d / %d (%.2f%%)\n",
			m.FalseNegatives, hazardous, float64(m.FalseNegatives)/float64(hazardous)*100)
	}
	if safe > 0 {
		fmt.Fprintf(w, "  False Alarms:     %d / %d (%.2f%%)\n",
			m.FalsePositives, safe, float64(m.FalsePositives)/float64(safe)*100)
	}

	fmt.Fprintln(w, "\nPERFORMANCE")
	fmt.Fprintf(w, "  Duration:         %v\n", elapsed.Round(time.Millisecond))
	if elapsed > 0 {
		fmt.Fprintf(w, "  Throughput:       %.0f bookings/sec\n", float64(total)/elapsed.Seconds())
	}
	fmt.Fprintln(w)
}
