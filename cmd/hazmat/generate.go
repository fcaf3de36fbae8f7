package main

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/hazmat/internal/generate"
)

func newGenerateCmd(a *app) *cobra.Command {
	opts := generate.DefaultOptions()
	var out string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate mock bookings from the lexicon",
		Long: `Generate writes a JSON array of synthetic bookings. A share of them is
assembled from the lexicon's keywords, phrases and hazardous products, and
some of those also carry a negation phrase.`,
		Example: `  hazmat generate --count 100000 --seed 7 --out bookings.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.load(cmd, os.Stderr); err != nil {
				return err
			}
			store, release, err := a.offlineStore(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			bookings, err := generate.Bookings(store.Current(), opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			bw := bufio.NewWriter(w)
			if err := json.NewEncoder(bw).Encode(bookings); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}

			slog.Info("bookings generated", "count", len(bookings), "out", out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", opts.Count, "number of bookings")
	cmd.Flags().Float64Var(&opts.HazardRate, "hazard-rate", opts.HazardRate, "share of hazardous attempts")
	cmd.Flags().Float64Var(&opts.NegationRate, "negation-rate", opts.NegationRate, "share of hazardous attempts with a negation")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
