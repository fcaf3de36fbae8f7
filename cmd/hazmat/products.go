package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProductsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the product catalog of the lexicon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.load(cmd, os.Stderr); err != nil {
				return err
			}
			store, release, err := a.offlineStore(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			products := store.Current().ListProducts()
			if asJSON {
				return writeOutput("", cmd.OutOrStdout(), products)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tHAZARDOUS")
			for _, p := range products {
				fmt.Fprintf(tw, "%s\t%s\t%t\n", p.ID, p.DisplayName, p.IsHazardous)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
