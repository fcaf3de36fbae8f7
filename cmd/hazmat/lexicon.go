package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
	"github.com/opensource-finance/hazmat/internal/repository"
)

func newLexiconCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Validate and manage lexicon versions",
	}
	cmd.AddCommand(
		newLexiconValidateCmd(a),
		newLexiconImportCmd(a),
		newLexiconListCmd(a),
		newLexiconActivateCmd(a),
	)
	return cmd
}

func newLexiconValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a lexicon document loads, including every regex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.load(cmd, os.Stderr); err != nil {
				return err
			}
			lex, err := lexicon.LoadFile(args[0])
			if err != nil {
				return err
			}
			printSummary(cmd, lex.Summary())
			return nil
		},
	}
}

func newLexiconImportCmd(a *app) *cobra.Command {
	var version, notes string
	var activate bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a lexicon document as a new version in the repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd, os.Stderr)
			if err != nil {
				return err
			}

			format, err := lexicon.FormatFromPath(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			lex, err := lexicon.Load(data, format)
			if err != nil {
				return err
			}
			if version == "" {
				version = lex.Version()
			}
			if version == "" {
				return fmt.Errorf("document has no version: pass --version")
			}
			if notes == "" {
				notes = lex.Notes()
			}

			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			rec := &domain.LexiconRecord{
				Version:  version,
				Notes:    notes,
				Format:   string(format),
				Document: data,
				Active:   activate,
			}
			if err := repo.SaveLexicon(cmd.Context(), rec); err != nil {
				return err
			}

			state := "stored"
			if activate {
				state = "stored and activated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lexicon %s %s\n", version, state)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version label (default: the document's version)")
	cmd.Flags().StringVar(&notes, "notes", "", "release notes (default: the document's notes)")
	cmd.Flags().BoolVar(&activate, "activate", false, "make this the active version")
	return cmd
}

func newLexiconListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored lexicon versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(cmd, os.Stderr)
			if err != nil {
				return err
			}
			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			records, err := repo.ListLexicons(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No lexicon versions stored.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tFORMAT\tACTIVE\tUPDATED\tNOTES")
			for _, rec := range records {
				active := ""
				if rec.Active {
					active = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					rec.Version, rec.Format, active, rec.UpdatedAt.Format(time.RFC3339), rec.Notes)
			}
			return tw.Flush()
		},
	}
}

func newLexiconActivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <version>",
		Short: "Make a stored version the active lexicon",
		Long: `Activate marks one stored version as active. A running service with
lexicon.source=repository picks it up on POST /api/identifier/lexicon/reload.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd, os.Stderr)
			if err != nil {
				return err
			}
			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			if err := repo.ActivateLexicon(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to activate %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lexicon %s activated\n", args[0])
			return nil
		},
	}
}

func printSummary(cmd *cobra.Command, s domain.LexiconSummary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "version:   %s\n", s.Version)
	if s.Notes != "" {
		fmt.Fprintf(w, "notes:     %s\n", s.Notes)
	}
	fmt.Fprintf(w, "products:  %d\n", s.Products)
	fmt.Fprintf(w, "keywords:  %d\n", s.Keywords)
	fmt.Fprintf(w, "bigrams:   %d\n", s.Bigrams)
	fmt.Fprintf(w, "negations: %d\n", s.Negations)
	fmt.Fprintf(w, "regex:     %d\n", s.Regex)
}
