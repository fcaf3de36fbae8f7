package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/hazmat/internal/config"
	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
	"github.com/opensource-finance/hazmat/internal/repository"
)

// app carries state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *domain.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "hazmat",
		Short: "Hazardous booking classification",
		Long: `Hazmat scores free-text booking records against a weighted rule lexicon
and flags the ones that look like hazardous material.

Configuration is layered: tier defaults, then the --config file, then
HAZMAT_* environment variables, then flags.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.Bool("debug", false, "enable debug logging (or set HAZMAT_DEBUG=true)")
	pf.String("lexicon", "", "lexicon file, overrides lexicon.path and forces the file source")
	_ = a.v.BindPFlag("debug", pf.Lookup("debug"))
	_ = a.v.BindPFlag("lexicon.path", pf.Lookup("lexicon"))

	root.AddCommand(
		newServeCmd(a),
		newClassifyCmd(a),
		newProductsCmd(a),
		newLexiconCmd(a),
		newEvaluateCmd(a),
		newGenerateCmd(a),
		newVersionCmd(),
	)
	return root
}

// load resolves configuration once and installs a logger writing to w.
func (a *app) load(cmd *cobra.Command, w io.Writer) (*domain.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("lexicon"); f != nil && f.Changed {
		cfg.Lexicon.Source = domain.LexiconSourceFile
		cfg.Lexicon.Watch = false
	}

	a.cfg = cfg
	a.logger = newLogger(cfg.Logging, a.v.GetBool("debug"), w)
	slog.SetDefault(a.logger)
	return cfg, nil
}

func newLogger(cfg domain.LoggingConfig, debug bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func (a *app) lexiconOptions() []lexicon.Option {
	return []lexicon.Option{lexicon.WithLazy(a.cfg.Lexicon.LazyRegex)}
}

// openStore loads the first lexicon from the configured source. repo is
// only consulted for the repository source.
func (a *app) openStore(ctx context.Context, repo domain.Repository) (*lexicon.Store, error) {
	var src lexicon.Source
	switch a.cfg.Lexicon.Source {
	case domain.LexiconSourceRepository:
		if repo == nil {
			return nil, fmt.Errorf("lexicon source %q needs a repository", a.cfg.Lexicon.Source)
		}
		src = lexicon.RepositorySource{Repo: repo, Options: a.lexiconOptions()}
	default:
		src = lexicon.FileSource{Path: a.cfg.Lexicon.Path, Options: a.lexiconOptions()}
	}

	store, err := lexicon.NewStore(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to load lexicon from %s: %w", src, err)
	}
	return store, nil
}

// offlineStore opens the lexicon for one-shot commands. The returned close
// func releases the repository if one had to be opened.
func (a *app) offlineStore(ctx context.Context) (*lexicon.Store, func(), error) {
	if a.cfg.Lexicon.Source != domain.LexiconSourceRepository {
		store, err := a.openStore(ctx, nil)
		return store, func() {}, err
	}

	repo, err := repository.New(a.cfg.Repository)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	store, err := a.openStore(ctx, repo)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	return store, func() { repo.Close() }, nil
}

// readBookings decodes a JSON array of bookings from path, or stdin for "-".
func readBookings(path string) ([]domain.Booking, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var bookings []domain.Booking
	if err := json.NewDecoder(r).Decode(&bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings from %s: %w", path, err)
	}
	return bookings, nil
}

// writeOutput encodes v as indented JSON to path, or to fallback when path
// is empty or "-".
func writeOutput(path string, fallback io.Writer, v any) error {
	w := fallback
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
