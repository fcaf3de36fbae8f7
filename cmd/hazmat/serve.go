package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/hazmat/internal/api"
	"github.com/opensource-finance/hazmat/internal/batch"
	"github.com/opensource-finance/hazmat/internal/bus"
	"github.com/opensource-finance/hazmat/internal/cache"
	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
	"github.com/opensource-finance/hazmat/internal/report"
	"github.com/opensource-finance/hazmat/internal/repository"
	"github.com/opensource-finance/hazmat/internal/rules"
	"github.com/opensource-finance/hazmat/internal/worker"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the classification HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}
	cmd.Flags().Int("port", 0, "listen port, overrides server.port")
	_ = a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func (a *app) serve(cmd *cobra.Command) error {
	cfg, err := a.load(cmd, os.Stdout)
	if err != nil {
		return err
	}

	slog.Info("starting hazmat",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"lexicon_source", cfg.Lexicon.Source,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Load the lexicon; a bad document aborts startup
	store, err := a.openStore(ctx, repo)
	if err != nil {
		return err
	}
	lex := store.Current()
	slog.Info("lexicon loaded",
		"source", store.Source().String(),
		"version", lex.Version(),
		"products", len(lex.ListProducts()),
	)

	if cfg.Lexicon.Watch {
		watcher, err := lexicon.NewWatcher(store, cfg.Lexicon.Path, lexicon.DefaultDebounce, a.logger)
		if err != nil {
			return fmt.Errorf("failed to watch lexicon: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()
		slog.Info("lexicon watcher started", "path", cfg.Lexicon.Path)
	}

	engine := rules.NewEngine(store)
	runner := batch.NewRunner(engine, cfg.Batch)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, cacheImpl, runner, worker.Config{
			JobTTL:     cfg.Cache.JobTTL,
			TopReasons: report.DefaultTopReasons,
		})
		if err := asyncWorker.Start(); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
		slog.Info("async worker started")
	}

	// An in-process bus without a local worker has nobody to run async
	// batches, so the submit route answers 503 instead of queueing.
	submitBus := busImpl
	if asyncWorker == nil && cfg.EventBus.Type != "nats" {
		submitBus = nil
		slog.Warn("async batches disabled: worker is off and the event bus is in-process")
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, cfg.RateLimit, api.Deps{
		Engine:         engine,
		Runner:         runner,
		Repo:           repo,
		Cache:          cacheImpl,
		Bus:            submitBus,
		Limits:         cfg.Limits,
		JobTTL:         cfg.Cache.JobTTL,
		LexiconOptions: a.lexiconOptions(),
		Version:        Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("hazmat is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cmd.OutOrStdout(), cfg, Version, lex.Version())

	// Wait for shutdown signal or a listener failure
	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	// Stop the worker first; it drains in-flight batches before cancelling
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("hazmat shutdown complete")
	return serveErr
}

func printBanner(w io.Writer, cfg *domain.Config, version, lexiconVersion string) {
	base := api.BasePath
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  HAZMAT - hazardous booking classification")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Version:  %s\n", version)
	fmt.Fprintf(w, "  Tier:     %s\n", cfg.Tier)
	fmt.Fprintf(w, "  Lexicon:  %s (%s)\n", lexiconVersion, cfg.Lexicon.Source)
	fmt.Fprintf(w, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Endpoints:")
	fmt.Fprintf(w, "    POST %s/classify                      - Classify one booking\n", base)
	fmt.Fprintf(w, "    POST %s/classify-batch                - Classify a batch (?mode=best-effort)\n", base)
	fmt.Fprintf(w, "    POST %s/classify-batch/async          - Submit a batch job\n", base)
	fmt.Fprintf(w, "    GET  %s/batches/{id}                  - Batch job status (?filter=<cel>)\n", base)
	fmt.Fprintf(w, "    GET  %s/products                      - Product catalog\n", base)
	fmt.Fprintf(w, "    GET  %s/lexicon                       - Current lexicon\n", base)
	fmt.Fprintf(w, "    POST %s/lexicon/reload                - Reload the lexicon\n", base)
	fmt.Fprintf(w, "    GET  %s/lexicons                      - List stored versions\n", base)
	fmt.Fprintf(w, "    POST %s/lexicons                      - Store a version\n", base)
	fmt.Fprintf(w, "    POST %s/lexicons/{version}/activate   - Activate a version\n", base)
	fmt.Fprintln(w, "    GET  /health                                        - Health check")
	fmt.Fprintln(w)
}
