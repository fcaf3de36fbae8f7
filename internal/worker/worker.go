// Package worker processes asynchronously submitted batches from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/hazmat/internal/batch"
	"github.com/opensource-finance/hazmat/internal/bus"
	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/report"
)

// Worker consumes TopicBatchSubmitted, classifies the batch and stores the
// finished job in the cache.
type Worker struct {
	bus    domain.EventBus
	cache  domain.Cache
	runner *batch.Runner
	cfg    Config

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// JobTTL is how long finished jobs stay in the cache.
	JobTTL time.Duration

	// TopReasons caps the reason histogram of the job summary.
	TopReasons int

	// DrainTimeout bounds how long Stop waits for in-flight batches before
	// cancelling them.
	DrainTimeout time.Duration
}

// DefaultDrainTimeout is used when Config.DrainTimeout is zero.
const DefaultDrainTimeout = 30 * time.Second

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, cache domain.Cache, runner *batch.Runner, cfg Config) *Worker {
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.TopReasons <= 0 {
		cfg.TopReasons = report.DefaultTopReasons
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    eventBus,
		cache:  cache,
		runner: runner,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to submitted batches.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchSubmitted, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicBatchSubmitted, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("batch worker started", "topic", domain.TopicBatchSubmitted)
	return nil
}

// handleMessage runs on the worker's own context so that unsubscribing
// during Stop does not abort a batch already being processed.
func (w *Worker) handleMessage(_ context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()
	ctx := w.ctx

	var req domain.BatchRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse batch request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.JobID == "" {
		return fmt.Errorf("batch request %s has no job id", msg.ID)
	}

	_, err := w.Process(ctx, &req)
	return err
}

// Process runs one batch request to completion and records the job.
// The returned job is also stored in the cache and announced on
// TopicBatchCompleted.
func (w *Worker) Process(ctx context.Context, req *domain.BatchRequest) (*domain.BatchJob, error) {
	start := time.Now()

	traceID := req.TraceID
	if traceID == "" {
		traceID = req.JobID
	}

	job, err := w.cache.GetBatchJob(ctx, req.JobID)
	if err != nil {
		slog.Warn("failed to load pending job", "job_id", req.JobID, "error", err)
	}
	if job == nil {
		job = PendingJob(req, start)
	}

	slog.Debug("processing batch",
		"job_id", req.JobID,
		"trace_id", traceID,
		"records", len(req.Bookings),
		"mode", req.Mode,
	)

	outcome, runErr := w.runner.Run(ctx, req.Mode, req.Bookings)
	Finish(job, outcome, runErr, w.cfg.TopReasons, time.Now())

	if err := w.cache.SetBatchJob(ctx, job, w.cfg.JobTTL); err != nil {
		slog.Error("failed to store batch job",
			"job_id", job.ID,
			"error", err,
		)
		return job, err
	}

	announcement := *job
	announcement.Items = nil
	payload, _ := json.Marshal(announcement)
	if err := w.bus.Publish(ctx, domain.TopicBatchCompleted, payload); err != nil && !errors.Is(err, bus.ErrNoSubscribers) {
		slog.Error("failed to publish batch completion",
			"job_id", job.ID,
			"error", err,
		)
	}

	attrs := []any{
		"job_id", job.ID,
		"trace_id", traceID,
		"status", job.Status,
		"records", job.Total,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if job.Summary != nil {
		attrs = append(attrs, "hazardous", job.Summary.Hazardous, "failed", job.Summary.Failed)
	}
	if runErr != nil {
		attrs = append(attrs, "error", runErr)
	}
	slog.Info("batch processed", attrs...)

	return job, nil
}

// PendingJob creates the job record for a freshly submitted batch.
func PendingJob(req *domain.BatchRequest, now time.Time) *domain.BatchJob {
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeFailFast
	}
	return &domain.BatchJob{
		ID:        req.JobID,
		Status:    domain.JobPending,
		Mode:      mode,
		Total:     len(req.Bookings),
		CreatedAt: now.UTC(),
	}
}

// Finish moves job to its terminal state from a runner outcome.
func Finish(job *domain.BatchJob, outcome *batch.Outcome, err error, topN int, now time.Time) {
	done := now.UTC()
	job.CompletedAt = &done

	if err != nil {
		job.Status = domain.JobFailed
		job.Error = err.Error()
		job.Items = nil
		job.Summary = nil
		return
	}

	summary := report.Summarize(outcome.Items, topN)
	job.Status = domain.JobCompleted
	job.Mode = outcome.Mode
	job.LexiconVersion = outcome.LexiconVersion
	job.Items = outcome.Items
	job.Summary = &summary
}

// Stop unsubscribes and waits up to DrainTimeout for in-flight batches.
// Batches still running after that are cancelled and stored as failed.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	drained := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(w.cfg.DrainTimeout):
		slog.Warn("drain timeout reached, cancelling in-flight batches", "timeout", w.cfg.DrainTimeout)
		w.cancel()
		<-drained
	}
	w.cancel()

	slog.Info("batch worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
