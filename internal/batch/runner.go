// Package batch runs the scoring engine over large booking sets in parallel
// while keeping output order equal to input order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
	"github.com/opensource-finance/hazmat/internal/rules"
)

// ErrBudgetExceeded is returned when a fail-fast batch runs out of time.
// In best-effort mode the unprocessed records carry it as their error.
var ErrBudgetExceeded = errors.New("batch budget exceeded")

var tracer = otel.Tracer("hazmat/batch")

// Runner fans a batch out over a bounded number of goroutines.
type Runner struct {
	engine  *rules.Engine
	workers int
	budget  time.Duration
}

// NewRunner creates a runner. Workers defaults to GOMAXPROCS.
func NewRunner(engine *rules.Engine, cfg domain.BatchConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{
		engine:  engine,
		workers: workers,
		budget:  cfg.Budget,
	}
}

// Outcome is a completed batch.
type Outcome struct {
	Mode           domain.BatchMode
	LexiconVersion string
	Items          []domain.BatchItem
	Elapsed        time.Duration
}

// Results returns the classification results of successful items in order.
func (o *Outcome) Results() []domain.ClassificationResult {
	out := make([]domain.ClassificationResult, 0, len(o.Items))
	for _, item := range o.Items {
		if item.Result != nil {
			out = append(out, *item.Result)
		}
	}
	return out
}

// Run classifies bookings against one lexicon snapshot.
//
// Fail-fast returns the failure of the lowest failing index, the same error
// a sequential pass would report, and no items. Best-effort never fails as
// a whole: every input yields exactly one item.
func (r *Runner) Run(ctx context.Context, mode domain.BatchMode, bookings []domain.Booking) (*Outcome, error) {
	start := time.Now()
	lex := r.engine.Lexicon()

	ctx, span := tracer.Start(ctx, "batch.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.mode", string(mode)),
		attribute.Int("batch.size", len(bookings)),
		attribute.Int("batch.workers", r.workers),
		attribute.String("lexicon.version", lex.Version()),
	)

	if r.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.budget)
		defer cancel()
	}

	var (
		items []domain.BatchItem
		err   error
	)
	switch mode {
	case domain.ModeBestEffort:
		items = r.bestEffort(ctx, lex, bookings)
	case domain.ModeFailFast, "":
		mode = domain.ModeFailFast
		items, err = r.failFast(ctx, lex, bookings)
	default:
		err = fmt.Errorf("unknown batch mode %q", mode)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &Outcome{
		Mode:           mode,
		LexiconVersion: lex.Version(),
		Items:          items,
		Elapsed:        time.Since(start),
	}, nil
}

func (r *Runner) failFast(ctx context.Context, lex *lexicon.Lexicon, bookings []domain.Booking) ([]domain.BatchItem, error) {
	items := make([]domain.BatchItem, len(bookings))
	errs := make([]error, len(bookings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	// Dispatch stops at the first failure, but records already dispatched run
	// to completion so every index below a failure is always classified.
	dispatched := 0
	for i := range bookings {
		if gctx.Err() != nil {
			break
		}
		dispatched++
		g.Go(func() error {
			res, err := rules.Classify(lex, &bookings[i])
			if err != nil {
				errs[i] = &rules.RecordError{Index: i, BookingID: bookings[i].ID, Err: err}
				return errs[i]
			}
			items[i] = domain.BatchItem{Index: i, BookingID: bookings[i].ID, Result: &res}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if dispatched < len(bookings) {
		return nil, budgetErr(ctx.Err())
	}
	return items, nil
}

func (r *Runner) bestEffort(ctx context.Context, lex *lexicon.Lexicon, bookings []domain.Booking) []domain.BatchItem {
	items := make([]domain.BatchItem, len(bookings))

	var g errgroup.Group
	g.SetLimit(r.workers)

	for i := range bookings {
		if err := ctx.Err(); err != nil {
			items[i] = domain.BatchItem{Index: i, BookingID: bookings[i].ID, Error: budgetErr(err).Error()}
			continue
		}
		g.Go(func() error {
			items[i] = rules.ClassifyItem(lex, i, &bookings[i])
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func budgetErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrBudgetExceeded
	}
	return err
}
