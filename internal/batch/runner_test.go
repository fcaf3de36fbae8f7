package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
	"github.com/opensource-finance/hazmat/internal/rules"
)

const doc = `{
  "version": "batch-test",
  "weights": {"product": 5, "technical": 4, "consumer": 2, "threshold": 5},
  "products": [{"id": "p1", "displayName": "Industrial Solvent", "isHazardous": true}],
  "keywords": [{"term": "asbestos", "type": "technical"}],
  "bigrams": [], "negations": [], "regex": []
}`

func newRunner(t *testing.T, cfg domain.BatchConfig) *Runner {
	t.Helper()
	lex, err := lexicon.Load([]byte(doc), lexicon.FormatJSON)
	require.NoError(t, err)
	return NewRunner(rules.NewEngine(lexicon.NewStaticStore(lex)), cfg)
}

func bookings(n int) []domain.Booking {
	out := make([]domain.Booking, n)
	for i := range out {
		out[i] = domain.Booking{ID: fmt.Sprintf("bk-%05d", i), Description: "crate"}
		if i%3 == 0 {
			out[i].Products = []string{"Industrial Solvent"}
		}
	}
	return out
}

func TestRunPreservesOrder(t *testing.T) {
	r := newRunner(t, domain.BatchConfig{Workers: 7})
	in := bookings(1000)

	for _, mode := range []domain.BatchMode{domain.ModeFailFast, domain.ModeBestEffort} {
		t.Run(string(mode), func(t *testing.T) {
			out, err := r.Run(context.Background(), mode, in)
			require.NoError(t, err)
			require.Len(t, out.Items, len(in))
			assert.Equal(t, "batch-test", out.LexiconVersion)

			for i, item := range out.Items {
				assert.Equal(t, i, item.Index)
				assert.Equal(t, in[i].ID, item.BookingID)
				require.NotNil(t, item.Result)
				assert.Equal(t, i%3 == 0, item.Result.IsHazardous)
			}
			assert.Len(t, out.Results(), len(in))
		})
	}
}

func TestRunMatchesSequentialEngine(t *testing.T) {
	r := newRunner(t, domain.BatchConfig{Workers: 4})
	in := bookings(200)

	out, err := r.Run(context.Background(), domain.ModeFailFast, in)
	require.NoError(t, err)

	want, err := rules.ClassifyBatch(r.engine.Lexicon(), in)
	require.NoError(t, err)
	assert.Equal(t, want, out.Results())
}

func TestRunFailFastReportsLowestIndex(t *testing.T) {
	r := newRunner(t, domain.BatchConfig{Workers: 8})
	in := bookings(500)
	in[120].Description = ""
	in[400].ID = ""

	out, err := r.Run(context.Background(), domain.ModeFailFast, in)
	assert.Nil(t, out)

	var recErr *rules.RecordError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, 120, recErr.Index)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRunBestEffortIsolatesFailures(t *testing.T) {
	r := newRunner(t, domain.BatchConfig{Workers: 3})
	in := bookings(10)
	in[4].Description = ""

	out, err := r.Run(context.Background(), domain.ModeBestEffort, in)
	require.NoError(t, err)
	require.Len(t, out.Items, 10)

	assert.True(t, out.Items[4].Failed())
	assert.Contains(t, out.Items[4].Error, "description")
	for i, item := range out.Items {
		if i != 4 {
			assert.False(t, item.Failed(), "item %d", i)
		}
	}
	assert.Len(t, out.Results(), 9)
}

func TestRunBudget(t *testing.T) {
	r := newRunner(t, domain.BatchConfig{Workers: 1, Budget: time.Nanosecond})
	in := bookings(50_000)

	_, err := r.Run(context.Background(), domain.ModeFailFast, in)
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	out, err := r.Run(context.Background(), domain.ModeBestEffort, in)
	require.NoError(t, err)
	require.Len(t, out.Items, len(in))

	last := out.Items[len(in)-1]
	assert.True(t, last.Failed())
	assert.Equal(t, ErrBudgetExceeded.Error(), last.Error)
	assert.Equal(t, in[len(in)-1].ID, last.BookingID)
}

func TestRunCancelled(t *testing.T) {
	r := newRunner(t, domain.BatchConfig{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, domain.ModeFailFast, bookings(10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunUnknownMode(t *testing.T) {
	r := newRunner(t, domain.BatchConfig{})
	_, err := r.Run(context.Background(), "sometimes", bookings(1))
	assert.Error(t, err)
}

func TestRunEmpty(t *testing.T) {
	r := newRunner(t, domain.BatchConfig{})
	out, err := r.Run(context.Background(), domain.ModeBestEffort, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Items)
}
