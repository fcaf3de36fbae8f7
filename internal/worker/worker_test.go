package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/hazmat/internal/batch"
	"github.com/opensource-finance/hazmat/internal/bus"
	"github.com/opensource-finance/hazmat/internal/cache"
	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
	"github.com/opensource-finance/hazmat/internal/rules"
)

const testLexicon = `{
  "version": "worker-test",
  "weights": {"product": 5, "technical": 4, "consumer": 2, "threshold": 5},
  "products": [{"id": "p1", "displayName": "Industrial Solvent", "isHazardous": true}],
  "keywords": [{"term": "asbestos", "type": "technical"}],
  "bigrams": [], "negations": [], "regex": []
}`

func newRunner(t *testing.T) *batch.Runner {
	t.Helper()
	lex, err := lexicon.Load([]byte(testLexicon), lexicon.FormatJSON)
	if err != nil {
		t.Fatalf("failed to load lexicon: %v", err)
	}
	return batch.NewRunner(rules.NewEngine(lexicon.NewStaticStore(lex)), domain.BatchConfig{Workers: 2})
}

func testBookings() []domain.Booking {
	return []domain.Booking{
		{ID: "b1", Description: "crate", Products: []string{"Industrial Solvent"}},
		{ID: "b2", Description: "box of books"},
		{ID: "b3", Description: ""},
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	jobs := cache.NewLRUCache(100)
	runner := newRunner(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, jobs, runner, Config{})

		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicBatchSubmitted {
			t.Errorf("unexpected stats: %+v", stats)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessSubmittedBatch", func(t *testing.T) {
		w := NewWorker(eventBus, jobs, runner, Config{JobTTL: time.Minute})
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		completed := make(chan []byte, 1)
		sub, _ := eventBus.Subscribe(context.Background(), domain.TopicBatchCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed <- msg.Payload
			return nil
		})
		defer sub.Unsubscribe()

		req := domain.BatchRequest{
			JobID:    "job-async",
			TraceID:  "trace-001",
			Mode:     domain.ModeBestEffort,
			Bookings: testBookings(),
		}
		pending := PendingJob(&req, time.Now())
		if err := jobs.SetBatchJob(context.Background(), pending, time.Minute); err != nil {
			t.Fatalf("SetBatchJob failed: %v", err)
		}

		payload, _ := json.Marshal(req)
		if err := eventBus.Publish(context.Background(), domain.TopicBatchSubmitted, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		var announced domain.BatchJob
		select {
		case data := <-completed:
			if err := json.Unmarshal(data, &announced); err != nil {
				t.Fatalf("failed to parse completion: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for completion")
		}

		if announced.ID != "job-async" || announced.Status != domain.JobCompleted {
			t.Errorf("unexpected announcement: %+v", announced)
		}
		if announced.Items != nil {
			t.Error("announcement should not carry items")
		}

		job, err := jobs.GetBatchJob(context.Background(), "job-async")
		if err != nil || job == nil {
			t.Fatalf("expected stored job, got %v, %v", job, err)
		}
		if len(job.Items) != 3 {
			t.Fatalf("expected 3 items, got %d", len(job.Items))
		}
		if !job.Items[0].Result.IsHazardous || job.Items[1].Result.IsHazardous || !job.Items[2].Failed() {
			t.Errorf("unexpected items: %+v", job.Items)
		}
		if job.Summary == nil || job.Summary.Hazardous != 1 || job.Summary.Failed != 1 {
			t.Errorf("unexpected summary: %+v", job.Summary)
		}
		if job.LexiconVersion != "worker-test" || job.CompletedAt == nil {
			t.Errorf("unexpected job metadata: %+v", job)
		}
		if !job.CreatedAt.Equal(pending.CreatedAt) {
			t.Errorf("expected creation time to be kept, got %v", job.CreatedAt)
		}
	})

	t.Run("FailFastBatchFails", func(t *testing.T) {
		w := NewWorker(eventBus, jobs, runner, Config{})

		job, err := w.Process(context.Background(), &domain.BatchRequest{
			JobID:    "job-ff",
			Mode:     domain.ModeFailFast,
			Bookings: testBookings(),
		})
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if job.Status != domain.JobFailed || job.Error == "" {
			t.Errorf("expected failed job, got %+v", job)
		}
		if job.Items != nil || job.Summary != nil {
			t.Error("failed job should carry no items")
		}

		stored, _ := jobs.GetBatchJob(context.Background(), "job-ff")
		if stored == nil || stored.Status != domain.JobFailed {
			t.Errorf("expected stored failed job, got %+v", stored)
		}
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		w := NewWorker(eventBus, jobs, runner, Config{})
		if err := w.handleMessage(context.Background(), &domain.Message{ID: "m1", Payload: []byte("{")}); err == nil {
			t.Error("expected error for malformed payload")
		}
		if err := w.handleMessage(context.Background(), &domain.Message{ID: "m2", Payload: []byte(`{"bookings": []}`)}); err == nil {
			t.Error("expected error for missing job id")
		}
	})
}

func TestFinish(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	req := &domain.BatchRequest{JobID: "j1", Bookings: testBookings()}

	job := PendingJob(req, now)
	if job.Mode != domain.ModeFailFast || job.Total != 3 || job.Status != domain.JobPending {
		t.Errorf("unexpected pending job: %+v", job)
	}

	Finish(job, nil, errors.New("record 2 (b3): invalid input"), 5, now.Add(time.Second))
	if job.Status != domain.JobFailed || job.Error != "record 2 (b3): invalid input" {
		t.Errorf("unexpected failed job: %+v", job)
	}
	if !job.CompletedAt.Equal(now.Add(time.Second)) {
		t.Errorf("unexpected completion time: %v", job.CompletedAt)
	}
}

// gatedCache holds Process at its first job read until released.
type gatedCache struct {
	*cache.LRUCache
	entered chan struct{}
	release chan struct{}
}

func newGatedCache() *gatedCache {
	return &gatedCache{
		LRUCache: cache.NewLRUCache(10),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func (c *gatedCache) GetBatchJob(ctx context.Context, id string) (*domain.BatchJob, error) {
	c.entered <- struct{}{}
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return c.LRUCache.GetBatchJob(ctx, id)
}

func submit(t *testing.T, eventBus domain.EventBus, jobID string, mode domain.BatchMode) {
	t.Helper()
	payload, _ := json.Marshal(domain.BatchRequest{JobID: jobID, Mode: mode, Bookings: testBookings()})
	if err := eventBus.Publish(context.Background(), domain.TopicBatchSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestStopDrainsInFlightBatch(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	jobs := newGatedCache()
	w := NewWorker(eventBus, jobs, newRunner(t), Config{DrainTimeout: 5 * time.Second})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	submit(t, eventBus, "job-drain", domain.ModeBestEffort)
	<-jobs.entered

	stopped := make(chan struct{})
	go func() {
		_ = w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a batch was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(jobs.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Stop")
	}

	job, _ := jobs.LRUCache.GetBatchJob(context.Background(), "job-drain")
	if job == nil || job.Status != domain.JobCompleted {
		t.Errorf("expected drained batch to complete, got %+v", job)
	}
}

func TestStopCancelsAfterDrainTimeout(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	jobs := newGatedCache()
	w := NewWorker(eventBus, jobs, newRunner(t), Config{DrainTimeout: 20 * time.Millisecond})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	submit(t, eventBus, "job-cut", domain.ModeFailFast)
	<-jobs.entered

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	job, _ := jobs.LRUCache.GetBatchJob(context.Background(), "job-cut")
	if job == nil || job.Status != domain.JobFailed || !strings.Contains(job.Error, "context canceled") {
		t.Errorf("expected cancelled batch to be stored as failed, got %+v", job)
	}
}

func TestCompletionWithoutListeners(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	jobs := cache.NewLRUCache(10)
	w := NewWorker(eventBus, jobs, newRunner(t), Config{})

	req := &domain.BatchRequest{JobID: "job-quiet", Mode: domain.ModeBestEffort, Bookings: testBookings()}
	job, err := w.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if job.Status != domain.JobCompleted {
		t.Errorf("expected completed job, got %+v", job)
	}
}
