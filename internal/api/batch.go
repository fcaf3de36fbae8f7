package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/hazmat/internal/bus"
	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/report"
	"github.com/opensource-finance/hazmat/internal/rules"
	"github.com/opensource-finance/hazmat/internal/worker"
)

const errBatchShape = "Request body must be a non-empty array of bookings."

// BestEffortResponse is the body of a best-effort batch.
type BestEffortResponse struct {
	LexiconVersion string              `json:"lexiconVersion"`
	Items          []domain.BatchItem  `json:"items"`
	Summary        domain.BatchSummary `json:"summary"`
}

// SubmitResponse acknowledges an asynchronous batch.
type SubmitResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// readBatch decodes and validates a batch body and the mode query parameter.
func (h *Handler) readBatch(w http.ResponseWriter, r *http.Request) ([]domain.Booking, domain.BatchMode, bool) {
	mode, ok := domain.ParseBatchMode(r.URL.Query().Get("mode"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q, expected fail-fast or best-effort", r.URL.Query().Get("mode")))
		return nil, "", false
	}

	var bookings []domain.Booking
	if err := h.decode(w, r, &bookings); err != nil {
		writeError(w, http.StatusBadRequest, decodeMessage(err, errBatchShape))
		return nil, "", false
	}
	if len(bookings) == 0 {
		writeError(w, http.StatusBadRequest, errBatchShape)
		return nil, "", false
	}
	if len(bookings) > h.limits.MaxBatchRecords {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch of %d records exceeds the limit of %d", len(bookings), h.limits.MaxBatchRecords))
		return nil, "", false
	}
	return bookings, mode, true
}

// ClassifyBatch handles POST /classify-batch.
// Fail-fast answers with the result array; best-effort with items and a summary.
func (h *Handler) ClassifyBatch(w http.ResponseWriter, r *http.Request) {
	bookings, mode, ok := h.readBatch(w, r)
	if !ok {
		return
	}

	outcome, err := h.runner.Run(r.Context(), mode, bookings)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	slog.Debug("batch classified",
		"records", len(bookings),
		"mode", outcome.Mode,
		"lexicon_version", outcome.LexiconVersion,
		"duration_ms", outcome.Elapsed.Milliseconds(),
		"trace_id", GetTraceID(r.Context()),
	)

	if outcome.Mode == domain.ModeBestEffort {
		writeJSON(w, http.StatusOK, BestEffortResponse{
			LexiconVersion: outcome.LexiconVersion,
			Items:          outcome.Items,
			Summary:        report.Summarize(outcome.Items, report.DefaultTopReasons),
		})
		return
	}
	writeJSON(w, http.StatusOK, outcome.Results())
}

// SubmitBatch handles POST /classify-batch/async.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil || h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "asynchronous batches are not available")
		return
	}

	bookings, mode, ok := h.readBatch(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	req := domain.BatchRequest{
		JobID:    uuid.New().String(),
		TraceID:  GetTraceID(ctx),
		Mode:     mode,
		Bookings: bookings,
	}

	job := worker.PendingJob(&req, time.Now())
	if err := h.cache.SetBatchJob(ctx, job, h.jobTTL); err != nil {
		slog.Error("failed to store pending job", "job_id", job.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		slog.Error("failed to encode batch request", "job_id", job.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	if err := h.bus.Publish(ctx, domain.TopicBatchSubmitted, payload); err != nil {
		slog.Error("failed to publish batch", "job_id", job.ID, "error", err)
		// Nothing will pick the job up; do not leave it pending.
		worker.Finish(job, nil, err, 0, time.Now())
		_ = h.cache.SetBatchJob(ctx, job, h.jobTTL)

		if errors.Is(err, bus.ErrPayloadTooLarge) {
			writeError(w, http.StatusBadRequest, "batch too large for asynchronous submission")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}

	w.Header().Set("Location", BasePath+"/batches/"+job.ID)
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		JobID:  job.ID,
		Status: job.Status,
		Total:  job.Total,
	})
}

// GetBatch handles GET /batches/{id}. The optional filter query parameter
// is a CEL expression selecting which items to return.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "job store not available")
		return
	}

	var filter *rules.Filter
	if expr := r.URL.Query().Get("filter"); expr != "" {
		f, err := rules.NewFilter(expr)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter = f
	}

	id := chi.URLParam(r, "id")
	job, err := h.cache.GetBatchJob(r.Context(), id)
	if err != nil {
		slog.Error("failed to get batch job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "batch job not found")
		return
	}

	if filter != nil && job.Items != nil {
		items, err := filter.Apply(job.Items)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		job.Items = items
	}

	writeJSON(w, http.StatusOK, job)
}
