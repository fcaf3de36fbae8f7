package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/hazmat/internal/batch"
	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
	"github.com/opensource-finance/hazmat/internal/rules"
)

const errInternal = "An internal server error occurred."

// statusClientClosedRequest is logged when the caller went away before the
// batch finished.
const statusClientClosedRequest = 499

// Deps are the collaborators of the API handlers. Repo, Cache and Bus are
// optional; routes that need a missing one answer 503.
type Deps struct {
	Engine *rules.Engine
	Runner *batch.Runner
	Repo   domain.Repository
	Cache  domain.Cache
	Bus    domain.EventBus

	Limits         domain.LimitsConfig
	JobTTL         time.Duration
	LexiconOptions []lexicon.Option
	Version        string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	engine  *rules.Engine
	runner  *batch.Runner
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	limits  domain.LimitsConfig
	jobTTL  time.Duration
	lexOpts []lexicon.Option
	version string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	limits := deps.Limits
	if limits.MaxBatchRecords <= 0 {
		limits.MaxBatchRecords = domain.DefaultConfig().Limits.MaxBatchRecords
	}
	if limits.MaxBodyBytes <= 0 {
		limits.MaxBodyBytes = domain.DefaultConfig().Limits.MaxBodyBytes
	}
	jobTTL := deps.JobTTL
	if jobTTL <= 0 {
		jobTTL = time.Hour
	}
	runner := deps.Runner
	if runner == nil {
		runner = batch.NewRunner(deps.Engine, domain.BatchConfig{})
	}
	return &Handler{
		engine:  deps.Engine,
		runner:  runner,
		repo:    deps.Repo,
		cache:   deps.Cache,
		bus:     deps.Bus,
		limits:  limits,
		jobTTL:  jobTTL,
		lexOpts: deps.LexiconOptions,
		version: deps.Version,
	}
}

// Classify handles POST /classify.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var booking domain.Booking
	if err := h.decode(w, r, &booking); err != nil {
		writeError(w, http.StatusBadRequest, decodeMessage(err, "invalid JSON request body"))
		return
	}

	if booking.ID == "" || booking.Description == "" {
		writeError(w, http.StatusBadRequest, `Invalid booking data provided. "id" and "description" are required.`)
		return
	}

	result, err := h.engine.Classify(&booking)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.ListProducts())
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(r.Context()) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(r.Context()) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        h.version,
		"lexiconVersion": h.engine.Lexicon().Version(),
		"checks":         checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decode reads one JSON value from the size-limited request body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func decodeMessage(err error, fallback string) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return "request body too large"
	}
	return fallback
}

// writeEngineError maps classification errors onto status codes: bad
// bookings are the client's fault, everything else is ours.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, batch.ErrBudgetExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		slog.Debug("client closed request",
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
		)
		writeError(w, statusClientClosedRequest, "client closed request")
	default:
		slog.Error("classification failed",
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, errInternal)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
