package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
	"github.com/opensource-finance/hazmat/internal/repository"
)

// CreateLexiconRequest is the body of POST /lexicons. Document holds the
// raw lexicon text in Format.
type CreateLexiconRequest struct {
	Version  string `json:"version"`
	Notes    string `json:"notes,omitempty"`
	Format   string `json:"format,omitempty"`
	Document string `json:"document"`
	Activate bool   `json:"activate,omitempty"`
}

// GetLexicon handles GET /lexicon.
func (h *Handler) GetLexicon(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Lexicon().Summary())
}

// ReloadLexicon handles POST /lexicon/reload. A failed reload keeps serving
// the current lexicon.
func (h *Handler) ReloadLexicon(w http.ResponseWriter, r *http.Request) {
	store := h.engine.Store()
	previous := store.Current().Version()

	lex, err := store.Reload(r.Context())
	if err != nil {
		slog.Error("lexicon reload failed",
			"source", sourceName(store),
			"lexicon_version", previous,
			"error", err,
		)
		status := http.StatusInternalServerError
		if errors.Is(err, lexicon.ErrNoSource) || errors.Is(err, lexicon.ErrNoActiveLexicon) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{
			"error":          err.Error(),
			"lexiconVersion": previous,
		})
		return
	}

	slog.Info("lexicon reloaded",
		"source", sourceName(store),
		"previous_version", previous,
		"lexicon_version", lex.Version(),
	)
	writeJSON(w, http.StatusOK, lex.Summary())
}

// ListLexicons handles GET /lexicons.
func (h *Handler) ListLexicons(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	records, err := h.repo.ListLexicons(r.Context())
	if err != nil {
		slog.Error("failed to list lexicons", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// CreateLexicon handles POST /lexicons. The document is compiled before it
// is stored, so the repository never holds a lexicon that cannot load.
func (h *Handler) CreateLexicon(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	var req CreateLexiconRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, decodeMessage(err, "invalid JSON request body"))
		return
	}
	if req.Version == "" || req.Document == "" {
		writeError(w, http.StatusBadRequest, "version and document are required")
		return
	}

	format, err := lexicon.ParseFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := lexicon.Load([]byte(req.Document), format, h.lexOpts...); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := &domain.LexiconRecord{
		Version:  req.Version,
		Notes:    req.Notes,
		Format:   string(format),
		Document: []byte(req.Document),
		Active:   req.Activate,
	}
	if err := h.repo.SaveLexicon(r.Context(), rec); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to save lexicon", "version", req.Version, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	if rec.Active {
		h.reloadFromRepository(r)
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ActivateLexicon handles POST /lexicons/{version}/activate.
func (h *Handler) ActivateLexicon(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	version := chi.URLParam(r, "version")
	if err := h.repo.ActivateLexicon(r.Context(), version); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lexicon version not found")
			return
		}
		slog.Error("failed to activate lexicon", "version", version, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	h.reloadFromRepository(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"activated":      version,
		"lexiconVersion": h.engine.Lexicon().Version(),
	})
}

// reloadFromRepository republishes the active version when the store is fed
// by the repository. File-backed stores are left alone.
func (h *Handler) reloadFromRepository(r *http.Request) {
	store := h.engine.Store()
	if _, ok := store.Source().(lexicon.RepositorySource); !ok {
		return
	}
	if _, err := store.Reload(r.Context()); err != nil {
		slog.Error("lexicon reload after activation failed", "error", err)
	}
}

func sourceName(store *lexicon.Store) string {
	if src := store.Source(); src != nil {
		return src.String()
	}
	return "static"
}
