package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// BasePath prefixes every classification route.
const BasePath = "/api/identifier"

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, limit domain.RateLimitConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route(BasePath, func(r chi.Router) {
		if limit.Enabled && limit.RequestsPerSecond > 0 {
			r.Use(NewRateLimiter(limit.RequestsPerSecond, limit.Burst).Middleware)
		}

		r.Post("/classify", handler.Classify)
		r.Post("/classify-batch", handler.ClassifyBatch)
		r.Post("/classify-batch/async", handler.SubmitBatch)
		r.Get("/batches/{id}", handler.GetBatch)
		r.Get("/products", handler.ListProducts)

		r.Get("/lexicon", handler.GetLexicon)
		r.Post("/lexicon/reload", handler.ReloadLexicon)
		r.Get("/lexicons", handler.ListLexicons)
		r.Post("/lexicons", handler.CreateLexicon)
		r.Post("/lexicons/{version}/activate", handler.ActivateLexicon)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
