package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fastandpray/promo-dispatch/internal/dispatch"
	"github.com/fastandpray/promo-dispatch/internal/ratelimit"
	"github.com/fastandpray/promo-dispatch/internal/taskqueue"
)

// Server is the operational HTTP surface of the dispatcher: campaign status
// lookups, manual dispatch, and rate-window introspection.
type Server struct {
	handlers *Handlers
	handler  http.Handler
	server   *http.Server
}

// NewServer creates the operational API server.
func NewServer(campaigns dispatch.CampaignStore, queue taskqueue.Queue, limiter *ratelimit.Limiter) *Server {
	handlers := NewHandlers(campaigns, queue, limiter)
	return &Server{
		handlers: handlers,
		handler:  setupRoutes(handlers),
	}
}

func setupRoutes(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://fastandpray.app", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/campaigns/{id}", h.GetCampaign)
		r.Post("/campaigns/{id}/dispatch", h.DispatchCampaign)
		r.Get("/ratelimit", h.RateLimitStatus)
	})

	return r
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
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

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
