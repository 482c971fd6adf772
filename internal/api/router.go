package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Read-only endpoints (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/bridge/status", s.handleBridgeStatus)
		r.Get("/events", s.handleListEvents)
		r.Get(s.wsPath(), s.handleWebSocket)

		// Control endpoints
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/bridge/start", s.handleBridgeStart)
			r.Post("/bridge/stop", s.handleBridgeStop)
			r.Get("/config", s.handleGetConfig)
			r.Put("/config", s.handleUpdateConfig)
		})
	})

	return r
}

// wsPath returns the WebSocket route relative to /api/v1.
func (s *Server) wsPath() string {
	p := strings.TrimPrefix(s.wsCfg.Path, "/api/v1")
	if !strings.HasPrefix(p, "/") || p == "/" {
		return "/ws"
	}
	return p
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
