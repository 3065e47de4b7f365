package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
//
// The appliance paths are the wire contract existing clients depend on,
// so they are mounted unversioned at the root.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	// Appliance endpoints. Commands authenticate per request via the
	// shared appliance password; state reads are open.
	r.Route("/appliances", func(r chi.Router) {
		r.Post("/control", s.handleControl)
		r.Get("/state", s.handleState)
		r.Post("/toggle/{pin_name}", s.handleToggle)
		r.Post("/all/{state}", s.handleSetAll)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, connected := s.relay.GetState()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"connected": connected,
	})
}
