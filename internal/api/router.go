package api

import (
	"net/http"

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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Sequence endpoints
		r.Route("/sequences", func(r chi.Router) {
			r.Get("/", s.handleListSequences)

			r.Route("/{obsID}", func(r chi.Router) {
				r.Get("/", s.handleGetSequence)
				r.Delete("/", s.handleUnloadSequence)
				r.Post("/load", s.handleLoadSequence)
				r.Post("/start", s.handleStartSequence)
				r.Post("/pause", s.handlePauseSequence)
				r.Post("/stop", s.handleStopSequence)
				r.Post("/abort", s.handleAbortSequence)
				r.Put("/observer", s.handleSetObserver)
				r.Put("/steps/{step}/breakpoint", s.handleSetBreakpoint)
				r.Put("/steps/{step}/skip", s.handleSetSkip)
			})
		})

		// Site state endpoints
		r.Post("/sync", s.handleSync)
		r.Get("/conditions", s.handleGetConditions)
		r.Put("/conditions", s.handleSetConditions)
		r.Put("/operator", s.handleSetOperator)
		r.Get("/resources", s.handleResources)

		// Engineering endpoints
		r.Post("/engineering/configure", s.handleConfigure)

		// Command journal
		r.Get("/journal", s.handleListJournal)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"queue_depth": s.engine.QueueDepth(),
	})
}
