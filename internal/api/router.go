package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/catalogdb/internal/auth"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermSchemaRead)).Get("/metrics", s.handleMetrics)

			r.Route("/queries", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermQueryRun))
				r.Get("/", s.handleListQueries)
				r.Post("/{name}", s.handleRunQuery)
			})

			r.With(s.requirePermission(auth.PermQueryExec)).Post("/exec", s.handleExec)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermSchemaRead))
				r.Get("/schema", s.handleSchema)
				r.Get("/tables/{table}/count", s.handleRowCount)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermSchemaWrite))
				r.Post("/indexes", s.handleCreateIndex)
				r.Delete("/objects/{kind}/{name}", s.handleDrop)
			})

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAudit)

			// Query event stream
			r.With(s.requirePermission(auth.PermQueryRun)).Get("/ws", s.handleQueryStream)
		})
	})

	return r
}

// handleHealth reports server and database health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "unhealthy",
			"version": s.version,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
