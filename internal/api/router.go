package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/esplink/internal/metrics"
)

// healthCheckTimeout bounds the time spent probing all dependencies.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)
		r.Post("/system/prune", s.handlePrune)
		r.Get("/pending", s.handlePending)

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/chart", s.handleChart)
			r.Post("/control", s.handleControl)
		})

		r.Get("/datasensor", s.handleListSensorReadings)
		r.Get("/datasensor/search", s.handleListSensorReadings)

		// The plain listing shows newest first; search keeps insertion order.
		r.Get("/actionhistory", s.handleListStatusEvents("desc"))
		r.Get("/actionhistory/search", s.handleListStatusEvents("asc"))
	})

	r.Get(s.wsCfg.Path, s.handleWebSocket)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeNotFound(w, "no route for "+req.URL.Path)
	})

	if s.gatherer != nil {
		r.Handle(s.metricsPath, metrics.Handler(s.gatherer))
	}

	return r
}

// handleHealth probes every registered dependency. Any failure turns the
// response into 503 so load balancers and compose health checks notice.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
