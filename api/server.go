/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logging:    zerolog request log with the request ID
  4. Metrics:    Prometheus request counters by chi route pattern
  5. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /health               Liveness
  /metrics              Prometheus exposition (when metrics are enabled)
  /api/admin/dues/*     Manual triggers
  /api/clubs/*          Club, fee config and charge views
  /api/users/*          Notification views
  /api/scenarios/*      Demo scenarios

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/warp/club-dues/observability"
)

// NewRouter creates a new router with all routes configured. metrics may
// be nil, in which case /metrics is not mounted.
func NewRouter(h *Handler, metrics *observability.Metrics) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	if metrics != nil {
		r.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Admin routes
		r.Route("/admin/dues", func(r chi.Router) {
			r.Post("/generate", h.GenerateDues)
			r.Post("/overdue", h.RunOverdue)
			r.Post("/reminders", h.RunReminders)
		})

		// Club routes
		r.Route("/clubs", func(r chi.Router) {
			r.Get("/", h.ListClubs)
			r.Get("/{id}", h.GetClub)
			r.Get("/{id}/charges", h.ListClubCharges)
		})

		// User routes
		r.Get("/users/{id}/notifications", h.ListUserNotifications)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs each request after it completes.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("uri", r.URL.RequestURI()).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}
