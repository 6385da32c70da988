package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/neexbeast/flightfinder/internal/metrics"
)

// RouterConfig carries the non-handler settings of the router.
type RouterConfig struct {
	Token              string
	RateLimitPerMinute int
	// Health maps a dependency name to its pinger; nil entries are skipped.
	Health map[string]Pinger
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Metrics        *metrics.Metrics
}

// NewRouter builds and returns the Chi router with all routes configured.
// Health and metrics are unauthenticated; the remaining /api/v1 routes
// require bearer auth. Rate limiting is applied per IP to all routes.
func NewRouter(handlers *Handlers, cfg RouterConfig, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(AccessLog(log, cfg.Metrics))
	r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(cfg.Health, log))
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.Token))
		r.Post("/api/v1/flights/search", handlers.SearchFlights)
		r.Post("/api/v1/trips/plan", handlers.PlanTrip)
		r.Get("/api/v1/airports", handlers.LookupAirports)
		r.Get("/api/v1/searches", handlers.ListSearches)
		r.Get("/api/v1/searches/{id}", handlers.GetSearch)
	})

	return r
}
