// Package api provides the HTTP layer over the search orchestrator and
// the pool observability surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/handlers"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/api/middleware"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/autoscaler"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/cache"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/health"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/logging"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/metrics"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/pool"
	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/internal/search"
)

// requestBodyLimit bounds inbound JSON bodies.
const requestBodyLimit = 1 << 20 // 1MB

// Deps is everything the router serves. All fields are required except
// Registry, which defaults to the global prometheus registerer's gatherer.
type Deps struct {
	Orchestrator *search.Orchestrator
	Pool         *pool.Pool
	Aggregator   *metrics.Aggregator
	Evaluator    *health.Evaluator
	Cache        *cache.QueryCache
	Autoscaler   *autoscaler.Autoscaler
	Registry     *prometheus.Registry
	Logger       logging.Logger
}

// Router assembles the middleware stack and routes.
type Router struct {
	mux  *chi.Mux
	deps Deps
}

// NewRouter creates the API router with the standard middleware stack.
func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = logging.NewNoOpLogger()
	}
	r := &Router{mux: chi.NewRouter(), deps: deps}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Handler returns the HTTP handler.
func (r *Router) Handler() http.Handler {
	return r.mux
}

func (r *Router) setupMiddleware() {
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(chimiddleware.RealIP)
	r.mux.Use(middleware.RequestID)
	r.mux.Use(middleware.AccessLog(r.deps.Logger))
	r.mux.Use(chimiddleware.RequestSize(requestBodyLimit))
	r.mux.Use(chimiddleware.Timeout(30 * time.Second))
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
}

func (r *Router) setupRoutes() {
	searchHandler := handlers.NewSearchHandler(r.deps.Orchestrator, r.deps.Logger)
	healthHandler := handlers.NewHealthHandler(r.deps.Pool, r.deps.Aggregator, r.deps.Evaluator)
	metricsHandler := handlers.NewMetricsHandler(r.deps.Pool, r.deps.Aggregator, r.deps.Cache)
	poolHandler := handlers.NewPoolHandler(r.deps.Pool, r.deps.Autoscaler, r.deps.Logger)
	scalingHandler := handlers.NewScalingHandler(r.deps.Autoscaler)

	r.mux.Route("/api", func(rtr chi.Router) {
		rtr.Post("/search", searchHandler.Handle)
		rtr.Get("/health", healthHandler.Handle)
		rtr.Get("/metrics", metricsHandler.Handle)
		rtr.Get("/pool/status", poolHandler.Status)
		rtr.Post("/pool/resize", poolHandler.Resize)
		rtr.Get("/scaling/events", scalingHandler.Events)
	})

	if r.deps.Registry != nil {
		r.mux.Get("/metrics", promhttp.HandlerFor(r.deps.Registry, promhttp.HandlerOpts{}).ServeHTTP)
	} else {
		r.mux.Get("/metrics", promhttp.Handler().ServeHTTP)
	}
}
