// Package api exposes reports, cascading filters and cache administration
// over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/goliatone/go-report-cache/filters"
	"github.com/goliatone/go-report-cache/hierarchy"
	"github.com/goliatone/go-report-cache/querycache"
	"github.com/goliatone/go-report-cache/reports"
	"github.com/goliatone/go-report-cache/schema"
	"github.com/goliatone/go-report-cache/strategy"
)

// Config holds the HTTP-level settings.
type Config struct {
	MaxLimit    int
	AdminToken  string
	RateLimit   float64
	RateBurst   int
	CORSOrigins []string
	// Production hides the cause of 5xx responses.
	Production bool
}

// Deps are the components the handlers call.
type Deps struct {
	Strategist *strategy.Strategist
	Datasets   *schema.Registry
	Resolver   *hierarchy.Resolver
	Filters    *filters.Engine
	Reports    *reports.Runner
	Executor   *querycache.Executor
	// Health reports whether the store is reachable. Optional.
	Health func(context.Context) error
	Logger *slog.Logger
}

// Server routes requests to the handlers.
type Server struct {
	cfg        Config
	strategist *strategy.Strategist
	datasets   *schema.Registry
	resolver   *hierarchy.Resolver
	engine     *filters.Engine
	reports    *reports.Runner
	executor   *querycache.Executor
	health     func(context.Context) error
	logger     *slog.Logger
	router     chi.Router
}

// NewServer checks deps and builds the router.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Strategist == nil || deps.Datasets == nil || deps.Resolver == nil ||
		deps.Filters == nil || deps.Reports == nil || deps.Executor == nil {
		return nil, errors.New("api server requires strategist, datasets, resolver, filters, reports and executor")
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 1000
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:        cfg,
		strategist: deps.Strategist,
		datasets:   deps.Datasets,
		resolver:   deps.Resolver,
		engine:     deps.Filters,
		reports:    deps.Reports,
		executor:   deps.Executor,
		health:     deps.Health,
		logger:     logger.With("component", "api"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-None-Match", HeaderRequestID, headerAdminToken},
		ExposedHeaders: []string{"ETag", HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(RateLimiter(RateLimitConfig{
				RequestsPerSecond: s.cfg.RateLimit,
				Burst:             s.cfg.RateBurst,
			}))
		}

		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{report}", s.handleReport)
		r.Get("/filters/{dataset}", s.handleFilters)
		r.Get("/datasets", s.handleListDatasets)
		r.Get("/datasets/{dataset}/schema", s.handleSchema)
		r.With(s.requireAdmin).Post("/cache/invalidate", s.handleInvalidate)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, errorEnvelope{
			Error:   "not found",
			Message: "no route for " + r.Method + " " + r.URL.Path,
			Code:    "NOT_FOUND",
		})
	})
	return r
}

func (s *Server) now() time.Time { return s.strategist.Now() }
