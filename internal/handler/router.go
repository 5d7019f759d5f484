package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/repository"
)

// Router wires middleware and routes for the HTTP API.
type Router struct {
	actionHandler *ActionHandler
	db            repository.DatabaseHealth
	rateLimiter   *RateLimiter
	corsOrigins   []string
	logger        zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	ActionHandler *ActionHandler
	Database      repository.DatabaseHealth

	// RateLimiter throttles the action endpoint; nil disables it.
	RateLimiter *RateLimiter

	// CORSOrigins lists allowed origins; empty means "*".
	CORSOrigins []string

	Logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	origins := config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Router{
		actionHandler: config.ActionHandler,
		db:            config.Database,
		rateLimiter:   config.RateLimiter,
		corsOrigins:   origins,
		logger:        config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger(rt.logger))
	r.Use(PanicHandler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check (no rate limit, no auth)
	r.Get("/health", rt.handleHealth)

	r.Group(func(r chi.Router) {
		if rt.rateLimiter != nil {
			r.Use(rt.rateLimiter.Handler)
		}
		r.Handle("/", rt.actionHandler)
		r.Handle("/index.php", rt.actionHandler)
	})

	return r
}

// healthTimeout bounds the store ping of a health check.
const healthTimeout = 2 * time.Second

// handleHealth reports whether the store is reachable.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := rt.db.Ping(ctx); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}
