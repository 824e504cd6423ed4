// Package httpapi is the HTTP surface of the sync engine: mutation and select
// endpoints, named mutator invocation, the SSE change stream, and the ops
// endpoints around them. Handlers decode, call the engine, and encode; all
// semantics live below this package.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/syncline/internal/auth"
	"github.com/erauner12/syncline/internal/engine"
	"github.com/erauner12/syncline/internal/eventbus"
	"github.com/erauner12/syncline/internal/storage"
)

// Config carries the transport-level knobs. Zero values take the defaults.
type Config struct {
	// BasePath mounts the sync endpoints. Default "/v1/sync".
	BasePath string
	// Keepalive is the SSE heartbeat interval. Default 15s.
	Keepalive time.Duration
	// SessionBuffer is the per-subscriber frame queue. A session that falls
	// this far behind is severed with a recover marker. Default 64.
	SessionBuffer int
	// DevMode exposes the destructive admin endpoints and debug headers.
	DevMode bool
	// Auth configures the identity middleware.
	Auth auth.Config
	// RateRPS/RateBurst enable per-caller rate limiting on mutation
	// endpoints when RateRPS > 0.
	RateRPS   float64
	RateBurst int
	// Version is reported by /v1/info.
	Version string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine  *engine.Engine
	ring    *eventbus.Ring
	store   storage.Adapter
	cfg     Config
	started time.Time
}

// New wires a Server. engine, ring, and store must be the same instances the
// rest of the process uses; the handlers add no state of their own.
func New(eng *engine.Engine, ring *eventbus.Ring, store storage.Adapter, cfg Config) *Server {
	if cfg.BasePath == "" {
		cfg.BasePath = "/v1/sync"
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = 15 * time.Second
	}
	if cfg.SessionBuffer <= 0 {
		cfg.SessionBuffer = 64
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	return &Server{engine: eng, ring: ring, store: store, cfg: cfg, started: time.Now()}
}

// Routes creates the HTTP router with all sync endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	// Ops surface (unauthenticated).
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/v1/info", s.Info)
	r.Get("/v1/state", s.State)
	r.Handle("/metrics", promhttp.Handler())
	if s.cfg.DevMode {
		r.Post("/v1/admin/wipe", s.Wipe)
	}

	r.Route(s.cfg.BasePath, func(r chi.Router) {
		r.Use(auth.Middleware(s.cfg.Auth))

		mutating := chi.Router(r)
		if s.cfg.RateRPS > 0 {
			limiter := NewRateLimiter(s.cfg.RateRPS, s.cfg.RateBurst)
			mutating = r.With(limiter.Middleware)
		}
		mutating.Post("/mutate", s.Mutate)
		mutating.Post("/mutators/{name}", s.RunMutator)

		r.Post("/select", s.Select)
		r.Get("/events", s.Events)
	})

	log.Info().Str("basePath", s.cfg.BasePath).Bool("devMode", s.cfg.DevMode).Msg("HTTP routes registered")
	return r
}

// clientOpID resolves the effective idempotency key: the Idempotency-Key
// header wins over the body's clientOpId.
func clientOpID(r *http.Request, bodyKey string) string {
	if k := r.Header.Get("Idempotency-Key"); k != "" {
		return k
	}
	return bodyKey
}
