package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"impactbond/gateway/middleware"
	"impactbond/native/bond"
	"impactbond/observability/metrics"
)

// Rate limit keys understood by New.
const (
	RateLimitReads  = "reads"
	RateLimitWrites = "writes"
)

type Config struct {
	Registry      *bond.Registry
	Metrics       *metrics.BondMetrics
	Logger        *slog.Logger
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// New mounts the bond registry API. Every registry call is serialised behind
// a single lock.
func New(cfg Config) (http.Handler, error) {
	if cfg.Registry == nil {
		return nil, errors.New("routes: registry required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &bondHandlers{
		registry:      cfg.Registry,
		metrics:       cfg.Metrics,
		logger:        logger.With(slog.String("component", "gateway")),
		authenticated: cfg.Authenticator.Enabled(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(reads chi.Router) {
			if cfg.RateLimiter != nil {
				reads.Use(cfg.RateLimiter.Middleware(RateLimitReads))
			}
			reads.Get("/admin", h.getAdmin)
			reads.Get("/bonds", h.listBonds)
			reads.Get("/bonds/{id}", h.getBond)
		})
		v1.Group(func(writes chi.Router) {
			if cfg.RateLimiter != nil {
				writes.Use(cfg.RateLimiter.Middleware(RateLimitWrites))
			}
			if cfg.Authenticator != nil {
				writes.Use(cfg.Authenticator.Middleware())
			}
			writes.Post("/admin/transfer", h.transferAdmin)
			writes.Post("/bonds", h.createBond)
			writes.Post("/bonds/{id}/fund", h.fundBond)
			writes.Post("/bonds/{id}/verify", h.verifyBond)
		})
	})

	return r, nil
}
