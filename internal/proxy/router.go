package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/technosupport/frl-toolbox/internal/cops"
	"github.com/technosupport/frl-toolbox/internal/ratelimit"
)

// HealthCheck reports whether the proxy's backends are usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Timeout time.Duration
	Metrics http.Handler // nil disables /metrics
	Health  HealthCheck

	// Transactions, when set, serves GET /transactions and
	// GET /transactions/export.
	Transactions TransactionSource

	// Limiter, when set, throttles each client on the COPS routes.
	Limiter *ratelimit.Limiter
	Limit   ratelimit.LimitConfig
}

// NewRouter mounts the COPS endpoints plus /healthz, /metrics and the
// transaction log. The COPS
// routes accept any method so the mapper can report the wrong-method reason;
// unknown paths fall through to it as well.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.Transactions != nil {
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", listTransactions(cfg.Transactions))
			r.Get("/export", exportTransactions(cfg.Transactions))
		})
	}

	r.Group(func(r chi.Router) {
		if cfg.Limiter != nil && cfg.Limit.Enabled() {
			r.Use(RateLimit(cfg.Limiter, cfg.Limit))
		}
		r.HandleFunc(cops.ActivationPath, h.ServeCOPS)
		r.HandleFunc(cops.DeactivationPath, h.ServeCOPS)
	})
	r.NotFound(h.ServeCOPS)
	r.MethodNotAllowed(h.ServeCOPS)

	return r
}
