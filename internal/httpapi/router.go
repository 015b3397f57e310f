// Package httpapi exposes the tracking service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/jamef_tracker/internal/logging"
	"github.com/R3E-Network/jamef_tracker/internal/metrics"
	"github.com/R3E-Network/jamef_tracker/internal/middleware"
	"github.com/R3E-Network/jamef_tracker/internal/storage"
	"github.com/R3E-Network/jamef_tracker/internal/tracking"
)

// ServiceName is reported by /health and /info.
const ServiceName = "jamef-tracker"

// Tracker resolves raw request inputs into a tracking result.
type Tracker interface {
	Lookup(ctx context.Context, nf, cnpj string) (*tracking.Result, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options wires the router.
type Options struct {
	Tracker Tracker
	Lookups storage.LookupStore
	// Checks are run by /health, keyed by dependency name.
	Checks  map[string]HealthCheck
	Logger  *logging.Logger
	Limiter *middleware.RateLimiter
	// TrustedProxies may set X-Forwarded-For. Nil trusts only the TCP peer.
	TrustedProxies *middleware.TrustedProxies
	CORSOrigins    []string
	Version        string
}

// NewRouter builds the API router with its middleware chain.
func NewRouter(opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = logging.Default(ServiceName)
	}
	if opts.Lookups == nil {
		opts.Lookups = storage.NewMemoryStore(0)
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	h := &handler{
		tracker: opts.Tracker,
		lookups: opts.Lookups,
		checks:  opts.Checks,
		logger:  opts.Logger,
		version: opts.Version,
		started: time.Now(),
	}

	r := mux.NewRouter()
	r.Use(
		middleware.NewTracingMiddleware(opts.Logger, opts.TrustedProxies).Handler,
		middleware.MetricsMiddleware(),
		middleware.NewCORSMiddleware(opts.CORSOrigins).Handler,
	)

	var track http.Handler = http.HandlerFunc(h.track)
	if opts.Limiter != nil {
		track = opts.Limiter.Handler(track)
	}

	r.HandleFunc("/", h.root).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/rastrear/{numero_nf}", track).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/consultas", h.lookupLog).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/info", h.info).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return r
}
