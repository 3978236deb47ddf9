// Package httptransport assembles the public HTTP surface: the middleware
// chain, module routes and operational endpoints.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"compliance/pkg/platform/middleware/admin"
	"compliance/pkg/platform/middleware/auth"
	"compliance/pkg/platform/middleware/metadata"
	"compliance/pkg/platform/middleware/request"
	"compliance/pkg/platform/middleware/requesttime"
)

// DefaultMaxBodyBytes bounds request bodies; grievance descriptions are the
// largest legitimate payload.
const DefaultMaxBodyBytes = 1 << 20

// Routes is implemented by every module handler.
type Routes interface {
	Register(r chi.Router)
}

// AdminRoutes is implemented by handlers with an admin-only surface.
type AdminRoutes interface {
	RegisterAdmin(r chi.Router)
}

// Config lists what the router wires together. Public routes are served
// without authentication; everything in API requires a bearer token.
type Config struct {
	Logger         *slog.Logger
	Gatherer       prometheus.Gatherer
	RequestMetrics *request.Metrics
	Validator      auth.ActorValidator
	Metadata       *metadata.Middleware
	HandlerTimeout time.Duration
	MaxBodyBytes   int64
	Clock          func() time.Time

	Public []Routes
	API    []Routes
	Admin  []AdminRoutes
	// AdminAPI are handlers whose whole surface is admin-only.
	AdminAPI []Routes
}

// NewRouter wires all endpoints with the middleware chain.
func NewRouter(cfg Config) http.Handler {
	if cfg.Metadata == nil {
		cfg.Metadata = metadata.NewMiddleware(metadata.Config{})
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	clock := requesttime.Middleware
	if cfg.Clock != nil {
		clock = requesttime.WithClock(cfg.Clock)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(cfg.Metadata.Handler)
	r.Use(clock)
	r.Use(request.Logger(cfg.Logger))
	r.Use(request.Latency(cfg.RequestMetrics))

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	for _, routes := range cfg.Public {
		routes.Register(r)
	}

	r.Group(func(r chi.Router) {
		if cfg.HandlerTimeout > 0 {
			r.Use(request.Timeout(cfg.HandlerTimeout))
		}
		r.Use(request.BodyLimit(cfg.MaxBodyBytes))
		r.Use(request.ContentTypeJSON)
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))

		for _, routes := range cfg.API {
			routes.Register(r)
		}
		r.Route("/admin", func(r chi.Router) {
			r.Use(admin.RequireAdmin(cfg.Logger))
			for _, routes := range cfg.Admin {
				routes.RegisterAdmin(r)
			}
			for _, routes := range cfg.AdminAPI {
				routes.Register(r)
			}
		})
	})
	return r
}
