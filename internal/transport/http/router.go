// Package httptransport assembles the HTTP surface: shared middleware, the
// public endpoints and the authenticated /sim and /auth groups.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"simrelease/internal/platform/metrics"
	"simrelease/pkg/platform/httputil"
	"simrelease/pkg/platform/middleware/admin"
	authmw "simrelease/pkg/platform/middleware/auth"
	"simrelease/pkg/platform/middleware/metadata"
	"simrelease/pkg/platform/middleware/request"
	"simrelease/pkg/platform/middleware/requesttime"
)

// Routes is a handler that mounts its own endpoints.
type Routes interface {
	Register(r chi.Router)
}

// SplitRoutes has public endpoints (Register) and endpoints that need a
// token (RegisterAuthenticated).
type SplitRoutes interface {
	Routes
	RegisterAuthenticated(r chi.Router)
}

// HealthCheck is one dependency probed by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	MetricsAuth string
	Tokens      authmw.TokenValidator
	Revocations authmw.RevocationChecker
	Health      []HealthCheck
	Auth        SplitRoutes
	// Protected handlers are mounted entirely behind RequireAuth.
	Protected []Routes
}

const healthTimeout = 2 * time.Second

// NewRouter builds the chi router for deps.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(deps.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(deps.Metrics.Middleware)
	r.Use(request.Logger(deps.Logger))

	r.Get("/health", healthHandler(deps.Health))
	if deps.Gatherer != nil {
		r.With(admin.RequireAdminToken(deps.MetricsAuth, deps.Logger)).
			Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	if deps.Auth != nil {
		deps.Auth.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(deps.Tokens, deps.Revocations, deps.Logger))
		if deps.Auth != nil {
			deps.Auth.RegisterAuthenticated(r)
		}
		for _, p := range deps.Protected {
			p.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				resp.Checks[c.Name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "up"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
