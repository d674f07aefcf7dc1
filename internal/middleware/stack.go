// SPDX-License-Identifier: MIT

// Package middleware provides the canonical HTTP ingress middleware stack.
package middleware

import (
	"github.com/go-chi/chi/v5"

	xglog "github.com/terralab/geoproc/internal/log"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
// Both public and authenticated routes go through the same stack to prevent
// drift in cross-cutting concerns.
type StackConfig struct {
	// CORS
	AllowedOrigins []string

	// Observability
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// Rate limiting
	RateLimitEnabled  bool
	RequestsPerMinute int
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. CORS (so OPTIONS and browser clients behave)
	r.Use(CORS(cfg.AllowedOrigins))
	// 4. Security headers
	r.Use(SecurityHeaders())
	// 5. Metrics (track all requests)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 6. Tracing (distributed tracing with OpenTelemetry)
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	// 7. Logging (wraps handlers, captures full latency)
	if cfg.EnableLogging {
		r.Use(xglog.Middleware())
	}
	// 8. Rate limit (global protection)
	if cfg.RateLimitEnabled {
		r.Use(APIRateLimit(cfg.RequestsPerMinute))
	}
}
