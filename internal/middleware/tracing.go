// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing creates a middleware that adds OpenTelemetry tracing to HTTP
// requests. otelhttp handles span creation and W3C context propagation; the
// inner handler enriches the span with the resolved chi route, the status
// code and the request ID.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			enrichSpan(next),
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanName),
		)
	}
}

// shouldTrace skips the probe endpoints to keep the trace stream quiet.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

func spanName(_ string, r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

func enrichSpan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		span := trace.SpanFromContext(r.Context())

		// Use route pattern if available (keeps attribute cardinality bounded).
		route := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		statusCode := ww.Status()
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", statusCode),
		)
		if reqID := ww.Header().Get(HeaderRequestID); reqID != "" {
			span.SetAttributes(attribute.String("http.request_id", reqID))
		}

		if statusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(statusCode))
		} else {
			// Treat 4xx as client-side issues to avoid noisy error signal.
			span.SetStatus(codes.Ok, "")
		}
	})
}
