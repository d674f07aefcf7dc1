// SPDX-License-Identifier: MIT

// Package api implements the HTTP surface of the geoproc daemon.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/terralab/geoproc/internal/blob"
	"github.com/terralab/geoproc/internal/cache"
	"github.com/terralab/geoproc/internal/config"
	"github.com/terralab/geoproc/internal/health"
	"github.com/terralab/geoproc/internal/jobs"
	"github.com/terralab/geoproc/internal/log"
	"github.com/terralab/geoproc/internal/middleware"
	"github.com/terralab/geoproc/internal/store"
	"github.com/terralab/geoproc/internal/version"
)

// Server holds the handler dependencies.
type Server struct {
	holder  *config.Holder
	store   *store.Store
	blobs   *blob.Store
	results cache.ResultCache
	runner  *jobs.Runner
	health  *health.Manager
	logger  zerolog.Logger
}

// New creates a Server.
func New(holder *config.Holder, st *store.Store, blobs *blob.Store, results cache.ResultCache, runner *jobs.Runner, hm *health.Manager) *Server {
	return &Server{
		holder:  holder,
		store:   st,
		blobs:   blobs,
		results: results,
		runner:  runner,
		health:  hm,
		logger:  log.WithComponent("api"),
	}
}

// Handler builds the router with the canonical middleware stack. The
// middleware stack is assembled from the config as of this call; handlers
// and the auth layer read the holder per request, so only router-level
// settings (CORS, rate limits, tracing) need a restart to change.
func (s *Server) Handler() http.Handler {
	cfg := s.holder.Current()

	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = "geoproc"
	}

	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:    cfg.AllowedOrigins,
		EnableMetrics:     true,
		TracingService:    tracingService,
		EnableLogging:     true,
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
	})

	// Public surface.
	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Authenticated API.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAuth)

		// The geometry endpoints are expensive, they get a stricter limit:
		// a global token bucket plus the per-IP window.
		r.Group(func(r chi.Router) {
			if cfg.RateLimit.Enabled {
				perSecond := rate.Limit(float64(cfg.RateLimit.ProcessPerMinute) / 60)
				r.Use(middleware.GlobalLimit(perSecond, cfg.RateLimit.ProcessPerMinute))
				r.Use(middleware.ProcessRateLimit(cfg.RateLimit.ProcessPerMinute))
			}
			r.Post("/buffer", s.handleBuffer)
			r.Post("/process", s.handleProcess)
			r.Post("/jobs", s.handleSubmitJob)
		})

		r.Route("/datasets", func(r chi.Router) {
			r.Get("/", s.handleListDatasets)
			r.Post("/", s.handleCreateDataset)
			r.Get("/{id}", s.handleGetDataset)
			r.Put("/{id}", s.handleReplaceDataset)
			r.Delete("/{id}", s.handleDeleteDataset)
			r.Get("/{id}/download", s.handleDownloadDataset)
			r.Post("/{id}/export", s.handleExportDataset)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Get("/{id}", s.handleGetJob)
			r.Get("/{id}/result", s.handleJobResult)
		})
	})

	return r
}

// Run serves the API until ctx is cancelled, then drains connections
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.holder.Current()

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("event", "api.listen").
			Str("addr", cfg.Listen).
			Str("version", version.Version).
			Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info().Str("event", "api.shutdown").Msg("draining http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// handleRoot reports service identity, matching what operators expect
// from a quick curl.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "geoproc",
		"version": version.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
