// SPDX-License-Identifier: MIT

// Command daemon runs the geoproc HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/terralab/geoproc/internal/api"
	"github.com/terralab/geoproc/internal/blob"
	"github.com/terralab/geoproc/internal/cache"
	"github.com/terralab/geoproc/internal/config"
	"github.com/terralab/geoproc/internal/health"
	"github.com/terralab/geoproc/internal/jobs"
	xglog "github.com/terralab/geoproc/internal/log"
	"github.com/terralab/geoproc/internal/store"
	"github.com/terralab/geoproc/internal/telemetry"
	"github.com/terralab/geoproc/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe logging defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "geoproc",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit flag first, otherwise <data_dir>/config.yaml
	// when it exists.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := config.ParseString("GEOPROC_DATA", "./data")
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectivePath = autoPath
		}
	}

	loader := config.NewLoader(effectivePath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "geoproc",
		Version: version.Version,
	})

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("addr", cfg.Listen).
		Str("data_dir", cfg.DataDir).
		Str("auth_mode", string(cfg.Auth.Mode)).
		Msg("starting geoproc")

	if err := run(ctx, cfg, loader, effectivePath); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str("event", "shutdown.complete").Msg("geoproc stopped")
}

func run(ctx context.Context, cfg config.Config, loader *config.Loader, configPath string) error {
	logger := xglog.WithComponent("daemon")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Tracing.
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "geoproc",
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Str("event", "telemetry.shutdown_failed").Msg("tracer shutdown failed")
		}
	}()

	// Persistence.
	st, err := store.Open(filepath.Join(cfg.DataDir, "geoproc.db"), store.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	blobs, err := blob.Open(filepath.Join(cfg.DataDir, "blobs"))
	if err != nil {
		return err
	}
	defer func() { _ = blobs.Close() }()

	// Result cache.
	results, redisCache, err := buildCache(cfg)
	if err != nil {
		return err
	}
	if redisCache != nil {
		defer func() { _ = redisCache.Close() }()
	}

	// Job workers.
	runner := jobs.New(st, blobs, jobs.Config{
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
		ResultTTL: 24 * time.Hour,
	})
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Stop()

	// Health checks.
	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewDirChecker("data_dir", cfg.DataDir))
	hm.RegisterChecker(health.NewPingChecker("metadata_db", 2*time.Second, st.DB().PingContext))
	if redisCache != nil {
		hm.RegisterChecker(health.NewPingChecker("redis", 2*time.Second, redisCache.Ping))
	}

	// Hot reload of the config file.
	holder := config.NewHolder(cfg, loader, configPath)
	if err := holder.Watch(ctx); err != nil {
		logger.Warn().Err(err).Str("event", "config.watch_failed").Msg("config file watching disabled")
	}

	return api.New(holder, st, blobs, results, runner, hm).Run(ctx)
}

// buildCache constructs the configured result cache backend. The Redis
// handle is returned separately so it can be closed and health-checked.
func buildCache(cfg config.Config) (cache.ResultCache, *cache.RedisCache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, xglog.WithComponent("cache"))
		if err != nil {
			return nil, nil, fmt.Errorf("init redis cache: %w", err)
		}
		return rc, rc, nil
	case "none":
		return cache.NewNoOpCache(), nil, nil
	default:
		return cache.NewMemoryCache(time.Minute), nil, nil
	}
}
