// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty configPath skips the file layer.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load builds the effective configuration: defaults first, then the YAML
// file (if any), then environment overrides, then validation. Unknown YAML
// keys are rejected so typos fail fast.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.mergeFile(&cfg); err != nil {
			return Config{}, err
		}
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l *Loader) mergeFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s: %w", l.configPath, err)
		}
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", l.configPath, err)
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.Listen = ParseString("GEOPROC_LISTEN", cfg.Listen)
	cfg.DataDir = ParseString("GEOPROC_DATA", cfg.DataDir)
	cfg.LogLevel = ParseString("GEOPROC_LOG_LEVEL", cfg.LogLevel)
	cfg.AllowedOrigins = ParseStringSlice("GEOPROC_ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.MaxUploadBytes = ParseInt64("GEOPROC_MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.Server.ReadTimeout = ParseDuration("GEOPROC_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = ParseDuration("GEOPROC_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = ParseDuration("GEOPROC_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = ParseDuration("GEOPROC_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Auth.Mode = AuthMode(ParseString("GEOPROC_AUTH_MODE", string(cfg.Auth.Mode)))
	cfg.Auth.Token = ParseString("GEOPROC_API_TOKEN", cfg.Auth.Token)
	cfg.Auth.JWTSecret = ParseString("GEOPROC_JWT_SECRET", cfg.Auth.JWTSecret)

	cfg.Geometry.BufferSegments = ParseInt("GEOPROC_BUFFER_SEGMENTS", cfg.Geometry.BufferSegments)

	cfg.Cache.Backend = ParseString("GEOPROC_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = ParseDuration("GEOPROC_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.RedisAddr = ParseString("GEOPROC_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString("GEOPROC_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt("GEOPROC_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Jobs.Workers = ParseInt("GEOPROC_JOB_WORKERS", cfg.Jobs.Workers)
	cfg.Jobs.QueueSize = ParseInt("GEOPROC_JOB_QUEUE_SIZE", cfg.Jobs.QueueSize)

	cfg.RateLimit.Enabled = ParseBool("GEOPROC_RATELIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = ParseInt("GEOPROC_RATELIMIT_RPM", cfg.RateLimit.RequestsPerMinute)
	cfg.RateLimit.ProcessPerMinute = ParseInt("GEOPROC_RATELIMIT_PROCESS_RPM", cfg.RateLimit.ProcessPerMinute)

	cfg.Telemetry.Enabled = ParseBool("GEOPROC_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString("GEOPROC_OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString("GEOPROC_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat("GEOPROC_OTEL_SAMPLING", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = ParseString("GEOPROC_OTEL_ENVIRONMENT", cfg.Telemetry.Environment)
}
