// SPDX-License-Identifier: MIT

package config

import "fmt"

// Validate checks the configuration for values the daemon cannot run with.
// It returns the first problem found.
func Validate(cfg Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", cfg.MaxUploadBytes)
	}

	switch cfg.Auth.Mode {
	case AuthToken, AuthJWT, AuthNone:
	default:
		return fmt.Errorf("auth.mode must be one of token, jwt, none; got %q", cfg.Auth.Mode)
	}
	if cfg.Auth.Mode == AuthJWT && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret required for jwt mode")
	}

	if cfg.Geometry.BufferSegments < 1 {
		return fmt.Errorf("geometry.buffer_segments must be at least 1, got %d", cfg.Geometry.BufferSegments)
	}

	switch cfg.Cache.Backend {
	case "memory", "none":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr required for redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of memory, redis, none; got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	if cfg.Jobs.Workers < 1 {
		return fmt.Errorf("jobs.workers must be at least 1, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.QueueSize < 1 {
		return fmt.Errorf("jobs.queue_size must be at least 1, got %d", cfg.Jobs.QueueSize)
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerMinute < 1 {
			return fmt.Errorf("rate_limit.requests_per_minute must be at least 1")
		}
		if cfg.RateLimit.ProcessPerMinute < 1 {
			return fmt.Errorf("rate_limit.process_per_minute must be at least 1")
		}
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.exporter must be grpc or http, got %q", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			return fmt.Errorf("telemetry.sampling_rate must be within [0,1], got %v", cfg.Telemetry.SamplingRate)
		}
	}

	return nil
}
