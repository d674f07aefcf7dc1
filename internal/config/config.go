// SPDX-License-Identifier: MIT

// Package config loads service configuration with precedence ENV > file > defaults.
package config

import "time"

// Config is the root configuration for the geoproc daemon.
type Config struct {
	Listen         string   `yaml:"listen"`
	DataDir        string   `yaml:"data_dir"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`

	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Geometry  GeometryConfig  `yaml:"geometry"`
	Cache     CacheConfig     `yaml:"cache"`
	Jobs      JobsConfig      `yaml:"jobs"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthMode selects how API requests are authenticated.
type AuthMode string

const (
	// AuthToken validates a static bearer token with constant-time comparison.
	AuthToken AuthMode = "token"
	// AuthJWT validates HS256 JWTs signed with a shared secret.
	AuthJWT AuthMode = "jwt"
	// AuthNone disables authentication. Must be set explicitly.
	AuthNone AuthMode = "none"
)

// AuthConfig holds authentication settings. With an empty token/secret and a
// mode other than "none" the API is fail-closed.
type AuthConfig struct {
	Mode      AuthMode `yaml:"mode"`
	Token     string   `yaml:"token"`
	JWTSecret string   `yaml:"jwt_secret"`
}

// GeometryConfig tunes the geometry pipeline.
type GeometryConfig struct {
	// BufferSegments is the number of segments per quarter circle when
	// approximating round buffer caps and joins.
	BufferSegments int `yaml:"buffer_segments"`
}

// CacheConfig configures the processing result cache.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory | redis | none
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// JobsConfig configures the asynchronous job runner.
type JobsConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// RateLimitConfig configures per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	// ProcessPerMinute applies to the expensive geometry endpoints.
	ProcessPerMinute int `yaml:"process_per_minute"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:         ":8080",
		DataDir:        "./data",
		LogLevel:       "info",
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 64 << 20, // 64 MiB per upload
		Server: ServerConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthToken,
		},
		Geometry: GeometryConfig{
			BufferSegments: 8,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     10 * time.Minute,
			RedisDB: 0,
		},
		Jobs: JobsConfig{
			Workers:   4,
			QueueSize: 64,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 600,
			ProcessPerMinute:  30,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "http",
			Endpoint:     "localhost:4318",
			SamplingRate: 1.0,
			Environment:  "development",
		},
	}
}
