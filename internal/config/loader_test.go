// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("listen: got %q, want :8080", cfg.Listen)
	}
	if cfg.Auth.Mode != AuthToken {
		t.Errorf("auth mode: got %q, want token", cfg.Auth.Mode)
	}
	if cfg.Jobs.Workers != 4 {
		t.Errorf("workers: got %d, want 4", cfg.Jobs.Workers)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("listen: \":9090\"\nlog_level: debug\njobs:\n  workers: 2\n  queue_size: 8\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen: got %q, want :9090", cfg.Listen)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level: got %q, want debug", cfg.LogLevel)
	}
	if cfg.Jobs.Workers != 2 || cfg.Jobs.QueueSize != 8 {
		t.Errorf("jobs: got %+v", cfg.Jobs)
	}
	// untouched sections keep defaults
	if cfg.Cache.Backend != "memory" {
		t.Errorf("cache backend: got %q, want memory", cfg.Cache.Backend)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEOPROC_LISTEN", ":7070")
	t.Setenv("GEOPROC_CACHE_TTL", "30s")

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("listen: got %q, want :7070 (env wins)", cfg.Listen)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("cache ttl: got %v, want 30s", cfg.Cache.TTL)
	}
}

func TestLoadFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("listen: \":9191\"\nlog_level: warn\ncache:\n  backend: none\ngeometry:\n  buffer_segments: 16\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Defaults()
	want.Listen = ":9191"
	want.LogLevel = "warn"
	want.Cache.Backend = "none"
	want.Geometry.BufferSegments = 16

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("listne: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := NewLoader("/nonexistent/config.yaml").Load(); err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults ok", func(c *Config) {}, false},
		{"empty listen", func(c *Config) { c.Listen = "" }, true},
		{"bad auth mode", func(c *Config) { c.Auth.Mode = "basic" }, true},
		{"auth none ok", func(c *Config) { c.Auth.Mode = AuthNone }, false},
		{"jwt without secret", func(c *Config) { c.Auth.Mode = AuthJWT }, true},
		{"jwt with secret", func(c *Config) {
			c.Auth.Mode = AuthJWT
			c.Auth.JWTSecret = "shared-secret"
		}, false},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, true},
		{"redis with addr", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Cache.RedisAddr = "localhost:6379"
		}, false},
		{"zero workers", func(c *Config) { c.Jobs.Workers = 0 }, true},
		{"negative upload cap", func(c *Config) { c.MaxUploadBytes = -1 }, true},
		{"bad sampling rate", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SamplingRate = 2
		}, true},
		{"zero buffer segments", func(c *Config) { c.Geometry.BufferSegments = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHolderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	holder := NewHolder(cfg, loader, path)

	updates := make(chan Config, 1)
	holder.Subscribe(updates)

	if err := os.WriteFile(path, []byte("listen: \":9191\"\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := holder.Reload(t.Context()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := holder.Current().Listen; got != ":9191" {
		t.Errorf("listen after reload: got %q, want :9191", got)
	}
	select {
	case got := <-updates:
		if got.Listen != ":9191" {
			t.Errorf("listener got %q, want :9191", got.Listen)
		}
	default:
		t.Error("listener was not notified")
	}
}

func TestHolderReloadKeepsOldOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	holder := NewHolder(cfg, loader, path)

	// invalid: unknown key
	if err := os.WriteFile(path, []byte("nope: true\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := holder.Reload(t.Context()); err == nil {
		t.Fatal("expected reload error, got nil")
	}
	if got := holder.Current().Listen; got != ":9090" {
		t.Errorf("listen after failed reload: got %q, want :9090", got)
	}
}
