// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/terralab/geoproc/internal/log"
)

// Holder holds configuration with atomic reloading capability. It provides
// thread-safe access and supports hot reloading from file change events or
// a manual trigger via the API.
type Holder struct {
	mu      sync.RWMutex
	current Config
	loader  *Loader
	path    string
	logger  zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []chan<- Config
}

// NewHolder creates a holder with the initial config. path may be empty when
// no config file is in use; Reload then re-evaluates environment overrides.
func NewHolder(initial Config, loader *Loader, path string) *Holder {
	return &Holder{
		current: initial,
		loader:  loader,
		path:    path,
		logger:  log.WithComponent("config"),
	}
}

// Current returns the current configuration (thread-safe read).
func (h *Holder) Current() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Subscribe registers a channel that receives the new config after each
// successful reload. Sends are non-blocking; slow listeners miss updates.
func (h *Holder) Subscribe(ch chan<- Config) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

// Reload re-runs the loader and validates the result. On failure the old
// configuration is kept, so a reload is all-or-nothing.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration, keeping current")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	h.current = newCfg
	h.mu.Unlock()

	h.notify(newCfg)

	h.logger.Info().
		Str(log.FieldEvent, "config.reload_success").
		Msg("configuration reloaded")
	return nil
}

func (h *Holder) notify(cfg Config) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
		}
	}
}

// Watch starts watching the config file for changes until ctx is cancelled.
// Editors typically replace files on save, so the parent directory is
// watched and events are debounced before triggering a reload.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer func() {
			if err := watcher.Close(); err != nil {
				h.logger.Debug().Err(err).Msg("close config watcher")
			}
		}()

		var timer *time.Timer
		const debounce = 250 * time.Millisecond

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(h.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Warn().
							Err(err).
							Str(log.FieldEvent, "config.watch_reload_failed").
							Str(log.FieldPath, h.path).
							Msg("file change triggered reload failed")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				h.logger.Warn().Err(err).Str(log.FieldEvent, "config.watch_error").Msg("config watcher error")
			}
		}
	}()

	h.logger.Info().
		Str(log.FieldEvent, "config.watch_started").
		Str(log.FieldPath, h.path).
		Msg("watching config file for changes")
	return nil
}
