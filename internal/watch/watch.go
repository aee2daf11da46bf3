// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package watch reloads the global configuration when its file changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/sscgate/internal/log"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc loads the file and applies it. A returned error leaves the
// previous configuration in place.
type ReloadFunc func(ctx context.Context) error

// Watcher calls a ReloadFunc whenever one file changes.
type Watcher struct {
	path     string
	reload   ReloadFunc
	debounce time.Duration
	logger   *slog.Logger
	reloads  *prometheus.CounterVec
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// WithDebounce sets the settle delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithRegisterer registers the reload counter on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(w *Watcher) {
		w.reloads = promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sscgate_config_reloads_total",
				Help: "Global configuration reloads by result",
			},
			[]string{"result"},
		)
	}
}

// New creates a watcher for path.
func New(path string, reload ReloadFunc, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	w := &Watcher{
		path:     abs,
		reload:   reload,
		debounce: DefaultDebounce,
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = log.WithComponent(w.logger, "watch")
	return w, nil
}

// Run watches until ctx is done. The parent directory is watched so that
// editors and atomic renames replacing the file are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching global configuration", slog.String("path", w.path))

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			log.Trace(w.logger, "file event", slog.String(log.EventKey, ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", log.Error(err))

		case <-timer.C:
			w.apply(ctx)
		}
	}
}

func (w *Watcher) apply(ctx context.Context) {
	if err := w.reload(ctx); err != nil {
		w.logger.Error("reload failed, keeping previous configuration", log.Error(err))
		w.count("error")
		return
	}
	w.logger.Info("global configuration reloaded")
	w.count("success")
}

func (w *Watcher) count(result string) {
	if w.reloads != nil {
		w.reloads.WithLabelValues(result).Inc()
	}
}
