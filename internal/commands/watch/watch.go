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

// Package watch implements the command that hot-reloads the global
// configuration file and serves Prometheus metrics.
package watch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tombee/sscgate/internal/commands/shared"
	"github.com/tombee/sscgate/internal/config"
	"github.com/tombee/sscgate/internal/globalconfig"
	"github.com/tombee/sscgate/internal/log"
	"github.com/tombee/sscgate/internal/watch"
)

// NewCommand creates the watch command.
func NewCommand() *cobra.Command {
	var (
		listen   string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the global configuration file when it changes",
		Long: `Watch the global configuration file and reload it whenever it is
edited. Invalid edits are logged and the previous configuration stays in
effect. Prometheus metrics are served on /metrics until interrupted.

Only the file store backend can be watched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := shared.Open(ctx)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			if cmd.Flags().Changed("metrics-listen") {
				app.Config.Metrics.Listen = listen
			}
			return run(ctx, cmd, app, debounce)
		},
	}

	cmd.Flags().StringVar(&listen, "metrics-listen", "", "Address for /metrics (overrides metrics.listen; empty disables)")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Delay after the last change before reloading")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, app *shared.App, debounce time.Duration) error {
	if app.Config.Store.Backend != config.BackendFile {
		return shared.NewConfigError(
			fmt.Sprintf("store backend %q cannot be watched", app.Config.Store.Backend),
			errors.New("set store.backend to file"))
	}

	app.Store.OnReplace(func(snap globalconfig.Snapshot) {
		app.Logger.Info("global configuration reloaded", "entries", len(snap.Entries))
	})

	w, err := watch.New(app.Config.Store.Path, app.Store.Load,
		watch.WithLogger(app.Logger),
		watch.WithDebounce(debounce),
		watch.WithRegisterer(app.Registry),
	)
	if err != nil {
		return err
	}

	if addr := app.Config.Metrics.Listen; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.Logger.Error("metrics server failed", log.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		app.Logger.Info("serving metrics", "addr", ln.Addr().String())
		fmt.Fprintf(cmd.OutOrStdout(), "Metrics: http://%s/metrics\n", ln.Addr())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", app.Config.Store.Path)
	if err := w.Run(ctx); err != nil {
		return err
	}
	app.Logger.Info("shutting down")
	return nil
}
