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

package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/config"
	"github.com/tombee/sscgate/internal/globalconfig"
	"github.com/tombee/sscgate/internal/globalconfig/backend/file"
	"github.com/tombee/sscgate/internal/globalconfig/backend/memory"
	"github.com/tombee/sscgate/internal/globalconfig/backend/sqlite"
	"github.com/tombee/sscgate/internal/log"
	"github.com/tombee/sscgate/internal/sscclient"
	"github.com/tombee/sscgate/internal/tracing"
)

// App bundles what commands need: configuration, logger, the global
// configuration store and observability.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Catalog  *catalog.Catalog
	Store    *globalconfig.Store
	Backend  globalconfig.Backend
	Registry *prometheus.Registry
	Tracing  *tracing.Provider
}

// Open loads configuration and opens the store. The caller must Close the
// App.
func Open(ctx context.Context) (*App, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("", err)
	}

	lc := cfg.LogSettings()
	switch {
	case GetVerbose():
		lc.Level = "debug"
	case GetQuiet():
		lc.Level = "warn"
	}
	logger := log.New(lc)

	backend, err := openBackend(cfg.Store)
	if err != nil {
		return nil, NewConfigError("cannot open global configuration", err)
	}

	cat := catalog.Builtin()
	store := globalconfig.NewStore(cat, backend, globalconfig.WithLogger(logger))
	if err := store.Load(ctx); err != nil {
		backend.Close()
		return nil, NewConfigError("", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	v, _, _ := GetVersion()
	tcfg := cfg.Tracing
	tcfg.ServiceName = "sscgate"
	tcfg.ServiceVersion = v
	tp, err := tracing.NewProvider(ctx, tcfg, reg)
	if err != nil {
		backend.Close()
		return nil, NewConfigError("cannot set up tracing", err)
	}

	logger.Debug("configuration loaded",
		slog.String("store", cfg.Store.Backend),
		slog.String("path", cfg.Store.Path),
		slog.String("tracing", cfg.Tracing.Exporter))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Catalog:  cat,
		Store:    store,
		Backend:  backend,
		Registry: reg,
		Tracing:  tp,
	}, nil
}

func openBackend(sc config.StoreConfig) (globalconfig.Backend, error) {
	switch sc.Backend {
	case config.BackendFile:
		return file.New(sc.Path), nil
	case config.BackendSQLite:
		return sqlite.New(sqlite.Config{Path: sc.Path, WAL: true})
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

// NewClient creates an SSC client from the configuration and token.
func (a *App) NewClient() (*sscclient.Client, error) {
	if a.Config.SSC.URL == "" {
		return nil, NewConfigError("no SSC URL configured", errors.New("set ssc.url or SSCGATE_SSC_URL"))
	}
	token, err := a.Config.ResolveToken()
	if err != nil {
		return nil, NewConfigError("", err)
	}
	log.Trace(a.Logger, "ssc token resolved", slog.String("token", log.SanitizeToken(token)))
	return sscclient.New(a.Config.ClientConfig(token),
		sscclient.WithLogger(a.Logger),
		sscclient.WithMeter(a.Tracing.Meter("sscgate/sscclient")),
	)
}

// Close flushes telemetry and closes the store backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Tracing != nil {
		errs = append(errs, a.Tracing.Shutdown(ctx))
	}
	if a.Backend != nil {
		errs = append(errs, a.Backend.Close())
	}
	return errors.Join(errs...)
}
