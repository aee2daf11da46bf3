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

// Package config loads sscgate's own settings: logging, where the global
// configuration is stored, how to reach SSC and observability.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/sscgate/internal/log"
	"github.com/tombee/sscgate/internal/sscclient"
	"github.com/tombee/sscgate/internal/tracing"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the sscgate configuration.
type Config struct {
	Log     LogConfig      `yaml:"log"`
	Store   StoreConfig    `yaml:"store"`
	SSC     SSCConfig      `yaml:"ssc"`
	Tracing tracing.Config `yaml:"tracing"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`
}

// StoreConfig selects where the global configuration is persisted.
type StoreConfig struct {
	// Backend is file, sqlite or memory.
	// Environment: SSCGATE_STORE_BACKEND
	Backend string `yaml:"backend"`

	// Path is the YAML file or SQLite database. Defaults to a file in the
	// config directory.
	// Environment: SSCGATE_STORE_PATH
	Path string `yaml:"path"`
}

// SSCConfig configures the SSC connection.
type SSCConfig struct {
	// URL is the SSC root URL.
	// Environment: SSCGATE_SSC_URL
	URL string `yaml:"url"`

	// TokenEnv names the environment variable holding the token. When it
	// is unset the OS keychain is consulted.
	TokenEnv string `yaml:"token_env"`

	Timeout       time.Duration `yaml:"timeout"`
	RateLimit     float64       `yaml:"rate_limit"`
	RetryAttempts int           `yaml:"retry_attempts"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// MetricsConfig configures the Prometheus endpoint of the watch command.
type MetricsConfig struct {
	// Listen is the address of the /metrics listener. Empty disables it.
	// Environment: SSCGATE_METRICS_LISTEN
	Listen string `yaml:"listen"`
}

// Default returns a configuration with default values.
func Default() *Config {
	client := sscclient.DefaultConfig()
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Backend: BackendFile,
		},
		SSC: SSCConfig{
			TokenEnv:      "SSC_TOKEN",
			Timeout:       client.Timeout,
			RateLimit:     client.RateLimit,
			RetryAttempts: client.RetryAttempts,
			PollInterval:  client.PollInterval,
		},
		Tracing: tracing.Config{
			Exporter:   tracing.ExporterNone,
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
	}
}

// Load loads configuration from an optional YAML file and environment
// variables. Environment variables take precedence over the file. A
// missing file at the default location is not an error.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	explicit := configPath != ""
	if !explicit {
		p, err := ConfigPath()
		if err == nil {
			configPath = p
		}
	}
	if configPath != "" {
		err := cfg.loadFromFile(configPath)
		if err != nil && (explicit || !os.IsNotExist(err)) {
			return nil, &sscerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.loadFromEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &sscerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("SSCGATE_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("SSCGATE_DEBUG"); val == "1" || val == "true" {
		c.Log.Level = "debug"
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Log.AddSource = b
		}
	}

	if val := os.Getenv("SSCGATE_STORE_BACKEND"); val != "" {
		c.Store.Backend = val
	}
	if val := os.Getenv("SSCGATE_STORE_PATH"); val != "" {
		c.Store.Path = val
	}

	if val := os.Getenv("SSCGATE_SSC_URL"); val != "" {
		c.SSC.URL = val
	}
	if val := os.Getenv("SSCGATE_SSC_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.SSC.Timeout = d
		}
	}

	if val := os.Getenv("SSCGATE_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}

	if val, ok := os.LookupEnv("SSCGATE_METRICS_LISTEN"); ok {
		c.Metrics.Listen = val
	}
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Store.Backend == "" {
		c.Store.Backend = def.Store.Backend
	}
	if c.Store.Path == "" && c.Store.Backend != BackendMemory {
		if dir, err := ConfigDir(); err == nil {
			name := "global.yaml"
			if c.Store.Backend == BackendSQLite {
				name = "global.db"
			}
			c.Store.Path = filepath.Join(dir, name)
		}
	}
	if c.SSC.TokenEnv == "" {
		c.SSC.TokenEnv = def.SSC.TokenEnv
	}
	if c.SSC.Timeout == 0 {
		c.SSC.Timeout = def.SSC.Timeout
	}
	if c.SSC.PollInterval == 0 {
		c.SSC.PollInterval = def.SSC.PollInterval
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = tracing.ExporterNone
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != string(log.FormatJSON) && c.Log.Format != string(log.FormatText) {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Sprintf("store.path is required for the %s backend", c.Store.Backend))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be one of [file, sqlite, memory], got %q", c.Store.Backend))
	}

	if c.SSC.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("ssc.timeout must be positive, got %v", c.SSC.Timeout))
	}
	if c.SSC.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("ssc.rate_limit must be >= 0, got %v", c.SSC.RateLimit))
	}
	if c.SSC.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("ssc.retry_attempts must be >= 0, got %d", c.SSC.RetryAttempts))
	}

	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// LogSettings converts the log section for log.New.
func (c *Config) LogSettings() *log.Config {
	lc := log.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = log.Format(c.Log.Format)
	lc.AddSource = c.Log.AddSource
	return lc
}

// ClientConfig builds the SSC client configuration. token is supplied by
// the caller, normally from ResolveToken.
func (c *Config) ClientConfig(token string) sscclient.Config {
	cc := sscclient.DefaultConfig()
	cc.BaseURL = c.SSC.URL
	cc.Token = token
	cc.Timeout = c.SSC.Timeout
	cc.RateLimit = c.SSC.RateLimit
	cc.RetryAttempts = c.SSC.RetryAttempts
	if c.SSC.PollInterval > 0 {
		cc.PollInterval = c.SSC.PollInterval
	}
	return cc
}
