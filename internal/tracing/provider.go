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

// Package tracing wires OpenTelemetry for sscgate: a tracer provider with
// the configured span exporter, and a meter provider that publishes
// through the Prometheus registry served on /metrics.
package tracing

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLPHTTP = "otlp-http"
)

// Config controls tracing and OpenTelemetry metrics.
type Config struct {
	// Exporter is one of none, console or otlp-http.
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP collector host[:port] for otlp-http.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS for otlp-http.
	Insecure bool `yaml:"insecure,omitempty"`

	// Headers are sent with every OTLP export.
	Headers map[string]string `yaml:"headers,omitempty"`

	// SampleRate is the fraction of runs traced (0 < rate <= 1).
	// Zero means trace everything.
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	ServiceName    string `yaml:"-"`
	ServiceVersion string `yaml:"-"`
}

// Validate checks the exporter settings.
func (c Config) Validate() error {
	switch c.Exporter {
	case "", ExporterNone, ExporterConsole:
	case ExporterOTLPHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required for exporter %s", c.Exporter)
		}
	default:
		return fmt.Errorf("unknown tracing exporter %q (want none, console or otlp-http)", c.Exporter)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

// Provider owns the tracer and meter providers.
type Provider struct {
	tp trace.TracerProvider
	mp metric.MeterProvider

	shutdown []func(context.Context) error
}

// NewProvider builds providers from cfg. reg receives the OpenTelemetry
// metrics; when nil, metrics are discarded.
func NewProvider(ctx context.Context, cfg Config, reg prometheus.Registerer) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sscgate"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if exporter == nil {
		p.tp = noop.NewTracerProvider()
	} else {
		sampler := sdktrace.AlwaysSample()
		if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
			sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(tp)
		p.tp = tp
		p.shutdown = append(p.shutdown, tp.Shutdown)
	}

	if reg == nil {
		p.mp = metricnoop.NewMeterProvider()
	} else {
		promExporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExporter),
		)
		p.mp = mp
		p.shutdown = append(p.shutdown, mp.Shutdown)
	}

	return p, nil
}

// Noop returns a provider that records nothing.
func Noop() *Provider {
	return &Provider{tp: noop.NewTracerProvider(), mp: metricnoop.NewMeterProvider()}
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Meter returns a meter for the given instrumentation scope.
func (p *Provider) Meter(name string) metric.Meter {
	return p.mp.Meter(name)
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
