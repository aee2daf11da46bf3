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

package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps an OpenTelemetry span with pipeline-specific helpers. A nil
// *Span is safe to use.
type Span struct {
	span trace.Span
}

// StartRun creates the root span of a pipeline run.
func StartRun(ctx context.Context, tracer trace.Tracer, runID, jobName string, operations int) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("pipeline.run: %s", jobName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.run_id", runID),
			attribute.String("pipeline.job", jobName),
			attribute.Int("pipeline.operations", operations),
		),
	)
	return ctx, &Span{span: span}
}

// StartOperation creates a child span for one operation.
func StartOperation(ctx context.Context, tracer trace.Tracer, index int, typeID, name string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, fmt.Sprintf("operation: %s", name),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("operation.index", index),
			attribute.String("operation.type", typeID),
			attribute.String("operation.name", name),
		),
	)
	return ctx, &Span{span: span}
}

// SetAttributes adds string attributes to the span.
func (s *Span) SetAttributes(kv ...attribute.KeyValue) {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetAttributes(kv...)
}

// RecordError records err and marks the span as failed.
func (s *Span) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span as successful.
func (s *Span) SetOK() {
	if s == nil || s.span == nil {
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// End marks the span as complete.
func (s *Span) End() {
	if s == nil || s.span == nil {
		return
	}
	s.span.End()
}

// TraceID returns the trace ID as a string.
func (s *Span) TraceID() string {
	if s == nil || s.span == nil {
		return ""
	}
	return s.span.SpanContext().TraceID().String()
}
