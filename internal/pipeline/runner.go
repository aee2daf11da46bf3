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

// Package pipeline runs the operations of a job in order and folds their
// failures into a single build severity.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/log"
	"github.com/tombee/sscgate/internal/resolver"
	"github.com/tombee/sscgate/internal/tracing"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// Runner executes operations sequentially.
type Runner struct {
	resolver *resolver.Resolver
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's base logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTracer sets the tracer used for run and operation spans.
func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a runner that resolves error-handling properties
// through res.
func NewRunner(res *resolver.Resolver, opts ...RunnerOption) *Runner {
	r := &Runner{
		resolver: res,
		logger:   log.Discard(),
		tracer:   noop.NewTracerProvider().Tracer("sscgate"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes ops in order. It stops early when a failing operation's
// stopOnFailure resolves to true. Cancellation is observed between
// operations; a cancelled run returns the partial result with ctx.Err().
func (r *Runner) Run(ctx context.Context, ops []Operation, rc *RunContext) (*Result, error) {
	run := RunContext{}
	if rc != nil {
		run = *rc
	}
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.Resolver == nil {
		run.Resolver = r.resolver
	}
	if run.Logger == nil {
		run.Logger = r.logger
	}
	run.Logger = log.WithRunContext(run.Logger, run.RunID, run.JobName)

	result := &Result{
		RunID:         run.RunID,
		JobName:       run.JobName,
		FinalSeverity: SeveritySuccess,
	}

	ctx, span := tracing.StartRun(ctx, r.tracer, run.RunID, run.JobName, len(ops))
	defer span.End()

	start := time.Now()
	run.Logger.Info("pipeline started", slog.Int("operations", len(ops)))

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			run.Logger.Warn("pipeline cancelled", slog.Int("completed", len(result.Outcomes)), log.Error(err))
			span.RecordError(err)
			return result, err
		}

		outcome := r.execute(ctx, i, op, run)
		result.Outcomes = append(result.Outcomes, outcome)
		result.FinalSeverity = Combine(result.FinalSeverity, outcome.Severity)

		if outcome.Stopped {
			result.Stopped = true
			break
		}
	}

	result.Duration = time.Since(start)
	r.metrics.recordRun(result.FinalSeverity)

	span.SetAttributes(
		attribute.String("pipeline.severity", result.FinalSeverity.String()),
		attribute.Bool("pipeline.stopped", result.Stopped),
	)
	if result.FinalSeverity == SeveritySuccess {
		span.SetOK()
	} else {
		span.RecordError(fmt.Errorf("pipeline finished with %s", result.FinalSeverity))
	}

	run.Logger.Info("pipeline finished",
		slog.String("severity", result.FinalSeverity.String()),
		slog.Int("executed", len(result.Outcomes)),
		slog.Bool("stopped", result.Stopped),
		slog.Int64(log.DurationKey, result.Duration.Milliseconds()),
	)
	return result, nil
}

func (r *Runner) execute(ctx context.Context, index int, op Operation, run RunContext) Outcome {
	typeID, name := op.TypeID(), op.Name()
	logger := log.WithOperation(run.Logger, typeID, name)
	run.Logger = logger

	ctx, span := tracing.StartOperation(ctx, r.tracer, index, typeID, name)
	defer span.End()

	outcome := Outcome{
		Index:    index,
		TypeID:   typeID,
		Name:     name,
		Kind:     OutcomeSuccess,
		Severity: SeveritySuccess,
	}

	logger.Debug("operation started")
	start := time.Now()
	err := invoke(ctx, op, &run)
	outcome.Duration = time.Since(start)

	if err == nil {
		logger.Debug("operation completed", slog.Int64(log.DurationKey, outcome.Duration.Milliseconds()))
		r.metrics.recordOperation(typeID, OutcomeSuccess, outcome.Duration)
		span.SetOK()
		return outcome
	}

	outcome.Cause = err
	outcome.Message = err.Error()
	span.RecordError(err)

	if IsClassified(err) {
		outcome.Kind = OutcomeClassified
		if kind := sscerrors.ErrorType(err); kind != "" {
			logger.Error(err.Error(), slog.String(log.ErrorTypeKey, kind))
		} else {
			logger.Error(err.Error())
		}
	} else {
		outcome.Kind = OutcomeUnexpected
		ue := Unexpected(err)
		outcome.Cause = ue
		logger.Error("operation failed unexpectedly",
			log.Error(ue.Cause),
			slog.String("stack", string(ue.Stack)),
		)
	}
	r.metrics.recordOperation(typeID, outcome.Kind, outcome.Duration)

	stop, severity := r.errorHandling(op, logger)
	if outcome.Kind == OutcomeUnexpected {
		severity = SeverityFailure
	}
	outcome.Severity = severity
	outcome.Stopped = stop

	span.SetAttributes(
		attribute.String("operation.outcome", string(outcome.Kind)),
		attribute.String("operation.severity", severity.String()),
		attribute.Bool("operation.stop", stop),
	)
	if stop {
		logger.Info("stopping pipeline after failed operation", slog.String("severity", severity.String()))
	}
	return outcome
}

// invoke runs op and converts a panic into an unexpected error carrying
// the panicking goroutine's stack.
func invoke(ctx context.Context, op Operation, run *RunContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			cause, ok := rec.(error)
			if !ok {
				cause = fmt.Errorf("%v", rec)
			}
			err = &UnexpectedError{
				Cause: fmt.Errorf("panic: %w", cause),
				Stack: debug.Stack(),
			}
		}
	}()
	return op.Execute(ctx, run)
}

// errorHandling resolves stopOnFailure and severityOnFailure for a failed
// operation. Resolution never raises an override violation and does not
// require the type to be enabled, so a disabled type still honours the
// job's own settings. Any other resolution failure stops the pipeline
// with FAILURE.
func (r *Runner) errorHandling(op Operation, logger *slog.Logger) (bool, Severity) {
	var stopCandidate, severityCandidate any
	if p, ok := op.(InstanceProvider); ok {
		if inst := p.Instance(); inst != nil {
			stopCandidate, _ = inst.Get(catalog.PropStopOnFailure)
			severityCandidate, _ = inst.Get(catalog.PropSeverityOnFailure)
		}
	}

	opts := []resolver.Option{resolver.WithLogger(logger), resolver.WithoutFail(), resolver.IgnoreEnabled()}
	typeID := op.TypeID()

	stop, err := r.resolver.ResolveBool(typeID, catalog.PropStopOnFailure, stopCandidate, opts...)
	if err != nil {
		logger.Warn("cannot resolve error handling, stopping with FAILURE",
			slog.String(log.PropertyKey, catalog.PropStopOnFailure), log.Error(err))
		return true, SeverityFailure
	}

	severity, err := ResolveSeverity(r.resolver, typeID, catalog.PropSeverityOnFailure, severityCandidate, opts...)
	if err != nil {
		logger.Warn("cannot resolve error handling, stopping with FAILURE",
			slog.String(log.PropertyKey, catalog.PropSeverityOnFailure), log.Error(err))
		return true, SeverityFailure
	}
	return stop, severity
}
