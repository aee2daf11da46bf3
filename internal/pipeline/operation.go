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

package pipeline

import (
	"context"
	"log/slog"

	"github.com/tombee/sscgate/internal/instance"
	"github.com/tombee/sscgate/internal/resolver"
)

// Operation is one step of a job.
type Operation interface {
	// TypeID returns the catalog type the operation belongs to.
	TypeID() string

	// Name returns a human-readable label used in logs and spans.
	Name() string

	// Execute performs the work. Classified failures are returned as
	// *OperationExecutionError or one of the resolver errors.
	Execute(ctx context.Context, rc *RunContext) error
}

// InstanceProvider is implemented by operations backed by a configured
// instance. The runner reads the error-handling candidates from it.
type InstanceProvider interface {
	Instance() *instance.Instance
}

// RunContext carries per-run state shared by all operations of a job.
type RunContext struct {
	RunID     string
	JobName   string
	Workspace string
	Env       map[string]string
	Resolver  *resolver.Resolver

	// Logger is scoped to the run and, while an operation executes, to
	// that operation.
	Logger *slog.Logger
}

// ResolveOptions returns the resolver options every operation should
// pass when reading its own properties.
func (rc *RunContext) ResolveOptions() []resolver.Option {
	opts := []resolver.Option{resolver.WithLogger(rc.Logger)}
	if rc.Env != nil {
		opts = append(opts, resolver.WithEnv(rc.Env))
	}
	return opts
}

// Func adapts a function into an Operation.
type Func struct {
	Type  string
	Label string
	Inst  *instance.Instance
	Fn    func(ctx context.Context, rc *RunContext) error
}

// TypeID implements Operation.
func (f *Func) TypeID() string { return f.Type }

// Name implements Operation.
func (f *Func) Name() string {
	if f.Label == "" {
		return f.Type
	}
	return f.Label
}

// Execute implements Operation.
func (f *Func) Execute(ctx context.Context, rc *RunContext) error {
	return f.Fn(ctx, rc)
}

// Instance implements InstanceProvider.
func (f *Func) Instance() *instance.Instance { return f.Inst }

var (
	_ Operation        = (*Func)(nil)
	_ InstanceProvider = (*Func)(nil)
)
