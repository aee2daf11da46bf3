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

package operation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/pipeline"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// CheckIssueCount fails when the number of issues matching searchString
// compares true against threshold.
type CheckIssueCount struct {
	base
}

// Execute implements pipeline.Operation.
func (o *CheckIssueCount) Execute(ctx context.Context, rc *pipeline.RunContext) error {
	if err := rc.Resolver.CheckEnabled(o.TypeID()); err != nil {
		return err
	}
	opts := rc.ResolveOptions()

	search, err := o.inst.ResolveString(rc.Resolver, catalog.PropSearchString, opts...)
	if err != nil {
		return err
	}
	operator, err := o.inst.ResolveString(rc.Resolver, catalog.PropOperator, opts...)
	if err != nil {
		return err
	}
	threshold, err := o.inst.ResolveInt(rc.Resolver, catalog.PropThreshold, opts...)
	if err != nil {
		return err
	}
	program, err := comparison(operator)
	if err != nil {
		return err
	}

	versionID, err := o.versionID(ctx, rc)
	if err != nil {
		return err
	}

	// Counting one past the threshold is enough to decide every operator.
	count, err := o.ssc.CountIssues(ctx, versionID, search, threshold+1)
	if err != nil {
		return err
	}

	matched, err := evaluate(program, count, threshold)
	if err != nil {
		return err
	}
	rc.Logger.Info("checked issue count",
		slog.Int("count", count), slog.String("operator", operator), slog.Int("threshold", threshold))
	if matched {
		return pipeline.Failf("Number of issues matching '%s' %s %d", search, operator, threshold)
	}
	return nil
}

type compareEnv struct {
	Count     int `expr:"count"`
	Threshold int `expr:"threshold"`
}

var (
	programsMu sync.Mutex
	programs   = map[string]*vm.Program{}
)

// comparison compiles the predicate for operator, which must be <, = or >.
func comparison(operator string) (*vm.Program, error) {
	var op string
	switch operator {
	case "<", ">":
		op = operator
	case "=":
		op = "=="
	default:
		return nil, &sscerrors.ValidationError{
			Field:      catalog.PropOperator,
			Message:    fmt.Sprintf("illegal compare operator '%s'", operator),
			Suggestion: "Use <, = or >",
		}
	}

	programsMu.Lock()
	defer programsMu.Unlock()
	if p, ok := programs[op]; ok {
		return p, nil
	}
	p, err := expr.Compile("count "+op+" threshold", expr.Env(compareEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile comparison: %w", err)
	}
	programs[op] = p
	return p, nil
}

func evaluate(program *vm.Program, count, threshold int) (bool, error) {
	out, err := expr.Run(program, compareEnv{Count: count, Threshold: threshold})
	if err != nil {
		return false, fmt.Errorf("evaluate comparison: %w", err)
	}
	b, _ := out.(bool)
	return b, nil
}
