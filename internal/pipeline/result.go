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
	"errors"
	"time"
)

// OutcomeKind classifies how an operation finished.
type OutcomeKind string

const (
	OutcomeSuccess    OutcomeKind = "success"
	OutcomeClassified OutcomeKind = "classified"
	OutcomeUnexpected OutcomeKind = "unexpected"
)

// Outcome records the result of one executed operation.
type Outcome struct {
	Index    int           `json:"index"`
	TypeID   string        `json:"type"`
	Name     string        `json:"name"`
	Kind     OutcomeKind   `json:"kind"`
	Message  string        `json:"message,omitempty"`
	Cause    error         `json:"-"`
	Severity Severity      `json:"severity"`
	Stopped  bool          `json:"stopped,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Failed reports whether the operation did not succeed.
func (o Outcome) Failed() bool {
	return o.Kind != OutcomeSuccess
}

// Result is the outcome of a whole run. Operations after a stopping
// failure have no Outcome.
type Result struct {
	RunID         string        `json:"run_id"`
	JobName       string        `json:"job"`
	Outcomes      []Outcome     `json:"outcomes"`
	FinalSeverity Severity      `json:"final_severity"`
	Stopped       bool          `json:"stopped"`
	Duration      time.Duration `json:"duration_ns"`
}

// Failures returns the outcomes that did not succeed.
func (r *Result) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// FirstUnexpected returns the first unexpected failure of a result, if any.
func (r *Result) FirstUnexpected() (*UnexpectedError, bool) {
	for _, o := range r.Outcomes {
		var ue *UnexpectedError
		if o.Kind == OutcomeUnexpected && errors.As(o.Cause, &ue) {
			return ue, true
		}
	}
	return nil, false
}
