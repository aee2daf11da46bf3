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
	"fmt"
	"strings"

	"github.com/tombee/sscgate/internal/resolver"
)

// Severity is the ordered outcome level of an operation or a run.
type Severity int

const (
	SeveritySuccess Severity = iota
	SeverityUnstable
	SeverityFailure
)

// String returns the upper-case name.
func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "SUCCESS"
	case SeverityUnstable:
		return "UNSTABLE"
	case SeverityFailure:
		return "FAILURE"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESS":
		return SeveritySuccess, nil
	case "UNSTABLE":
		return SeverityUnstable, nil
	case "FAILURE":
		return SeverityFailure, nil
	default:
		return SeverityFailure, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Combine folds two severities. It is monotonic: the worse one wins.
func Combine(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// ExitCode maps a final severity to a process exit code.
func (s Severity) ExitCode() int {
	switch s {
	case SeveritySuccess:
		return 0
	case SeverityUnstable:
		return 2
	default:
		return 1
	}
}

// ResolveSeverity resolves a severity property through r.
func ResolveSeverity(r *resolver.Resolver, typeID, property string, candidate any, opts ...resolver.Option) (Severity, error) {
	s, err := r.ResolveString(typeID, property, candidate, opts...)
	if err != nil {
		return SeverityFailure, err
	}
	return ParseSeverity(s)
}
