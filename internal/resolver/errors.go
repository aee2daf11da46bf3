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

package resolver

import "fmt"

// OverrideViolationError is returned when a FAIL policy is breached by a
// job value that differs from the administrator default.
type OverrideViolationError struct {
	TypeID    string
	Property  string
	Default   any
	Candidate any
}

// Error implements the error interface.
func (e *OverrideViolationError) Error() string {
	return fmt.Sprintf("property %s may not be overridden (default value: '%v', supplied value: '%v')",
		e.Property, e.Default, e.Candidate)
}

// IsUserVisible implements errors.UserVisibleError.
func (e *OverrideViolationError) IsUserVisible() bool { return true }

// UserMessage implements errors.UserVisibleError.
func (e *OverrideViolationError) UserMessage() string { return e.Error() }

// Suggestion implements errors.UserVisibleError.
func (e *OverrideViolationError) Suggestion() string {
	return fmt.Sprintf("Remove %s from the job or set it to '%v'", e.Property, e.Default)
}

// ErrorType implements errors.ErrorClassifier.
func (e *OverrideViolationError) ErrorType() string { return "override_violation" }

// IsRetryable implements errors.ErrorClassifier.
func (e *OverrideViolationError) IsRetryable() bool { return false }
