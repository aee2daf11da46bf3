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
	"fmt"
	"runtime/debug"

	"github.com/tombee/sscgate/internal/resolver"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// OperationExecutionError is an expected failure inside an operation,
// such as a missing application version. Only its message is logged.
type OperationExecutionError struct {
	Message string
	Cause   error
}

// Failf creates an OperationExecutionError with a formatted message.
func Failf(format string, args ...any) *OperationExecutionError {
	return &OperationExecutionError{Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *OperationExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *OperationExecutionError) Unwrap() error {
	return e.Cause
}

// ErrorType implements errors.ErrorClassifier.
func (e *OperationExecutionError) ErrorType() string { return "operation_execution" }

// IsRetryable implements errors.ErrorClassifier.
func (e *OperationExecutionError) IsRetryable() bool { return false }

// BlankRequiredPropertyError is raised by an operation before any
// external work when a required property resolves to blank.
type BlankRequiredPropertyError struct {
	TypeID   string
	Property string
}

// Error implements the error interface.
func (e *BlankRequiredPropertyError) Error() string {
	return fmt.Sprintf("%s: required property %s is blank", e.TypeID, e.Property)
}

// IsUserVisible implements errors.UserVisibleError.
func (e *BlankRequiredPropertyError) IsUserVisible() bool { return true }

// UserMessage implements errors.UserVisibleError.
func (e *BlankRequiredPropertyError) UserMessage() string { return e.Error() }

// Suggestion implements errors.UserVisibleError.
func (e *BlankRequiredPropertyError) Suggestion() string {
	return fmt.Sprintf("Set %s in the job file or as a global default", e.Property)
}

// ErrorType implements errors.ErrorClassifier.
func (e *BlankRequiredPropertyError) ErrorType() string { return "blank_required_property" }

// IsRetryable implements errors.ErrorClassifier.
func (e *BlankRequiredPropertyError) IsRetryable() bool { return false }

// UnexpectedError wraps any failure that is not classified. It carries the
// stack captured where it was created.
type UnexpectedError struct {
	Cause error
	Stack []byte
}

// Unexpected wraps err and captures the current stack. An err that is
// already an *UnexpectedError is returned unchanged.
func Unexpected(err error) *UnexpectedError {
	var ue *UnexpectedError
	if errors.As(err, &ue) {
		return ue
	}
	return &UnexpectedError{Cause: err, Stack: debug.Stack()}
}

// Error implements the error interface.
func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *UnexpectedError) Unwrap() error {
	return e.Cause
}

// RequireNonBlank returns *BlankRequiredPropertyError when v is blank.
func RequireNonBlank(typeID, property string, v any) error {
	if resolver.IsBlank(v) {
		return &BlankRequiredPropertyError{TypeID: typeID, Property: property}
	}
	return nil
}

// IsClassified reports whether err is an expected failure whose message
// alone is enough to diagnose it.
func IsClassified(err error) bool {
	var (
		oe *OperationExecutionError
		br *BlankRequiredPropertyError
		cu *resolver.ConfigUnavailableError
		ov *resolver.OverrideViolationError
		ve *sscerrors.ValidationError
		ue *UnexpectedError
	)
	if errors.As(err, &ue) {
		return false
	}
	return errors.As(err, &oe) ||
		errors.As(err, &br) ||
		errors.As(err, &cu) ||
		errors.As(err, &ov) ||
		errors.As(err, &ve)
}
