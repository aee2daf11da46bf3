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

package errors_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *sscerrors.ValidationError
		wantMsg string
	}{
		{
			name: "with field",
			err: &sscerrors.ValidationError{
				Field:   "fprFilter",
				Message: "expected string, got int",
			},
			wantMsg: "validation failed on fprFilter: expected string, got int",
		},
		{
			name:    "without field",
			err:     &sscerrors.ValidationError{Message: "duplicate entry"},
			wantMsg: "validation failed: duplicate entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	err := &sscerrors.NotFoundError{Resource: "application version", ID: "demo:1.0"}
	if got := err.Error(); got != "application version not found: demo:1.0" {
		t.Errorf("NotFoundError.Error() = %q", got)
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := &sscerrors.ConfigError{Key: "store.path", Reason: "cannot open", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected ConfigError to unwrap to its cause")
	}
	want := "config error at store.path: cannot open: permission denied"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestTimeoutError(t *testing.T) {
	err := &sscerrors.TimeoutError{Operation: "artifact processing", Duration: 90 * time.Second}

	if err.Error() != "artifact processing timed out after 1m30s" {
		t.Errorf("unexpected message %q", err.Error())
	}

	var classifier sscerrors.ErrorClassifier = err
	if !classifier.IsRetryable() {
		t.Error("timeouts should be retryable")
	}
}

type visibleErr struct{ suggestion string }

func (e *visibleErr) Error() string       { return "visible" }
func (e *visibleErr) IsUserVisible() bool { return true }
func (e *visibleErr) UserMessage() string { return "visible" }
func (e *visibleErr) Suggestion() string  { return e.suggestion }

func TestSuggestion_WalksChain(t *testing.T) {
	inner := &visibleErr{suggestion: "enable the type first"}
	wrapped := sscerrors.Wrapf(fmt.Errorf("layer: %w", inner), "running %s", "job")

	if got := sscerrors.Suggestion(wrapped); got != "enable the type first" {
		t.Errorf("Suggestion() = %q", got)
	}
	if got := sscerrors.Suggestion(errors.New("plain")); got != "" {
		t.Errorf("expected empty suggestion, got %q", got)
	}
}

func TestWrap_Nil(t *testing.T) {
	if sscerrors.Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if sscerrors.Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &sscerrors.ValidationError{Message: "bad"}, "validation"},
		{"wrapped not found", fmt.Errorf("lookup: %w", &sscerrors.NotFoundError{Resource: "type", ID: "x"}), "not_found"},
		{"plain", errors.New("boom"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sscerrors.ErrorType(tt.err); got != tt.want {
				t.Errorf("ErrorType() = %q, want %q", got, tt.want)
			}
		})
	}
}
