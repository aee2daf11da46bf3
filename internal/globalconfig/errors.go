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

package globalconfig

import "fmt"

// ConfigUnavailableError is returned when a type is not enabled in the
// global configuration. It is never retried.
type ConfigUnavailableError struct {
	TypeID string

	// Unknown is set when the type is not in the catalog at all.
	Unknown bool
}

// Error implements the error interface.
func (e *ConfigUnavailableError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("%s is not a known configurable type", e.TypeID)
	}
	return fmt.Sprintf("%s is not enabled in global configuration", e.TypeID)
}

// IsUserVisible implements errors.UserVisibleError.
func (e *ConfigUnavailableError) IsUserVisible() bool { return true }

// UserMessage implements errors.UserVisibleError.
func (e *ConfigUnavailableError) UserMessage() string { return e.Error() }

// Suggestion implements errors.UserVisibleError.
func (e *ConfigUnavailableError) Suggestion() string {
	if e.Unknown {
		return "Run 'sscgate types' to list known types"
	}
	return fmt.Sprintf("Ask an administrator to run 'sscgate global enable %s'", e.TypeID)
}

// ErrorType implements errors.ErrorClassifier.
func (e *ConfigUnavailableError) ErrorType() string { return "config_unavailable" }

// IsRetryable implements errors.ErrorClassifier.
func (e *ConfigUnavailableError) IsRetryable() bool { return false }
