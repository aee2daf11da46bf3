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

package errors

import (
	"errors"
)

// UserVisibleError is implemented by errors the CLI shows verbatim,
// followed by a suggestion line when one is available.
type UserVisibleError interface {
	error
	IsUserVisible() bool
	UserMessage() string
	// Suggestion may be empty.
	Suggestion() string
}

// ErrorClassifier is implemented by errors that carry a stable category
// for logs and JSON output, such as "validation" or "override_violation".
type ErrorClassifier interface {
	error
	ErrorType() string
	IsRetryable() bool
}

// Suggestion returns the suggestion of the first UserVisibleError in the
// chain. A UserVisibleError that reports itself as not visible hides the
// rest of the chain.
func Suggestion(err error) string {
	var uv UserVisibleError
	if !errors.As(err, &uv) || !uv.IsUserVisible() {
		return ""
	}
	return uv.Suggestion()
}

// ErrorType returns the category of the first ErrorClassifier in the
// chain, or an empty string.
func ErrorType(err error) string {
	var ec ErrorClassifier
	if errors.As(err, &ec) {
		return ec.ErrorType()
	}
	return ""
}
