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

package log

import (
	"context"
	"log/slog"
	"time"
)

// APICall describes one call to the SSC REST API for logging purposes.
type APICall struct {
	// Method is the HTTP method.
	Method string

	// Path is the request path relative to the API root.
	Path string

	// Attempt is the 1-based attempt number when retrying.
	Attempt int
}

// APIResult describes how an API call completed.
type APIResult struct {
	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int

	// Err is the transport or decode error, if any.
	Err error

	// Duration is the wall-clock time of the call.
	Duration time.Duration
}

// LogAPICall logs the start of an SSC API call at debug level.
func LogAPICall(logger *slog.Logger, call APICall) {
	logger.Debug("ssc request",
		EventKey, "ssc_request",
		"method", call.Method,
		"path", call.Path,
		"attempt", call.Attempt,
	)
}

// LogAPIResult logs the completion of an SSC API call. Failures are logged
// at warn level because the caller decides whether they are fatal.
func LogAPIResult(logger *slog.Logger, call APICall, res APIResult) {
	attrs := []any{
		EventKey, "ssc_response",
		"method", call.Method,
		"path", call.Path,
		"attempt", call.Attempt,
		"status", res.StatusCode,
		DurationKey, res.Duration.Milliseconds(),
	}

	level := slog.LevelDebug
	msg := "ssc request completed"
	if res.Err != nil || res.StatusCode >= 400 {
		level = slog.LevelWarn
		msg = "ssc request failed"
		if res.Err != nil {
			attrs = append(attrs, "error", res.Err.Error())
		}
	}

	logger.Log(context.Background(), level, msg, attrs...)
}
