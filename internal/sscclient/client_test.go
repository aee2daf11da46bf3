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

package sscclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/ssc"
	cfg.Token = "secret-token"
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.RateLimit = 0

	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing url", func(c *Config) { c.BaseURL = "" }, true},
		{"relative url", func(c *Config) { c.BaseURL = "/ssc" }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, true},
		{"max below base", func(c *Config) { c.MaxBackoff = time.Millisecond }, true},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.BaseURL = "https://ssc.example.com/ssc"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFindApplicationVersion(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ssc/api/v1/projectVersions", r.URL.Path)
		assert.Equal(t, "FortifyToken secret-token", r.Header.Get("Authorization"))
		if r.URL.Query().Get("q") == `project.name:"app",name:"1.0"` {
			writeJSON(w, 200, map[string]any{"data": []any{map[string]any{"id": 42, "name": "1.0"}}, "count": 1})
			return
		}
		writeJSON(w, 200, map[string]any{"data": []any{}, "count": 0})
	}))

	v, err := c.FindApplicationVersion(context.Background(), "app", "1.0")
	require.NoError(t, err)
	assert.Equal(t, "42", v.ID)

	_, err = c.FindApplicationVersion(context.Background(), "app", "2.0")
	var nf *sscerrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCreateApplicationVersion(t *testing.T) {
	var created, committed bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/ssc/api/v1/issueTemplates":
			assert.Equal(t, `name:"Prioritized"`, r.URL.Query().Get("q"))
			writeJSON(w, 200, map[string]any{"data": []any{map[string]any{"id": "tmpl-1"}}})
		case r.Method == http.MethodGet && r.URL.Path == "/ssc/api/v1/projects":
			writeJSON(w, 200, map[string]any{"data": []any{}})
		case r.Method == http.MethodPost && r.URL.Path == "/ssc/api/v1/projectVersions":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "1.0", body["name"])
			assert.Equal(t, "tmpl-1", body["issueTemplateId"])
			assert.Equal(t, "app", body["project"].(map[string]any)["name"])
			created = true
			writeJSON(w, 201, map[string]any{"data": map[string]any{"id": 7}})
		case r.Method == http.MethodPut && r.URL.Path == "/ssc/api/v1/projectVersions/7":
			committed = true
			writeJSON(w, 200, map[string]any{"data": map[string]any{"id": 7, "committed": true}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	v, err := c.CreateApplicationVersion(context.Background(), "app", "1.0", "Prioritized")
	require.NoError(t, err)
	assert.Equal(t, "7", v.ID)
	assert.True(t, created)
	assert.True(t, committed)
}

func TestUploadAndWait(t *testing.T) {
	dir := t.TempDir()
	fpr := filepath.Join(dir, "scan.fpr")
	require.NoError(t, os.WriteFile(fpr, []byte("fpr-bytes"), 0o644))

	var (
		mu       sync.Mutex
		status   = StatusProcessing
		polls    int
		approved bool
	)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/ssc/api/v1/projectVersions/42/artifacts":
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			assert.Equal(t, "scan.fpr", hdr.Filename)
			assert.Equal(t, "fpr-bytes", string(data))
			writeJSON(w, 201, map[string]any{"data": map[string]any{"id": 99}})
		case r.Method == http.MethodGet && r.URL.Path == "/ssc/api/v1/artifacts/99":
			polls++
			if polls == 2 {
				status = StatusRequireAuth
			}
			writeJSON(w, 200, map[string]any{"data": map[string]any{"id": 99, "status": status}})
		case r.Method == http.MethodPost && r.URL.Path == "/ssc/api/v1/artifacts/action/approve":
			approved = true
			status = StatusProcessComplete
			writeJSON(w, 200, map[string]any{"responseCode": 200})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	id, err := c.UploadArtifact(context.Background(), "42", fpr)
	require.NoError(t, err)
	assert.Equal(t, "99", id)

	a, err := c.WaitForArtifact(context.Background(), id, time.Second, true)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessComplete, a.Status)
	assert.True(t, approved)
}

func TestWaitForArtifact_RequireAuthWithoutApprove(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"data": map[string]any{"id": 1, "status": StatusRequireAuth}})
	}))
	a, err := c.WaitForArtifact(context.Background(), "1", time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, StatusRequireAuth, a.Status)
}

func TestWaitForArtifact_Timeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"data": map[string]any{"id": 1, "status": StatusProcessing}})
	}))
	a, err := c.WaitForArtifact(context.Background(), "1", 10*time.Millisecond, false)
	assert.Nil(t, a)
	var te *sscerrors.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 10*time.Millisecond, te.Duration)
	assert.Contains(t, te.Error(), "status PROCESSING")
	assert.Equal(t, "timeout", sscerrors.ErrorType(err))
}

func TestCountIssues(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ssc/api/v1/projectVersions/42/issues", r.URL.Path)
		assert.Equal(t, "[fortify priority order]:critical", r.URL.Query().Get("q"))
		assert.Equal(t, "6", r.URL.Query().Get("limit"))
		writeJSON(w, 200, map[string]any{"data": []any{map[string]any{"id": 1}}, "count": 12})
	}))

	n, err := c.CountIssues(context.Background(), "42", "[fortify priority order]:critical", 6)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, 200, map[string]any{"data": map[string]any{"id": 5, "status": StatusProcessComplete}})
	}))

	a, err := c.GetArtifact(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessComplete, a.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAPIError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "Access denied", "responseCode": 403})
	}))

	_, err := c.GetArtifact(context.Background(), "5")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Access denied", apiErr.Message)
	assert.False(t, apiErr.IsRetryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"data": map[string]any{"id": 5, "status": StatusProcessComplete}})
	}), WithMeter(mp.Meter("test")))

	_, err := c.GetArtifact(context.Background(), "5")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "sscgate_ssc_requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), total)
}

func TestSanitizeURL(t *testing.T) {
	u, err := url.Parse("https://ssc/api/v1/upload?mat=abc&fields=id")
	require.NoError(t, err)
	got := sanitizeURL(u)
	assert.Contains(t, got, "mat=%5BREDACTED%5D")
	assert.Contains(t, got, "fields=id")
	assert.NotContains(t, got, "abc")
}

func TestExtract(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"data":[{"id":3}],"count":9}`), &doc))

	id, err := extractString(".data[0].id", doc)
	require.NoError(t, err)
	assert.Equal(t, "3", id)

	n, err := extractInt(".count", doc)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	_, err = extract(".data[", doc)
	assert.Error(t, err)
}
