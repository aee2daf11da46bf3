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

// Package sscclient is a small client for the Fortify Software Security
// Center REST API covering application versions, artifacts and issues.
package sscclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/time/rate"

	"github.com/tombee/sscgate/internal/log"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// Artifact processing states reported by SSC.
const (
	StatusProcessComplete = "PROCESS_COMPLETE"
	StatusProcessing      = "PROCESSING"
	StatusScheduled       = "SCHED_PROCESSING"
	StatusRequireAuth     = "REQUIRE_AUTH"
	StatusErrorProcessing = "ERROR_PROCESSING"
	StatusAuthDenied      = "AUTH_DENIED"
)

const defaultApprovalComment = "Auto-approved by sscgate"

// ApplicationVersion identifies an SSC application version.
type ApplicationVersion struct {
	ID          string
	Application string
	Name        string
}

// Artifact is an uploaded analysis result.
type Artifact struct {
	ID     string
	Status string
}

// Processing reports whether SSC is still working on the artifact.
func (a *Artifact) Processing() bool {
	return a.Status == StatusProcessing || a.Status == StatusScheduled
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ssc %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ssc %s %s: %d", e.Method, e.Path, e.StatusCode)
}

// ErrorType implements errors.ErrorClassifier.
func (e *APIError) ErrorType() string { return "ssc_api" }

// IsRetryable implements errors.ErrorClassifier.
func (e *APIError) IsRetryable() bool { return retryableStatus(e.StatusCode) }

// Client talks to one SSC instance. It is safe for concurrent use.
type Client struct {
	base         *url.URL
	http         *http.Client
	logger       *slog.Logger
	pollInterval time.Duration

	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	meter     metric.Meter
	transport http.RoundTripper
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMeter records request counts and latency on meter.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithTransport replaces the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// New creates a client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &sscerrors.ConfigError{Key: "ssc", Reason: "invalid client configuration", Cause: err}
	}
	o := options{logger: log.Discard(), meter: noop.NewMeterProvider().Meter("sscgate")}
	for _, opt := range opts {
		opt(&o)
	}

	base, _ := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))

	var rt http.RoundTripper = o.transport
	if rt == nil {
		rt = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	rt = &authTransport{base: rt, token: cfg.Token, userAgent: cfg.UserAgent}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		rt = &limitTransport{base: rt, limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)}
	}
	rt = &loggingTransport{base: rt, logger: log.WithComponent(o.logger, "sscclient")}
	if cfg.RetryAttempts > 0 {
		rt = &retryTransport{
			base:        rt,
			maxAttempts: cfg.RetryAttempts + 1,
			baseBackoff: cfg.RetryBackoff,
			maxBackoff:  cfg.MaxBackoff,
		}
	}

	requests, err := o.meter.Int64Counter("sscgate_ssc_requests",
		metric.WithDescription("SSC API requests by method and status class"))
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}
	latency, err := o.meter.Float64Histogram("sscgate_ssc_request_duration",
		metric.WithDescription("SSC API request latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}

	return &Client{
		base:         base,
		http:         &http.Client{Transport: rt, Timeout: cfg.Timeout},
		logger:       o.logger,
		pollInterval: cfg.PollInterval,
		requests:     requests,
		latency:      latency,
	}, nil
}

// FindApplicationVersion looks up a version by application and version
// name. It returns *errors.NotFoundError when no such version exists.
func (c *Client) FindApplicationVersion(ctx context.Context, application, version string) (*ApplicationVersion, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("project.name:%q,name:%q", application, version))
	q.Set("fields", "id,name,project")
	q.Set("limit", "1")

	var doc any
	if err := c.do(ctx, http.MethodGet, "/api/v1/projectVersions", q, nil, "", &doc); err != nil {
		return nil, err
	}
	id, err := extractString(".data[0].id // empty", doc)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, &sscerrors.NotFoundError{Resource: "application version", ID: application + ":" + version}
	}
	return &ApplicationVersion{ID: id, Application: application, Name: version}, nil
}

// CreateApplicationVersion creates version under application, creating
// the application if needed. A blank issueTemplate selects the SSC
// default template.
func (c *Client) CreateApplicationVersion(ctx context.Context, application, version, issueTemplate string) (*ApplicationVersion, error) {
	templateID, err := c.issueTemplateID(ctx, issueTemplate)
	if err != nil {
		return nil, err
	}

	project := map[string]any{"name": application, "issueTemplateId": templateID}
	if appID, err := c.applicationID(ctx, application); err != nil {
		return nil, err
	} else if appID != "" {
		project = map[string]any{"id": appID}
	}

	body := map[string]any{
		"name":            version,
		"description":     "",
		"active":          true,
		"committed":       false,
		"issueTemplateId": templateID,
		"project":         project,
	}
	var doc any
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/projectVersions", body, &doc); err != nil {
		return nil, err
	}
	id, err := extractString(".data.id", doc)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("ssc returned no id for created version %s:%s", application, version)
	}

	// Required attributes are left to their SSC defaults; committing makes
	// the version usable.
	path := "/api/v1/projectVersions/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodPut, path, map[string]any{"committed": true}, nil); err != nil {
		return nil, fmt.Errorf("commit version %s: %w", id, err)
	}
	return &ApplicationVersion{ID: id, Application: application, Name: version}, nil
}

func (c *Client) issueTemplateID(ctx context.Context, name string) (string, error) {
	q := url.Values{}
	if name == "" {
		q.Set("q", "defaultTemplate:true")
	} else {
		q.Set("q", fmt.Sprintf("name:%q", name))
	}
	q.Set("fields", "id,name")
	q.Set("limit", "1")

	var doc any
	if err := c.do(ctx, http.MethodGet, "/api/v1/issueTemplates", q, nil, "", &doc); err != nil {
		return "", err
	}
	id, err := extractString(".data[0].id // empty", doc)
	if err != nil {
		return "", err
	}
	if id == "" {
		if name == "" {
			name = "default"
		}
		return "", &sscerrors.NotFoundError{Resource: "issue template", ID: name}
	}
	return id, nil
}

func (c *Client) applicationID(ctx context.Context, name string) (string, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("name:%q", name))
	q.Set("fields", "id")
	q.Set("limit", "1")
	var doc any
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects", q, nil, "", &doc); err != nil {
		return "", err
	}
	return extractString(".data[0].id // empty", doc)
}

// UploadArtifact uploads the file at path to the application version and
// returns the new artifact ID.
func (c *Client) UploadArtifact(ctx context.Context, versionID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	apiPath := "/api/v1/projectVersions/" + url.PathEscape(versionID) + "/artifacts"
	var doc any
	if err := c.do(ctx, http.MethodPost, apiPath, nil, pr, mw.FormDataContentType(), &doc); err != nil {
		pr.CloseWithError(err)
		return "", err
	}
	id, err := extractString(".data.id", doc)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("ssc returned no artifact id for upload of %s", filepath.Base(path))
	}
	return id, nil
}

// GetArtifact returns the current state of an artifact.
func (c *Client) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	q := url.Values{}
	q.Set("fields", "id,status")
	var doc any
	if err := c.do(ctx, http.MethodGet, "/api/v1/artifacts/"+url.PathEscape(id), q, nil, "", &doc); err != nil {
		return nil, err
	}
	status, err := extractString(".data.status", doc)
	if err != nil {
		return nil, err
	}
	return &Artifact{ID: id, Status: status}, nil
}

// ApproveArtifact approves an artifact waiting for authorization.
func (c *Client) ApproveArtifact(ctx context.Context, id, comment string) error {
	if comment == "" {
		comment = defaultApprovalComment
	}
	body := map[string]any{"artifactIds": []string{id}, "comment": comment}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/artifacts/action/approve", body, nil)
}

// WaitForArtifact polls the artifact until processing ends or timeout
// elapses. With approve set, an artifact that requires authorization is
// approved once and polling continues. The final state is returned once
// processing ends. When timeout elapses first the result is a
// *errors.TimeoutError.
func (c *Client) WaitForArtifact(ctx context.Context, id string, timeout time.Duration, approve bool) (*Artifact, error) {
	deadline := time.Now().Add(timeout)
	approved := false
	for {
		a, err := c.GetArtifact(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case a.Status == StatusRequireAuth && approve && !approved:
			c.logger.Info("approving artifact", slog.String("artifact", id))
			if err := c.ApproveArtifact(ctx, id, ""); err != nil {
				return nil, fmt.Errorf("approve artifact %s: %w", id, err)
			}
			approved = true
		case a.Status == StatusRequireAuth || !a.Processing():
			return a, nil
		}

		if !time.Now().Before(deadline) {
			return nil, &sscerrors.TimeoutError{
				Operation: fmt.Sprintf("processing of artifact %s (status %s)", id, a.Status),
				Duration:  timeout,
			}
		}
		wait := c.pollInterval
		if rem := time.Until(deadline); rem < wait {
			wait = rem
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// CountIssues returns the number of issues in the version matching the
// SSC search string, counting at most limit issues. A limit <= 0 means no
// limit.
func (c *Client) CountIssues(ctx context.Context, versionID, search string, limit int) (int, error) {
	q := url.Values{}
	if search != "" {
		q.Set("q", search)
		q.Set("qm", "issues")
	}
	q.Set("fields", "id")
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	} else {
		q.Set("limit", "1")
	}

	var doc any
	path := "/api/v1/projectVersions/" + url.PathEscape(versionID) + "/issues"
	if err := c.do(ctx, http.MethodGet, path, q, nil, "", &doc); err != nil {
		return 0, err
	}
	n, err := extractInt(".count // (.data | length)", doc)
	if err != nil {
		return 0, err
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	var decoded any
	if err := c.do(ctx, method, path, nil, body, "application/json", &decoded); err != nil {
		return err
	}
	if ptr, ok := out.(*any); ok {
		*ptr = decoded
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out *any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.record(ctx, method, status, time.Since(start))
	if err != nil {
		return fmt.Errorf("ssc %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read ssc response: %w", err)
	}

	var doc any
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil && resp.StatusCode < 400 {
			return fmt.Errorf("decode ssc response from %s: %w", path, err)
		}
	}

	if resp.StatusCode >= 400 {
		msg, _ := extractString(".message // empty", doc)
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: msg}
	}
	if out != nil {
		*out = doc
	}
	return nil
}

func (c *Client) record(ctx context.Context, method string, status int, d time.Duration) {
	class := "error"
	if status > 0 {
		class = fmt.Sprintf("%dxx", status/100)
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", class),
	)
	c.requests.Add(ctx, 1, attrs)
	c.latency.Record(ctx, d.Seconds(), attrs)
}
