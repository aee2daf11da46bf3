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

// Package operation implements the SSC pipeline operations:
// createApplicationVersion, uploadArtifact and checkIssueCount.
package operation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/instance"
	"github.com/tombee/sscgate/internal/pipeline"
	"github.com/tombee/sscgate/internal/sscclient"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// SSC is the subset of the SSC API the operations use.
type SSC interface {
	FindApplicationVersion(ctx context.Context, application, version string) (*sscclient.ApplicationVersion, error)
	CreateApplicationVersion(ctx context.Context, application, version, issueTemplate string) (*sscclient.ApplicationVersion, error)
	UploadArtifact(ctx context.Context, versionID, path string) (string, error)
	GetArtifact(ctx context.Context, id string) (*sscclient.Artifact, error)
	WaitForArtifact(ctx context.Context, id string, timeout time.Duration, approve bool) (*sscclient.Artifact, error)
	CountIssues(ctx context.Context, versionID, search string, limit int) (int, error)
}

var _ SSC = (*sscclient.Client)(nil)

// base holds what every operation shares: its own instance, the job's
// static application version instance and the SSC client.
type base struct {
	inst   *instance.Instance
	target *instance.Instance
	ssc    SSC
}

func (b *base) TypeID() string { return b.inst.TypeID() }

func (b *base) Name() string { return b.inst.Type().DisplayName }

func (b *base) Instance() *instance.Instance { return b.inst }

// New builds the operation for inst. target is the job's applicationVersion
// instance.
func New(inst, target *instance.Instance, ssc SSC) (pipeline.Operation, error) {
	if target == nil || target.TypeID() != catalog.TypeApplicationVersion {
		return nil, &sscerrors.ValidationError{
			Field:   catalog.TypeApplicationVersion,
			Message: "an application version instance is required",
		}
	}
	b := base{inst: inst, target: target, ssc: ssc}
	switch inst.TypeID() {
	case catalog.TypeCreateApplicationVersion:
		return &CreateApplicationVersion{base: b}, nil
	case catalog.TypeUploadArtifact:
		return &UploadArtifact{base: b}, nil
	case catalog.TypeCheckIssueCount:
		return &CheckIssueCount{base: b}, nil
	default:
		return nil, &sscerrors.ValidationError{
			Field:      "type",
			Message:    fmt.Sprintf("%s is not an operation type", inst.TypeID()),
			Suggestion: "Use createApplicationVersion, uploadArtifact or checkIssueCount",
		}
	}
}

// names resolves the application and version names of the target. Blank
// names fail before any SSC call.
func (b *base) names(rc *pipeline.RunContext) (string, string, error) {
	opts := rc.ResolveOptions()
	app, err := b.target.ResolveString(rc.Resolver, catalog.PropApplicationName, opts...)
	if err != nil {
		return "", "", err
	}
	if err := pipeline.RequireNonBlank(catalog.TypeApplicationVersion, catalog.PropApplicationName, app); err != nil {
		return "", "", err
	}
	version, err := b.target.ResolveString(rc.Resolver, catalog.PropVersionName, opts...)
	if err != nil {
		return "", "", err
	}
	if err := pipeline.RequireNonBlank(catalog.TypeApplicationVersion, catalog.PropVersionName, version); err != nil {
		return "", "", err
	}
	return app, version, nil
}

// versionID looks up the target application version.
func (b *base) versionID(ctx context.Context, rc *pipeline.RunContext) (string, error) {
	app, version, err := b.names(rc)
	if err != nil {
		return "", err
	}
	v, err := b.ssc.FindApplicationVersion(ctx, app, version)
	var nf *sscerrors.NotFoundError
	if errors.As(err, &nf) {
		return "", pipeline.Failf("Application version %s:%s does not exist", app, version)
	}
	if err != nil {
		return "", err
	}
	return v.ID, nil
}
