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

package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/pipeline"
	"github.com/tombee/sscgate/internal/sscclient"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// UploadArtifact uploads the single FPR file selected by fprFilter and
// waits for SSC to process it.
type UploadArtifact struct {
	base
}

// Execute implements pipeline.Operation.
func (o *UploadArtifact) Execute(ctx context.Context, rc *pipeline.RunContext) error {
	if err := rc.Resolver.CheckEnabled(o.TypeID()); err != nil {
		return err
	}
	opts := rc.ResolveOptions()

	filter, err := o.inst.ResolveString(rc.Resolver, catalog.PropFPRFilter, opts...)
	if err != nil {
		return err
	}
	if err := pipeline.RequireNonBlank(o.TypeID(), catalog.PropFPRFilter, filter); err != nil {
		return err
	}
	timeoutSeconds, err := o.inst.ResolveInt(rc.Resolver, catalog.PropProcessingTimeoutSeconds, opts...)
	if err != nil {
		return err
	}
	approve, err := o.inst.ResolveBool(rc.Resolver, catalog.PropAutoApprove, opts...)
	if err != nil {
		return err
	}

	versionID, err := o.versionID(ctx, rc)
	if err != nil {
		return err
	}
	path, err := findFPR(rc.Workspace, filter)
	if err != nil {
		return err
	}

	rc.Logger.Info("uploading artifact", slog.String("file", path), slog.String("version_id", versionID))
	artifactID, err := o.ssc.UploadArtifact(ctx, versionID, path)
	if err != nil {
		return err
	}

	if timeoutSeconds <= 0 {
		return nil
	}
	artifact, err := o.ssc.WaitForArtifact(ctx, artifactID, time.Duration(timeoutSeconds)*time.Second, approve)
	var te *sscerrors.TimeoutError
	if errors.As(err, &te) {
		return &pipeline.OperationExecutionError{
			Message: fmt.Sprintf("Artifact was uploaded but not processed within %d seconds", timeoutSeconds),
			Cause:   te,
		}
	}
	if err != nil {
		return err
	}
	if artifact.Status != sscclient.StatusProcessComplete {
		return pipeline.Failf("Artifact was uploaded but not processed (status %s)", artifact.Status)
	}
	rc.Logger.Info("artifact processed", slog.String("artifact", artifactID))
	return nil
}

// findFPR returns the one file under workspace matching filter.
func findFPR(workspace, filter string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	if !doublestar.ValidatePattern(filter) {
		return "", pipeline.Failf("Invalid FPR filter '%s'", filter)
	}
	matches, err := doublestar.Glob(os.DirFS(workspace), filter, doublestar.WithFilesOnly())
	if err != nil {
		return "", pipeline.Failf("Cannot scan workspace with filter '%s': %v", filter, err)
	}
	switch len(matches) {
	case 0:
		return "", pipeline.Failf("No FPR file found with filter '%s'", filter)
	case 1:
		return filepath.Join(workspace, filepath.FromSlash(matches[0])), nil
	default:
		return "", pipeline.Failf("More than 1 FPR file found with filter '%s': %v", filter, matches)
	}
}
