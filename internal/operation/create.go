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
	"log/slog"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/pipeline"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// CreateApplicationVersion creates the target version when it does not
// exist yet.
type CreateApplicationVersion struct {
	base
}

// Execute implements pipeline.Operation.
func (o *CreateApplicationVersion) Execute(ctx context.Context, rc *pipeline.RunContext) error {
	if err := rc.Resolver.CheckEnabled(o.TypeID()); err != nil {
		return err
	}
	app, version, err := o.names(rc)
	if err != nil {
		return err
	}

	_, err = o.ssc.FindApplicationVersion(ctx, app, version)
	var nf *sscerrors.NotFoundError
	switch {
	case err == nil:
		rc.Logger.Info("application version exists", slog.String("application", app), slog.String("version", version))
		return nil
	case !errors.As(err, &nf):
		return err
	}

	template, err := o.inst.ResolveString(rc.Resolver, catalog.PropIssueTemplateName, rc.ResolveOptions()...)
	if err != nil {
		return err
	}

	rc.Logger.Info("application version does not exist, creating",
		slog.String("application", app), slog.String("version", version))
	v, err := o.ssc.CreateApplicationVersion(ctx, app, version, template)
	if err != nil {
		var ve *sscerrors.NotFoundError
		if errors.As(err, &ve) {
			return &pipeline.OperationExecutionError{Message: "Cannot create application version", Cause: err}
		}
		return err
	}
	rc.Logger.Info("created application version",
		slog.String("application", app), slog.String("version", version), slog.String("id", v.ID))
	return nil
}
