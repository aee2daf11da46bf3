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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/globalconfig"
	"github.com/tombee/sscgate/internal/instance"
	"github.com/tombee/sscgate/internal/log"
	"github.com/tombee/sscgate/internal/pipeline"
	"github.com/tombee/sscgate/internal/resolver"
	"github.com/tombee/sscgate/internal/sscclient"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

type fakeSSC struct {
	versions map[string]string // "app:version" -> id
	created  []string
	uploads  []string
	status   string
	issues   int
	calls    int
	limit    int
	approve  bool
	timeout  bool
}

func (f *fakeSSC) FindApplicationVersion(_ context.Context, app, version string) (*sscclient.ApplicationVersion, error) {
	f.calls++
	id, ok := f.versions[app+":"+version]
	if !ok {
		return nil, &sscerrors.NotFoundError{Resource: "application version", ID: app + ":" + version}
	}
	return &sscclient.ApplicationVersion{ID: id, Application: app, Name: version}, nil
}

func (f *fakeSSC) CreateApplicationVersion(_ context.Context, app, version, template string) (*sscclient.ApplicationVersion, error) {
	f.calls++
	f.created = append(f.created, app+":"+version+"@"+template)
	return &sscclient.ApplicationVersion{ID: "new", Application: app, Name: version}, nil
}

func (f *fakeSSC) UploadArtifact(_ context.Context, versionID, path string) (string, error) {
	f.calls++
	f.uploads = append(f.uploads, versionID+"="+filepath.Base(path))
	return "art-1", nil
}

func (f *fakeSSC) GetArtifact(_ context.Context, id string) (*sscclient.Artifact, error) {
	return &sscclient.Artifact{ID: id, Status: f.status}, nil
}

func (f *fakeSSC) WaitForArtifact(_ context.Context, id string, _ time.Duration, approve bool) (*sscclient.Artifact, error) {
	f.approve = approve
	if f.timeout {
		return nil, &sscerrors.TimeoutError{Operation: "processing of artifact " + id, Duration: time.Second}
	}
	return &sscclient.Artifact{ID: id, Status: f.status}, nil
}

func (f *fakeSSC) CountIssues(_ context.Context, _, _ string, limit int) (int, error) {
	f.calls++
	f.limit = limit
	if f.issues > limit {
		return limit, nil
	}
	return f.issues, nil
}

type fixture struct {
	store  *globalconfig.Store
	res    *resolver.Resolver
	ssc    *fakeSSC
	target *instance.Instance
	rc     *pipeline.RunContext
}

func newFixture(t *testing.T, app, version string) *fixture {
	t.Helper()
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	require.NoError(t, store.Replace(globalconfig.Snapshot{Entries: []globalconfig.Entry{
		{TypeID: catalog.TypeCreateApplicationVersion, Enabled: true},
		{TypeID: catalog.TypeUploadArtifact, Enabled: true},
		{TypeID: catalog.TypeCheckIssueCount, Enabled: true},
	}}))
	res := resolver.New(store)

	ct, _ := store.Catalog().Get(catalog.TypeApplicationVersion)
	target := instance.New(ct)
	require.NoError(t, target.Set(catalog.PropApplicationName, app))
	require.NoError(t, target.Set(catalog.PropVersionName, version))

	return &fixture{
		store:  store,
		res:    res,
		ssc:    &fakeSSC{versions: map[string]string{"app:1.0": "42"}, status: sscclient.StatusProcessComplete},
		target: target,
		rc: &pipeline.RunContext{
			Workspace: t.TempDir(),
			Env:       map[string]string{"BUILD": "1.0"},
			Resolver:  res,
			Logger:    log.Discard(),
		},
	}
}

func (f *fixture) op(t *testing.T, typeID string, values map[string]any) pipeline.Operation {
	t.Helper()
	ct, ok := f.store.Catalog().Get(typeID)
	require.True(t, ok)
	inst := instance.New(ct)
	for k, v := range values {
		require.NoError(t, inst.Set(k, v))
	}
	op, err := New(inst, f.target, f.ssc)
	require.NoError(t, err)
	return op
}

func touch(t *testing.T, dir, rel string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
}

func TestNew_RejectsNonOperationType(t *testing.T) {
	f := newFixture(t, "app", "1.0")
	_, err := New(f.target, f.target, f.ssc)
	var ve *sscerrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	ct, _ := f.store.Catalog().Get(catalog.TypeUploadArtifact)
	_, err = New(instance.New(ct), nil, f.ssc)
	assert.ErrorAs(t, err, &ve)
}

func TestBlankNamesFailBeforeSSC(t *testing.T) {
	tests := []struct {
		name     string
		app      string
		version  string
		property string
	}{
		{"blank application", "", "1.0", catalog.PropApplicationName},
		{"blank version", "app", "  ", catalog.PropVersionName},
		{"not specified", "Not specified", "1.0", catalog.PropApplicationName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.app, tt.version)
			for _, typeID := range []string{catalog.TypeCreateApplicationVersion, catalog.TypeUploadArtifact, catalog.TypeCheckIssueCount} {
				err := f.op(t, typeID, nil).Execute(context.Background(), f.rc)
				var br *pipeline.BlankRequiredPropertyError
				require.ErrorAs(t, err, &br, typeID)
				assert.Equal(t, tt.property, br.Property)
			}
			assert.Zero(t, f.ssc.calls)
		})
	}
}

func TestDisabledOperation(t *testing.T) {
	f := newFixture(t, "app", "1.0")
	op := f.op(t, catalog.TypeCheckIssueCount, nil)
	require.NoError(t, f.store.Update(func(s *globalconfig.Snapshot) error {
		s.Entries = s.Entries[:2]
		return nil
	}))

	err := op.Execute(context.Background(), f.rc)
	var cu *resolver.ConfigUnavailableError
	require.ErrorAs(t, err, &cu)
	assert.Contains(t, err.Error(), "not enabled in global configuration")
	assert.Zero(t, f.ssc.calls)
}

func TestCreateApplicationVersion(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		f := newFixture(t, "app", "1.0")
		require.NoError(t, f.op(t, catalog.TypeCreateApplicationVersion, nil).Execute(context.Background(), f.rc))
		assert.Empty(t, f.ssc.created)
	})

	t.Run("missing is created with expanded names", func(t *testing.T) {
		f := newFixture(t, "app", "${BUILD}-rc")
		op := f.op(t, catalog.TypeCreateApplicationVersion, map[string]any{catalog.PropIssueTemplateName: "Prioritized"})
		require.NoError(t, op.Execute(context.Background(), f.rc))
		assert.Equal(t, []string{"app:1.0-rc@Prioritized"}, f.ssc.created)
	})
}

func TestUploadArtifact(t *testing.T) {
	t.Run("single match", func(t *testing.T) {
		f := newFixture(t, "app", "1.0")
		touch(t, f.rc.Workspace, "build/out/scan.fpr")
		touch(t, f.rc.Workspace, "build/out/readme.txt")

		op := f.op(t, catalog.TypeUploadArtifact, map[string]any{catalog.PropAutoApprove: true})
		require.NoError(t, op.Execute(context.Background(), f.rc))
		assert.Equal(t, []string{"42=scan.fpr"}, f.ssc.uploads)
		assert.True(t, f.ssc.approve)
	})

	t.Run("no match", func(t *testing.T) {
		f := newFixture(t, "app", "1.0")
		err := f.op(t, catalog.TypeUploadArtifact, nil).Execute(context.Background(), f.rc)
		var oe *pipeline.OperationExecutionError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, "No FPR file found with filter '**/*.fpr'", oe.Message)
	})

	t.Run("several matches", func(t *testing.T) {
		f := newFixture(t, "app", "1.0")
		touch(t, f.rc.Workspace, "a.fpr")
		touch(t, f.rc.Workspace, "sub/b.fpr")
		err := f.op(t, catalog.TypeUploadArtifact, nil).Execute(context.Background(), f.rc)
		var oe *pipeline.OperationExecutionError
		require.ErrorAs(t, err, &oe)
		assert.Contains(t, oe.Message, "More than 1 FPR file found")
		assert.Empty(t, f.ssc.uploads)
	})

	t.Run("not processed", func(t *testing.T) {
		f := newFixture(t, "app", "1.0")
		f.ssc.status = sscclient.StatusRequireAuth
		touch(t, f.rc.Workspace, "scan.fpr")
		err := f.op(t, catalog.TypeUploadArtifact, nil).Execute(context.Background(), f.rc)
		var oe *pipeline.OperationExecutionError
		require.ErrorAs(t, err, &oe)
		assert.Contains(t, oe.Message, "Artifact was uploaded but not processed")
	})

	t.Run("processing timeout", func(t *testing.T) {
		f := newFixture(t, "app", "1.0")
		f.ssc.timeout = true
		touch(t, f.rc.Workspace, "scan.fpr")
		err := f.op(t, catalog.TypeUploadArtifact, nil).Execute(context.Background(), f.rc)
		var oe *pipeline.OperationExecutionError
		require.ErrorAs(t, err, &oe)
		assert.Contains(t, oe.Message, "not processed within 600 seconds")
		var te *sscerrors.TimeoutError
		assert.ErrorAs(t, err, &te)
		assert.True(t, pipeline.IsClassified(err))
	})

	t.Run("missing version", func(t *testing.T) {
		f := newFixture(t, "app", "9.9")
		touch(t, f.rc.Workspace, "scan.fpr")
		err := f.op(t, catalog.TypeUploadArtifact, nil).Execute(context.Background(), f.rc)
		var oe *pipeline.OperationExecutionError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, "Application version app:9.9 does not exist", oe.Message)
	})

	t.Run("forced filter from global default", func(t *testing.T) {
		f := newFixture(t, "app", "1.0")
		require.NoError(t, f.store.Update(func(s *globalconfig.Snapshot) error {
			s.Entries[1].Policy = globalconfig.PolicyWarnUseDefault
			s.Entries[1].Defaults = map[string]any{catalog.PropFPRFilter: "reports/*.fpr"}
			return nil
		}))
		touch(t, f.rc.Workspace, "reports/scan.fpr")
		touch(t, f.rc.Workspace, "other/x.fpr")

		op := f.op(t, catalog.TypeUploadArtifact, map[string]any{catalog.PropFPRFilter: "other/*.fpr"})
		require.NoError(t, op.Execute(context.Background(), f.rc))
		assert.Equal(t, []string{"42=scan.fpr"}, f.ssc.uploads)
	})
}

func TestCheckIssueCount(t *testing.T) {
	tests := []struct {
		operator  string
		threshold int
		issues    int
		wantFail  bool
	}{
		{">", 0, 0, false},
		{">", 0, 3, true},
		{"<", 5, 3, true},
		{"<", 5, 9, false},
		{"=", 2, 2, true},
		{"=", 2, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			f := newFixture(t, "app", "1.0")
			f.ssc.issues = tt.issues
			op := f.op(t, catalog.TypeCheckIssueCount, map[string]any{
				catalog.PropSearchString: "analysis:exploitable",
				catalog.PropOperator:     tt.operator,
				catalog.PropThreshold:    tt.threshold,
			})
			err := op.Execute(context.Background(), f.rc)
			assert.Equal(t, tt.threshold+1, f.ssc.limit)
			if tt.wantFail {
				var oe *pipeline.OperationExecutionError
				require.ErrorAs(t, err, &oe)
				assert.Contains(t, oe.Message, "Number of issues matching 'analysis:exploitable'")
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("illegal operator", func(t *testing.T) {
		f := newFixture(t, "app", "1.0")
		op := f.op(t, catalog.TypeCheckIssueCount, map[string]any{catalog.PropOperator: ">="})
		err := op.Execute(context.Background(), f.rc)
		var ve *sscerrors.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Zero(t, f.ssc.calls)
	})
}

func TestPipelineStopsAfterFailedUpload(t *testing.T) {
	f := newFixture(t, "app", "1.0")
	ops := []pipeline.Operation{
		f.op(t, catalog.TypeCreateApplicationVersion, nil),
		f.op(t, catalog.TypeUploadArtifact, nil),
		f.op(t, catalog.TypeCheckIssueCount, nil),
	}
	res, err := pipeline.NewRunner(f.res).Run(context.Background(), ops, f.rc)
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 2)
	assert.Equal(t, pipeline.SeverityFailure, res.FinalSeverity)
}
