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

package job

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/globalconfig"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

const sampleJob = `
name: nightly
workspace: build
env:
  BUILD: "42"
applicationVersion:
  applicationName: app
  versionName: ${BUILD}
operations:
  - type: createApplicationVersion
    values:
      issueTemplateName: Prioritized
  - type: uploadArtifact
    values:
      fprFilter: "out/*.fpr"
      processingTimeoutSeconds: 120
  - type: checkIssueCount
    values:
      operator: ">"
      threshold: 0
      stopOnFailure: false
      severityOnFailure: unstable
`

func TestParse(t *testing.T) {
	j, err := Parse([]byte(sampleJob), catalog.Builtin())
	require.NoError(t, err)

	assert.Equal(t, "nightly", j.Name)
	assert.Equal(t, map[string]string{"BUILD": "42"}, j.Env)
	v, _ := j.Target.Get(catalog.PropVersionName)
	assert.Equal(t, "${BUILD}", v)

	require.Len(t, j.Operations, 3)
	assert.Equal(t, catalog.TypeUploadArtifact, j.Operations[1].TypeID())
	timeout, _ := j.Operations[1].Get(catalog.PropProcessingTimeoutSeconds)
	assert.Equal(t, 120, timeout)
	sev, _ := j.Operations[2].Get(catalog.PropSeverityOnFailure)
	assert.Equal(t, "UNSTABLE", sev)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "operations: []"},
		{"unknown type", "name: x\noperations:\n  - type: deploy"},
		{"static type as operation", "name: x\noperations:\n  - type: applicationVersion"},
		{"unknown property", "name: x\noperations:\n  - type: uploadArtifact\n    values:\n      bogus: 1"},
		{"bad value", "name: x\noperations:\n  - type: uploadArtifact\n    values:\n      autoApprove: maybe"},
		{"bad target", "name: x\napplicationVersion:\n  project: p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), catalog.Builtin())
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("operations: []"), catalog.Builtin())
	var ve *sscerrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	j, err := Parse([]byte(sampleJob), catalog.Builtin())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, j.Save(path, false))
	assert.Error(t, j.Save(path, false), "existing file is kept without overwrite")
	require.NoError(t, j.Save(path, true))

	loaded, err := Load(path, catalog.Builtin())
	require.NoError(t, err)
	assert.Equal(t, j.Name, loaded.Name)
	assert.Equal(t, j.Target.Values(), loaded.Target.Values())
	require.Len(t, loaded.Operations, len(j.Operations))
	for i := range j.Operations {
		assert.Equal(t, j.Operations[i].Values(), loaded.Operations[i].Values())
	}
	assert.Equal(t, filepath.Join(filepath.Dir(path), "build"), loaded.WorkspaceDir())
}

func TestParse_BlankSeverityIsUnset(t *testing.T) {
	j, err := Parse([]byte(`
name: blank
operations:
  - type: checkIssueCount
    values:
      severityOnFailure: ""
      stopOnFailure: Not specified
`), catalog.Builtin())
	require.NoError(t, err)
	require.Len(t, j.Operations, 1)

	v, _ := j.Operations[0].Get(catalog.PropSeverityOnFailure)
	assert.Nil(t, v)
	v, _ = j.Operations[0].Get(catalog.PropStopOnFailure)
	assert.Nil(t, v)
}

func TestInit(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	require.NoError(t, store.Replace(globalconfig.Snapshot{Entries: []globalconfig.Entry{
		{TypeID: catalog.TypeCheckIssueCount, Enabled: true, EnabledByDefault: true, Defaults: map[string]any{catalog.PropThreshold: 5}},
		{TypeID: catalog.TypeUploadArtifact, Enabled: true, EnabledByDefault: true},
		{TypeID: catalog.TypeCreateApplicationVersion, Enabled: true},
	}}))

	j, err := Init("seeded", store)
	require.NoError(t, err)
	require.Len(t, j.Operations, 2)
	assert.Equal(t, catalog.TypeUploadArtifact, j.Operations[0].TypeID())
	assert.Equal(t, catalog.TypeCheckIssueCount, j.Operations[1].TypeID())

	threshold, _ := j.Operations[1].Get(catalog.PropThreshold)
	assert.Equal(t, 5, threshold)
	filter, _ := j.Operations[0].Get(catalog.PropFPRFilter)
	assert.Equal(t, catalog.DefaultFPRFilter, filter)

	data, err := j.Marshal()
	require.NoError(t, err)
	_, err = Parse(data, catalog.Builtin())
	require.NoError(t, err)
}

func TestInit_DisabledTypeNeverSeeded(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	require.NoError(t, store.Replace(globalconfig.Snapshot{Entries: []globalconfig.Entry{
		{TypeID: catalog.TypeUploadArtifact, Enabled: false, EnabledByDefault: true},
	}}))

	j, err := Init("seeded", store)
	require.NoError(t, err)
	assert.Empty(t, j.Operations)
}

func TestBuild(t *testing.T) {
	j, err := Parse([]byte(sampleJob), catalog.Builtin())
	require.NoError(t, err)
	ops, err := j.Build(nil)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, catalog.TypeCheckIssueCount, ops[2].TypeID())
}

func TestEnvironment(t *testing.T) {
	t.Setenv("SSCGATE_TEST_VAR", "process")
	j := &Job{Env: map[string]string{"BUILD": "job", "SSCGATE_TEST_VAR": "job"}}

	env := j.Environment(map[string]string{"BUILD": "flag"})
	assert.Equal(t, "flag", env["BUILD"])
	assert.Equal(t, "job", env["SSCGATE_TEST_VAR"])

}
