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

package version

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/sscgate/internal/commands/shared"
)

func run(t *testing.T) string {
	t.Helper()
	cmd := NewVersionCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestVersionText(t *testing.T) {
	shared.SetVersion("1.0.0", "test123", "2025-12-22")
	defer shared.SetVersion("dev", "unknown", "unknown")

	out := run(t)
	assert.Contains(t, out, "sscgate 1.0.0")
	assert.Contains(t, out, "test123")
	assert.Contains(t, out, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestVersionJSON(t *testing.T) {
	shared.SetVersion("1.0.0", "test123", "2025-12-22")
	shared.SetFlagsForTest("", true)
	defer func() {
		shared.SetVersion("dev", "unknown", "unknown")
		shared.SetFlagsForTest("", false)
	}()

	var info Info
	require.NoError(t, json.Unmarshal([]byte(run(t)), &info))
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "2025-12-22", info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}
