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

package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/globalconfig"
)

// createTestBackend creates a SQLite backend in a temporary directory.
func createTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "global.db")
	be, err := New(Config{Path: dbPath, WAL: true})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { be.Close() })
	return be, dbPath
}

func sampleSnapshot() globalconfig.Snapshot {
	return globalconfig.Snapshot{Entries: []globalconfig.Entry{
		{
			TypeID:           catalog.TypeCheckIssueCount,
			Enabled:          true,
			EnabledByDefault: true,
			Policy:           globalconfig.PolicyFail,
			Defaults: map[string]any{
				catalog.PropSearchString:      "[fortify priority order]:critical",
				catalog.PropThreshold:         0,
				catalog.PropSeverityOnFailure: "UNSTABLE",
				catalog.PropStopOnFailure:     false,
			},
		},
		{
			TypeID:  catalog.TypeUploadArtifact,
			Enabled: true,
			Policy:  globalconfig.PolicyWarnUseDefault,
			Defaults: map[string]any{
				catalog.PropFPRFilter:                "**/*.fpr",
				catalog.PropProcessingTimeoutSeconds: 600,
				catalog.PropAutoApprove:              true,
			},
		},
		{
			TypeID:  catalog.TypeCreateApplicationVersion,
			Enabled: false,
			Policy:  globalconfig.PolicyAllow,
		},
	}}
}

// roundTrip saves through one store and loads through a fresh one.
func roundTrip(t *testing.T, be globalconfig.Backend) {
	t.Helper()
	ctx := context.Background()

	saved := globalconfig.NewStore(catalog.Builtin(), be)
	require.NoError(t, saved.Replace(sampleSnapshot()))
	require.NoError(t, saved.Save(ctx))

	loaded := globalconfig.NewStore(catalog.Builtin(), be)
	require.NoError(t, loaded.Load(ctx))

	assert.Equal(t, saved.Snapshot(), loaded.Snapshot())
	assert.True(t, loaded.Snapshot().Entries[0].EnabledByDefault)
	assert.False(t, loaded.Snapshot().Entries[1].EnabledByDefault)

	// order of dynamic entries is preserved
	var ids []string
	for _, e := range loaded.Snapshot().Entries {
		ids = append(ids, e.TypeID)
	}
	assert.Equal(t, []string{
		catalog.TypeCheckIssueCount,
		catalog.TypeUploadArtifact,
		catalog.TypeCreateApplicationVersion,
	}, ids)
}

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	be, _ := createTestBackend(t)
	roundTrip(t, be)
}

func TestSQLiteBackend_EmptyLoad(t *testing.T) {
	be, _ := createTestBackend(t)
	snap, err := be.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
}

func TestSQLiteBackend_SaveReplacesRows(t *testing.T) {
	be, _ := createTestBackend(t)
	ctx := context.Background()

	require.NoError(t, be.Save(ctx, sampleSnapshot()))
	require.NoError(t, be.Save(ctx, globalconfig.Snapshot{Entries: []globalconfig.Entry{
		{TypeID: catalog.TypeUploadArtifact, Enabled: true, Policy: globalconfig.PolicyAllow},
	}}))

	snap, err := be.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, catalog.TypeUploadArtifact, snap.Entries[0].TypeID)
}

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	be, path := createTestBackend(t)
	ctx := context.Background()
	require.NoError(t, be.Save(ctx, sampleSnapshot()))
	require.NoError(t, be.Close())

	reopened, err := New(Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	snap, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 3)
}

func TestSQLiteBackend_MigratesEnabledByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	ctx := context.Background()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE global_entries (
		position INTEGER NOT NULL,
		type_id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 0,
		policy TEXT NOT NULL,
		defaults TEXT,
		updated_at TEXT NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO global_entries (position, type_id, enabled, policy, defaults, updated_at)
		 VALUES (0, 'uploadArtifact', 1, 'ALLOW', '{}', '2025-01-01T00:00:00Z')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	be, err := New(Config{Path: path})
	require.NoError(t, err)
	defer be.Close()

	snap, err := be.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.True(t, snap.Entries[0].Enabled)
	assert.False(t, snap.Entries[0].EnabledByDefault)

	snap.Entries[0].EnabledByDefault = true
	require.NoError(t, be.Save(ctx, snap))
	snap, err = be.Load(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Entries[0].EnabledByDefault)
}
