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

package globalconfig_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/globalconfig"
	"github.com/tombee/sscgate/internal/globalconfig/backend/memory"
	"github.com/tombee/sscgate/pkg/errors"
)

func sampleSnapshot() globalconfig.Snapshot {
	return globalconfig.Snapshot{Entries: []globalconfig.Entry{
		{
			TypeID:           catalog.TypeUploadArtifact,
			Enabled:          true,
			EnabledByDefault: true,
			Policy:           globalconfig.PolicyWarnUseDefault,
			Defaults: map[string]any{
				catalog.PropFPRFilter:                "**/*.fpr",
				catalog.PropProcessingTimeoutSeconds: 300,
			},
		},
		{
			TypeID:  catalog.TypeCheckIssueCount,
			Enabled: false,
			Policy:  globalconfig.PolicyFail,
		},
	}}
}

func TestStore_IsEnabled(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	require.NoError(t, store.Replace(sampleSnapshot()))

	assert.True(t, store.IsEnabled(catalog.TypeApplicationVersion), "static types are always enabled")
	assert.True(t, store.IsEnabled(catalog.TypeUploadArtifact))
	assert.False(t, store.IsEnabled(catalog.TypeCheckIssueCount), "disabled record")
	assert.False(t, store.IsEnabled(catalog.TypeCreateApplicationVersion), "no record")
	assert.False(t, store.IsEnabled("nope"))

	err := store.CheckEnabled(catalog.TypeCheckIssueCount)
	var cu *globalconfig.ConfigUnavailableError
	require.ErrorAs(t, err, &cu)
	assert.False(t, cu.Unknown)
	assert.Contains(t, err.Error(), "not enabled in global configuration")

	err = store.CheckEnabled("nope")
	require.ErrorAs(t, err, &cu)
	assert.True(t, cu.Unknown)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	require.NoError(t, store.Replace(sampleSnapshot()))

	e, ok := store.Get(catalog.TypeUploadArtifact)
	require.True(t, ok)
	e.Defaults[catalog.PropFPRFilter] = "mutated"

	again, _ := store.Get(catalog.TypeUploadArtifact)
	assert.Equal(t, "**/*.fpr", again.Defaults[catalog.PropFPRFilter])

	_, ok = store.Get(catalog.TypeApplicationVersion)
	assert.False(t, ok, "static type without explicit record")
}

func TestStore_ReplaceDoesNotRetainCaller(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	snap := sampleSnapshot()
	require.NoError(t, store.Replace(snap))

	snap.Entries[0].Defaults[catalog.PropFPRFilter] = "changed"
	snap.Entries[0].Enabled = false

	e, _ := store.Get(catalog.TypeUploadArtifact)
	assert.True(t, e.Enabled)
	assert.Equal(t, "**/*.fpr", e.Defaults[catalog.PropFPRFilter])
}

func TestStore_ReplaceValidation(t *testing.T) {
	tests := []struct {
		name  string
		entry globalconfig.Entry
		field string
	}{
		{
			name:  "unknown type",
			entry: globalconfig.Entry{TypeID: "bogus"},
			field: "entries[0].type",
		},
		{
			name:  "bad policy",
			entry: globalconfig.Entry{TypeID: catalog.TypeUploadArtifact, Policy: "SOMETIMES"},
			field: "entries[0].policy",
		},
		{
			name: "unknown property",
			entry: globalconfig.Entry{
				TypeID:   catalog.TypeUploadArtifact,
				Defaults: map[string]any{"fprGlob": "x"},
			},
			field: "fprGlob",
		},
		{
			name: "wrong kind",
			entry: globalconfig.Entry{
				TypeID:   catalog.TypeUploadArtifact,
				Defaults: map[string]any{catalog.PropAutoApprove: "perhaps"},
			},
			field: catalog.PropAutoApprove,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := globalconfig.NewStore(catalog.Builtin(), nil)
			require.NoError(t, store.Replace(sampleSnapshot()))

			err := store.Replace(globalconfig.Snapshot{Entries: []globalconfig.Entry{tt.entry}})
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)

			// failed replace leaves the old snapshot in place
			assert.True(t, store.IsEnabled(catalog.TypeUploadArtifact))
		})
	}

	t.Run("duplicate entry", func(t *testing.T) {
		store := globalconfig.NewStore(catalog.Builtin(), nil)
		dup := globalconfig.Entry{TypeID: catalog.TypeUploadArtifact}
		err := store.Replace(globalconfig.Snapshot{Entries: []globalconfig.Entry{dup, dup}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate entry")
	})
}

func TestStore_EmptyPolicyDefaultsToAllow(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	require.NoError(t, store.Replace(globalconfig.Snapshot{Entries: []globalconfig.Entry{
		{TypeID: catalog.TypeUploadArtifact, Enabled: true},
	}}))
	e, _ := store.Get(catalog.TypeUploadArtifact)
	assert.Equal(t, globalconfig.PolicyAllow, e.Policy)
}

func TestStore_OnReplaceAndUpdate(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)

	var calls int
	var last globalconfig.Snapshot
	store.OnReplace(func(s globalconfig.Snapshot) {
		calls++
		last = s
	})

	require.NoError(t, store.Replace(sampleSnapshot()))
	assert.Equal(t, 1, calls)

	err := store.Update(func(s *globalconfig.Snapshot) error {
		i := s.Find(catalog.TypeCheckIssueCount)
		s.Entries[i].Enabled = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, last.Entries[1].Enabled)
	assert.True(t, store.IsEnabled(catalog.TypeCheckIssueCount))

	var ids []string
	for _, ct := range store.EnabledDynamic() {
		ids = append(ids, ct.ID)
	}
	assert.Equal(t, []string{catalog.TypeUploadArtifact, catalog.TypeCheckIssueCount}, ids)
}

func TestStore_SaveLoadMemory(t *testing.T) {
	ctx := context.Background()
	be := memory.New()

	store := globalconfig.NewStore(catalog.Builtin(), be)
	require.NoError(t, store.Replace(sampleSnapshot()))
	require.NoError(t, store.Save(ctx))
	assert.Equal(t, 1, be.Saves())

	loaded := globalconfig.NewStore(catalog.Builtin(), be)
	require.NoError(t, loaded.Load(ctx))
	assert.Equal(t, store.Snapshot(), loaded.Snapshot())
	assert.True(t, loaded.Snapshot().Entries[0].EnabledByDefault)
}

func TestStore_DefaultDynamic(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	require.NoError(t, store.Replace(globalconfig.Snapshot{Entries: []globalconfig.Entry{
		{TypeID: catalog.TypeCheckIssueCount, Enabled: true, EnabledByDefault: true},
		{TypeID: catalog.TypeCreateApplicationVersion, Enabled: true},
		{TypeID: catalog.TypeUploadArtifact, Enabled: false, EnabledByDefault: true},
	}}))

	assert.Len(t, store.EnabledDynamic(), 2)
	defaults := store.DefaultDynamic()
	require.Len(t, defaults, 1)
	assert.Equal(t, catalog.TypeCheckIssueCount, defaults[0].ID)
}

func TestStore_ListenersSeeReplacementOrder(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)

	var (
		mu   sync.Mutex
		seen []int
	)
	store.OnReplace(func(s globalconfig.Snapshot) {
		n, _ := s.Entries[0].Defaults[catalog.PropThreshold].(int)
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := store.Update(func(s *globalconfig.Snapshot) error {
					if len(s.Entries) == 0 {
						s.Entries = []globalconfig.Entry{{TypeID: catalog.TypeCheckIssueCount, Defaults: map[string]any{}}}
					}
					n, _ := s.Entries[0].Defaults[catalog.PropThreshold].(int)
					s.Entries[0].Defaults[catalog.PropThreshold] = n + 1
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, writers*perWriter)
	for i, n := range seen {
		require.Equal(t, i+1, n, "listener saw snapshot %d out of order", n)
	}
}

func TestStore_NoBackend(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	assert.Error(t, store.Save(context.Background()))
	assert.Error(t, store.Load(context.Background()))
}

func TestStore_ConcurrentReadsDuringReplace(t *testing.T) {
	store := globalconfig.NewStore(catalog.Builtin(), nil)
	require.NoError(t, store.Replace(sampleSnapshot()))

	a := sampleSnapshot()
	b := sampleSnapshot()
	b.Entries[0].Defaults[catalog.PropFPRFilter] = "build/*.fpr"
	b.Entries[0].Defaults[catalog.PropProcessingTimeoutSeconds] = 60

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				e, ok := store.Get(catalog.TypeUploadArtifact)
				if !ok {
					t.Error("entry vanished during replace")
					return
				}
				filter := e.Defaults[catalog.PropFPRFilter]
				timeout := e.Defaults[catalog.PropProcessingTimeoutSeconds]
				if (filter == "**/*.fpr") != (timeout == 300) {
					t.Errorf("observed mixed snapshot: %v / %v", filter, timeout)
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		snap := a
		if i%2 == 1 {
			snap = b
		}
		require.NoError(t, store.Replace(snap))
	}
	close(stop)
	wg.Wait()
}
