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

// Package globalconfig holds the administrator's per-type records: whether
// a dynamic type is enabled, its override policy and its default property
// values.
//
// # Snapshots
//
// The store never mutates an entry in place. Every change builds a new
// Snapshot which is validated against the catalog and swapped in
// atomically, so a reader always sees either the fully old or the fully
// new table.
//
// # Persistence
//
// A Backend round-trips the ordered entries, every field included.
// Implementations live under backend/: memory, sqlite and file.
package globalconfig

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Policy governs whether a job-level value may diverge from the
// administrator default.
type Policy string

const (
	// PolicyAllow lets the job value win.
	PolicyAllow Policy = "ALLOW"
	// PolicyWarnUseDefault keeps the default and logs a warning.
	PolicyWarnUseDefault Policy = "WARN_USE_DEFAULT"
	// PolicyFail rejects a differing job value.
	PolicyFail Policy = "FAIL"
)

// Policies lists every valid policy.
var Policies = []Policy{PolicyAllow, PolicyWarnUseDefault, PolicyFail}

// ParsePolicy parses a policy name case-insensitively. An empty string
// parses as PolicyAllow.
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return PolicyAllow, nil
	}
	for _, p := range Policies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown override policy %q (want ALLOW, WARN_USE_DEFAULT or FAIL)", s)
}

// Entry is the administrator record for one configurable type.
// EnabledByDefault only matters for an enabled dynamic type: it adds the
// type to newly initialized jobs.
type Entry struct {
	TypeID           string         `yaml:"type" json:"type"`
	Enabled          bool           `yaml:"enabled" json:"enabled"`
	EnabledByDefault bool           `yaml:"enabledByDefault,omitempty" json:"enabled_by_default"`
	Policy           Policy         `yaml:"policy" json:"policy"`
	Defaults         map[string]any `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// Clone returns a deep copy of the entry. Default values are scalars so
// copying the map is sufficient.
func (e Entry) Clone() Entry {
	out := e
	if e.Defaults != nil {
		out.Defaults = make(map[string]any, len(e.Defaults))
		for k, v := range e.Defaults {
			out.Defaults[k] = v
		}
	}
	return out
}

// Snapshot is the full contents of the store. Entry order is the
// administrator's ordering of dynamic types.
type Snapshot struct {
	Entries []Entry `yaml:"entries" json:"entries"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Entries: make([]Entry, len(s.Entries))}
	for i, e := range s.Entries {
		out.Entries[i] = e.Clone()
	}
	return out
}

// Find returns the index of the entry for typeID, or -1.
func (s Snapshot) Find(typeID string) int {
	for i, e := range s.Entries {
		if e.TypeID == typeID {
			return i
		}
	}
	return -1
}

// Backend persists snapshots.
type Backend interface {
	// Load returns the last saved snapshot. A backend that has never been
	// saved to returns an empty snapshot and no error.
	Load(ctx context.Context) (Snapshot, error)

	// Save replaces the persisted snapshot.
	Save(ctx context.Context, snap Snapshot) error

	io.Closer
}
