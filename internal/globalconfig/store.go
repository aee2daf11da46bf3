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

package globalconfig

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/pkg/errors"
)

// table is one immutable generation of the store.
type table struct {
	snap  Snapshot
	index map[string]*Entry
}

// Listener is called after every successful Replace with the new snapshot.
// Listeners run one at a time in replacement order. The snapshot must not
// be modified, and a listener must not write to the store.
type Listener func(Snapshot)

// Store is the global configuration store. Reads are lock-free; writers
// are serialized.
type Store struct {
	catalog *catalog.Catalog
	backend Backend
	logger  *slog.Logger

	current atomic.Pointer[table]

	mu        sync.Mutex
	listeners []Listener

	// notifyMu is taken before mu is released so that listeners see
	// snapshots in the order they were stored.
	notifyMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store for the given catalog. backend may be nil
// for a store that is never saved or loaded.
func NewStore(cat *catalog.Catalog, backend Backend, opts ...Option) *Store {
	s := &Store{
		catalog: cat,
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&table{index: map[string]*Entry{}})
	return s
}

// Catalog returns the catalog the store validates against.
func (s *Store) Catalog() *catalog.Catalog {
	return s.catalog
}

// Get returns a copy of the entry for typeID. It returns false when the
// type has no administrator record.
func (s *Store) Get(typeID string) (*Entry, bool) {
	e, ok := s.current.Load().index[typeID]
	if !ok {
		return nil, false
	}
	c := e.Clone()
	return &c, true
}

// IsEnabled reports whether typeID may be used. Static types are always
// enabled; dynamic types need an enabled record. Unknown types are not.
func (s *Store) IsEnabled(typeID string) bool {
	t, ok := s.catalog.Get(typeID)
	if !ok {
		return false
	}
	if t.Kind == catalog.Static {
		return true
	}
	e, ok := s.current.Load().index[typeID]
	return ok && e.Enabled
}

// CheckEnabled returns *ConfigUnavailableError when typeID is not enabled.
func (s *Store) CheckEnabled(typeID string) error {
	if s.IsEnabled(typeID) {
		return nil
	}
	return &ConfigUnavailableError{TypeID: typeID, Unknown: !s.catalog.IsKnown(typeID)}
}

// Snapshot returns a deep copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	return s.current.Load().snap.Clone()
}

// EnabledDynamic returns the enabled dynamic types in administrator order.
func (s *Store) EnabledDynamic() []catalog.ConfigurableType {
	var out []catalog.ConfigurableType
	for _, e := range s.current.Load().snap.Entries {
		t, ok := s.catalog.Get(e.TypeID)
		if ok && t.Kind == catalog.Dynamic && e.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// DefaultDynamic returns the enabled dynamic types the administrator has
// marked enabled by default, in administrator order.
func (s *Store) DefaultDynamic() []catalog.ConfigurableType {
	var out []catalog.ConfigurableType
	for _, e := range s.current.Load().snap.Entries {
		t, ok := s.catalog.Get(e.TypeID)
		if ok && t.Kind == catalog.Dynamic && e.Enabled && e.EnabledByDefault {
			out = append(out, t)
		}
	}
	return out
}

// OnReplace registers a listener notified after each successful Replace.
// Dependents use it to drop caches derived from the previous snapshot.
func (s *Store) OnReplace(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Replace validates snap, normalizes its values against the catalog and
// swaps it in. The caller's snapshot is copied and never retained.
func (s *Store) Replace(snap Snapshot) error {
	return s.Update(func(cur *Snapshot) error {
		*cur = snap
		return nil
	})
}

// Update applies fn to a copy of the current snapshot and replaces the
// store with the result. Concurrent updates are serialized.
func (s *Store) Update(fn func(*Snapshot) error) error {
	s.mu.Lock()
	snap := s.current.Load().snap.Clone()
	if err := fn(&snap); err != nil {
		s.mu.Unlock()
		return err
	}
	t, err := s.build(snap)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.current.Store(t)
	listeners := append([]Listener(nil), s.listeners...)
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.logger.Debug("global configuration replaced", "entries", len(t.snap.Entries))

	for _, l := range listeners {
		l(t.snap)
	}
	return nil
}

// Save persists the current snapshot through the backend.
func (s *Store) Save(ctx context.Context) error {
	if s.backend == nil {
		return fmt.Errorf("global configuration store has no backend")
	}
	if err := s.backend.Save(ctx, s.Snapshot()); err != nil {
		return errors.Wrap(err, "saving global configuration")
	}
	return nil
}

// Load reads the snapshot from the backend and replaces the store with it.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return fmt.Errorf("global configuration store has no backend")
	}
	snap, err := s.backend.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "loading global configuration")
	}
	return s.Replace(snap)
}

// build validates and copies snap into a new table.
func (s *Store) build(snap Snapshot) (*table, error) {
	t := &table{
		snap:  Snapshot{Entries: make([]Entry, 0, len(snap.Entries))},
		index: make(map[string]*Entry, len(snap.Entries)),
	}
	seen := make(map[string]bool, len(snap.Entries))

	for i, e := range snap.Entries {
		field := fmt.Sprintf("entries[%d]", i)

		ct, ok := s.catalog.Get(e.TypeID)
		if !ok {
			return nil, &errors.ValidationError{
				Field:      field + ".type",
				Message:    fmt.Sprintf("unknown type %q", e.TypeID),
				Suggestion: "Run 'sscgate types' to list known types",
			}
		}
		if seen[e.TypeID] {
			return nil, &errors.ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("duplicate entry for type %s", e.TypeID),
			}
		}

		seen[e.TypeID] = true

		policy, err := ParsePolicy(string(e.Policy))
		if err != nil {
			return nil, &errors.ValidationError{Field: field + ".policy", Message: err.Error()}
		}

		defaults, err := ct.Normalize(e.Defaults)
		if err != nil {
			return nil, errors.Wrap(err, field)
		}

		t.snap.Entries = append(t.snap.Entries, Entry{
			TypeID:           e.TypeID,
			Enabled:          e.Enabled,
			EnabledByDefault: e.EnabledByDefault,
			Policy:           policy,
			Defaults:         defaults,
		})
	}

	for i := range t.snap.Entries {
		t.index[t.snap.Entries[i].TypeID] = &t.snap.Entries[i]
	}
	return t, nil
}
