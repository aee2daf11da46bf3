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

// Package memory provides an in-memory snapshot backend.
package memory

import (
	"context"
	"sync"

	"github.com/tombee/sscgate/internal/globalconfig"
)

// Compile-time interface assertion.
var _ globalconfig.Backend = (*Backend)(nil)

// Backend keeps the last saved snapshot in memory.
type Backend struct {
	mu    sync.RWMutex
	snap  globalconfig.Snapshot
	saves int
}

// New creates a new in-memory backend.
func New() *Backend {
	return &Backend{}
}

// Load returns a copy of the last saved snapshot.
func (b *Backend) Load(ctx context.Context) (globalconfig.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap.Clone(), nil
}

// Save stores a copy of snap.
func (b *Backend) Save(ctx context.Context, snap globalconfig.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = snap.Clone()
	b.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (b *Backend) Saves() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saves
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}
