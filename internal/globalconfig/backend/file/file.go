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

// Package file stores the global configuration snapshot as a YAML file
// that administrators may also edit by hand.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tombee/sscgate/internal/globalconfig"
)

// Compile-time interface assertion.
var _ globalconfig.Backend = (*Backend)(nil)

// Backend reads and writes a YAML snapshot file.
type Backend struct {
	path string
}

// New creates a backend for the file at path. The file need not exist.
func New(path string) *Backend {
	return &Backend{path: path}
}

// Path returns the file path.
func (b *Backend) Path() string {
	return b.path
}

// Load parses the YAML file. A missing file yields an empty snapshot.
func (b *Backend) Load(ctx context.Context) (globalconfig.Snapshot, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return globalconfig.Snapshot{}, nil
		}
		return globalconfig.Snapshot{}, fmt.Errorf("failed to read %s: %w", b.path, err)
	}
	return Decode(data)
}

// Decode parses a YAML snapshot document.
func Decode(data []byte) (globalconfig.Snapshot, error) {
	var snap globalconfig.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return globalconfig.Snapshot{}, fmt.Errorf("failed to parse global configuration: %w", err)
	}
	return snap, nil
}

// Save writes the snapshot to a temp file in the same directory and
// renames it over the target so readers never see a partial file.
func (b *Backend) Save(ctx context.Context, snap globalconfig.Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal global configuration: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", b.path, err)
	}
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}
