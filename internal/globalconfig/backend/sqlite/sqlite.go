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

// Package sqlite provides a SQLite snapshot backend for installations that
// share one global configuration between several build agents on a host.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/sscgate/internal/globalconfig"
)

// Compile-time interface assertion.
var _ globalconfig.Backend = (*Backend)(nil)

// Backend is a SQLite snapshot backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if needed) the database at cfg.Path.
func New(cfg Config) (*Backend, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS global_entries (
			position INTEGER NOT NULL,
			type_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 0,
			enabled_by_default INTEGER NOT NULL DEFAULT 0,
			policy TEXT NOT NULL,
			defaults TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_global_entries_position ON global_entries(position)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	// Databases created before enabled_by_default existed. The error on an
	// already migrated table is ignored.
	_, _ = b.db.ExecContext(ctx,
		`ALTER TABLE global_entries ADD COLUMN enabled_by_default INTEGER NOT NULL DEFAULT 0`)
	return nil
}

// Load reads every entry ordered by position.
func (b *Backend) Load(ctx context.Context) (globalconfig.Snapshot, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT type_id, enabled, enabled_by_default, policy, defaults FROM global_entries ORDER BY position`)
	if err != nil {
		return globalconfig.Snapshot{}, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var snap globalconfig.Snapshot
	for rows.Next() {
		var (
			e            globalconfig.Entry
			enabled      int
			byDefault    int
			policy       string
			defaultsJSON sql.NullString
		)
		if err := rows.Scan(&e.TypeID, &enabled, &byDefault, &policy, &defaultsJSON); err != nil {
			return globalconfig.Snapshot{}, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Enabled = enabled != 0
		e.EnabledByDefault = byDefault != 0
		e.Policy = globalconfig.Policy(policy)
		if defaultsJSON.Valid && defaultsJSON.String != "" {
			if err := json.Unmarshal([]byte(defaultsJSON.String), &e.Defaults); err != nil {
				return globalconfig.Snapshot{}, fmt.Errorf("failed to unmarshal defaults for %s: %w", e.TypeID, err)
			}
		}
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return globalconfig.Snapshot{}, fmt.Errorf("failed to read entries: %w", err)
	}
	return snap, nil
}

// Save replaces every row inside one transaction.
func (b *Backend) Save(ctx context.Context, snap globalconfig.Snapshot) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM global_entries`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, e := range snap.Entries {
		defaultsJSON, err := json.Marshal(e.Defaults)
		if err != nil {
			return fmt.Errorf("failed to marshal defaults for %s: %w", e.TypeID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO global_entries (position, type_id, enabled, enabled_by_default, policy, defaults, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i, e.TypeID, boolInt(e.Enabled), boolInt(e.EnabledByDefault), string(e.Policy), string(defaultsJSON), now)
		if err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.TypeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}
