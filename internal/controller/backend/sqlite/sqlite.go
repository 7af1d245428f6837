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

// Package sqlite provides a SQLite backend implementation for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/keystore"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertions.
var (
	_ backend.WorkflowStore  = (*Backend)(nil)
	_ backend.VersionStore   = (*Backend)(nil)
	_ backend.BlockStore     = (*Backend)(nil)
	_ backend.RunStore       = (*Backend)(nil)
	_ backend.ArtifactStore  = (*Backend)(nil)
	_ backend.KeyStore       = (*Backend)(nil)
	_ backend.PublicRunStore = (*Backend)(nil)
	_ backend.Backend        = (*Backend)(nil)
	_ keystore.Repository    = (*Backend)(nil)
)

// Backend is a SQLite storage backend.
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

// New creates a new SQLite backend.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes
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

// configurePragmas sets SQLite configuration options.
func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA auto_vacuum=INCREMENTAL",
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

// migrate runs database migrations.
func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			active_version INTEGER NOT NULL DEFAULT 0,
			is_locked INTEGER NOT NULL DEFAULT 0,
			locked_by TEXT,
			is_disabled INTEGER NOT NULL DEFAULT 0,
			is_public INTEGER NOT NULL DEFAULT 0,
			public_slug TEXT,
			public_access_mode TEXT,
			public_branding TEXT,
			public_rate_limit TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_org_id ON workflows(org_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_workflows_public_slug ON workflows(public_slug) WHERE public_slug IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS workflow_versions (
			workflow_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			status TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			trigger_config TEXT,
			execution_environments TEXT,
			changelog TEXT,
			created_at TEXT NOT NULL,
			published_at TEXT,
			PRIMARY KEY (workflow_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			workflow_version INTEGER NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			logic TEXT,
			conditions TEXT,
			block_order INTEGER NOT NULL,
			notes TEXT,
			PRIMARY KEY (workflow_id, workflow_version, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_version ON blocks(workflow_id, workflow_version)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			org_id TEXT NOT NULL,
			status TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			steps TEXT,
			metadata TEXT,
			resume_marker TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_org_id ON runs(org_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow_id ON runs(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			file_path TEXT,
			file_url TEXT,
			file_size INTEGER NOT NULL DEFAULT 0,
			mime_type TEXT,
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			overlays TEXT,
			thumbnail_path TEXT,
			source TEXT,
			block_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_run_id ON artifacts(run_id)`,
		`CREATE TABLE IF NOT EXISTS keys (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			provider TEXT,
			key_type TEXT,
			encrypted_value TEXT NOT NULL,
			iv TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			storage_mode TEXT NOT NULL,
			expires_at TEXT,
			is_revoked INTEGER NOT NULL DEFAULT 0,
			last_used_at TEXT,
			last_rotated_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (org_id, workflow_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_keys_org_id ON keys(org_id)`,
		`CREATE TABLE IF NOT EXISTS key_audit (
			id TEXT PRIMARY KEY,
			key_id TEXT NOT NULL,
			action TEXT NOT NULL,
			performed_by TEXT,
			ip_address TEXT,
			user_agent TEXT,
			metadata TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_key_audit_key_id ON key_audit(key_id)`,
		`CREATE TABLE IF NOT EXISTS public_runs (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			slug TEXT NOT NULL,
			ip_hash TEXT NOT NULL,
			user_agent TEXT,
			anonymous INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_public_runs_workflow_id ON public_runs(workflow_id)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// rowScanner abstracts *sql.Row and *sql.Rows so Get and List methods
// share one scan helper per table.
type rowScanner interface {
	Scan(dest ...any) error
}

// Helper functions

// timeFormat is RFC 3339 with a fixed-width millisecond fraction.
// Timestamps are always stored in UTC, so the column text sorts
// lexicographically in time order, which the keyset pagination SQL
// relies on. Reads accept any RFC 3339 fraction.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// formatTime converts a *time.Time to a stored timestamp or nil.
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

// parseTime parses a stored timestamp, returning the zero time for NULL.
func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s.String)
	return t
}

// parseTimePtr parses a nullable stored timestamp.
func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullString returns nil if string is empty, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullBytes returns nil if byte slice is empty, otherwise the string representation.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// stampCreate fills zero creation timestamps through the caller's
// pointer, so the caller and the store agree on the stored times.
func stampCreate(createdAt, updatedAt *time.Time) {
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	}
}

// isUniqueViolation reports whether err is a SQLite uniqueness
// constraint failure. The driver reports constraint errors as flat
// strings, so this matches on the stable message prefix.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
