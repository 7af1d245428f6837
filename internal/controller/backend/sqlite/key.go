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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

const keyColumns = `id, org_id, workflow_id, name, provider, key_type, encrypted_value, iv,
	algorithm, storage_mode, expires_at, is_revoked, last_used_at, last_rotated_at,
	created_at, updated_at`

// InsertKey inserts a new key row.
func (b *Backend) InsertKey(ctx context.Context, key *workflow.Key) error {
	query := `
		INSERT INTO keys (id, org_id, workflow_id, name, provider, key_type, encrypted_value, iv,
			algorithm, storage_mode, expires_at, is_revoked, last_used_at, last_rotated_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	stampCreate(&key.CreatedAt, &key.UpdatedAt)
	// workflow_id is stored raw: the empty string marks an org-wide
	// key, so UNIQUE(org_id, workflow_id, name) covers both scopes.
	_, err := b.db.ExecContext(ctx, query,
		key.ID, key.OrgID, key.WorkflowID, key.Name,
		nullString(key.Provider), nullString(key.KeyType),
		key.EncryptedValue, key.IV, key.Algorithm, string(key.StorageMode),
		formatTime(key.ExpiresAt), key.IsRevoked,
		formatTime(key.LastUsedAt), formatTime(key.LastRotatedAt),
		key.CreatedAt.UTC().Format(timeFormat), key.UpdatedAt.UTC().Format(timeFormat),
	)
	if isUniqueViolation(err) {
		if strings.Contains(err.Error(), "org_id") {
			return &errors.ConflictError{Resource: "key", Reason: fmt.Sprintf("name %q already exists in this scope", key.Name)}
		}
		return &errors.ConflictError{Resource: "key", Reason: fmt.Sprintf("id %q already exists", key.ID)}
	}
	if err != nil {
		return fmt.Errorf("failed to insert key: %w", err)
	}
	return nil
}

// GetKeyByID returns the row whether or not it is revoked or expired.
func (b *Backend) GetKeyByID(ctx context.Context, id string) (*workflow.Key, error) {
	row := b.db.QueryRowContext(ctx, "SELECT "+keyColumns+" FROM keys WHERE id = ?", id)
	key, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "key", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return key, nil
}

// GetKeyByName returns the row matching (orgID, workflowID, name).
func (b *Backend) GetKeyByName(ctx context.Context, orgID, workflowID, name string) (*workflow.Key, error) {
	row := b.db.QueryRowContext(ctx,
		"SELECT "+keyColumns+" FROM keys WHERE org_id = ? AND workflow_id = ? AND name = ?",
		orgID, workflowID, name,
	)
	key, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "key", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return key, nil
}

// UpdateKey replaces the stored row for key.ID.
func (b *Backend) UpdateKey(ctx context.Context, key *workflow.Key) error {
	query := `
		UPDATE keys SET
			provider = ?, key_type = ?, encrypted_value = ?, iv = ?, algorithm = ?,
			storage_mode = ?, expires_at = ?, is_revoked = ?, last_used_at = ?,
			last_rotated_at = ?, updated_at = ?
		WHERE id = ?
	`

	key.UpdatedAt = time.Now().UTC()
	result, err := b.db.ExecContext(ctx, query,
		nullString(key.Provider), nullString(key.KeyType),
		key.EncryptedValue, key.IV, key.Algorithm, string(key.StorageMode),
		formatTime(key.ExpiresAt), key.IsRevoked,
		formatTime(key.LastUsedAt), formatTime(key.LastRotatedAt),
		key.UpdatedAt.Format(timeFormat),
		key.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update key: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return &errors.NotFoundError{Resource: "key", ID: key.ID}
	}
	return nil
}

// ListKeys returns the org's org-wide keys plus, when workflowID is
// non-empty, the keys scoped to that workflow.
func (b *Backend) ListKeys(ctx context.Context, orgID, workflowID string) ([]*workflow.Key, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT "+keyColumns+" FROM keys WHERE org_id = ? AND (workflow_id = '' OR workflow_id = ?) ORDER BY created_at, id",
		orgID, workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var result []*workflow.Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		result = append(result, key)
	}
	return result, rows.Err()
}

// AppendKeyAudit appends one audit entry.
func (b *Backend) AppendKeyAudit(ctx context.Context, entry *workflow.KeyAuditEntry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO key_audit (id, key_id, action, performed_by, ip_address, user_agent, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err = b.db.ExecContext(ctx, query,
		entry.ID, entry.KeyID, string(entry.Action),
		nullString(entry.PerformedBy), nullString(entry.IPAddress), nullString(entry.UserAgent),
		string(metadataJSON), entry.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to append key audit: %w", err)
	}
	return nil
}

// ListKeyAudit returns a key's audit entries, oldest first.
// rowid preserves insertion order when stored timestamps tie.
func (b *Backend) ListKeyAudit(ctx context.Context, keyID string) ([]*workflow.KeyAuditEntry, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT id, key_id, action, performed_by, ip_address, user_agent, metadata, created_at FROM key_audit WHERE key_id = ? ORDER BY created_at, rowid",
		keyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list key audit: %w", err)
	}
	defer rows.Close()

	var result []*workflow.KeyAuditEntry
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key audit: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// scanKey scans one keys row.
func scanKey(sc rowScanner) (*workflow.Key, error) {
	var key workflow.Key
	var provider, keyType, storageMode sql.NullString
	var expiresAt, lastUsedAt, lastRotatedAt, createdAt, updatedAt sql.NullString

	err := sc.Scan(
		&key.ID, &key.OrgID, &key.WorkflowID, &key.Name,
		&provider, &keyType,
		&key.EncryptedValue, &key.IV, &key.Algorithm, &storageMode,
		&expiresAt, &key.IsRevoked,
		&lastUsedAt, &lastRotatedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	key.Provider = provider.String
	key.KeyType = keyType.String
	key.StorageMode = workflow.KeyStorageMode(storageMode.String)
	key.ExpiresAt = parseTimePtr(expiresAt)
	key.LastUsedAt = parseTimePtr(lastUsedAt)
	key.LastRotatedAt = parseTimePtr(lastRotatedAt)
	key.CreatedAt = parseTime(createdAt)
	key.UpdatedAt = parseTime(updatedAt)
	return &key, nil
}

// scanAudit scans one key_audit row.
func scanAudit(sc rowScanner) (*workflow.KeyAuditEntry, error) {
	var entry workflow.KeyAuditEntry
	var action string
	var performedBy, ipAddress, userAgent, metadataJSON, createdAt sql.NullString

	err := sc.Scan(
		&entry.ID, &entry.KeyID, &action,
		&performedBy, &ipAddress, &userAgent,
		&metadataJSON, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Action = workflow.KeyAuditAction(action)
	entry.PerformedBy = performedBy.String
	entry.IPAddress = ipAddress.String
	entry.UserAgent = userAgent.String

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	entry.CreatedAt = parseTime(createdAt)
	return &entry, nil
}
