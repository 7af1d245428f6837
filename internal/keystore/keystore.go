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

// Package keystore manages org credentials: values are sealed with
// AES-256-GCM under a process master key before they reach storage,
// resolved by name through workflow scope then org scope, and every
// create, rotate, revoke and access lands in an append-only audit
// trail.
package keystore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// Repository is the persistence the store needs. Implementations live
// in internal/controller/backend.
type Repository interface {
	// InsertKey persists a new key row. The backend enforces the
	// (OrgID, WorkflowID, Name) uniqueness and returns a ConflictError
	// on violation; revoked rows still hold their name.
	InsertKey(ctx context.Context, key *workflow.Key) error

	// GetKeyByID returns the row whether or not it is revoked or
	// expired, or a NotFoundError.
	GetKeyByID(ctx context.Context, id string) (*workflow.Key, error)

	// GetKeyByName returns the row matching (orgID, workflowID, name),
	// where an empty workflowID selects the org-wide row. Revoked and
	// expired rows are still returned; the store filters them.
	GetKeyByName(ctx context.Context, orgID, workflowID, name string) (*workflow.Key, error)

	// UpdateKey replaces the stored row for key.ID.
	UpdateKey(ctx context.Context, key *workflow.Key) error

	// ListKeys returns the org's org-wide keys plus, when workflowID
	// is non-empty, the keys scoped to that workflow.
	ListKeys(ctx context.Context, orgID, workflowID string) ([]*workflow.Key, error)

	// AppendKeyAudit appends one audit entry. Entries are never
	// updated or deleted.
	AppendKeyAudit(ctx context.Context, entry *workflow.KeyAuditEntry) error

	// ListKeyAudit returns a key's audit entries, oldest first.
	ListKeyAudit(ctx context.Context, keyID string) ([]*workflow.KeyAuditEntry, error)
}

// Actor identifies the principal behind a key operation for the audit
// trail. The zero value records an unattributed action.
type Actor struct {
	// ID is a user ID or a system principal such as "system:runner".
	ID        string
	IPAddress string
	UserAgent string
}

// Store seals, resolves, rotates and audits org credentials.
type Store struct {
	repo   Repository
	cipher *aesCipher
	now    func() time.Time
}

// New builds a Store over repo with the given 32-byte master key.
func New(repo Repository, masterKey []byte) (*Store, error) {
	cipher, err := newAESCipher(masterKey)
	if err != nil {
		return nil, err
	}
	return &Store{
		repo:   repo,
		cipher: cipher,
		now:    time.Now,
	}, nil
}

// keyNamePattern matches what a $keys reference can address.
var keyNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CreateParams describes a key to create. Value is the plaintext
// credential; it is sealed before anything is persisted.
type CreateParams struct {
	OrgID string

	// WorkflowID pins the key to one workflow. Empty means org-wide.
	WorkflowID string

	Name     string
	Provider string
	KeyType  string
	Value    string

	// StorageMode defaults to cloud.
	StorageMode workflow.KeyStorageMode

	ExpiresAt *time.Time
}

func (p *CreateParams) validate() error {
	if p.OrgID == "" {
		return &errors.ValidationError{
			Field:   "orgId",
			Message: "required field is missing or empty",
		}
	}
	if p.Name == "" {
		return &errors.ValidationError{
			Field:       "name",
			Message:     "required field is missing or empty",
			SuggestText: "name the key as blocks will reference it, like anthropic_api_key",
		}
	}
	if !keyNamePattern.MatchString(p.Name) {
		return &errors.ValidationError{
			Field:       "name",
			Message:     fmt.Sprintf("name %q may only contain letters, digits, underscores and hyphens", p.Name),
			SuggestText: "rename the key so $keys references can address it",
		}
	}
	if p.Value == "" {
		return &errors.ValidationError{
			Field:       "value",
			Message:     "required field is missing or empty",
			SuggestText: "provide the credential to store",
		}
	}
	switch p.StorageMode {
	case "", workflow.KeyStorageCloud, workflow.KeyStorageLocal:
	default:
		return &errors.ValidationError{
			Field:       "storageMode",
			Message:     fmt.Sprintf("unknown storage mode %q", p.StorageMode),
			SuggestText: "use cloud or local",
		}
	}
	return nil
}

// Create seals and stores a new key, then audits the creation.
func (s *Store) Create(ctx context.Context, params CreateParams, actor Actor) (*workflow.Key, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	// Duplicate check up front for a precise error; the backend's
	// unique index is the real guard against races.
	_, err := s.repo.GetKeyByName(ctx, params.OrgID, params.WorkflowID, params.Name)
	if err == nil {
		return nil, &errors.ConflictError{
			Resource: "key",
			Reason:   fmt.Sprintf("name %q is already taken in this scope", params.Name),
		}
	}
	if !isNotFound(err) {
		return nil, err
	}

	ciphertext, iv, err := s.cipher.Seal(params.Value)
	if err != nil {
		return nil, fmt.Errorf("seal key value: %w", err)
	}

	mode := params.StorageMode
	if mode == "" {
		mode = workflow.KeyStorageCloud
	}

	now := s.now()
	key := &workflow.Key{
		ID:             workflow.NewID(),
		OrgID:          params.OrgID,
		WorkflowID:     params.WorkflowID,
		Name:           params.Name,
		Provider:       params.Provider,
		KeyType:        params.KeyType,
		EncryptedValue: ciphertext,
		IV:             iv,
		Algorithm:      workflow.KeyAlgorithmAESGCM,
		StorageMode:    mode,
		ExpiresAt:      params.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.InsertKey(ctx, key); err != nil {
		return nil, err
	}
	if err := s.audit(ctx, key.ID, workflow.KeyAuditCreated, actor, nil); err != nil {
		return nil, err
	}

	return key, nil
}

// Get returns one key by ID, metadata only. Keys belonging to other
// orgs read as not found.
func (s *Store) Get(ctx context.Context, orgID, keyID string) (*workflow.Key, error) {
	return s.ownedKey(ctx, orgID, keyID)
}

// List returns the org's keys in scope, metadata only. Revoked and
// expired rows are included; callers read the flags.
func (s *Store) List(ctx context.Context, orgID, workflowID string) ([]*workflow.Key, error) {
	return s.repo.ListKeys(ctx, orgID, workflowID)
}

// Resolve returns the plaintext for name, trying the workflow scope
// first and falling back to the org scope. Revoked and expired keys
// are invisible, so a dead workflow-scoped key does not shadow a live
// org-wide one. A miss returns ok false, not an error.
//
// A hit touches LastUsedAt and audits the access.
func (s *Store) Resolve(ctx context.Context, orgID, workflowID, name string, actor Actor) (value string, ok bool, err error) {
	key, err := s.lookup(ctx, orgID, workflowID, name)
	if err != nil {
		return "", false, err
	}
	if key == nil {
		return "", false, nil
	}

	plain, err := s.cipher.Open(key.EncryptedValue, key.IV)
	if err != nil {
		return "", false, fmt.Errorf("unseal key %s: %w", key.ID, err)
	}

	if err := s.recordAccess(ctx, key, actor, nil); err != nil {
		return "", false, err
	}

	return plain, true, nil
}

func (s *Store) lookup(ctx context.Context, orgID, workflowID, name string) (*workflow.Key, error) {
	if workflowID != "" {
		key, err := s.repo.GetKeyByName(ctx, orgID, workflowID, name)
		switch {
		case err == nil:
			if key.Live(s.now()) {
				return key, nil
			}
		case !isNotFound(err):
			return nil, err
		}
	}

	key, err := s.repo.GetKeyByName(ctx, orgID, "", name)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !key.Live(s.now()) {
		return nil, nil
	}
	return key, nil
}

// Rotate replaces the sealed value and IV together and stamps
// LastRotatedAt. The old ciphertext is unrecoverable afterwards.
func (s *Store) Rotate(ctx context.Context, orgID, keyID, value string, actor Actor) (*workflow.Key, error) {
	if value == "" {
		return nil, &errors.ValidationError{
			Field:       "value",
			Message:     "required field is missing or empty",
			SuggestText: "provide the replacement credential",
		}
	}

	key, err := s.ownedKey(ctx, orgID, keyID)
	if err != nil {
		return nil, err
	}
	if key.IsRevoked {
		return nil, &errors.ConflictError{
			Resource: "key",
			Reason:   "cannot rotate a revoked key",
		}
	}

	ciphertext, iv, err := s.cipher.Seal(value)
	if err != nil {
		return nil, fmt.Errorf("seal key value: %w", err)
	}

	now := s.now()
	key.EncryptedValue = ciphertext
	key.IV = iv
	key.LastRotatedAt = &now
	key.UpdatedAt = now

	if err := s.repo.UpdateKey(ctx, key); err != nil {
		return nil, err
	}
	if err := s.audit(ctx, key.ID, workflow.KeyAuditRotated, actor, nil); err != nil {
		return nil, err
	}

	return key, nil
}

// Revoke hides the key from resolution while keeping the row and its
// audit trail. Revoking an already revoked key is a no-op.
func (s *Store) Revoke(ctx context.Context, orgID, keyID string, actor Actor) (*workflow.Key, error) {
	key, err := s.ownedKey(ctx, orgID, keyID)
	if err != nil {
		return nil, err
	}
	if key.IsRevoked {
		return key, nil
	}

	key.IsRevoked = true
	key.UpdatedAt = s.now()

	if err := s.repo.UpdateKey(ctx, key); err != nil {
		return nil, err
	}
	if err := s.audit(ctx, key.ID, workflow.KeyAuditRevoked, actor, nil); err != nil {
		return nil, err
	}

	return key, nil
}

// AuditTrail returns a key's audit entries, oldest first.
func (s *Store) AuditTrail(ctx context.Context, orgID, keyID string) ([]*workflow.KeyAuditEntry, error) {
	if _, err := s.ownedKey(ctx, orgID, keyID); err != nil {
		return nil, err
	}
	return s.repo.ListKeyAudit(ctx, keyID)
}

// PopulateSecrets decrypts every live key visible to a run and returns
// them by name for the context's secrets scope. Workflow-scoped keys
// win name collisions against org-wide ones. Each populated key counts
// as an access.
func (s *Store) PopulateSecrets(ctx context.Context, orgID, workflowID string, actor Actor) (map[string]string, error) {
	keys, err := s.repo.ListKeys(ctx, orgID, workflowID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	chosen := make(map[string]*workflow.Key)
	for _, key := range keys {
		if !key.Live(now) {
			continue
		}
		if prev, exists := chosen[key.Name]; exists {
			// Keep the workflow-scoped one. Two keys at the same
			// scope cannot share a name.
			if prev.WorkflowID != "" || key.WorkflowID == "" {
				continue
			}
		}
		chosen[key.Name] = key
	}

	secrets := make(map[string]string, len(chosen))
	for name, key := range chosen {
		plain, err := s.cipher.Open(key.EncryptedValue, key.IV)
		if err != nil {
			return nil, fmt.Errorf("unseal key %s: %w", key.ID, err)
		}
		secrets[name] = plain

		if err := s.recordAccess(ctx, key, actor, map[string]any{"via": "run_secrets"}); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ownedKey loads a key and hides its existence from other orgs.
func (s *Store) ownedKey(ctx context.Context, orgID, keyID string) (*workflow.Key, error) {
	key, err := s.repo.GetKeyByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.OrgID != orgID {
		return nil, &errors.NotFoundError{Resource: "key", ID: keyID}
	}
	return key, nil
}

// recordAccess stamps LastUsedAt and appends an accessed audit entry.
// Failures propagate: an access that cannot be audited is denied.
func (s *Store) recordAccess(ctx context.Context, key *workflow.Key, actor Actor, metadata map[string]any) error {
	now := s.now()
	key.LastUsedAt = &now
	key.UpdatedAt = now
	if err := s.repo.UpdateKey(ctx, key); err != nil {
		return fmt.Errorf("record key use: %w", err)
	}
	return s.audit(ctx, key.ID, workflow.KeyAuditAccessed, actor, metadata)
}

func (s *Store) audit(ctx context.Context, keyID string, action workflow.KeyAuditAction, actor Actor, metadata map[string]any) error {
	entry := &workflow.KeyAuditEntry{
		ID:          workflow.NewID(),
		KeyID:       keyID,
		Action:      action,
		PerformedBy: actor.ID,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		Metadata:    metadata,
		CreatedAt:   s.now(),
	}
	if err := s.repo.AppendKeyAudit(ctx, entry); err != nil {
		return fmt.Errorf("append key audit: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.CodeOf(err) == errors.CodeNotFound
}
