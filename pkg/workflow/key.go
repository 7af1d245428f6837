package workflow

import (
	"time"
)

// KeyAlgorithmAESGCM is the only algorithm the store writes today. The
// column exists so rows encrypted under a future algorithm can coexist
// with old ones.
const KeyAlgorithmAESGCM = "aes-256-gcm"

// KeyStorageMode says which credential plane holds the encrypted value.
type KeyStorageMode string

const (
	// KeyStorageCloud keys are held by a hosted deployment.
	KeyStorageCloud KeyStorageMode = "cloud"
	// KeyStorageLocal keys are held by a self-hosted deployment and
	// are expected to stay on that machine.
	KeyStorageLocal KeyStorageMode = "local"
)

// Key is one named credential owned by an org, optionally pinned to a
// single workflow. The plaintext is never persisted: EncryptedValue and
// IV together are the sealed form under the process master key.
//
// Uniqueness is (OrgID, WorkflowID, Name); an empty WorkflowID means
// the key is org-wide and unique on (OrgID, Name) among org-wide rows.
type Key struct {
	ID    string `json:"id"`
	OrgID string `json:"orgId"`

	// WorkflowID scopes the key to one workflow. Empty means org-wide.
	WorkflowID string `json:"workflowId,omitempty"`

	Name string `json:"name"`

	// Provider names the service the credential belongs to, such as
	// "anthropic" or "openai". Informational; resolution is by Name.
	Provider string `json:"provider,omitempty"`
	KeyType  string `json:"keyType,omitempty"`

	// EncryptedValue and IV are standard base64. Both are replaced
	// together on rotation.
	EncryptedValue string `json:"-"`
	IV             string `json:"-"`
	Algorithm      string `json:"algorithm"`

	StorageMode KeyStorageMode `json:"storageMode"`

	// ExpiresAt, when set, makes the key unresolvable after that
	// instant. The row is kept.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// IsRevoked hides the key from resolution without deleting the
	// row, so the audit trail keeps its subject.
	IsRevoked bool `json:"isRevoked"`

	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
	LastRotatedAt *time.Time `json:"lastRotatedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Live reports whether the key may be served: not revoked and not past
// its expiry.
func (k *Key) Live(now time.Time) bool {
	if k.IsRevoked {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}

// KeyAuditAction is the kind of event a KeyAuditEntry records.
type KeyAuditAction string

const (
	KeyAuditCreated  KeyAuditAction = "created"
	KeyAuditRotated  KeyAuditAction = "rotated"
	KeyAuditRevoked  KeyAuditAction = "revoked"
	KeyAuditAccessed KeyAuditAction = "accessed"
)

// KeyAuditEntry is one append-only record of something happening to a
// key. Entries are never updated or deleted, and revoked keys keep
// theirs.
type KeyAuditEntry struct {
	ID     string         `json:"id"`
	KeyID  string         `json:"keyId"`
	Action KeyAuditAction `json:"action"`

	// PerformedBy identifies the principal behind the action, such as
	// a user ID or "system:scheduler". Empty when unattributable.
	PerformedBy string `json:"performedBy,omitempty"`

	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
