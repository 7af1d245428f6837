// Package workflow defines the data model for the block execution engine:
// workflows, immutable published versions, typed blocks, runs with their
// step records, and the layered runtime context that blocks read and write.
//
// The package is pure data plus validation. Execution lives in
// internal/engine; persistence behind internal/controller/backend.
package workflow

import (
	"time"
)

// PublicAccessMode controls what an unauthenticated visitor may do with a
// public workflow.
type PublicAccessMode string

const (
	// PublicAccessView exposes branding and metadata only.
	PublicAccessView PublicAccessMode = "view"
	// PublicAccessRun additionally allows triggering runs.
	PublicAccessRun PublicAccessMode = "run"
)

// TriggerType identifies how a run was started.
type TriggerType string

const (
	TriggerInteractive TriggerType = "interactive"
	TriggerAPI         TriggerType = "api"
	TriggerSchedule    TriggerType = "schedule"
	TriggerHook        TriggerType = "hook"
	TriggerVision      TriggerType = "vision"
)

// IsValid checks if a trigger type belongs to the closed set.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerInteractive, TriggerAPI, TriggerSchedule, TriggerHook, TriggerVision:
		return true
	}
	return false
}

// PublicRateLimit overrides the default per-slug window for public runs.
type PublicRateLimit struct {
	// MaxPerMinute caps accepted public run requests per (client, slug).
	MaxPerMinute int `json:"maxPerMinute" yaml:"maxPerMinute"`
}

// Workflow is the top-level identity an org edits and publishes.
// Identity is immutable; metadata (name, lock, public surface) is not.
type Workflow struct {
	ID          string `json:"id"`
	OrgID       string `json:"orgId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// ActiveVersion is the published version runs execute by default.
	// Zero means the workflow has never been published.
	ActiveVersion int `json:"activeVersion"`

	// IsLocked is a single-editor advisory lock; LockedBy names the holder.
	IsLocked bool   `json:"isLocked"`
	LockedBy string `json:"lockedBy,omitempty"`

	IsDisabled bool `json:"isDisabled"`

	// IsPublic exposes the workflow at PublicSlug. PublicSlug is set iff
	// IsPublic is true and is globally unique.
	IsPublic         bool             `json:"isPublic"`
	PublicSlug       string           `json:"publicSlug,omitempty"`
	PublicAccessMode PublicAccessMode `json:"publicAccessMode,omitempty"`
	PublicBranding   map[string]any   `json:"publicBranding,omitempty"`
	PublicRateLimit  *PublicRateLimit `json:"publicRateLimit,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VersionStatus is the lifecycle state of a workflow version.
type VersionStatus string

const (
	// VersionDraft versions are mutable.
	VersionDraft VersionStatus = "draft"
	// VersionPublished versions are immutable, blocks included.
	VersionPublished VersionStatus = "published"
)

// WorkflowVersion is one snapshot of a workflow's block list and trigger.
// Identity is the (WorkflowID, Version) pair. Draft to published is
// one-way; a published version and its blocks never change again.
type WorkflowVersion struct {
	WorkflowID string        `json:"workflowId"`
	Version    int           `json:"version"`
	Status     VersionStatus `json:"status"`

	TriggerType   TriggerType    `json:"triggerType"`
	TriggerConfig map[string]any `json:"triggerConfig,omitempty"`

	// ExecutionEnvironments lists where this version may run
	// (e.g. "server", "desktop", "mobile").
	ExecutionEnvironments []string `json:"executionEnvironments,omitempty"`

	Changelog string `json:"changelog,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// IsPublished reports whether the version is frozen.
func (v *WorkflowVersion) IsPublished() bool {
	return v.Status == VersionPublished
}
