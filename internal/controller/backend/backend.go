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

// Package backend provides storage backends for the workflow engine.
//
// # Interface Hierarchy
//
// The backend package uses interface segregation so components can state
// minimal requirements:
//
//   - WorkflowStore: workflow rows and public-slug lookup
//   - VersionStore: version rows with a one-way publish transition
//   - BlockStore: the block set owned by one version
//   - RunStore: run rows with keyset-paginated listing
//   - ArtifactStore: binary asset records owned by runs
//   - KeyStore: credential rows and their append-only audit trail
//   - PublicRunStore: accepted public trigger records
//
// The Backend interface composes all of these plus io.Closer for
// full-featured implementations. Components accept the narrow slice they
// need (the credential store takes KeyStore, the runner takes RunStore
// and ArtifactStore) and stay testable against fakes.
//
// Domain rows are the types in pkg/workflow. Stores return
// *errors.NotFoundError for absent rows and *errors.ConflictError for
// uniqueness and immutability violations, so callers can map outcomes
// without string matching.
package backend

import (
	"context"
	"io"
	"time"

	"github.com/tombee/baton/pkg/workflow"
)

// WorkflowStore persists workflow rows.
type WorkflowStore interface {
	// CreateWorkflow inserts a new workflow. Returns a ConflictError
	// when the ID or a non-empty PublicSlug is already taken.
	CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error

	// GetWorkflow retrieves a workflow by ID.
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)

	// GetWorkflowBySlug retrieves the workflow holding the public slug.
	// Disabled and non-public rows are still returned; the public gate
	// decides access.
	GetWorkflowBySlug(ctx context.Context, slug string) (*workflow.Workflow, error)

	// UpdateWorkflow replaces the stored row for wf.ID. Returns a
	// ConflictError when the new PublicSlug belongs to another workflow.
	UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error

	// ListWorkflows returns an org's workflows, oldest first. An empty
	// orgID returns every workflow, which the scheduler uses to discover
	// schedule triggers.
	ListWorkflows(ctx context.Context, orgID string) ([]*workflow.Workflow, error)

	// DeleteWorkflow removes a workflow with its versions and blocks.
	// Runs are kept for history.
	DeleteWorkflow(ctx context.Context, id string) error
}

// VersionStore persists workflow versions. A version is identified by
// the (workflowID, version) pair.
type VersionStore interface {
	// CreateVersion inserts a new version. Returns a ConflictError when
	// the (workflowID, version) pair already exists.
	CreateVersion(ctx context.Context, v *workflow.WorkflowVersion) error

	// GetVersion retrieves one version.
	GetVersion(ctx context.Context, workflowID string, version int) (*workflow.WorkflowVersion, error)

	// ListVersions returns a workflow's versions, lowest first.
	ListVersions(ctx context.Context, workflowID string) ([]*workflow.WorkflowVersion, error)

	// UpdateVersion replaces a draft version's mutable fields: trigger,
	// execution environments and changelog. Status and publish
	// timestamps only move through PublishVersion. Returns a
	// ConflictError when the stored version is already published.
	UpdateVersion(ctx context.Context, v *workflow.WorkflowVersion) error

	// PublishVersion transitions a draft to published and advances the
	// owning workflow's ActiveVersion in the same write. The transition
	// is one-way: publishing a published version is a ConflictError.
	PublishVersion(ctx context.Context, workflowID string, version int) error
}

// BlockStore persists the block set owned by one version.
type BlockStore interface {
	// PutBlocks replaces the version's block set. Published versions
	// are immutable; writing to one is a ConflictError.
	PutBlocks(ctx context.Context, workflowID string, version int, blocks []*workflow.Block) error

	// ListBlocks returns the version's blocks ordered by Order
	// ascending, ID ascending on ties.
	ListBlocks(ctx context.Context, workflowID string, version int) ([]*workflow.Block, error)
}

// RunStore persists run rows.
type RunStore interface {
	// CreateRun inserts a new run. Returns a ConflictError when the ID
	// already exists.
	CreateRun(ctx context.Context, run *workflow.Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*workflow.Run, error)

	// UpdateRun replaces the stored row for run.ID.
	UpdateRun(ctx context.Context, run *workflow.Run) error

	// ListRuns lists runs matching the filter, newest first. Callers
	// paging with a cursor fetch one row more than the page size to
	// detect whether a next page exists.
	ListRuns(ctx context.Context, filter RunFilter) ([]*workflow.Run, error)
}

// ArtifactStore persists binary asset records produced during runs.
// The bytes themselves live on disk; rows carry the metadata and
// location.
type ArtifactStore interface {
	// CreateArtifact inserts a new artifact record.
	CreateArtifact(ctx context.Context, a *workflow.Artifact) error

	// GetArtifact retrieves an artifact by ID.
	GetArtifact(ctx context.Context, id string) (*workflow.Artifact, error)

	// ListArtifactsByRun returns a run's artifacts in creation order.
	ListArtifactsByRun(ctx context.Context, runID string) ([]*workflow.Artifact, error)
}

// KeyStore persists credential rows and their audit trail. The method
// set mirrors keystore.Repository, so a Backend satisfies that
// interface directly.
type KeyStore interface {
	// InsertKey persists a new key row. The (OrgID, WorkflowID, Name)
	// triple is unique; violating it is a ConflictError. Revoked rows
	// still hold their name.
	InsertKey(ctx context.Context, key *workflow.Key) error

	// GetKeyByID returns the row whether or not it is revoked or
	// expired.
	GetKeyByID(ctx context.Context, id string) (*workflow.Key, error)

	// GetKeyByName returns the row matching (orgID, workflowID, name),
	// where an empty workflowID selects the org-wide row.
	GetKeyByName(ctx context.Context, orgID, workflowID, name string) (*workflow.Key, error)

	// UpdateKey replaces the stored row for key.ID.
	UpdateKey(ctx context.Context, key *workflow.Key) error

	// ListKeys returns the org's org-wide keys plus, when workflowID is
	// non-empty, the keys scoped to that workflow.
	ListKeys(ctx context.Context, orgID, workflowID string) ([]*workflow.Key, error)

	// AppendKeyAudit appends one audit entry. Entries are never updated
	// or deleted.
	AppendKeyAudit(ctx context.Context, entry *workflow.KeyAuditEntry) error

	// ListKeyAudit returns a key's audit entries, oldest first.
	ListKeyAudit(ctx context.Context, keyID string) ([]*workflow.KeyAuditEntry, error)
}

// PublicRunStore records accepted public triggers. Rejected requests
// never produce a row.
type PublicRunStore interface {
	// CreatePublicRun inserts one accepted public trigger record.
	CreatePublicRun(ctx context.Context, pr *workflow.PublicRun) error

	// ListPublicRuns returns a workflow's public trigger records,
	// newest first.
	ListPublicRuns(ctx context.Context, workflowID string) ([]*workflow.PublicRun, error)
}

// Backend defines the full interface for engine storage. It composes
// all segregated interfaces plus io.Closer for lifecycle management.
//
// The memory and sqlite backends implement all methods. New minimal
// backends can implement just the stores their deployment needs.
type Backend interface {
	WorkflowStore
	VersionStore
	BlockStore
	RunStore
	ArtifactStore
	KeyStore
	PublicRunStore
	io.Closer
}

// RunFilter restricts and pages a run listing. Results are ordered
// newest first: CreatedAt descending, ID descending on ties.
type RunFilter struct {
	// OrgID restricts to one org. Empty matches all orgs.
	OrgID string

	// WorkflowID restricts to one workflow.
	WorkflowID string

	// Status restricts to one lifecycle state.
	Status workflow.RunStatus

	// After resumes the listing strictly past the given row. Nil starts
	// from the newest run.
	After *RunCursor

	// Limit caps the result size. Zero or negative means no cap.
	Limit int
}

// RunCursor is a keyset position in the run listing order.
type RunCursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
