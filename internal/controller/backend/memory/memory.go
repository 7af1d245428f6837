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

// Package memory provides an in-memory backend implementation. It backs
// tests, the local CLI runner and dev-mode daemons; nothing survives a
// restart.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/keystore"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// Compile-time interface assertions.
// Ensures Backend implements all segregated interfaces.
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

// Backend is an in-memory storage backend. Rows are cloned on both
// write and read so callers never share mutable state with the store;
// values nested inside JSON-shaped maps are treated as immutable.
type Backend struct {
	mu           sync.RWMutex
	workflows    map[string]*workflow.Workflow
	slugs        map[string]string // public slug -> workflow ID
	versions     map[string]map[int]*workflow.WorkflowVersion
	blocks       map[string]map[int][]*workflow.Block
	runs         map[string]*workflow.Run
	artifacts    map[string]*workflow.Artifact
	runArtifacts map[string][]string // run ID -> artifact IDs, creation order
	keys         map[string]*workflow.Key
	keyAudit     map[string][]*workflow.KeyAuditEntry
	publicRuns   map[string][]*workflow.PublicRun
}

// New creates a new in-memory backend.
func New() *Backend {
	return &Backend{
		workflows:    make(map[string]*workflow.Workflow),
		slugs:        make(map[string]string),
		versions:     make(map[string]map[int]*workflow.WorkflowVersion),
		blocks:       make(map[string]map[int][]*workflow.Block),
		runs:         make(map[string]*workflow.Run),
		artifacts:    make(map[string]*workflow.Artifact),
		runArtifacts: make(map[string][]string),
		keys:         make(map[string]*workflow.Key),
		keyAudit:     make(map[string][]*workflow.KeyAuditEntry),
		publicRuns:   make(map[string][]*workflow.PublicRun),
	}
}

// CreateWorkflow inserts a new workflow.
func (b *Backend) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.workflows[wf.ID]; exists {
		return &errors.ConflictError{Resource: "workflow", Reason: fmt.Sprintf("id %q already exists", wf.ID)}
	}
	if wf.PublicSlug != "" {
		if _, taken := b.slugs[wf.PublicSlug]; taken {
			return &errors.ConflictError{Resource: "workflow", Reason: fmt.Sprintf("public slug %q is already taken", wf.PublicSlug)}
		}
	}

	stampCreate(&wf.CreatedAt, &wf.UpdatedAt)
	b.workflows[wf.ID] = cloneWorkflow(wf)
	if wf.PublicSlug != "" {
		b.slugs[wf.PublicSlug] = wf.ID
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (b *Backend) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	wf, exists := b.workflows[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return cloneWorkflow(wf), nil
}

// GetWorkflowBySlug retrieves the workflow holding the public slug.
func (b *Backend) GetWorkflowBySlug(ctx context.Context, slug string) (*workflow.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id, exists := b.slugs[slug]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: slug}
	}
	return cloneWorkflow(b.workflows[id]), nil
}

// UpdateWorkflow replaces the stored row for wf.ID.
func (b *Backend) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, exists := b.workflows[wf.ID]
	if !exists {
		return &errors.NotFoundError{Resource: "workflow", ID: wf.ID}
	}
	if wf.PublicSlug != "" {
		if owner, taken := b.slugs[wf.PublicSlug]; taken && owner != wf.ID {
			return &errors.ConflictError{Resource: "workflow", Reason: fmt.Sprintf("public slug %q is already taken", wf.PublicSlug)}
		}
	}

	if prev.PublicSlug != "" && prev.PublicSlug != wf.PublicSlug {
		delete(b.slugs, prev.PublicSlug)
	}
	if wf.PublicSlug != "" {
		b.slugs[wf.PublicSlug] = wf.ID
	}

	wf.UpdatedAt = time.Now().UTC()
	b.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

// ListWorkflows returns an org's workflows, oldest first. An empty
// orgID returns every workflow.
func (b *Backend) ListWorkflows(ctx context.Context, orgID string) ([]*workflow.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*workflow.Workflow
	for _, wf := range b.workflows {
		if orgID != "" && wf.OrgID != orgID {
			continue
		}
		result = append(result, cloneWorkflow(wf))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeleteWorkflow removes a workflow with its versions and blocks.
func (b *Backend) DeleteWorkflow(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	wf, exists := b.workflows[id]
	if !exists {
		return &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	if wf.PublicSlug != "" {
		delete(b.slugs, wf.PublicSlug)
	}
	delete(b.workflows, id)
	delete(b.versions, id)
	delete(b.blocks, id)
	return nil
}

// CreateVersion inserts a new version.
func (b *Backend) CreateVersion(ctx context.Context, v *workflow.WorkflowVersion) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.workflows[v.WorkflowID]; !exists {
		return &errors.NotFoundError{Resource: "workflow", ID: v.WorkflowID}
	}
	if _, exists := b.versions[v.WorkflowID][v.Version]; exists {
		return &errors.ConflictError{Resource: "version", Reason: fmt.Sprintf("version %d already exists", v.Version)}
	}

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if b.versions[v.WorkflowID] == nil {
		b.versions[v.WorkflowID] = make(map[int]*workflow.WorkflowVersion)
	}
	b.versions[v.WorkflowID][v.Version] = cloneVersion(v)
	return nil
}

// GetVersion retrieves one version.
func (b *Backend) GetVersion(ctx context.Context, workflowID string, version int) (*workflow.WorkflowVersion, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, exists := b.versions[workflowID][version]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "version", ID: versionID(workflowID, version)}
	}
	return cloneVersion(v), nil
}

// ListVersions returns a workflow's versions, lowest first.
func (b *Backend) ListVersions(ctx context.Context, workflowID string) ([]*workflow.WorkflowVersion, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*workflow.WorkflowVersion
	for _, v := range b.versions[workflowID] {
		result = append(result, cloneVersion(v))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

// UpdateVersion replaces a draft version's mutable fields. Status and
// publish timestamps only move through PublishVersion.
func (b *Backend) UpdateVersion(ctx context.Context, v *workflow.WorkflowVersion) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, exists := b.versions[v.WorkflowID][v.Version]
	if !exists {
		return &errors.NotFoundError{Resource: "version", ID: versionID(v.WorkflowID, v.Version)}
	}
	if stored.Status == workflow.VersionPublished {
		return &errors.ConflictError{Resource: "version", Reason: fmt.Sprintf("version %d is published and immutable", v.Version)}
	}

	next := cloneVersion(v)
	next.Status = stored.Status
	next.PublishedAt = stored.PublishedAt
	next.CreatedAt = stored.CreatedAt
	b.versions[v.WorkflowID][v.Version] = next
	return nil
}

// PublishVersion transitions a draft to published and advances the
// owning workflow's ActiveVersion.
func (b *Backend) PublishVersion(ctx context.Context, workflowID string, version int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, exists := b.versions[workflowID][version]
	if !exists {
		return &errors.NotFoundError{Resource: "version", ID: versionID(workflowID, version)}
	}
	if v.Status == workflow.VersionPublished {
		return &errors.ConflictError{Resource: "version", Reason: fmt.Sprintf("version %d is already published", version)}
	}
	wf, exists := b.workflows[workflowID]
	if !exists {
		return &errors.NotFoundError{Resource: "workflow", ID: workflowID}
	}

	now := time.Now().UTC()
	v.Status = workflow.VersionPublished
	v.PublishedAt = &now
	wf.ActiveVersion = version
	wf.UpdatedAt = now
	return nil
}

// PutBlocks replaces the version's block set.
func (b *Backend) PutBlocks(ctx context.Context, workflowID string, version int, blocks []*workflow.Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, exists := b.versions[workflowID][version]
	if !exists {
		return &errors.NotFoundError{Resource: "version", ID: versionID(workflowID, version)}
	}
	if v.Status == workflow.VersionPublished {
		return &errors.ConflictError{Resource: "version", Reason: fmt.Sprintf("version %d is published and immutable", version)}
	}

	cloned := make([]*workflow.Block, len(blocks))
	for i, blk := range blocks {
		cloned[i] = cloneBlock(blk)
	}
	if b.blocks[workflowID] == nil {
		b.blocks[workflowID] = make(map[int][]*workflow.Block)
	}
	b.blocks[workflowID][version] = cloned
	return nil
}

// ListBlocks returns the version's blocks ordered by Order ascending,
// ID ascending on ties.
func (b *Backend) ListBlocks(ctx context.Context, workflowID string, version int) ([]*workflow.Block, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stored := b.blocks[workflowID][version]
	result := make([]*workflow.Block, 0, len(stored))
	for _, blk := range stored {
		result = append(result, cloneBlock(blk))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CreateRun inserts a new run.
func (b *Backend) CreateRun(ctx context.Context, run *workflow.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[run.ID]; exists {
		return &errors.ConflictError{Resource: "run", Reason: fmt.Sprintf("id %q already exists", run.ID)}
	}

	stampCreate(&run.CreatedAt, &run.UpdatedAt)
	b.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun retrieves a run by ID.
func (b *Backend) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, exists := b.runs[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	return cloneRun(run), nil
}

// UpdateRun replaces the stored row for run.ID.
func (b *Backend) UpdateRun(ctx context.Context, run *workflow.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[run.ID]; !exists {
		return &errors.NotFoundError{Resource: "run", ID: run.ID}
	}

	run.UpdatedAt = time.Now().UTC()
	b.runs[run.ID] = cloneRun(run)
	return nil
}

// ListRuns lists runs matching the filter, newest first.
func (b *Backend) ListRuns(ctx context.Context, filter backend.RunFilter) ([]*workflow.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*workflow.Run
	for _, run := range b.runs {
		if filter.OrgID != "" && run.OrgID != filter.OrgID {
			continue
		}
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.After != nil && !beforeCursor(run, filter.After) {
			continue
		}
		result = append(result, cloneRun(run))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// beforeCursor reports whether run sorts strictly after the cursor row
// in the newest-first listing order.
func beforeCursor(run *workflow.Run, c *backend.RunCursor) bool {
	if !run.CreatedAt.Equal(c.CreatedAt) {
		return run.CreatedAt.Before(c.CreatedAt)
	}
	return run.ID < c.ID
}

// CreateArtifact inserts a new artifact record.
func (b *Backend) CreateArtifact(ctx context.Context, a *workflow.Artifact) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.artifacts[a.ID]; exists {
		return &errors.ConflictError{Resource: "artifact", Reason: fmt.Sprintf("id %q already exists", a.ID)}
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	b.artifacts[a.ID] = cloneArtifact(a)
	b.runArtifacts[a.RunID] = append(b.runArtifacts[a.RunID], a.ID)
	return nil
}

// GetArtifact retrieves an artifact by ID.
func (b *Backend) GetArtifact(ctx context.Context, id string) (*workflow.Artifact, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, exists := b.artifacts[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "artifact", ID: id}
	}
	return cloneArtifact(a), nil
}

// ListArtifactsByRun returns a run's artifacts in creation order.
func (b *Backend) ListArtifactsByRun(ctx context.Context, runID string) ([]*workflow.Artifact, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.runArtifacts[runID]
	result := make([]*workflow.Artifact, 0, len(ids))
	for _, id := range ids {
		result = append(result, cloneArtifact(b.artifacts[id]))
	}
	return result, nil
}

// InsertKey persists a new key row.
func (b *Backend) InsertKey(ctx context.Context, key *workflow.Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.keys[key.ID]; exists {
		return &errors.ConflictError{Resource: "key", Reason: fmt.Sprintf("id %q already exists", key.ID)}
	}
	for _, existing := range b.keys {
		if existing.OrgID == key.OrgID && existing.WorkflowID == key.WorkflowID && existing.Name == key.Name {
			return &errors.ConflictError{Resource: "key", Reason: fmt.Sprintf("name %q already exists in this scope", key.Name)}
		}
	}

	stampCreate(&key.CreatedAt, &key.UpdatedAt)
	b.keys[key.ID] = cloneKey(key)
	return nil
}

// GetKeyByID returns the row whether or not it is revoked or expired.
func (b *Backend) GetKeyByID(ctx context.Context, id string) (*workflow.Key, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	key, exists := b.keys[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "key", ID: id}
	}
	return cloneKey(key), nil
}

// GetKeyByName returns the row matching (orgID, workflowID, name).
func (b *Backend) GetKeyByName(ctx context.Context, orgID, workflowID, name string) (*workflow.Key, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, key := range b.keys {
		if key.OrgID == orgID && key.WorkflowID == workflowID && key.Name == name {
			return cloneKey(key), nil
		}
	}
	return nil, &errors.NotFoundError{Resource: "key", ID: name}
}

// UpdateKey replaces the stored row for key.ID.
func (b *Backend) UpdateKey(ctx context.Context, key *workflow.Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.keys[key.ID]; !exists {
		return &errors.NotFoundError{Resource: "key", ID: key.ID}
	}

	key.UpdatedAt = time.Now().UTC()
	b.keys[key.ID] = cloneKey(key)
	return nil
}

// ListKeys returns the org's org-wide keys plus, when workflowID is
// non-empty, the keys scoped to that workflow.
func (b *Backend) ListKeys(ctx context.Context, orgID, workflowID string) ([]*workflow.Key, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*workflow.Key
	for _, key := range b.keys {
		if key.OrgID != orgID {
			continue
		}
		if key.WorkflowID != "" && key.WorkflowID != workflowID {
			continue
		}
		result = append(result, cloneKey(key))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// AppendKeyAudit appends one audit entry.
func (b *Backend) AppendKeyAudit(ctx context.Context, entry *workflow.KeyAuditEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	b.keyAudit[entry.KeyID] = append(b.keyAudit[entry.KeyID], cloneAudit(entry))
	return nil
}

// ListKeyAudit returns a key's audit entries, oldest first.
func (b *Backend) ListKeyAudit(ctx context.Context, keyID string) ([]*workflow.KeyAuditEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stored := b.keyAudit[keyID]
	result := make([]*workflow.KeyAuditEntry, 0, len(stored))
	for _, entry := range stored {
		result = append(result, cloneAudit(entry))
	}
	return result, nil
}

// CreatePublicRun inserts one accepted public trigger record.
func (b *Backend) CreatePublicRun(ctx context.Context, pr *workflow.PublicRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now().UTC()
	}
	clone := *pr
	b.publicRuns[pr.WorkflowID] = append(b.publicRuns[pr.WorkflowID], &clone)
	return nil
}

// ListPublicRuns returns a workflow's public trigger records, newest
// first.
func (b *Backend) ListPublicRuns(ctx context.Context, workflowID string) ([]*workflow.PublicRun, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stored := b.publicRuns[workflowID]
	result := make([]*workflow.PublicRun, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		clone := *stored[i]
		result = append(result, &clone)
	}
	return result, nil
}

// Close closes the backend.
func (b *Backend) Close() error {
	return nil
}

// versionID renders the composite (workflowID, version) identity for
// error messages.
func versionID(workflowID string, version int) string {
	return fmt.Sprintf("%s/v%d", workflowID, version)
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

func cloneWorkflow(wf *workflow.Workflow) *workflow.Workflow {
	c := *wf
	c.PublicBranding = maps.Clone(wf.PublicBranding)
	if wf.PublicRateLimit != nil {
		rl := *wf.PublicRateLimit
		c.PublicRateLimit = &rl
	}
	return &c
}

func cloneVersion(v *workflow.WorkflowVersion) *workflow.WorkflowVersion {
	c := *v
	c.TriggerConfig = maps.Clone(v.TriggerConfig)
	c.ExecutionEnvironments = slices.Clone(v.ExecutionEnvironments)
	if v.PublishedAt != nil {
		t := *v.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

func cloneBlock(blk *workflow.Block) *workflow.Block {
	c := *blk
	c.Logic = maps.Clone(blk.Logic)
	c.Conditions = slices.Clone(blk.Conditions)
	return &c
}

func cloneRun(run *workflow.Run) *workflow.Run {
	c := *run
	if run.StartedAt != nil {
		t := *run.StartedAt
		c.StartedAt = &t
	}
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		c.CompletedAt = &t
	}
	if run.Steps != nil {
		c.Steps = make([]workflow.Step, len(run.Steps))
		copy(c.Steps, run.Steps)
		for i := range c.Steps {
			if c.Steps[i].EndedAt != nil {
				t := *c.Steps[i].EndedAt
				c.Steps[i].EndedAt = &t
			}
			if c.Steps[i].Error != nil {
				e := *c.Steps[i].Error
				c.Steps[i].Error = &e
			}
		}
	}
	c.Metadata = maps.Clone(run.Metadata)
	if run.ResumeMarker != nil {
		m := *run.ResumeMarker
		m.State = maps.Clone(m.State)
		m.Cache = maps.Clone(m.Cache)
		m.Loops = maps.Clone(m.Loops)
		m.ArtifactIDs = slices.Clone(m.ArtifactIDs)
		c.ResumeMarker = &m
	}
	return &c
}

func cloneKey(key *workflow.Key) *workflow.Key {
	c := *key
	if key.ExpiresAt != nil {
		t := *key.ExpiresAt
		c.ExpiresAt = &t
	}
	if key.LastUsedAt != nil {
		t := *key.LastUsedAt
		c.LastUsedAt = &t
	}
	if key.LastRotatedAt != nil {
		t := *key.LastRotatedAt
		c.LastRotatedAt = &t
	}
	return &c
}

func cloneAudit(entry *workflow.KeyAuditEntry) *workflow.KeyAuditEntry {
	c := *entry
	c.Metadata = maps.Clone(entry.Metadata)
	return &c
}

func cloneArtifact(a *workflow.Artifact) *workflow.Artifact {
	c := *a
	if a.Overlays != nil {
		c.Overlays = make([]workflow.Overlay, len(a.Overlays))
		copy(c.Overlays, a.Overlays)
		for i := range c.Overlays {
			c.Overlays[i].Points = slices.Clone(c.Overlays[i].Points)
		}
	}
	return &c
}
