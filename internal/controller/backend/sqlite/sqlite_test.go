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
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tombee/baton/internal/controller/backend"
	batonerrors "github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// createTestBackend creates a SQLite backend in a temporary directory.
func createTestBackend(t *testing.T) *Backend {
	t.Helper()

	cfg := Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
		WAL:  true,
	}

	be, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { be.Close() })

	return be
}

// ts builds a UTC instant at millisecond precision, matching what the
// timestamp columns round-trip.
func ts(hour, min, sec int) time.Time {
	return time.Date(2026, time.March, 5, hour, min, sec, 0, time.UTC)
}

func seedWorkflow(t *testing.T, be *Backend, id, orgID string) *workflow.Workflow {
	t.Helper()

	wf := &workflow.Workflow{
		ID:    id,
		OrgID: orgID,
		Name:  "Workflow " + id,
	}
	if err := be.CreateWorkflow(context.Background(), wf); err != nil {
		t.Fatalf("failed to create workflow %s: %v", id, err)
	}
	return wf
}

func seedVersion(t *testing.T, be *Backend, workflowID string, version int) {
	t.Helper()

	v := &workflow.WorkflowVersion{
		WorkflowID:  workflowID,
		Version:     version,
		Status:      workflow.VersionDraft,
		TriggerType: workflow.TriggerInteractive,
	}
	if err := be.CreateVersion(context.Background(), v); err != nil {
		t.Fatalf("failed to create version %d: %v", version, err)
	}
}

func TestSQLiteBackend_CreateWorkflow(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	wf := &workflow.Workflow{
		ID:               "wf-1",
		OrgID:            "org-1",
		Name:             "Invoice intake",
		Description:      "Parses invoices from email",
		IsPublic:         true,
		PublicSlug:       "invoice-intake",
		PublicAccessMode: workflow.PublicAccessRun,
		PublicBranding:   map[string]any{"title": "Invoices"},
		PublicRateLimit:  &workflow.PublicRateLimit{MaxPerMinute: 3},
	}
	if err := be.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("failed to create workflow: %v", err)
	}
	if wf.CreatedAt.IsZero() || wf.UpdatedAt.IsZero() {
		t.Fatalf("expected create to stamp timestamps, got %v / %v", wf.CreatedAt, wf.UpdatedAt)
	}

	retrieved, err := be.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("failed to get workflow: %v", err)
	}
	if retrieved.Name != wf.Name || retrieved.OrgID != wf.OrgID {
		t.Errorf("roundtrip mismatch: got %q in org %q", retrieved.Name, retrieved.OrgID)
	}
	if retrieved.PublicBranding["title"] != "Invoices" {
		t.Errorf("expected branding to roundtrip, got %v", retrieved.PublicBranding)
	}
	if retrieved.PublicRateLimit == nil || retrieved.PublicRateLimit.MaxPerMinute != 3 {
		t.Errorf("expected rate limit to roundtrip, got %v", retrieved.PublicRateLimit)
	}

	bySlug, err := be.GetWorkflowBySlug(ctx, "invoice-intake")
	if err != nil {
		t.Fatalf("failed to get workflow by slug: %v", err)
	}
	if bySlug.ID != "wf-1" {
		t.Errorf("expected slug lookup to find wf-1, got %s", bySlug.ID)
	}

	var conflict *batonerrors.ConflictError
	if err := be.CreateWorkflow(ctx, &workflow.Workflow{ID: "wf-1", OrgID: "org-1", Name: "dup"}); !stderrors.As(err, &conflict) {
		t.Errorf("duplicate id = %v, want ConflictError", err)
	}
	err = be.CreateWorkflow(ctx, &workflow.Workflow{
		ID: "wf-2", OrgID: "org-2", Name: "other", IsPublic: true, PublicSlug: "invoice-intake",
	})
	if !stderrors.As(err, &conflict) {
		t.Errorf("duplicate slug = %v, want ConflictError", err)
	}
}

func TestSQLiteBackend_GetWorkflowNotFound(t *testing.T) {
	be := createTestBackend(t)

	var notFound *batonerrors.NotFoundError
	if _, err := be.GetWorkflow(context.Background(), "missing"); !stderrors.As(err, &notFound) {
		t.Errorf("GetWorkflow(missing) = %v, want NotFoundError", err)
	}
	if _, err := be.GetWorkflowBySlug(context.Background(), "missing"); !stderrors.As(err, &notFound) {
		t.Errorf("GetWorkflowBySlug(missing) = %v, want NotFoundError", err)
	}
}

func TestSQLiteBackend_UpdateWorkflow(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	wf := seedWorkflow(t, be, "wf-1", "org-1")
	wf.Name = "Renamed"
	wf.IsDisabled = true

	if err := be.UpdateWorkflow(ctx, wf); err != nil {
		t.Fatalf("failed to update workflow: %v", err)
	}

	retrieved, err := be.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("failed to get workflow: %v", err)
	}
	if retrieved.Name != "Renamed" || !retrieved.IsDisabled {
		t.Errorf("update did not stick: got %q disabled=%v", retrieved.Name, retrieved.IsDisabled)
	}

	var notFound *batonerrors.NotFoundError
	if err := be.UpdateWorkflow(ctx, &workflow.Workflow{ID: "missing", Name: "x"}); !stderrors.As(err, &notFound) {
		t.Errorf("update missing = %v, want NotFoundError", err)
	}
}

func TestSQLiteBackend_ListWorkflows(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	seedWorkflow(t, be, "wf-a", "org-1")
	seedWorkflow(t, be, "wf-b", "org-2")
	seedWorkflow(t, be, "wf-c", "org-1")

	all, err := be.ListWorkflows(ctx, "")
	if err != nil {
		t.Fatalf("failed to list workflows: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 workflows, got %d", len(all))
	}

	org1, err := be.ListWorkflows(ctx, "org-1")
	if err != nil {
		t.Fatalf("failed to list org workflows: %v", err)
	}
	if len(org1) != 2 {
		t.Fatalf("expected 2 workflows for org-1, got %d", len(org1))
	}
	if org1[0].ID != "wf-a" || org1[1].ID != "wf-c" {
		t.Errorf("expected oldest-first order wf-a, wf-c; got %s, %s", org1[0].ID, org1[1].ID)
	}
}

func TestSQLiteBackend_DeleteWorkflow(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	seedWorkflow(t, be, "wf-1", "org-1")
	seedVersion(t, be, "wf-1", 1)
	err := be.PutBlocks(ctx, "wf-1", 1, []*workflow.Block{
		{ID: "blk-1", WorkflowID: "wf-1", WorkflowVersion: 1, Name: "fetch", Type: workflow.BlockFetch, Order: 0},
	})
	if err != nil {
		t.Fatalf("failed to put blocks: %v", err)
	}
	run := &workflow.Run{ID: "run-1", WorkflowID: "wf-1", Version: 1, OrgID: "org-1", Status: workflow.RunCompleted}
	if err := be.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	if err := be.DeleteWorkflow(ctx, "wf-1"); err != nil {
		t.Fatalf("failed to delete workflow: %v", err)
	}

	var notFound *batonerrors.NotFoundError
	if _, err := be.GetWorkflow(ctx, "wf-1"); !stderrors.As(err, &notFound) {
		t.Errorf("GetWorkflow after delete = %v, want NotFoundError", err)
	}
	if _, err := be.GetVersion(ctx, "wf-1", 1); !stderrors.As(err, &notFound) {
		t.Errorf("GetVersion after delete = %v, want NotFoundError", err)
	}
	blocks, err := be.ListBlocks(ctx, "wf-1", 1)
	if err != nil {
		t.Fatalf("failed to list blocks: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("expected blocks to be deleted, got %d", len(blocks))
	}

	// Run history outlives the workflow.
	if _, err := be.GetRun(ctx, "run-1"); err != nil {
		t.Errorf("expected run to survive workflow deletion, got %v", err)
	}

	if err := be.DeleteWorkflow(ctx, "missing"); !stderrors.As(err, &notFound) {
		t.Errorf("delete missing = %v, want NotFoundError", err)
	}
}

func TestSQLiteBackend_Versions(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	seedWorkflow(t, be, "wf-1", "org-1")

	var notFound *batonerrors.NotFoundError
	err := be.CreateVersion(ctx, &workflow.WorkflowVersion{WorkflowID: "missing", Version: 1, Status: workflow.VersionDraft})
	if !stderrors.As(err, &notFound) {
		t.Fatalf("create version for missing workflow = %v, want NotFoundError", err)
	}

	seedVersion(t, be, "wf-1", 1)
	seedVersion(t, be, "wf-1", 2)

	var conflict *batonerrors.ConflictError
	err = be.CreateVersion(ctx, &workflow.WorkflowVersion{WorkflowID: "wf-1", Version: 2, Status: workflow.VersionDraft})
	if !stderrors.As(err, &conflict) {
		t.Fatalf("duplicate version = %v, want ConflictError", err)
	}

	versions, err := be.ListVersions(ctx, "wf-1")
	if err != nil {
		t.Fatalf("failed to list versions: %v", err)
	}
	if len(versions) != 2 || versions[0].Version != 1 || versions[1].Version != 2 {
		t.Fatalf("expected versions 1, 2 in order; got %v", versions)
	}

	v1, err := be.GetVersion(ctx, "wf-1", 1)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	v1.Changelog = "initial trigger wiring"
	v1.TriggerType = workflow.TriggerSchedule
	v1.TriggerConfig = map[string]any{"cron": "0 * * * *"}
	v1.Status = workflow.VersionPublished // must be ignored
	if err := be.UpdateVersion(ctx, v1); err != nil {
		t.Fatalf("failed to update version: %v", err)
	}

	retrieved, err := be.GetVersion(ctx, "wf-1", 1)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if retrieved.Changelog != "initial trigger wiring" || retrieved.TriggerType != workflow.TriggerSchedule {
		t.Errorf("mutable fields did not stick: %+v", retrieved)
	}
	if retrieved.TriggerConfig["cron"] != "0 * * * *" {
		t.Errorf("expected trigger config to roundtrip, got %v", retrieved.TriggerConfig)
	}
	if retrieved.Status != workflow.VersionDraft || retrieved.PublishedAt != nil {
		t.Errorf("update must not change publish state: status=%s publishedAt=%v", retrieved.Status, retrieved.PublishedAt)
	}
}

func TestSQLiteBackend_PublishVersion(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	seedWorkflow(t, be, "wf-1", "org-1")
	seedVersion(t, be, "wf-1", 1)

	if err := be.PublishVersion(ctx, "wf-1", 1); err != nil {
		t.Fatalf("failed to publish version: %v", err)
	}

	v, err := be.GetVersion(ctx, "wf-1", 1)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if v.Status != workflow.VersionPublished || v.PublishedAt == nil {
		t.Errorf("expected published version, got status=%s publishedAt=%v", v.Status, v.PublishedAt)
	}

	wf, err := be.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("failed to get workflow: %v", err)
	}
	if wf.ActiveVersion != 1 {
		t.Errorf("expected active version 1, got %d", wf.ActiveVersion)
	}

	// Publishing is one-way and the published row is immutable.
	var conflict *batonerrors.ConflictError
	if err := be.PublishVersion(ctx, "wf-1", 1); !stderrors.As(err, &conflict) {
		t.Errorf("second publish = %v, want ConflictError", err)
	}
	if err := be.UpdateVersion(ctx, v); !stderrors.As(err, &conflict) {
		t.Errorf("update published version = %v, want ConflictError", err)
	}

	var notFound *batonerrors.NotFoundError
	if err := be.PublishVersion(ctx, "wf-1", 9); !stderrors.As(err, &notFound) {
		t.Errorf("publish missing version = %v, want NotFoundError", err)
	}
}

func TestSQLiteBackend_Blocks(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	seedWorkflow(t, be, "wf-1", "org-1")
	seedVersion(t, be, "wf-1", 1)

	// Same Order value on blk-b and blk-a exercises the ID tiebreak.
	blocks := []*workflow.Block{
		{ID: "blk-b", WorkflowID: "wf-1", WorkflowVersion: 1, Name: "validate", Type: workflow.BlockValidation, Order: 1},
		{ID: "blk-a", WorkflowID: "wf-1", WorkflowVersion: 1, Name: "label", Type: workflow.BlockString, Order: 1},
		{ID: "blk-c", WorkflowID: "wf-1", WorkflowVersion: 1, Name: "fetch", Type: workflow.BlockFetch, Order: 0,
			Logic:      map[string]any{"url": "https://example.com"},
			Conditions: []workflow.Condition{{Left: "$state.ready", Operator: workflow.OpEqual, Right: true}},
		},
	}
	if err := be.PutBlocks(ctx, "wf-1", 1, blocks); err != nil {
		t.Fatalf("failed to put blocks: %v", err)
	}

	listed, err := be.ListBlocks(ctx, "wf-1", 1)
	if err != nil {
		t.Fatalf("failed to list blocks: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(listed))
	}
	if listed[0].ID != "blk-c" || listed[1].ID != "blk-a" || listed[2].ID != "blk-b" {
		t.Errorf("expected order blk-c, blk-a, blk-b; got %s, %s, %s", listed[0].ID, listed[1].ID, listed[2].ID)
	}
	if listed[0].Logic["url"] != "https://example.com" {
		t.Errorf("expected logic to roundtrip, got %v", listed[0].Logic)
	}
	if len(listed[0].Conditions) != 1 || listed[0].Conditions[0].Left != "$state.ready" {
		t.Errorf("expected conditions to roundtrip, got %v", listed[0].Conditions)
	}

	// A second put replaces the whole draft set.
	err = be.PutBlocks(ctx, "wf-1", 1, []*workflow.Block{
		{ID: "blk-z", WorkflowID: "wf-1", WorkflowVersion: 1, Name: "only", Type: workflow.BlockObject, Order: 0},
	})
	if err != nil {
		t.Fatalf("failed to replace blocks: %v", err)
	}
	listed, err = be.ListBlocks(ctx, "wf-1", 1)
	if err != nil {
		t.Fatalf("failed to list blocks: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "blk-z" {
		t.Errorf("expected replaced set [blk-z], got %v", listed)
	}

	if err := be.PublishVersion(ctx, "wf-1", 1); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	var conflict *batonerrors.ConflictError
	if err := be.PutBlocks(ctx, "wf-1", 1, blocks); !stderrors.As(err, &conflict) {
		t.Errorf("put blocks on published version = %v, want ConflictError", err)
	}
	var notFound *batonerrors.NotFoundError
	if err := be.PutBlocks(ctx, "wf-1", 9, blocks); !stderrors.As(err, &notFound) {
		t.Errorf("put blocks on missing version = %v, want NotFoundError", err)
	}
}

func TestSQLiteBackend_RunRoundtrip(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	started := ts(10, 0, 0)
	ended := ts(10, 0, 5)
	run := &workflow.Run{
		ID:          "run-1",
		WorkflowID:  "wf-1",
		Version:     2,
		OrgID:       "org-1",
		Status:      workflow.RunAwaitingAction,
		TriggerType: workflow.TriggerAPI,
		StartedAt:   &started,
		Steps: []workflow.Step{
			{StepID: "s-1", BlockID: "blk-1", Status: workflow.StepCompleted, StartedAt: started, EndedAt: &ended, OutputSummary: "ok"},
			{StepID: "s-2", BlockID: "blk-2", Status: workflow.StepFailed, StartedAt: ended, EndedAt: &ended,
				Error: &workflow.StepError{Kind: "HANDLER_ERROR", Message: "upstream 503"}},
		},
		Metadata: map[string]any{"source": "cli"},
		ResumeMarker: &workflow.ResumeMarker{
			BlockID:     "blk-3",
			StepIndex:   2,
			BindKey:     "approval",
			State:       map[string]any{"count": float64(2)},
			Loops:       map[string]workflow.LoopState{"items": {Index: 1}},
			ArtifactIDs: []string{"art-1"},
			GotoDepth:   1,
			Token:       "tok-abc",
			CreatedAt:   ended,
		},
	}
	if err := be.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	retrieved, err := be.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Status != workflow.RunAwaitingAction || retrieved.Version != 2 {
		t.Errorf("roundtrip mismatch: status=%s version=%d", retrieved.Status, retrieved.Version)
	}
	if retrieved.StartedAt == nil || !retrieved.StartedAt.Equal(started) {
		t.Errorf("expected startedAt %v, got %v", started, retrieved.StartedAt)
	}
	if retrieved.CompletedAt != nil {
		t.Errorf("expected nil completedAt, got %v", retrieved.CompletedAt)
	}
	if len(retrieved.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(retrieved.Steps))
	}
	if retrieved.Steps[1].Error == nil || retrieved.Steps[1].Error.Kind != "HANDLER_ERROR" {
		t.Errorf("expected step error to roundtrip, got %v", retrieved.Steps[1].Error)
	}
	if retrieved.ResumeMarker == nil {
		t.Fatal("expected resume marker to roundtrip")
	}
	if retrieved.ResumeMarker.Token != "tok-abc" || retrieved.ResumeMarker.State["count"] != float64(2) {
		t.Errorf("resume marker mismatch: %+v", retrieved.ResumeMarker)
	}
	if retrieved.Metadata["source"] != "cli" {
		t.Errorf("expected metadata to roundtrip, got %v", retrieved.Metadata)
	}

	var conflict *batonerrors.ConflictError
	if err := be.CreateRun(ctx, &workflow.Run{ID: "run-1", WorkflowID: "wf-1", Status: workflow.RunPending}); !stderrors.As(err, &conflict) {
		t.Errorf("duplicate run = %v, want ConflictError", err)
	}
}

func TestSQLiteBackend_UpdateRun(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	run := &workflow.Run{ID: "run-1", WorkflowID: "wf-1", OrgID: "org-1", Status: workflow.RunRunning}
	if err := be.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	completed := ts(11, 0, 0)
	run.Status = workflow.RunCompleted
	run.CompletedAt = &completed
	run.DurationMs = 5250
	run.ResumeMarker = nil
	if err := be.UpdateRun(ctx, run); err != nil {
		t.Fatalf("failed to update run: %v", err)
	}

	retrieved, err := be.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Status != workflow.RunCompleted || retrieved.DurationMs != 5250 {
		t.Errorf("update did not stick: status=%s duration=%d", retrieved.Status, retrieved.DurationMs)
	}
	if retrieved.CompletedAt == nil || !retrieved.CompletedAt.Equal(completed) {
		t.Errorf("expected completedAt %v, got %v", completed, retrieved.CompletedAt)
	}

	var notFound *batonerrors.NotFoundError
	if err := be.UpdateRun(ctx, &workflow.Run{ID: "missing", Status: workflow.RunFailed}); !stderrors.As(err, &notFound) {
		t.Errorf("update missing run = %v, want NotFoundError", err)
	}
}

func TestSQLiteBackend_ListRuns(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	// run-d and run-e share a timestamp to exercise the ID tiebreak.
	seed := []*workflow.Run{
		{ID: "run-a", WorkflowID: "wf-1", OrgID: "org-1", Status: workflow.RunCompleted, CreatedAt: ts(10, 0, 0)},
		{ID: "run-b", WorkflowID: "wf-2", OrgID: "org-1", Status: workflow.RunFailed, CreatedAt: ts(10, 0, 1)},
		{ID: "run-c", WorkflowID: "wf-1", OrgID: "org-2", Status: workflow.RunCompleted, CreatedAt: ts(10, 0, 2)},
		{ID: "run-d", WorkflowID: "wf-1", OrgID: "org-1", Status: workflow.RunRunning, CreatedAt: ts(10, 0, 3)},
		{ID: "run-e", WorkflowID: "wf-1", OrgID: "org-1", Status: workflow.RunCompleted, CreatedAt: ts(10, 0, 3)},
	}
	for _, run := range seed {
		if err := be.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run %s: %v", run.ID, err)
		}
	}

	all, err := be.ListRuns(ctx, backend.RunFilter{})
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	wantOrder := []string{"run-e", "run-d", "run-c", "run-b", "run-a"}
	if len(all) != len(wantOrder) {
		t.Fatalf("expected %d runs, got %d", len(wantOrder), len(all))
	}
	for i, want := range wantOrder {
		if all[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, all[i].ID)
		}
	}

	org1, err := be.ListRuns(ctx, backend.RunFilter{OrgID: "org-1"})
	if err != nil {
		t.Fatalf("failed to list org runs: %v", err)
	}
	if len(org1) != 4 {
		t.Errorf("expected 4 runs for org-1, got %d", len(org1))
	}

	completed, err := be.ListRuns(ctx, backend.RunFilter{WorkflowID: "wf-1", Status: workflow.RunCompleted})
	if err != nil {
		t.Fatalf("failed to list filtered runs: %v", err)
	}
	if len(completed) != 3 {
		t.Errorf("expected 3 completed wf-1 runs, got %d", len(completed))
	}

	// Cursor past run-e: its twin run-d comes first, then strictly older rows.
	page, err := be.ListRuns(ctx, backend.RunFilter{
		After: &backend.RunCursor{ID: "run-e", CreatedAt: ts(10, 0, 3)},
		Limit: 2,
	})
	if err != nil {
		t.Fatalf("failed to list page: %v", err)
	}
	if len(page) != 2 || page[0].ID != "run-d" || page[1].ID != "run-c" {
		t.Errorf("expected page [run-d run-c], got %v", runIDs(page))
	}

	rest, err := be.ListRuns(ctx, backend.RunFilter{
		After: &backend.RunCursor{ID: "run-c", CreatedAt: ts(10, 0, 2)},
	})
	if err != nil {
		t.Fatalf("failed to list rest: %v", err)
	}
	if len(rest) != 2 || rest[0].ID != "run-b" || rest[1].ID != "run-a" {
		t.Errorf("expected page [run-b run-a], got %v", runIDs(rest))
	}
}

func runIDs(runs []*workflow.Run) []string {
	ids := make([]string, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
	}
	return ids
}

func TestSQLiteBackend_Artifacts(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	first := &workflow.Artifact{
		ID:         "art-1",
		RunID:      "run-1",
		WorkflowID: "wf-1",
		Type:       workflow.ArtifactImage,
		Name:       "scan.png",
		FilePath:   "/data/artifacts/scan.png",
		FileSize:   2048,
		MimeType:   "image/png",
		Width:      640,
		Height:     480,
		Overlays: []workflow.Overlay{
			{Kind: workflow.OverlayBarcode, Value: "0123456789", Points: []workflow.OverlayPoint{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.2}}},
		},
		Source:    "capture",
		BlockID:   "blk-1",
		CreatedAt: ts(12, 0, 0),
	}
	second := &workflow.Artifact{
		ID: "art-2", RunID: "run-1", WorkflowID: "wf-1",
		Type: workflow.ArtifactData, Name: "result.json", CreatedAt: ts(12, 0, 0),
	}
	other := &workflow.Artifact{
		ID: "art-3", RunID: "run-2", WorkflowID: "wf-1",
		Type: workflow.ArtifactData, Name: "noise.json",
	}
	for _, a := range []*workflow.Artifact{first, second, other} {
		if err := be.CreateArtifact(ctx, a); err != nil {
			t.Fatalf("failed to create artifact %s: %v", a.ID, err)
		}
	}

	retrieved, err := be.GetArtifact(ctx, "art-1")
	if err != nil {
		t.Fatalf("failed to get artifact: %v", err)
	}
	if retrieved.MimeType != "image/png" || retrieved.Width != 640 {
		t.Errorf("roundtrip mismatch: %+v", retrieved)
	}
	if len(retrieved.Overlays) != 1 || retrieved.Overlays[0].Value != "0123456789" {
		t.Fatalf("expected overlay to roundtrip, got %v", retrieved.Overlays)
	}
	if len(retrieved.Overlays[0].Points) != 2 || retrieved.Overlays[0].Points[0].X != 0.1 {
		t.Errorf("expected overlay points to roundtrip, got %v", retrieved.Overlays[0].Points)
	}

	var notFound *batonerrors.NotFoundError
	if _, err := be.GetArtifact(ctx, "missing"); !stderrors.As(err, &notFound) {
		t.Errorf("get missing artifact = %v, want NotFoundError", err)
	}

	// art-1 and art-2 share a timestamp; insertion order must hold.
	listed, err := be.ListArtifactsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list artifacts: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "art-1" || listed[1].ID != "art-2" {
		t.Errorf("expected [art-1 art-2], got %v", listed)
	}
}

func TestSQLiteBackend_Keys(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	orgWide := &workflow.Key{
		ID:             "key-1",
		OrgID:          "org-1",
		Name:           "anthropic",
		Provider:       "anthropic",
		KeyType:        "api_key",
		EncryptedValue: "c2VhbGVk",
		IV:             "aXYtMQ==",
		Algorithm:      workflow.KeyAlgorithmAESGCM,
		StorageMode:    workflow.KeyStorageLocal,
	}
	if err := be.InsertKey(ctx, orgWide); err != nil {
		t.Fatalf("failed to insert key: %v", err)
	}

	// The same name scoped to a workflow is a separate row.
	scoped := &workflow.Key{
		ID: "key-2", OrgID: "org-1", WorkflowID: "wf-1", Name: "anthropic",
		EncryptedValue: "c2VhbGVkMg==", IV: "aXYtMg==",
		Algorithm: workflow.KeyAlgorithmAESGCM, StorageMode: workflow.KeyStorageLocal,
	}
	if err := be.InsertKey(ctx, scoped); err != nil {
		t.Fatalf("failed to insert scoped key: %v", err)
	}

	var conflict *batonerrors.ConflictError
	dup := &workflow.Key{
		ID: "key-3", OrgID: "org-1", Name: "anthropic",
		EncryptedValue: "eA==", IV: "eQ==",
		Algorithm: workflow.KeyAlgorithmAESGCM, StorageMode: workflow.KeyStorageLocal,
	}
	if err := be.InsertKey(ctx, dup); !stderrors.As(err, &conflict) {
		t.Fatalf("duplicate name in scope = %v, want ConflictError", err)
	}

	byName, err := be.GetKeyByName(ctx, "org-1", "", "anthropic")
	if err != nil {
		t.Fatalf("failed to get key by name: %v", err)
	}
	if byName.ID != "key-1" || byName.EncryptedValue != "c2VhbGVk" {
		t.Errorf("expected org-wide row, got %+v", byName)
	}
	byName, err = be.GetKeyByName(ctx, "org-1", "wf-1", "anthropic")
	if err != nil {
		t.Fatalf("failed to get scoped key by name: %v", err)
	}
	if byName.ID != "key-2" {
		t.Errorf("expected scoped row key-2, got %s", byName.ID)
	}

	expiry := ts(23, 0, 0)
	orgWide.IsRevoked = true
	orgWide.ExpiresAt = &expiry
	if err := be.UpdateKey(ctx, orgWide); err != nil {
		t.Fatalf("failed to update key: %v", err)
	}
	updated, err := be.GetKeyByID(ctx, "key-1")
	if err != nil {
		t.Fatalf("failed to get key: %v", err)
	}
	if !updated.IsRevoked || updated.ExpiresAt == nil || !updated.ExpiresAt.Equal(expiry) {
		t.Errorf("update did not stick: %+v", updated)
	}

	orgOnly, err := be.ListKeys(ctx, "org-1", "")
	if err != nil {
		t.Fatalf("failed to list keys: %v", err)
	}
	if len(orgOnly) != 1 || orgOnly[0].ID != "key-1" {
		t.Errorf("expected org-wide listing [key-1], got %v", orgOnly)
	}
	withWorkflow, err := be.ListKeys(ctx, "org-1", "wf-1")
	if err != nil {
		t.Fatalf("failed to list workflow keys: %v", err)
	}
	if len(withWorkflow) != 2 {
		t.Errorf("expected 2 keys for wf-1 scope, got %d", len(withWorkflow))
	}

	var notFound *batonerrors.NotFoundError
	if _, err := be.GetKeyByID(ctx, "missing"); !stderrors.As(err, &notFound) {
		t.Errorf("get missing key = %v, want NotFoundError", err)
	}
	if err := be.UpdateKey(ctx, &workflow.Key{ID: "missing"}); !stderrors.As(err, &notFound) {
		t.Errorf("update missing key = %v, want NotFoundError", err)
	}
}

func TestSQLiteBackend_KeyAudit(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	// Identical timestamps: append order must still hold.
	at := ts(9, 0, 0)
	entries := []*workflow.KeyAuditEntry{
		{ID: "aud-1", KeyID: "key-1", Action: workflow.KeyAuditCreated, PerformedBy: "user-1", CreatedAt: at},
		{ID: "aud-2", KeyID: "key-1", Action: workflow.KeyAuditRotated, PerformedBy: "user-1", CreatedAt: at,
			Metadata: map[string]any{"reason": "scheduled"}},
		{ID: "aud-3", KeyID: "key-2", Action: workflow.KeyAuditCreated, CreatedAt: at},
	}
	for _, entry := range entries {
		if err := be.AppendKeyAudit(ctx, entry); err != nil {
			t.Fatalf("failed to append audit entry %s: %v", entry.ID, err)
		}
	}

	listed, err := be.ListKeyAudit(ctx, "key-1")
	if err != nil {
		t.Fatalf("failed to list audit: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "aud-1" || listed[1].ID != "aud-2" {
		t.Fatalf("expected [aud-1 aud-2], got %v", listed)
	}
	if listed[1].Metadata["reason"] != "scheduled" {
		t.Errorf("expected metadata to roundtrip, got %v", listed[1].Metadata)
	}

	empty, err := be.ListKeyAudit(ctx, "missing")
	if err != nil {
		t.Fatalf("failed to list empty audit: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no entries, got %d", len(empty))
	}
}

func TestSQLiteBackend_PublicRuns(t *testing.T) {
	be := createTestBackend(t)
	ctx := context.Background()

	records := []*workflow.PublicRun{
		{ID: "pub-1", RunID: "run-1", WorkflowID: "wf-1", Slug: "intake", IPHash: "h1", Anonymous: true, CreatedAt: ts(8, 0, 0)},
		{ID: "pub-2", RunID: "run-2", WorkflowID: "wf-1", Slug: "intake", IPHash: "h2", UserAgent: "curl/8", CreatedAt: ts(8, 0, 1)},
		{ID: "pub-3", RunID: "run-3", WorkflowID: "wf-2", Slug: "other", IPHash: "h3", CreatedAt: ts(8, 0, 2)},
	}
	for _, pr := range records {
		if err := be.CreatePublicRun(ctx, pr); err != nil {
			t.Fatalf("failed to create public run %s: %v", pr.ID, err)
		}
	}

	listed, err := be.ListPublicRuns(ctx, "wf-1")
	if err != nil {
		t.Fatalf("failed to list public runs: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "pub-2" || listed[1].ID != "pub-1" {
		t.Fatalf("expected newest-first [pub-2 pub-1], got %v", listed)
	}
	if listed[0].UserAgent != "curl/8" || !listed[1].Anonymous {
		t.Errorf("roundtrip mismatch: %+v, %+v", listed[0], listed[1])
	}
}

func TestSQLiteBackend_Persistence(t *testing.T) {
	cfg := Config{
		Path: filepath.Join(t.TempDir(), "persist.db"),
		WAL:  true,
	}

	be1, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	ctx := context.Background()
	wf := &workflow.Workflow{ID: "wf-1", OrgID: "org-1", Name: "Survivor"}
	if err := be1.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("failed to create workflow: %v", err)
	}
	run := &workflow.Run{ID: "run-1", WorkflowID: "wf-1", OrgID: "org-1", Status: workflow.RunCompleted}
	if err := be1.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	if err := be1.Close(); err != nil {
		t.Fatalf("failed to close backend: %v", err)
	}

	be2, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to reopen backend: %v", err)
	}
	defer be2.Close()

	retrieved, err := be2.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("failed to get persisted workflow: %v", err)
	}
	if retrieved.Name != "Survivor" {
		t.Errorf("expected persisted workflow, got %+v", retrieved)
	}
	persistedRun, err := be2.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get persisted run: %v", err)
	}
	if persistedRun.Status != workflow.RunCompleted {
		t.Errorf("expected persisted run, got %+v", persistedRun)
	}
}
