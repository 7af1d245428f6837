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

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/baton/internal/engine"
	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/internal/keystore"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// job is one executor assignment: a fresh run, or a paused run plus the
// submitted action value.
type job struct {
	run    *workflow.Run
	resume bool
	value  any
}

// runLogger scopes r.logger to one run, so every executor log line
// carries the run and workflow ids.
func (r *Runner) runLogger(run *workflow.Run) *slog.Logger {
	return log.WithRunContext(r.logger, run.ID, run.WorkflowID)
}

// execute owns a run from admission to its terminal or parked state. It
// runs on its own goroutine; exactly one executor ever owns a given
// run.
func (r *Runner) execute(h *handle, j job) {
	defer r.wg.Done()
	defer r.untrack(j.run.ID)
	run := j.run

	// Cancelled before any work happened.
	select {
	case <-h.stopped:
		r.abort(run)
		return
	default:
	}

	if r.metrics != nil {
		r.metrics.IncrementQueueDepth()
	}
	select {
	case r.semaphore <- struct{}{}:
		if r.metrics != nil {
			r.metrics.DecrementQueueDepth()
		}
	case <-h.stopped:
		if r.metrics != nil {
			r.metrics.DecrementQueueDepth()
		}
		r.abort(run)
		return
	}
	defer func() { <-r.semaphore }()

	// The marker leaves the row on the resume edge; re-entry works from
	// the detached copy. This is what makes a resume single-use across
	// restarts.
	marker := run.ResumeMarker
	run.ResumeMarker = nil
	if err := r.begin(run, j.resume); err != nil {
		r.runLogger(run).Error("run not started", "error", err)
		return
	}

	ctx := h.ctx
	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "run.execute",
			trace.WithAttributes(
				attribute.String("run.id", run.ID),
				attribute.String("workflow.id", run.WorkflowID),
				attribute.Bool("run.resumed", j.resume)))
		defer span.End()
	}

	wc, err := r.buildContext(ctx, run, marker)
	if err != nil {
		r.fail(run, err)
		return
	}
	blocks, err := r.loadBlocks(ctx, run)
	if err != nil {
		r.fail(run, err)
		return
	}

	hooks := engine.Hooks{OnStep: r.stepHook(run)}

	var outcome *engine.Outcome
	if j.resume {
		entry := *run
		entry.ResumeMarker = marker
		outcome, err = r.engine.Resume(ctx, blocks, wc, &entry, j.value, hooks)
		if err != nil {
			r.fail(run, fmt.Errorf("resume: %w", err))
			return
		}
	} else {
		outcome = r.engine.Execute(ctx, blocks, wc, hooks)
	}

	r.persistArtifacts(run, wc)
	r.finalize(run, outcome)
	if span != nil {
		span.SetAttributes(attribute.String("run.status", string(outcome.Status)))
	}
}

// abort finishes a run that was cancelled before admission. A pending
// row still takes the running edge first so its history stays inside
// the permitted transitions; a parked row goes straight to cancelled.
func (r *Runner) abort(run *workflow.Run) {
	if run.Status == workflow.RunPending {
		if err := r.begin(run, false); err != nil {
			r.runLogger(run).Error("run not started", "error", err)
			return
		}
	}
	run.ResumeMarker = nil
	if err := r.finish(run, workflow.RunCancelled, "run cancelled"); err != nil {
		r.runLogger(run).Error("final state not persisted", "error", err)
	}
}

// fail finishes a run that broke before the interpreter could own it:
// context assembly, block loading or marker re-entry. Cancellation
// surfacing through those paths still counts as cancelled.
func (r *Runner) fail(run *workflow.Run, err error) {
	status := workflow.RunFailed
	message := err.Error()
	if errors.CodeOf(err) == errors.CodeCancelled {
		status = workflow.RunCancelled
		message = "run cancelled"
	}
	logger := r.runLogger(run)
	logger.Error("run failed before dispatch", "error", err)
	if ferr := r.finish(run, status, message); ferr != nil {
		logger.Error("final state not persisted", "error", ferr)
	}
}

// finalize maps the interpreter's outcome onto the run row. The full
// step list lands with the same write as the status edge.
func (r *Runner) finalize(run *workflow.Run, outcome *engine.Outcome) {
	run.Steps = outcome.Steps
	var err error
	switch outcome.Status {
	case workflow.RunAwaitingAction:
		err = r.park(run, outcome.Marker, outcome.ActionType)
	case workflow.RunCompleted:
		err = r.finish(run, workflow.RunCompleted, "")
	case workflow.RunCancelled:
		err = r.finish(run, workflow.RunCancelled, outcome.ErrorMessage)
	default:
		err = r.finish(run, workflow.RunFailed, outcome.ErrorMessage)
	}
	if err != nil {
		r.runLogger(run).Error("final state not persisted",
			"status", outcome.Status,
			"error", err)
	}
}

// buildContext assembles the interpreter context: trigger event from
// run metadata, decrypted secrets, filesystem roots and, on resume, the
// artifacts recorded in the marker.
func (r *Runner) buildContext(ctx context.Context, run *workflow.Run, marker *workflow.ResumeMarker) (*workflow.Context, error) {
	event, _ := run.Metadata["event"].(map[string]any)
	wc := workflow.NewContext(event)

	if r.keys != nil {
		secrets, err := r.keys.PopulateSecrets(ctx, run.OrgID, run.WorkflowID, keystore.Actor{ID: "system:runner"})
		if err != nil {
			return nil, fmt.Errorf("populate secrets: %w", err)
		}
		wc.Secrets = secrets
	}
	if len(r.paths) > 0 {
		wc.Paths = maps.Clone(r.paths)
	}

	platform, _ := run.Metadata["platform"].(string)
	if platform == "" {
		platform = "server"
	}
	deviceID, _ := run.Metadata["deviceId"].(string)
	started := time.Now().UTC()
	if run.StartedAt != nil {
		started = *run.StartedAt
	}
	wc.Run = workflow.RunInfo{
		ID:          run.ID,
		WorkflowID:  run.WorkflowID,
		VersionID:   run.Version,
		Status:      workflow.RunRunning,
		TriggerType: run.TriggerType,
		StartedAt:   started,
		Platform:    platform,
		DeviceID:    deviceID,
	}

	if marker != nil {
		for _, id := range marker.ArtifactIDs {
			a, err := r.backend.GetArtifact(ctx, id)
			if err != nil {
				if errors.CodeOf(err) == errors.CodeNotFound {
					r.runLogger(run).Warn("artifact missing at resume", "artifact_id", id)
					continue
				}
				return nil, fmt.Errorf("rehydrate artifact %s: %w", id, err)
			}
			wc.Artifacts = append(wc.Artifacts, *a)
		}
	}
	return wc, nil
}

// loadBlocks fetches the version's block list in interpreter form.
func (r *Runner) loadBlocks(ctx context.Context, run *workflow.Run) ([]workflow.Block, error) {
	rows, err := r.backend.ListBlocks(ctx, run.WorkflowID, run.Version)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	blocks := make([]workflow.Block, len(rows))
	for i, b := range rows {
		blocks[i] = *b
	}
	return blocks, nil
}

// stepHook broadcasts step records as they change. The interpreter
// calls it from fan-out workers too, so it touches only immutable run
// fields and the hub.
func (r *Runner) stepHook(run *workflow.Run) func(workflow.Step) {
	runID, workflowID := run.ID, run.WorkflowID
	channels := []string{
		events.RunChannel(runID),
		events.WorkflowChannel(workflowID),
		events.OrgChannel(run.OrgID),
	}
	return func(step workflow.Step) {
		r.hub.BroadcastToMany(channels, events.RunStep(runID, step.StepID, step.BlockID, string(step.Status)))
		if r.metrics != nil && step.EndedAt != nil {
			r.metrics.RecordStepComplete(workflowID, step.BlockID, string(step.Status), step.EndedAt.Sub(step.StartedAt))
		}
	}
}

// persistArtifacts writes rows for artifacts produced during this leg.
// Artifacts rehydrated from a previous leg already have rows; their
// create conflicts and is skipped.
func (r *Runner) persistArtifacts(run *workflow.Run, wc *workflow.Context) {
	for i := range wc.Artifacts {
		a := wc.Artifacts[i]
		if a.ID == "" {
			a.ID = workflow.NewID()
		}
		if a.RunID == "" {
			a.RunID = run.ID
		}
		if a.WorkflowID == "" {
			a.WorkflowID = run.WorkflowID
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		if err := r.backend.CreateArtifact(context.Background(), &a); err != nil {
			if errors.CodeOf(err) == errors.CodeConflict {
				continue
			}
			r.runLogger(run).Error("artifact not persisted",
				"artifact_id", a.ID,
				"error", err)
		}
	}
}
