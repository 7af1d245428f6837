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
	"time"

	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// transition moves run to next, stamps timestamps and persists the row.
// Lifecycle writes use a background context so a cancelled run can still
// record its own cancellation. Callers broadcast the matching event
// after a nil return, never before.
func (r *Runner) transition(run *workflow.Run, next workflow.RunStatus) error {
	if !run.Status.CanTransition(next) {
		return &errors.ConflictError{
			Resource: "run",
			Reason:   fmt.Sprintf("cannot transition from %s to %s", run.Status, next),
		}
	}
	now := time.Now().UTC()
	run.Status = next
	switch next {
	case workflow.RunRunning:
		if run.StartedAt == nil {
			run.StartedAt = &now
		}
	case workflow.RunCompleted, workflow.RunFailed, workflow.RunCancelled:
		run.CompletedAt = &now
		if run.StartedAt != nil {
			run.DurationMs = now.Sub(*run.StartedAt).Milliseconds()
		}
	}
	run.UpdatedAt = now
	if err := r.backend.UpdateRun(context.Background(), run); err != nil {
		return fmt.Errorf("persist %s: %w", next, err)
	}
	return nil
}

// broadcast fans an event out to the run, workflow and org channels.
func (r *Runner) broadcast(run *workflow.Run, ev events.Event) {
	r.hub.BroadcastToMany([]string{
		events.RunChannel(run.ID),
		events.WorkflowChannel(run.WorkflowID),
		events.OrgChannel(run.OrgID),
	}, ev)
}

// begin takes the edge into running and announces it. resumed marks
// re-entry after a pause.
func (r *Runner) begin(run *workflow.Run, resumed bool) error {
	if err := r.transition(run, workflow.RunRunning); err != nil {
		return err
	}
	r.broadcast(run, events.RunStarted(run.ID, run.WorkflowID, string(run.TriggerType), resumed))
	if r.metrics != nil {
		r.metrics.RecordRunStart(run.WorkflowID, string(run.TriggerType))
	}
	return nil
}

// finish drives run to a terminal status and announces it.
func (r *Runner) finish(run *workflow.Run, status workflow.RunStatus, errorMessage string) error {
	run.ErrorMessage = errorMessage
	if err := r.transition(run, status); err != nil {
		return err
	}
	switch status {
	case workflow.RunCompleted:
		r.broadcast(run, events.RunCompleted(run.ID, run.DurationMs))
	case workflow.RunFailed:
		r.broadcast(run, events.RunFailed(run.ID, run.ErrorMessage))
	case workflow.RunCancelled:
		r.broadcast(run, events.RunCancelled(run.ID))
	}
	if r.metrics != nil {
		elapsed := time.Duration(run.DurationMs) * time.Millisecond
		r.metrics.RecordRunComplete(run.WorkflowID, string(status), elapsed)
	}
	r.logger.Info("run finished",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"status", status,
		"duration_ms", run.DurationMs)
	return nil
}

// park records the pause marker and announces that the run waits for an
// external action.
func (r *Runner) park(run *workflow.Run, marker *workflow.ResumeMarker, actionType string) error {
	run.ResumeMarker = marker
	if err := r.transition(run, workflow.RunAwaitingAction); err != nil {
		return err
	}
	r.broadcast(run, events.RunAwaitingAction(run.ID, marker.BlockID, actionType))
	r.logger.Info("run awaiting action",
		"run_id", run.ID,
		"block_id", marker.BlockID,
		"action_type", actionType)
	return nil
}
