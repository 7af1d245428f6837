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

// Package events fans run and workflow lifecycle events out to
// connected subscribers. The hub keeps a channel-to-subscriber
// registry, serializes each event once, and delivers without blocking:
// subscribers that close or fall behind are pruned rather than allowed
// to stall a broadcaster.
package events

import (
	"time"
)

// Event types carried on the wire.
const (
	TypeRunStarted        = "run:started"
	TypeRunStep           = "run:step"
	TypeRunCompleted      = "run:completed"
	TypeRunFailed         = "run:failed"
	TypeRunCancelled      = "run:cancelled"
	TypeRunAwaitingAction = "run:awaiting_action"
	TypeWorkflowUpdated   = "workflow:updated"
	TypeWorkflowDeleted   = "workflow:deleted"
)

// timeFormat renders UTC instants with fixed millisecond precision.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Event is the envelope every subscriber receives.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp string         `json:"timestamp"`
}

// New stamps an event envelope.
func New(eventType string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(timeFormat),
	}
}

// RunStarted announces a run entering running. Resumed marks re-entry
// after a UI pause rather than a fresh start.
func RunStarted(runID, workflowID, triggerType string, resumed bool) Event {
	payload := map[string]any{
		"runId":       runID,
		"workflowId":  workflowID,
		"triggerType": triggerType,
	}
	if resumed {
		payload["resumed"] = true
	}
	return New(TypeRunStarted, payload)
}

// RunStep reports one block's step changing status.
func RunStep(runID, stepID, blockID, status string) Event {
	return New(TypeRunStep, map[string]any{
		"runId":   runID,
		"stepId":  stepID,
		"blockId": blockID,
		"status":  status,
	})
}

// RunCompleted reports a successful terminal transition.
func RunCompleted(runID string, durationMs int64) Event {
	return New(TypeRunCompleted, map[string]any{
		"runId":      runID,
		"durationMs": durationMs,
	})
}

// RunFailed reports a failed terminal transition.
func RunFailed(runID, errorMessage string) Event {
	return New(TypeRunFailed, map[string]any{
		"runId":        runID,
		"errorMessage": errorMessage,
	})
}

// RunCancelled reports a run stopped on request.
func RunCancelled(runID string) Event {
	return New(TypeRunCancelled, map[string]any{"runId": runID})
}

// RunAwaitingAction reports a run pausing on a UI block.
func RunAwaitingAction(runID, blockID, actionType string) Event {
	return New(TypeRunAwaitingAction, map[string]any{
		"runId":      runID,
		"blockId":    blockID,
		"actionType": actionType,
	})
}

// WorkflowUpdated reports a workflow mutation (metadata, lock, publish).
func WorkflowUpdated(workflowID string) Event {
	return New(TypeWorkflowUpdated, map[string]any{"workflowId": workflowID})
}

// WorkflowDeleted reports a workflow removal.
func WorkflowDeleted(workflowID string) Event {
	return New(TypeWorkflowDeleted, map[string]any{"workflowId": workflowID})
}

// RunChannel names the per-run event channel.
func RunChannel(runID string) string { return "run:" + runID }

// WorkflowChannel names the per-workflow event channel.
func WorkflowChannel(workflowID string) string { return "workflow:" + workflowID }

// OrgChannel names the org-wide event channel.
func OrgChannel(orgID string) string { return "org:" + orgID }
