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

package api

import (
	"log/slog"
	"net/http"

	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/controller/runner"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// RunHandler serves run launch, inspection and resumption.
type RunHandler struct {
	backend backend.Backend
	runner  *runner.Runner
	logger  *slog.Logger
}

// NewRunHandler creates the run management handler.
func NewRunHandler(be backend.Backend, rn *runner.Runner, logger *slog.Logger) *RunHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunHandler{backend: be, runner: rn, logger: logger}
}

// RegisterRoutes registers the run routes.
func (h *RunHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/workflows/{id}/runs", h.handleStart)
	mux.HandleFunc("GET /v1/runs", h.handleList)
	mux.HandleFunc("GET /v1/runs/{id}", h.handleGet)
	mux.HandleFunc("POST /v1/runs/{id}/actions", h.handleAction)
	mux.HandleFunc("POST /v1/runs/{id}/cancel", h.handleCancel)
}

// ownedRun loads a run and enforces tenancy, reading cross-org runs
// as absent.
func (h *RunHandler) ownedRun(r *http.Request, id, orgID string) (*workflow.Run, error) {
	run, err := h.backend.GetRun(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if run.OrgID != orgID {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	return run, nil
}

// StartRunRequest launches a run. Version zero means the workflow's
// active version; Event is the trigger payload blocks see as $event.
type StartRunRequest struct {
	Version  int            `json:"version,omitempty"`
	Event    map[string]any `json:"event,omitempty"`
	Platform string         `json:"platform,omitempty"`
	DeviceID string         `json:"deviceId,omitempty"`
}

func (h *RunHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	wf, err := ownedWorkflow(r, h.backend, r.PathValue("id"), id.OrgID)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	var req StartRunRequest
	if err := ReadOptionalJSON(r, &req); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	run, err := h.runner.Start(r.Context(), runner.StartRequest{
		WorkflowID:  wf.ID,
		Version:     req.Version,
		TriggerType: workflow.TriggerAPI,
		Event:       req.Event,
		Platform:    req.Platform,
		DeviceID:    req.DeviceID,
	})
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	WriteData(w, http.StatusCreated, run)
}

func (h *RunHandler) handleList(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	filter := backend.RunFilter{
		OrgID:      id.OrgID,
		WorkflowID: q.Get("workflowId"),
		Limit:      limit + 1, // one extra row decides whether a next page exists
	}
	if raw := q.Get("status"); raw != "" {
		status := workflow.RunStatus(raw)
		switch status {
		case workflow.RunPending, workflow.RunRunning, workflow.RunCompleted,
			workflow.RunFailed, workflow.RunCancelled, workflow.RunAwaitingAction:
			filter.Status = status
		default:
			WriteErr(w, r, h.logger, &errors.ValidationError{
				Field:       "status",
				Message:     "unknown run status " + raw,
				SuggestText: "one of pending, running, completed, failed, cancelled, awaiting_action",
			})
			return
		}
	}
	if token := q.Get("cursor"); token != "" {
		after, err := decodeRunCursor(token)
		if err != nil {
			WriteErr(w, r, h.logger, err)
			return
		}
		filter.After = after
	}

	runs, err := h.backend.ListRuns(r.Context(), filter)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	meta := &Meta{PageSize: limit}
	if len(runs) > limit {
		runs = runs[:limit]
		meta.Cursor = encodeRunCursor(runs[len(runs)-1])
	}
	WritePage(w, http.StatusOK, runs, meta)
}

// RunDetail is a run with its artifacts embedded, saving detail views
// a second request.
type RunDetail struct {
	*workflow.Run
	Artifacts []*workflow.Artifact `json:"artifacts,omitempty"`
}

func (h *RunHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	run, err := h.ownedRun(r, r.PathValue("id"), id.OrgID)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	artifacts, err := h.backend.ListArtifactsByRun(r.Context(), run.ID)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	WriteData(w, http.StatusOK, RunDetail{Run: run, Artifacts: artifacts})
}

// ActionSubmission answers a paused run's pending action.
type ActionSubmission struct {
	BlockID string `json:"blockId"`
	Value   any    `json:"value"`
	Token   string `json:"token,omitempty"`
}

func (h *RunHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	run, err := h.ownedRun(r, r.PathValue("id"), id.OrgID)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	var req ActionSubmission
	if err := ReadJSON(r, &req); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	resumed, err := h.runner.SubmitAction(r.Context(), runner.ActionRequest{
		RunID:   run.ID,
		BlockID: req.BlockID,
		Value:   req.Value,
		Token:   req.Token,
	})
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	WriteData(w, http.StatusAccepted, resumed)
}

func (h *RunHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	run, err := h.ownedRun(r, r.PathValue("id"), id.OrgID)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	cancelled, err := h.runner.Cancel(r.Context(), run.ID)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	WriteData(w, http.StatusAccepted, cancelled)
}
