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
	"time"

	"github.com/tombee/baton/internal/controller/auth"
	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// identityFrom reads the authenticated principal the middleware
// injected. Absence means a route was mounted outside the auth chain,
// which is a wiring bug surfaced as 401 rather than a panic.
func identityFrom(r *http.Request) (*auth.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, &errors.UnauthorizedError{Reason: "request has no identity"}
	}
	return id, nil
}

// WorkflowHandler serves workflow and version management.
type WorkflowHandler struct {
	backend backend.Backend
	hub     *events.Hub
	logger  *slog.Logger
}

// NewWorkflowHandler creates the workflow management handler.
func NewWorkflowHandler(be backend.Backend, hub *events.Hub, logger *slog.Logger) *WorkflowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowHandler{backend: be, hub: hub, logger: logger}
}

// RegisterRoutes registers the workflow routes.
func (h *WorkflowHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/workflows", h.handleCreate)
	mux.HandleFunc("GET /v1/workflows", h.handleList)
	mux.HandleFunc("GET /v1/workflows/{id}", h.handleGet)
	mux.HandleFunc("PATCH /v1/workflows/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /v1/workflows/{id}", h.handleDelete)
	mux.HandleFunc("POST /v1/workflows/{id}/versions", h.handleCreateVersion)
	mux.HandleFunc("POST /v1/workflows/{id}/publish", h.handlePublish)
	mux.HandleFunc("GET /v1/workflows/{id}/public-runs", h.handlePublicRuns)
}

// ownedWorkflow loads a workflow and enforces tenancy. A workflow in
// another org reads as absent so org membership cannot be probed.
func ownedWorkflow(r *http.Request, be backend.Backend, id, orgID string) (*workflow.Workflow, error) {
	wf, err := be.GetWorkflow(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if wf.OrgID != orgID {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return wf, nil
}

// TriggerSpec is the wire form of a version's trigger.
type TriggerSpec struct {
	Type   workflow.TriggerType `json:"type"`
	Config map[string]any       `json:"config,omitempty"`
}

// CreateWorkflowRequest creates a workflow with an optional first
// draft version. Pack import posts a definition in one shot.
type CreateWorkflowRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Trigger     *TriggerSpec     `json:"trigger,omitempty"`
	Blocks      []workflow.Block `json:"blocks,omitempty"`
	Changelog   string           `json:"changelog,omitempty"`
}

// CreateWorkflowResponse is the created workflow plus the number of
// the draft version holding the posted blocks.
type CreateWorkflowResponse struct {
	*workflow.Workflow
	DraftVersion int `json:"draftVersion,omitempty"`
}

func (h *WorkflowHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	var req CreateWorkflowRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	now := time.Now().UTC()
	wf := &workflow.Workflow{
		ID:          workflow.NewID(),
		OrgID:       id.OrgID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := workflow.ValidateWorkflow(wf); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	if err := workflow.ValidateBlocks(req.Blocks); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	if err := h.backend.CreateWorkflow(r.Context(), wf); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	resp := CreateWorkflowResponse{Workflow: wf}
	if req.Trigger != nil || len(req.Blocks) > 0 {
		version, err := h.createDraft(r, wf.ID, req.Trigger, req.Blocks, req.Changelog)
		if err != nil {
			WriteErr(w, r, h.logger, err)
			return
		}
		resp.DraftVersion = version.Version
	}

	h.logger.Info("workflow created",
		slog.String("workflow_id", wf.ID),
		slog.String("org_id", wf.OrgID),
	)
	WriteData(w, http.StatusCreated, resp)
}

// createDraft inserts the next draft version and its block set.
func (h *WorkflowHandler) createDraft(r *http.Request, workflowID string, trigger *TriggerSpec, blocks []workflow.Block, changelog string) (*workflow.WorkflowVersion, error) {
	versions, err := h.backend.ListVersions(r.Context(), workflowID)
	if err != nil {
		return nil, err
	}
	next := 1
	for _, v := range versions {
		if v.Version >= next {
			next = v.Version + 1
		}
	}

	v := &workflow.WorkflowVersion{
		WorkflowID:  workflowID,
		Version:     next,
		Status:      workflow.VersionDraft,
		TriggerType: workflow.TriggerAPI,
		Changelog:   changelog,
		CreatedAt:   time.Now().UTC(),
	}
	if trigger != nil && trigger.Type != "" {
		v.TriggerType = trigger.Type
		v.TriggerConfig = trigger.Config
	}
	if err := h.backend.CreateVersion(r.Context(), v); err != nil {
		return nil, err
	}

	rows := make([]*workflow.Block, len(blocks))
	for i := range blocks {
		b := blocks[i]
		b.WorkflowID = workflowID
		b.WorkflowVersion = next
		rows[i] = &b
	}
	if err := h.backend.PutBlocks(r.Context(), workflowID, next, rows); err != nil {
		return nil, err
	}
	return v, nil
}

func (h *WorkflowHandler) handleList(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	workflows, err := h.backend.ListWorkflows(r.Context(), id.OrgID)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	WritePage(w, http.StatusOK, workflows, &Meta{Total: len(workflows)})
}

func (h *WorkflowHandler) handleGet(w http.ResponseWriter, r *http.Request) {
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
	WriteData(w, http.StatusOK, wf)
}

// UpdateWorkflowRequest carries the mutable workflow fields. Pointer
// fields distinguish "leave alone" from "set to zero".
type UpdateWorkflowRequest struct {
	Name             *string                   `json:"name,omitempty"`
	Description      *string                   `json:"description,omitempty"`
	IsDisabled       *bool                     `json:"isDisabled,omitempty"`
	IsPublic         *bool                     `json:"isPublic,omitempty"`
	PublicAccessMode *workflow.PublicAccessMode `json:"publicAccessMode,omitempty"`
	PublicBranding   map[string]any            `json:"publicBranding,omitempty"`
	PublicRateLimit  *workflow.PublicRateLimit  `json:"publicRateLimit,omitempty"`
}

func (h *WorkflowHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateWorkflowRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	if req.Name != nil {
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.IsDisabled != nil {
		wf.IsDisabled = *req.IsDisabled
	}
	if req.PublicAccessMode != nil {
		wf.PublicAccessMode = *req.PublicAccessMode
	}
	if req.PublicBranding != nil {
		wf.PublicBranding = req.PublicBranding
	}
	if req.PublicRateLimit != nil {
		wf.PublicRateLimit = req.PublicRateLimit
	}
	if req.IsPublic != nil {
		wf.IsPublic = *req.IsPublic
		switch {
		case wf.IsPublic && wf.PublicSlug == "":
			wf.PublicSlug = workflow.DeriveSlug(wf.Name)
			if wf.PublicAccessMode == "" {
				wf.PublicAccessMode = workflow.PublicAccessView
			}
		case !wf.IsPublic:
			wf.PublicSlug = ""
			wf.PublicAccessMode = ""
		}
	}

	if err := workflow.ValidateWorkflow(wf); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	wf.UpdatedAt = time.Now().UTC()
	err = h.backend.UpdateWorkflow(r.Context(), wf)
	if errors.CodeOf(err) == errors.CodeConflict && wf.IsPublic {
		// Slug taken by another workflow; retry once with a random tail.
		wf.PublicSlug = workflow.SlugWithSuffix(wf.Name)
		err = h.backend.UpdateWorkflow(r.Context(), wf)
	}
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	h.broadcastWorkflow(events.WorkflowUpdated(wf.ID), wf)
	WriteData(w, http.StatusOK, wf)
}

func (h *WorkflowHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.backend.DeleteWorkflow(r.Context(), wf.ID); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	h.broadcastWorkflow(events.WorkflowDeleted(wf.ID), wf)
	h.logger.Info("workflow deleted",
		slog.String("workflow_id", wf.ID),
		slog.String("org_id", wf.OrgID),
	)
	WriteData(w, http.StatusOK, map[string]string{"id": wf.ID, "status": "deleted"})
}

// CreateVersionRequest adds the next draft version to an existing
// workflow. Pack re-import uses it to stage changes without touching
// the published version.
type CreateVersionRequest struct {
	Trigger   *TriggerSpec     `json:"trigger,omitempty"`
	Blocks    []workflow.Block `json:"blocks"`
	Changelog string           `json:"changelog,omitempty"`
}

func (h *WorkflowHandler) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
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

	var req CreateVersionRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	if err := workflow.ValidateBlocks(req.Blocks); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	version, err := h.createDraft(r, wf.ID, req.Trigger, req.Blocks, req.Changelog)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	WriteData(w, http.StatusCreated, version)
}

// PublishRequest names the draft version to publish.
type PublishRequest struct {
	Version int `json:"version"`
}

func (h *WorkflowHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
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

	var req PublishRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	if req.Version <= 0 {
		WriteErr(w, r, h.logger, &errors.ValidationError{
			Field:       "version",
			Message:     "version must be a positive integer",
			SuggestText: "pass the draft version number to publish",
		})
		return
	}

	if err := h.backend.PublishVersion(r.Context(), wf.ID, req.Version); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	published, err := h.backend.GetVersion(r.Context(), wf.ID, req.Version)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	h.broadcastWorkflow(events.WorkflowUpdated(wf.ID), wf)
	h.logger.Info("version published",
		slog.String("workflow_id", wf.ID),
		slog.Int("version", req.Version),
	)
	WriteData(w, http.StatusOK, published)
}

func (h *WorkflowHandler) handlePublicRuns(w http.ResponseWriter, r *http.Request) {
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

	rows, err := h.backend.ListPublicRuns(r.Context(), wf.ID)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	WritePage(w, http.StatusOK, rows, &Meta{Total: len(rows)})
}

// broadcastWorkflow fans a workflow event out to the workflow's own
// channel and its org channel.
func (h *WorkflowHandler) broadcastWorkflow(ev events.Event, wf *workflow.Workflow) {
	if h.hub == nil {
		return
	}
	h.hub.BroadcastToMany([]string{
		events.WorkflowChannel(wf.ID),
		events.OrgChannel(wf.OrgID),
	}, ev)
}
