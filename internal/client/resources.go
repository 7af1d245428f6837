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

package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tombee/baton/pkg/workflow"
)

// HealthInfo is the payload of GET /healthz.
type HealthInfo struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// VersionInfo is the payload of GET /version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Health returns the daemon health status.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var health HealthInfo
	if _, err := c.get(ctx, "/healthz", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Version returns the daemon build information.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	var version VersionInfo
	if _, err := c.get(ctx, "/version", &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

// TriggerSpec is the wire form of a version's trigger.
type TriggerSpec struct {
	Type   workflow.TriggerType `json:"type"`
	Config map[string]any       `json:"config,omitempty"`
}

// CreateWorkflowParams creates a workflow, optionally with a first
// draft version holding the blocks.
type CreateWorkflowParams struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Trigger     *TriggerSpec     `json:"trigger,omitempty"`
	Blocks      []workflow.Block `json:"blocks,omitempty"`
	Changelog   string           `json:"changelog,omitempty"`
}

// CreatedWorkflow is the created row plus the draft version number
// when blocks were posted.
type CreatedWorkflow struct {
	workflow.Workflow
	DraftVersion int `json:"draftVersion,omitempty"`
}

// CreateWorkflow creates a workflow on the daemon.
func (c *Client) CreateWorkflow(ctx context.Context, params CreateWorkflowParams) (*CreatedWorkflow, error) {
	var created CreatedWorkflow
	if err := c.post(ctx, "/v1/workflows", params, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListWorkflows lists the org's workflows.
func (c *Client) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	var workflows []*workflow.Workflow
	if _, err := c.get(ctx, "/v1/workflows", &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

// GetWorkflow fetches one workflow.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	if _, err := c.get(ctx, "/v1/workflows/"+url.PathEscape(id), &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// UpdateWorkflowParams patches workflow fields. Nil pointers leave the
// field untouched.
type UpdateWorkflowParams struct {
	Name             *string                    `json:"name,omitempty"`
	Description      *string                    `json:"description,omitempty"`
	IsDisabled       *bool                      `json:"isDisabled,omitempty"`
	IsPublic         *bool                      `json:"isPublic,omitempty"`
	PublicAccessMode *workflow.PublicAccessMode `json:"publicAccessMode,omitempty"`
	PublicBranding   map[string]any             `json:"publicBranding,omitempty"`
	PublicRateLimit  *workflow.PublicRateLimit  `json:"publicRateLimit,omitempty"`
}

// UpdateWorkflow patches a workflow.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, params UpdateWorkflowParams) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	if _, err := c.do(ctx, http.MethodPatch, "/v1/workflows/"+url.PathEscape(id), params, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// DeleteWorkflow deletes a workflow and everything under it.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/workflows/"+url.PathEscape(id), nil, nil)
	return err
}

// ListPublicRuns lists a workflow's anonymous public submissions,
// newest first.
func (c *Client) ListPublicRuns(ctx context.Context, workflowID string) ([]*workflow.PublicRun, error) {
	var rows []*workflow.PublicRun
	if _, err := c.get(ctx, "/v1/workflows/"+url.PathEscape(workflowID)+"/public-runs", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateVersionParams posts a new draft version.
type CreateVersionParams struct {
	Trigger   *TriggerSpec     `json:"trigger,omitempty"`
	Blocks    []workflow.Block `json:"blocks"`
	Changelog string           `json:"changelog,omitempty"`
}

// CreateVersion adds a draft version to an existing workflow.
func (c *Client) CreateVersion(ctx context.Context, workflowID string, params CreateVersionParams) (*workflow.WorkflowVersion, error) {
	var v workflow.WorkflowVersion
	if err := c.post(ctx, "/v1/workflows/"+url.PathEscape(workflowID)+"/versions", params, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// PublishVersion publishes a draft version, making it the workflow's
// active version.
func (c *Client) PublishVersion(ctx context.Context, workflowID string, version int) (*workflow.WorkflowVersion, error) {
	var v workflow.WorkflowVersion
	body := map[string]int{"version": version}
	if err := c.post(ctx, "/v1/workflows/"+url.PathEscape(workflowID)+"/publish", body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// StartRunParams launches a run. Version zero means the active
// version; Event is the trigger payload blocks see as $event.
type StartRunParams struct {
	Version  int            `json:"version,omitempty"`
	Event    map[string]any `json:"event,omitempty"`
	Platform string         `json:"platform,omitempty"`
	DeviceID string         `json:"deviceId,omitempty"`
}

// StartRun launches a run of the workflow.
func (c *Client) StartRun(ctx context.Context, workflowID string, params StartRunParams) (*workflow.Run, error) {
	var run workflow.Run
	if err := c.post(ctx, "/v1/workflows/"+url.PathEscape(workflowID)+"/runs", params, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RunQuery filters a run listing.
type RunQuery struct {
	WorkflowID string
	Status     string
	Cursor     string
	Limit      int
}

// ListRuns lists runs, newest first, with cursor pagination.
func (c *Client) ListRuns(ctx context.Context, q RunQuery) ([]*workflow.Run, *Page, error) {
	params := url.Values{}
	if q.WorkflowID != "" {
		params.Set("workflowId", q.WorkflowID)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/v1/runs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var runs []*workflow.Run
	page, err := c.get(ctx, path, &runs)
	if err != nil {
		return nil, nil, err
	}
	return runs, page, nil
}

// RunDetail is a run with its artifacts embedded.
type RunDetail struct {
	workflow.Run
	Artifacts []*workflow.Artifact `json:"artifacts,omitempty"`
}

// GetRun fetches one run with artifacts.
func (c *Client) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	var detail RunDetail
	if _, err := c.get(ctx, "/v1/runs/"+url.PathEscape(id), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ActionParams answers a paused run's pending action.
type ActionParams struct {
	BlockID string `json:"blockId"`
	Value   any    `json:"value"`
	Token   string `json:"token,omitempty"`
}

// SubmitAction resumes a paused run with the submitted value.
func (c *Client) SubmitAction(ctx context.Context, runID string, params ActionParams) (*workflow.Run, error) {
	var run workflow.Run
	if err := c.post(ctx, "/v1/runs/"+url.PathEscape(runID)+"/actions", params, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CancelRun stops a pending, running or paused run.
func (c *Client) CancelRun(ctx context.Context, runID string) (*workflow.Run, error) {
	var run workflow.Run
	if err := c.post(ctx, "/v1/runs/"+url.PathEscape(runID)+"/cancel", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateKeyParams registers a credential. Value travels here once and
// is never echoed back.
type CreateKeyParams struct {
	WorkflowID string     `json:"workflowId,omitempty"`
	Name       string     `json:"name"`
	Provider   string     `json:"provider,omitempty"`
	KeyType    string     `json:"keyType,omitempty"`
	Value      string     `json:"value"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// CreateKey stores a credential in the daemon's keystore.
func (c *Client) CreateKey(ctx context.Context, params CreateKeyParams) (*workflow.Key, error) {
	var key workflow.Key
	if err := c.post(ctx, "/v1/keys", params, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// ListKeys lists key metadata, optionally scoped to one workflow.
// Values never appear in the response.
func (c *Client) ListKeys(ctx context.Context, workflowID string) ([]*workflow.Key, error) {
	path := "/v1/keys"
	if workflowID != "" {
		path += "?workflowId=" + url.QueryEscape(workflowID)
	}
	var keys []*workflow.Key
	if _, err := c.get(ctx, path, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// RotateKey replaces a key's value in place.
func (c *Client) RotateKey(ctx context.Context, keyID, value string) (*workflow.Key, error) {
	var key workflow.Key
	body := map[string]string{"value": value}
	if err := c.post(ctx, "/v1/keys/"+url.PathEscape(keyID)+"/rotate", body, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// RevokeKey soft-revokes a key; resolution stops immediately but the
// audit trail stays.
func (c *Client) RevokeKey(ctx context.Context, keyID string) (*workflow.Key, error) {
	var key workflow.Key
	if _, err := c.do(ctx, http.MethodDelete, "/v1/keys/"+url.PathEscape(keyID), nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// KeyAudit returns a key's audit trail, newest first.
func (c *Client) KeyAudit(ctx context.Context, keyID string) ([]*workflow.KeyAuditEntry, error) {
	var trail []*workflow.KeyAuditEntry
	if _, err := c.get(ctx, "/v1/keys/"+url.PathEscape(keyID)+"/audit", &trail); err != nil {
		return nil, err
	}
	return trail, nil
}
