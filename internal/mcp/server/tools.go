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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/pkg/workflow"
)

// handleWorkflowRun starts a run for the referenced workflow.
func (s *Server) handleWorkflowRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allowCall() || !s.allowMutation() {
		return errorResponse("rate limit exceeded, retry in a minute"), nil
	}

	ref, err := request.RequireString("workflow")
	if err != nil {
		return errorResponse("workflow is required and must be a string"), nil
	}

	args := request.GetArguments()
	var event map[string]interface{}
	if raw, ok := args["event"].(map[string]interface{}); ok {
		event = raw
	}
	version := 0
	if raw, ok := args["version"].(float64); ok {
		version = int(raw)
	}

	wf, err := s.resolveWorkflow(ctx, ref)
	if err != nil {
		return errorResponse(err.Error()), nil
	}

	run, err := s.api.StartRun(ctx, wf.ID, client.StartRunParams{
		Version:  version,
		Event:    event,
		Platform: "mcp",
	})
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to start run: %v", err)), nil
	}

	s.logger.Info("started run",
		slog.String("run_id", run.ID),
		slog.String("workflow_id", wf.ID))

	jsonData, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}

	return textResponse(string(jsonData)), nil
}

// handleRunStatus returns the current run row with steps and artifacts.
func (s *Server) handleRunStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allowCall() {
		return errorResponse("rate limit exceeded, retry in a minute"), nil
	}

	runID, err := request.RequireString("run_id")
	if err != nil {
		return errorResponse("run_id is required and must be a string"), nil
	}

	detail, err := s.api.GetRun(ctx, runID)
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to fetch run: %v", err)), nil
	}

	jsonData, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}

	return textResponse(string(jsonData)), nil
}

// handleSubmitAction answers a paused run so it can resume.
func (s *Server) handleSubmitAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allowCall() || !s.allowMutation() {
		return errorResponse("rate limit exceeded, retry in a minute"), nil
	}

	runID, err := request.RequireString("run_id")
	if err != nil {
		return errorResponse("run_id is required and must be a string"), nil
	}
	blockID, err := request.RequireString("block_id")
	if err != nil {
		return errorResponse("block_id is required and must be a string"), nil
	}

	args := request.GetArguments()
	value, ok := args["value"]
	if !ok {
		return errorResponse("value is required"), nil
	}
	token := request.GetString("token", "")

	run, err := s.api.SubmitAction(ctx, runID, client.ActionParams{
		BlockID: blockID,
		Value:   value,
		Token:   token,
	})
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to submit action: %v", err)), nil
	}

	s.logger.Info("submitted action",
		slog.String("run_id", runID),
		slog.String("block_id", blockID))

	jsonData, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}

	return textResponse(string(jsonData)), nil
}

// resolveWorkflow finds a workflow by ID first, then by exact name.
// Ambiguous names are an error so a tool call never runs the wrong workflow.
func (s *Server) resolveWorkflow(ctx context.Context, ref string) (*workflow.Workflow, error) {
	wf, err := s.api.GetWorkflow(ctx, ref)
	if err == nil {
		return wf, nil
	}

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		return nil, fmt.Errorf("failed to look up workflow: %w", err)
	}

	workflows, err := s.api.ListWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var match *workflow.Workflow
	for _, candidate := range workflows {
		if candidate.Name == ref {
			if match != nil {
				return nil, fmt.Errorf("workflow name %q is ambiguous, use the ID", ref)
			}
			match = candidate
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no workflow with ID or name %q", ref)
	}
	return match, nil
}
