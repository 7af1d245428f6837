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

// Package server exposes a running baton daemon to MCP clients over stdio.
//
// The server is a thin bridge: every tool call is translated into a request
// against the daemon's HTTP API, so runs started here behave exactly like
// runs started from the CLI or the REST surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/internal/ratelimit"
	"github.com/tombee/baton/pkg/workflow"
)

// Tool budgets for the bridge's single local client. Mutating tools
// (starting runs, answering actions) spend from the tighter budget.
var (
	defaultMutationLimit = ratelimit.Limit{Requests: 10, Window: time.Minute}
	defaultCallLimit     = ratelimit.Limit{Requests: 100, Window: time.Minute}
)

// DaemonAPI is the slice of the daemon client the MCP tools need.
// *client.Client satisfies it.
type DaemonAPI interface {
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error)
	StartRun(ctx context.Context, workflowID string, params client.StartRunParams) (*workflow.Run, error)
	GetRun(ctx context.Context, id string) (*client.RunDetail, error)
	SubmitAction(ctx context.Context, runID string, params client.ActionParams) (*workflow.Run, error)
}

// Server wraps the MCP server and provides baton tools
type Server struct {
	mcpServer *server.MCPServer
	api       DaemonAPI
	name      string
	version   string
	logger    *slog.Logger

	limits        *ratelimit.Limiter
	mutationLimit ratelimit.Limit
	callLimit     ratelimit.Limit
}

// allowCall spends one slot of the overall tool-call budget.
func (s *Server) allowCall() bool {
	return s.limits.Allow("local", "mcp:call", s.callLimit).Allowed
}

// allowMutation spends one slot of the state-changing budget. Mutating
// tools spend from both budgets.
func (s *Server) allowMutation() bool {
	return s.limits.Allow("local", "mcp:mutate", s.mutationLimit).Allowed
}

// ServerConfig configures the MCP server
type ServerConfig struct {
	// Name is the server name (default: "baton")
	Name string

	// Version is the baton version
	Version string

	// LogLevel controls logging verbosity (trace, debug, info, warn, error)
	LogLevel string

	// Client is the daemon client the tools bridge to. Required.
	Client DaemonAPI
}

// createLogger builds the bridge logger on stderr. Stdout carries the MCP
// stdio protocol and has to stay clean.
func createLogger(levelStr string) (*slog.Logger, error) {
	switch levelStr {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", levelStr)
	}

	return log.New(&log.Config{
		Level:  levelStr,
		Format: log.FormatText,
		Output: os.Stderr,
	}), nil
}

// NewServer creates a new MCP server instance
func NewServer(config ServerConfig) (*Server, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("daemon client is required")
	}
	if config.Name == "" {
		config.Name = "baton"
	}
	if config.Version == "" {
		config.Version = "dev"
	}

	logger, err := createLogger(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	mcpServer := server.NewMCPServer(config.Name, config.Version)

	s := &Server{
		mcpServer:     mcpServer,
		api:           config.Client,
		name:          config.Name,
		version:       config.Version,
		logger:        logger,
		limits:        ratelimit.New(),
		mutationLimit: defaultMutationLimit,
		callLimit:     defaultCallLimit,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers the baton tools with the MCP server
func (s *Server) registerTools() {
	// Tool: workflow_run
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "workflow_run",
		Description: "Start a workflow run on the baton daemon. Accepts a workflow name or ID and an optional event payload. Returns the run as JSON.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"workflow": map[string]interface{}{
					"type":        "string",
					"description": "Workflow name or ID",
				},
				"event": map[string]interface{}{
					"type":        "object",
					"description": "Trigger payload, available to blocks as $event",
				},
				"version": map[string]interface{}{
					"type":        "integer",
					"description": "Workflow version to run (default: latest published)",
				},
			},
			Required: []string{"workflow"},
		},
	}, s.handleWorkflowRun)

	// Tool: run_status
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "run_status",
		Description: "Fetch the current state of a run, including its steps and artifacts. Returns the run as JSON.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Run ID, as returned by workflow_run",
				},
			},
			Required: []string{"run_id"},
		},
	}, s.handleRunStatus)

	// Tool: run_submit_action
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "run_submit_action",
		Description: "Submit the response for a run that is awaiting action (a form, a confirmation). The run resumes once the value is accepted.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Run that is awaiting action",
				},
				"block_id": map[string]interface{}{
					"type":        "string",
					"description": "Block that requested the action",
				},
				"value": map[string]interface{}{
					"description": "Response value. The shape depends on the action type: an object for forms, a string or boolean for confirmations.",
				},
				"token": map[string]interface{}{
					"type":        "string",
					"description": "Action token from the awaiting_action event, when the run requires one",
				},
			},
			Required: []string{"run_id", "block_id", "value"},
		},
	}, s.handleSubmitAction)
}

// Run starts the MCP server using stdio transport
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting baton MCP server", slog.String("version", s.version))

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}

// Shutdown releases the server's background resources. ServeStdio returns
// on its own once stdin closes, so only the limiter needs an explicit stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down baton MCP server")
	s.limits.Close()
	return nil
}

// Helper function to create error response
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// Helper function to create success response
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}
