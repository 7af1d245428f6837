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

package mcpserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/mcp/server"
)

// NewCommand creates the mcp-server command
func NewCommand() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Start the baton MCP server",
		Long: `Start the baton MCP (Model Context Protocol) server.

The MCP server exposes a running baton daemon as tools that MCP-capable
coding assistants and agents can call to start workflow runs, check their
status, and answer runs that are waiting for input.

The server speaks MCP over stdio and needs a reachable daemon; start one
with 'baton serve' or batond first.

Configuration example for an MCP client:
  {
    "mcpServers": {
      "baton": {
        "command": "baton",
        "args": ["mcp-server"]
      }
    }
  }

The server exposes these tools:
  - workflow_run: Start a run by workflow name or ID
  - run_status: Fetch a run with its steps and artifacts
  - run_submit_action: Answer a run that is awaiting action`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServer(cmd, logLevel)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Logging verbosity (debug, info, warn, error)")

	return cmd
}

func runMCPServer(cmd *cobra.Command, logLevel string) error {
	versionStr, _, _ := shared.GetVersion()

	api, err := shared.NewAPIClient()
	if err != nil {
		return err
	}

	// Fail fast when no daemon is listening. Tool calls would all fail
	// anyway, and the hint tells the user how to start one.
	pingCtx, pingCancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer pingCancel()
	if err := api.Ping(pingCtx); err != nil {
		return shared.WrapDaemonError(err)
	}

	srv, err := server.NewServer(server.ServerConfig{
		Name:     "baton",
		Version:  versionStr,
		LogLevel: logLevel,
		Client:   api,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(os.Stderr, "\nReceived shutdown signal, shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}

		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
