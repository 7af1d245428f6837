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

package workflow

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the workflow command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows on the daemon",
		Long: `Manage workflows registered with the baton daemon.

A workflow is the versioned definition the daemon executes. Drafts are
editable; publishing freezes a version and makes it the default for new
runs.

Examples:
  # List all workflows
  baton workflow list

  # Show one workflow by ID or name
  baton workflow get order-intake

  # Publish draft version 3
  baton workflow publish order-intake --version 3

  # Share a workflow publicly so visitors can trigger runs
  baton workflow share order-intake --mode run

  # Delete a workflow and all of its runs
  baton workflow delete order-intake`,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newShareCmd())
	cmd.AddCommand(newPublicRunsCmd())
	cmd.AddCommand(newDeleteCmd())

	// Default to list if no subcommand specified
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return newListCmd().RunE(cmd, args)
	}

	return cmd
}
