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

package pack

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the pack command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Work with workflow files on disk",
		Long: `Work with workflow definition files before and after they reach the daemon.

A pack is a YAML workflow file or a directory of them. Files are matched
to workflows by name: importing a known name adds a draft version,
importing a new name creates the workflow.

Examples:
  # Scaffold a starter workflow in the current directory
  baton pack init order-intake

  # Check files without touching the daemon
  baton pack validate workflows/

  # Import a single file as a draft
  baton pack import order-intake.yaml

  # Import a directory and publish everything that changed
  baton pack import workflows/ --publish`,
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newImportCmd())

	return cmd
}
