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

package runs

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the runs command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Start and inspect workflow runs",
		Long: `Start runs on the daemon and inspect their progress.

Runs execute a published workflow version. A run that hits a ui block
pauses as awaiting_action until the value is submitted.

Examples:
  # Start a run of the active version
  baton runs start order-intake

  # Start with a trigger event
  baton runs start order-intake --event '{"orderId": "ord_991"}'

  # Follow a run's events live
  baton runs watch run_abc123

  # Answer a paused run
  baton runs submit run_abc123 --block approve --value true

  # List failed runs of one workflow
  baton runs list --workflow order-intake --status failed`,
	}

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSubmitCmd())
	cmd.AddCommand(newCancelCmd())

	// Default to list if no subcommand specified
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return newListCmd().RunE(cmd, args)
	}

	return cmd
}
