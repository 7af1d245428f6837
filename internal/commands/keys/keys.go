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

package keys

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the keys command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage workflow credentials",
		Long: `Manage the credentials workflows reference as {{keys.<name>}}.

Values are encrypted at rest and never echoed back by any command.
Revoking a key stops resolution immediately but keeps its audit trail.

Examples:
  # Store a credential, prompting for the value
  baton keys create --name stripe_api --provider stripe

  # Store a credential scoped to one workflow, value from stdin
  cat token.txt | baton keys create --name github_token --workflow order-intake --value -

  # Replace a value in place
  baton keys rotate key_abc123

  # See every access to a key
  baton keys audit key_abc123`,
	}

	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRotateCmd())
	cmd.AddCommand(newRevokeCmd())
	cmd.AddCommand(newAuditCmd())

	// Default to list if no subcommand specified
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return newListCmd().RunE(cmd, args)
	}

	return cmd
}
