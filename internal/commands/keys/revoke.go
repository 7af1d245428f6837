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
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
)

func newRevokeCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke a key",
		Long: `Stop a key from resolving, immediately and permanently. The record
and its audit trail are kept; store a new key to replace it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if !force {
				if shared.IsNonInteractive() {
					return fmt.Errorf("refusing to revoke %s without --force in non-interactive mode", args[0])
				}
				fmt.Fprintf(out, "Revoke key %s? Workflows using it will start failing. [y/N]: ", args[0])
				var confirm string
				fmt.Fscanln(cmd.InOrStdin(), &confirm)
				if strings.ToLower(confirm) != "y" {
					fmt.Fprintln(out, "Cancelled")
					return nil
				}
			}

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			key, err := c.RevokeKey(cmd.Context(), args[0])
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			fmt.Fprintf(out, "Revoked key %s (%s)\n", key.Name, key.ID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
