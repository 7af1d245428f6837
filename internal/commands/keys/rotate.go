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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
)

func newRotateCmd() *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "rotate <key-id>",
		Short: "Replace a key's value",
		Long: `Replace a key's value in place. The name stays the same, so running
workflows pick up the new value on their next resolution.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			secret, err := resolveValue(value, "New value:", cmd.InOrStdin())
			if err != nil {
				return err
			}

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			key, err := c.RotateKey(cmd.Context(), args[0], secret)
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			if shared.GetJSON() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(key)
			}

			fmt.Fprintf(out, "Rotated key %s (%s)\n", key.Name, key.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "New credential value (- reads stdin; omit to be prompted)")

	return cmd
}
