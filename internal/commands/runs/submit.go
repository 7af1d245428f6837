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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/commands/shared"
)

func newSubmitCmd() *cobra.Command {
	var (
		blockID  string
		valueRaw string
		token    string
	)

	cmd := &cobra.Command{
		Use:   "submit <run-id>",
		Short: "Answer a paused run",
		Long: `Submit the value a paused run is waiting for and resume it.

The value is JSON; a bare string that is not valid JSON is submitted
as a string. The block ID must match the block the run paused on.`,
		Example: `  # Approve a details block
  baton runs submit run_abc123 --block approve --value true

  # Answer a form block
  baton runs submit run_abc123 --block intake --value '{"quantity": 4}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			// A non-JSON value is taken verbatim so plain text answers
			// need no quoting gymnastics.
			var value any
			if err := json.Unmarshal([]byte(valueRaw), &value); err != nil {
				value = valueRaw
			}

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			run, err := c.SubmitAction(cmd.Context(), args[0], client.ActionParams{
				BlockID: blockID,
				Value:   value,
				Token:   token,
			})
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			if shared.GetJSON() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			fmt.Fprintf(out, "Submitted %s for run %s (status: %s)\n", blockID, run.ID, run.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&blockID, "block", "", "Block the run paused on (required)")
	cmd.Flags().StringVar(&valueRaw, "value", "", "Value to submit (required)")
	cmd.Flags().StringVar(&token, "token", "", "Resume token; omitted means the current pause")
	cmd.MarkFlagRequired("block")
	cmd.MarkFlagRequired("value")

	return cmd
}
