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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func newListCmd() *cobra.Command {
	var workflowRef string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keys",
		Long:  "Display key metadata. Values never appear in any listing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			workflowID := ""
			if workflowRef != "" {
				wf, err := shared.ResolveWorkflowRef(cmd.Context(), c, workflowRef)
				if err != nil {
					return shared.WrapDaemonError(err)
				}
				workflowID = wf.ID
			}

			keys, err := c.ListKeys(cmd.Context(), workflowID)
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			useJSON := shared.GetJSON()

			if len(keys) == 0 {
				if useJSON {
					fmt.Fprintln(out, `{"keys":[]}`)
					return nil
				}
				fmt.Fprintln(out, "No keys stored.")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Run 'baton keys create --name <name>' to store one.")
				return nil
			}

			if useJSON {
				result := map[string][]*workflow.Key{"keys": keys}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			now := time.Now()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tID\tSCOPE\tPROVIDER\tSTATUS\tLAST USED")
			for _, k := range keys {
				scope := "org"
				if k.WorkflowID != "" {
					scope = k.WorkflowID
				}
				lastUsed := "-"
				if k.LastUsedAt != nil {
					lastUsed = shared.FormatAge(*k.LastUsedAt)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					k.Name, k.ID, scope, k.Provider, keyStatus(k, now), lastUsed)
			}
			w.Flush()

			return nil
		},
	}

	cmd.Flags().StringVar(&workflowRef, "workflow", "", "Only keys scoped to this workflow (ID or name)")

	return cmd
}

// keyStatus reduces a key's revocation and expiry state to one word.
func keyStatus(k *workflow.Key, now time.Time) string {
	switch {
	case k.IsRevoked:
		return "revoked"
	case k.ExpiresAt != nil && now.After(*k.ExpiresAt):
		return "expired"
	default:
		return "live"
	}
}
