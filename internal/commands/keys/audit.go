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

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <key-id>",
		Short: "Show a key's audit trail",
		Long: `Display every recorded event on a key, newest first: creation,
rotations, revocation, and each access during a run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			trail, err := c.KeyAudit(cmd.Context(), args[0])
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			useJSON := shared.GetJSON()

			if len(trail) == 0 {
				if useJSON {
					fmt.Fprintln(out, `{"audit":[]}`)
					return nil
				}
				fmt.Fprintf(out, "No audit entries for %s.\n", args[0])
				return nil
			}

			if useJSON {
				result := map[string][]*workflow.KeyAuditEntry{"audit": trail}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tBY\tIP")
			for _, e := range trail {
				by := e.PerformedBy
				if by == "" {
					by = "-"
				}
				ip := e.IPAddress
				if ip == "" {
					ip = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, by, ip)
			}
			w.Flush()

			return nil
		},
	}

	return cmd
}
