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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
)

func newPublishCmd() *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "publish <workflow>",
		Short: "Publish a draft version",
		Long: `Freeze a draft version and make it the default for new runs.

Published versions are immutable; in-flight runs pinned to an older
version keep executing it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			wf, err := shared.ResolveWorkflowRef(cmd.Context(), c, args[0])
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			published, err := c.PublishVersion(cmd.Context(), wf.ID, version)
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			if shared.GetJSON() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(published)
			}

			fmt.Fprintf(out, "Published %s version %d\n", wf.Name, published.Version)
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Draft version number to publish (required)")
	cmd.MarkFlagRequired("version")

	return cmd
}
