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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/pack"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check workflow files without touching the daemon",
		Long: `Parse and validate workflow files locally.

Every file is checked even when an earlier one fails, so a CI run
reports all problems at once.`,
		Example: `  # One file
  baton pack validate order-intake.yaml

  # A whole directory
  baton pack validate workflows/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var paths []string
			for _, arg := range args {
				found, err := collectFiles(arg)
				if err != nil {
					return err
				}
				paths = append(paths, found...)
			}

			failed := 0
			for _, p := range paths {
				f, err := pack.Load(p)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL  %s: %v\n", p, err)
					continue
				}
				fmt.Fprintf(out, "ok    %s (%s, %d blocks)\n", p, f.Name, len(f.Blocks))
			}

			if failed > 0 {
				return shared.NewInvalidWorkflowError(
					fmt.Sprintf("%d of %d files failed validation", failed, len(paths)), nil)
			}
			return nil
		},
	}

	return cmd
}
