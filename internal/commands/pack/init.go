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
	"bytes"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/examples"
)

func newInitCmd() *cobra.Command {
	var (
		template string
		list     bool
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Scaffold a workflow file from a starter template",
		Long: `Write a starter workflow file into the current directory.

The name argument becomes both the file name and the workflow's name
field; it defaults to the template name.`,
		Example: `  # See what templates exist
  baton pack init --list

  # Write minimal.yaml
  baton pack init

  # Write order-intake.yaml from the approval-gate template
  baton pack init order-intake --template approval-gate`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if list {
				available, err := examples.List()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TEMPLATE\tDESCRIPTION")
				for _, ex := range available {
					fmt.Fprintf(w, "%s\t%s\n", ex.Name, ex.Description)
				}
				w.Flush()
				return nil
			}

			if !examples.Exists(template) {
				return fmt.Errorf("unknown template %q; run 'baton pack init --list' to see what is available", template)
			}

			name := template
			if len(args) > 0 {
				name = args[0]
			}
			dest := name + ".yaml"

			if _, err := os.Stat(dest); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", dest)
			}

			if err := writeTemplate(template, name, dest); err != nil {
				return err
			}

			fmt.Fprintf(out, "Created %s from the %s template.\n", dest, template)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Run 'baton run %s' to execute it locally, or\n", dest)
			fmt.Fprintf(out, "'baton pack import %s' to register it with the daemon.\n", dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", "minimal", "Starter template to copy")
	cmd.Flags().BoolVar(&list, "list", false, "List available templates")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

// writeTemplate copies a template to dest, rewriting the workflow name
// when the caller chose a different one. Imports match by name, so the
// file must carry the chosen name rather than the template's.
func writeTemplate(template, name, dest string) error {
	if name == template {
		return examples.CopyTo(template, dest)
	}

	content, err := examples.Get(template)
	if err != nil {
		return err
	}
	content = bytes.Replace(content,
		[]byte("\nname: "+template+"\n"),
		[]byte("\nname: "+name+"\n"), 1)

	if err := os.WriteFile(dest, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}
