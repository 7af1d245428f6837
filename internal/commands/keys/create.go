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
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/commands/shared"
)

func newCreateCmd() *cobra.Command {
	var (
		workflowRef string
		name        string
		provider    string
		keyType     string
		value       string
		expiresIn   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a credential",
		Long: `Store an encrypted credential workflows resolve as {{keys.<name>}}.

Without --workflow the key is org-wide; with it, only that workflow's
runs can resolve it. The value comes from --value, from stdin with
--value -, or from an echo-off prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			params := client.CreateKeyParams{
				Name:     name,
				Provider: provider,
				KeyType:  keyType,
			}

			if workflowRef != "" {
				wf, err := shared.ResolveWorkflowRef(cmd.Context(), c, workflowRef)
				if err != nil {
					return shared.WrapDaemonError(err)
				}
				params.WorkflowID = wf.ID
			}

			secret, err := resolveValue(value, fmt.Sprintf("Value for %s:", name), cmd.InOrStdin())
			if err != nil {
				return err
			}
			params.Value = secret

			if expiresIn > 0 {
				expiry := time.Now().Add(expiresIn)
				params.ExpiresAt = &expiry
			}

			key, err := c.CreateKey(cmd.Context(), params)
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			if shared.GetJSON() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(key)
			}

			scope := "org-wide"
			if key.WorkflowID != "" {
				scope = "workflow " + key.WorkflowID
			}
			fmt.Fprintf(out, "Stored key %s (%s, %s)\n", key.Name, key.ID, scope)
			if key.ExpiresAt != nil {
				fmt.Fprintf(out, "Expires %s\n", key.ExpiresAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowRef, "workflow", "", "Scope the key to one workflow (ID or name)")
	cmd.Flags().StringVar(&name, "name", "", "Key name workflows reference (required)")
	cmd.Flags().StringVar(&provider, "provider", "", "Service the credential belongs to, e.g. stripe")
	cmd.Flags().StringVar(&keyType, "type", "", "Credential type, e.g. api_key or oauth_token")
	cmd.Flags().StringVar(&value, "value", "", "Credential value (- reads stdin; omit to be prompted)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Lifetime after which the key stops resolving, e.g. 720h")
	cmd.MarkFlagRequired("name")

	return cmd
}
