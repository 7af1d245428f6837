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

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file interactively",
		Long: `Walk through the daemon settings and write a config file.

Every answer has a working default; accepting them all yields a
localhost daemon with a SQLite store and no authentication.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfgPath, err := resolveConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", cfgPath)
			}
			if shared.IsNonInteractive() {
				return fmt.Errorf("config init needs a terminal; write %s by hand or set BATON_* variables", cfgPath)
			}

			cfg := config.Default()
			var (
				listen   = cfg.Server.Addr
				driver   = cfg.Store.Driver
				authOn   bool
				packsDir string
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Listen address").
						Description("The management API binds here. Keep it on loopback unless you terminate TLS in front.").
						Value(&listen),
					huh.NewSelect[string]().
						Title("Store driver").
						Options(
							huh.NewOption("sqlite (persistent)", "sqlite"),
							huh.NewOption("memory (lost on restart)", "memory"),
						).
						Value(&driver),
					huh.NewInput().
						Title("Workflow files directory").
						Description("Imported at startup. Leave empty to skip.").
						Value(&packsDir),
					huh.NewConfirm().
						Title("Require API authentication?").
						Description("Requests must carry a bearer token signed with an HS256 secret.").
						Value(&authOn),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			generated := false
			var secret string
			if authOn {
				secretForm := huh.NewForm(
					huh.NewGroup(
						huh.NewInput().
							Title("JWT signing secret").
							Description("Leave empty to generate a random one.").
							EchoMode(huh.EchoModePassword).
							Value(&secret),
					),
				)
				if err := secretForm.Run(); err != nil {
					return err
				}
				if secret == "" {
					secret, err = generateSecret()
					if err != nil {
						return err
					}
					generated = true
				}
			}

			cfg.Server.Addr = listen
			cfg.Store.Driver = driver
			cfg.Auth.Enabled = authOn
			cfg.Auth.JWTSecret = secret
			cfg.Packs.Dir = packsDir

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(cfgPath); err != nil {
				return err
			}

			fmt.Fprintf(out, "Wrote %s\n", cfgPath)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Listen address:  %s\n", cfg.Server.Addr)
			fmt.Fprintf(out, "  Store:           %s\n", storeDisplay(cfg))
			fmt.Fprintf(out, "  Authentication:  %s\n", authDisplay(authOn))
			if generated {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "A signing secret was generated and stored in the file.")
				fmt.Fprintln(out, "Mint tokens with 'baton config token'.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}

func storeDisplay(cfg *config.Config) string {
	if cfg.Store.Driver == "sqlite" {
		return fmt.Sprintf("sqlite (%s)", cfg.Store.Path)
	}
	return cfg.Store.Driver
}

func authDisplay(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// generateSecret returns a random 32-byte secret in hex.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
