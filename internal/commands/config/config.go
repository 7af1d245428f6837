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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/config"
	"gopkg.in/yaml.v3"
)

// NewCommand creates the config command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage daemon configuration",
		Long: `View and manage baton daemon configuration.

The config file lives under $XDG_CONFIG_HOME/baton (or ~/.config/baton)
unless --config points elsewhere. BATON_* environment variables override
file values.

Examples:
  # Show the effective configuration
  baton config show

  # Create a config file interactively
  baton config init

  # Check a config file for problems
  baton config validate

  # Mint an API token from the configured signing secret
  baton config token --org default`,
	}

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newPathCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newTokenCmd())

	// Default to show if no subcommand specified
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return newShowCmd().RunE(cmd, args)
	}

	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the effective configuration after defaults and environment
overrides.

Sensitive values (signing secrets, salts) are masked. Use --json for
machine-readable output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfgPath, err := resolveConfigPath()
			if err != nil {
				return err
			}

			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if shared.GetJSON() {
					fmt.Fprintln(out, "{}")
					return nil
				}
				return fmt.Errorf("no configuration file found at %s\nRun 'baton config init' to create one", cfgPath)
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			masked := maskSensitive(cfg)

			if shared.GetJSON() {
				return writeConfigJSON(out, masked)
			}
			return writeConfigYAML(out, cfgPath, masked)
		},
	}

	return cmd
}

func newPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := resolveConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
			return nil
		},
	}

	return cmd
}

// resolveConfigPath honors --config before falling back to the XDG
// default.
func resolveConfigPath() (string, error) {
	if p := shared.GetConfigPath(); p != "" {
		return p, nil
	}
	p, err := config.ConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to determine config path: %w", err)
	}
	return p, nil
}

// maskSensitive copies the config with secrets replaced by their masked
// display form.
func maskSensitive(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Auth.JWTSecret = maskSecret(cfg.Auth.JWTSecret)
	masked.PublicServer.IPSalt = maskSecret(cfg.PublicServer.IPSalt)
	return &masked
}

// maskSecret masks a secret for display. Environment variable
// references pass through untouched so operators can see what is wired
// where.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if strings.HasPrefix(secret, "${") && strings.HasSuffix(secret, "}") {
		return secret
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// writeConfigJSON round-trips through YAML so JSON keys match the
// file's snake_case names.
func writeConfigJSON(out io.Writer, cfg *config.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func writeConfigYAML(out io.Writer, path string, cfg *config.Config) error {
	fmt.Fprintf(out, "Configuration: %s\n", path)
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
