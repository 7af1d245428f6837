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

/*
Package cli assembles Baton's root command: the command tree, the
persistent flags every subcommand inherits, and the mapping from
returned errors to process exit codes. The commands themselves live in
the internal/commands subpackages and are attached by main.

# Command Tree

	baton
	├── run           Run a workflow file locally
	├── serve         Run the daemon in the foreground
	├── workflow      Manage workflows on the daemon
	├── runs          Manage workflow runs
	├── keys          Manage workflow credentials
	├── pack          Import workflow packs
	├── config        Configuration management
	├── mcp-server    Expose workflows over MCP
	├── version       Show version
	└── help          Show help

# Global Flags

All commands inherit:

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file
	--server         Daemon address for API commands

# Exit Codes

Commands return errors instead of exiting; main hands them to
HandleExitError, which picks the code:

  - 0: Success
  - 1: Run execution failed
  - 2: Invalid workflow file
  - 3: Daemon unreachable
  - 70: Run paused without a terminal to answer

The expected main wiring:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}
*/
package cli
