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

package serve

import (
	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/daemon"
)

// Serve command flags
var (
	serveListen     string
	serveStore      string
	serveStorePath  string
	servePacksDir   string
	servePacksWatch bool
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Baton daemon in the foreground",
		Long: `Run the Baton daemon (batond) in the foreground.

The daemon owns the store, executes runs, fires schedule triggers, and
serves the HTTP API the other commands talk to. It keeps running until
interrupted.`,
		Example: `  # Start with defaults (127.0.0.1:9820, sqlite store)
  baton serve

  # Bind a different address
  baton serve --listen 0.0.0.0:9820

  # Keep workflows in sync with a directory of YAML files
  baton serve --packs ./workflows --watch`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveListen, "listen", "", "API listen address (host:port)")
	cmd.Flags().StringVar(&serveStore, "store", "", "Store driver (sqlite or memory)")
	cmd.Flags().StringVar(&serveStorePath, "store-path", "", "SQLite database path")
	cmd.Flags().StringVar(&servePacksDir, "packs", "", "Directory of workflow YAML files to import at startup")
	cmd.Flags().BoolVar(&servePacksWatch, "watch", false, "Re-import workflow files when they change (requires --packs)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	v, c, b := shared.GetVersion()

	return daemon.Run(daemon.RunOptions{
		Version:     v,
		Commit:      c,
		BuildDate:   b,
		ConfigPath:  shared.GetConfigPath(),
		ListenAddr:  serveListen,
		StoreDriver: serveStore,
		StorePath:   serveStorePath,
		PacksDir:    servePacksDir,
		PacksWatch:  servePacksWatch,
	})
}
