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

package version

import (
	"context"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/commands/shared"
)

// BuildInfo is this binary's build metadata.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// report pairs the CLI build with the daemon build when one answered.
type report struct {
	Client BuildInfo           `json:"client"`
	Server *client.VersionInfo `json:"server,omitempty"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	var clientOnly bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version, commit hash, and build date for Baton.

When a daemon is reachable its build is reported alongside the CLI's,
so version skew between the two is visible at a glance. Use --client
to skip the probe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, clientOnly)
		},
	}

	cmd.Flags().BoolVar(&clientOnly, "client", false, "Show only the CLI build, without probing the daemon")

	return cmd
}

func runVersion(cmd *cobra.Command, clientOnly bool) error {
	v, c, b := shared.GetVersion()

	rep := report{
		Client: BuildInfo{
			Version:   v,
			Commit:    c,
			BuildDate: b,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		},
	}
	if !clientOnly {
		rep.Server = probeDaemon(cmd.Context())
	}

	if shared.GetJSON() {
		return shared.WriteJSON(cmd.OutOrStdout(), rep)
	}

	cmd.Printf("baton version %s\n", rep.Client.Version)
	cmd.Printf("  commit:     %s\n", rep.Client.Commit)
	cmd.Printf("  build date: %s\n", rep.Client.BuildDate)
	cmd.Printf("  go version: %s\n", rep.Client.GoVersion)
	cmd.Printf("  platform:   %s/%s\n", rep.Client.OS, rep.Client.Arch)

	if rep.Server != nil {
		cmd.Printf("\ndaemon version %s\n", rep.Server.Version)
		cmd.Printf("  commit:     %s\n", rep.Server.Commit)
		cmd.Printf("  build date: %s\n", rep.Server.BuildDate)
	}

	return nil
}

// probeDaemon asks the daemon for its build. The version report is
// informational, so an unreachable daemon just leaves the section out.
func probeDaemon(ctx context.Context) *client.VersionInfo {
	api, err := shared.NewAPIClient()
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	info, err := api.Version(ctx)
	if err != nil {
		return nil
	}
	return info
}
