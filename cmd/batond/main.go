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

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tombee/baton/internal/daemon"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config file")
		listenAddr  = flag.String("listen", "", "TCP address for the API listener")
		storeDriver = flag.String("store", "", "Storage driver (sqlite, memory)")
		storePath   = flag.String("store-path", "", "Path to the sqlite database file")
		packsDir    = flag.String("packs-dir", "", "Directory of workflow packs to import at startup")
		packsWatch  = flag.Bool("packs-watch", false, "Watch the packs directory and re-import on change")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("batond %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := daemon.Run(daemon.RunOptions{
		Version:     version,
		Commit:      commit,
		BuildDate:   buildDate,
		ConfigPath:  *configPath,
		ListenAddr:  *listenAddr,
		StoreDriver: *storeDriver,
		StorePath:   *storePath,
		PacksDir:    *packsDir,
		PacksWatch:  *packsWatch,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "batond: %v\n", err)
		os.Exit(1)
	}
}
