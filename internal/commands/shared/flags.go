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

package shared

// Values of the persistent flags every command shares. The root command
// binds them once at startup; RunE funcs read them through the Get
// accessors instead of threading them through every constructor.
var flags struct {
	verbose bool
	quiet   bool
	json    bool
	config  string
	server  string
}

// Build identity, stamped by main through SetVersion.
var build = struct {
	version string
	commit  string
	date    string
}{"dev", "unknown", "unknown"}

// RegisterFlagPointers returns the pointers the root command binds its
// persistent flags to.
func RegisterFlagPointers() (verbose, quiet, json *bool, config, server *string) {
	return &flags.verbose, &flags.quiet, &flags.json, &flags.config, &flags.server
}

// SetVersion records the build identity injected via ldflags.
func SetVersion(version, commit, date string) {
	build.version = version
	build.commit = commit
	build.date = date
}

// GetVersion returns the recorded version, commit, and build date.
func GetVersion() (string, string, string) {
	return build.version, build.commit, build.date
}

// GetVerbose reports whether --verbose was passed.
func GetVerbose() bool { return flags.verbose }

// GetQuiet reports whether --quiet was passed.
func GetQuiet() bool { return flags.quiet }

// GetJSON reports whether --json was passed.
func GetJSON() bool { return flags.json }

// GetConfigPath returns the --config path, empty when unset.
func GetConfigPath() string { return flags.config }

// GetServer returns the --server daemon address, empty when unset.
func GetServer() string { return flags.server }

// SetServerForTest points API commands at a test daemon. Tests need
// this because httptest servers bind ephemeral ports that cannot be
// configured up front.
func SetServerForTest(addr string) {
	flags.server = addr
}
