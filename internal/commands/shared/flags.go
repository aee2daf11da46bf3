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

import (
	"github.com/spf13/pflag"
)

// globals holds the persistent flags of the root command.
var globals struct {
	verbose    bool
	quiet      bool
	json       bool
	configPath string
}

// build holds version information injected through ldflags.
var build = struct {
	version, commit, date string
}{"dev", "unknown", "unknown"}

// RegisterFlags binds the persistent flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&globals.verbose, "verbose", "v", false, "Enable verbose output")
	fs.BoolVarP(&globals.quiet, "quiet", "q", false, "Suppress non-error output")
	fs.BoolVar(&globals.json, "json", false, "Output in JSON format")
	fs.StringVar(&globals.configPath, "config", "", "Path to config file (default: ~/.config/sscgate/config.yaml)")
}

// SetVersion records build information.
func SetVersion(v, c, b string) {
	build.version, build.commit, build.date = v, c, b
}

// GetVersion returns version, commit and build date.
func GetVersion() (string, string, string) {
	return build.version, build.commit, build.date
}

// GetVerbose reports --verbose.
func GetVerbose() bool { return globals.verbose }

// GetQuiet reports --quiet.
func GetQuiet() bool { return globals.quiet }

// GetJSON reports --json.
func GetJSON() bool { return globals.json }

// GetConfigPath returns --config.
func GetConfigPath() string { return globals.configPath }

// SetFlagsForTest sets the config path and JSON flag.
func SetFlagsForTest(configPath string, json bool) {
	globals.configPath = configPath
	globals.json = json
}
