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

// Global flag values, set by the root command.
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to the global flag variables for
// the root command to bind.
func RegisterFlagPointers() (*bool, *bool, *bool, *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

func GetVerbose() bool { return verboseFlag }

func GetQuiet() bool { return quietFlag }

func GetJSON() bool { return jsonFlag }

// GetConfigPath returns the --config value; empty means the default file.
func GetConfigPath() string {
	return configFlag
}

// GetVersion returns version, commit and build date.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetFlagsForTest sets the global flags and restores them when the test ends.
func SetFlagsForTest(t interface{ Cleanup(func()) }, verbose, quiet, json bool, config string) {
	prev := [4]any{verboseFlag, quietFlag, jsonFlag, configFlag}
	verboseFlag, quietFlag, jsonFlag, configFlag = verbose, quiet, json, config
	t.Cleanup(func() {
		verboseFlag = prev[0].(bool)
		quietFlag = prev[1].(bool)
		jsonFlag = prev[2].(bool)
		configFlag = prev[3].(string)
	})
}
