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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/apiscenario/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root command with global flags. Subcommands
// are attached by main.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apiscenario",
		Short: "apiscenario - declarative end-to-end API tests",
		Long: `apiscenario runs end-to-end API scenarios described as data. Each
scenario names the test data of its call and of any calls it depends on;
responses of earlier calls can be referenced from later requests and
expectations.

Run 'apiscenario new' to write a starter scenario.
Run 'apiscenario run' to execute every scenario below the current directory.`,
		SilenceUsage:  true,
		SilenceErrors: true, // HandleExitError prints errors with their exit code
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ./apiscenario.yaml)")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
