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
	"os"

	"golang.org/x/term"
)

// NonInteractiveEnv forces non-interactive mode when "true".
const NonInteractiveEnv = "APISCENARIO_NON_INTERACTIVE"

// IsNonInteractive reports whether prompts must be avoided: the
// APISCENARIO_NON_INTERACTIVE variable, a CI environment, or a stdin
// that is not a terminal.
func IsNonInteractive() bool {
	if os.Getenv(NonInteractiveEnv) == "true" {
		return true
	}
	if isCIEnvironment() {
		return true
	}
	return !isTerminal()
}

func isCIEnvironment() bool {
	for _, envVar := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "BUILDKITE"} {
		if v := os.Getenv(envVar); v == "true" || v == "1" {
			return true
		}
	}
	// set to a path, not a boolean
	return os.Getenv("JENKINS_HOME") != ""
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
