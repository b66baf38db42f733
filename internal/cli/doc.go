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
Package cli provides the root command of the apiscenario CLI.

This package assembles the Cobra command tree and handles global concerns like
version information, persistent flags and exit codes. Individual commands
live in the internal/commands subpackages.

# Command Tree

	apiscenario
	├── run [paths...]       Execute scenarios (-p, -o human|junit|json, --watch)
	├── new [name]           Scaffold a scenario and its test data
	├── convert <workbook>   Turn a workbook into JSON test data
	├── history
	│   ├── list             Show recorded scenario results
	│   └── runs             Summarize recent runs
	├── version              Show version information
	└── help [command]       Show help, --json for machine-readable output

# Global Flags

	--verbose, -v   Enable verbose output
	--quiet, -q     Suppress non-error output
	--json          Output in JSON format
	--config        Path to config file

# Exit Codes

	0    all scenarios passed or were skipped
	1    at least one scenario failed
	2    usage or configuration error
	130  interrupted
*/
package cli
