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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/apiscenario/internal/cli"
	"github.com/tombee/apiscenario/internal/commands/completion"
	"github.com/tombee/apiscenario/internal/commands/convert"
	"github.com/tombee/apiscenario/internal/commands/history"
	"github.com/tombee/apiscenario/internal/commands/run"
	"github.com/tombee/apiscenario/internal/commands/scaffold"
	versioncmd "github.com/tombee/apiscenario/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Scenario commands
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(scaffold.NewCommand())
	rootCmd.AddCommand(convert.NewCommand())

	// Result inspection
	rootCmd.AddCommand(history.NewCommand())

	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		cli.HandleExitError(err)
	}
}
