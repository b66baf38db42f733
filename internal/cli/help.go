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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/apiscenario/internal/commands/shared"
)

// CommandInfo describes one command in machine-readable help.
type CommandInfo struct {
	Name        string     `json:"name"`
	Short       string     `json:"short"`
	Long        string     `json:"long,omitempty"`
	Usage       string     `json:"usage"`
	Examples    string     `json:"examples,omitempty"`
	Aliases     []string   `json:"aliases,omitempty"`
	Flags       []FlagInfo `json:"flags,omitempty"`
	Subcommands []string   `json:"subcommands,omitempty"`
}

// FlagInfo describes one flag.
type FlagInfo struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required"`
}

// HelpResponse is the --json output of the help command. Commands is set
// when no command was named, Command otherwise.
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandInfo `json:"commands,omitempty"`
	Command     *CommandInfo  `json:"command,omitempty"`
	GlobalFlags []FlagInfo    `json:"global_flags,omitempty"`
}

// NewHelpCommand creates a help command for root that honours --json.
func NewHelpCommand(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Show help for apiscenario or one of its commands.

With --json the command tree is printed as a JSON document, including
every flag and its default.`,
		Example: `  apiscenario help
  apiscenario help run
  apiscenario help run --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := root
			if len(args) > 0 {
				found, _, err := root.Find(args)
				if err != nil || found == root {
					return fmt.Errorf("unknown command %q", args[0])
				}
				target = found
			}

			if !shared.GetJSON() {
				return target.Help()
			}

			resp := HelpResponse{GlobalFlags: describeFlags(root.PersistentFlags())}
			if target == root {
				resp.JSONResponse = shared.NewJSONResponse("help", true)
				resp.Commands = []CommandInfo{}
				for _, c := range root.Commands() {
					if !c.Hidden {
						resp.Commands = append(resp.Commands, describe(c))
					}
				}
			} else {
				info := describe(target)
				resp.JSONResponse = shared.NewJSONResponse("help "+target.Name(), true)
				resp.Command = &info
			}
			return shared.EmitJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func describe(cmd *cobra.Command) CommandInfo {
	info := CommandInfo{
		Name:     cmd.Name(),
		Short:    cmd.Short,
		Long:     cmd.Long,
		Usage:    cmd.UseLine(),
		Examples: cmd.Example,
		Aliases:  cmd.Aliases,
		Flags:    describeFlags(cmd.LocalNonPersistentFlags()),
	}
	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			info.Subcommands = append(info.Subcommands, sub.Name())
		}
	}
	return info
}

func describeFlags(fs *pflag.FlagSet) []FlagInfo {
	var flags []FlagInfo
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		required := false
		if ann := f.Annotations[cobra.BashCompOneRequiredFlag]; len(ann) > 0 && ann[0] == "true" {
			required = true
		}
		flags = append(flags, FlagInfo{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required,
		})
	})
	return flags
}
