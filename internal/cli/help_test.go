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
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/tombee/apiscenario/internal/commands/shared"
)

func newHelpTree(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	shared.SetFlagsForTest(t, false, false, false, "")

	root := NewRootCommand()
	run := &cobra.Command{
		Use:     "run [paths...]",
		Short:   "Execute scenarios",
		Example: "  apiscenario run ./scenarios",
		RunE:    func(*cobra.Command, []string) error { return nil },
	}
	run.Flags().IntP("parallel", "p", 1, "Scenarios to run at once")
	run.Flags().String("base-url", "", "Override target.base_url")
	_ = run.MarkFlagRequired("base-url")
	root.AddCommand(run)

	hidden := &cobra.Command{Use: "internal", Hidden: true, Run: func(*cobra.Command, []string) {}}
	root.AddCommand(hidden)
	root.SetHelpCommand(NewHelpCommand(root))

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	return root, &buf
}

func TestHelpCommand_JSONListsCommands(t *testing.T) {
	root, buf := newHelpTree(t)
	root.SetArgs([]string{"help", "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var resp HelpResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if resp.Version != shared.JSONVersion || !resp.Success || resp.Command != nil {
		t.Errorf("unexpected envelope: %+v", resp.JSONResponse)
	}

	names := map[string]bool{}
	for _, c := range resp.Commands {
		names[c.Name] = true
	}
	if !names["run"] {
		t.Errorf("run missing from %v", names)
	}
	if names["internal"] {
		t.Error("hidden command should not be listed")
	}

	globals := map[string]bool{}
	for _, f := range resp.GlobalFlags {
		globals[f.Name] = true
	}
	for _, name := range []string{"verbose", "quiet", "json", "config"} {
		if !globals[name] {
			t.Errorf("global flag %s missing", name)
		}
	}
}

func TestHelpCommand_JSONSingleCommand(t *testing.T) {
	root, buf := newHelpTree(t)
	root.SetArgs([]string{"help", "run", "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var resp HelpResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if resp.Command == nil || resp.Command.Name != "run" {
		t.Fatalf("expected run metadata, got %+v", resp.Command)
	}
	if resp.JSONResponse.Command != "help run" {
		t.Errorf("command = %q", resp.JSONResponse.Command)
	}
	if resp.Command.Examples == "" {
		t.Error("examples should be populated")
	}

	flags := map[string]FlagInfo{}
	for _, f := range resp.Command.Flags {
		flags[f.Name] = f
	}
	if f := flags["parallel"]; f.Shorthand != "p" || f.Default != "1" {
		t.Errorf("parallel flag = %+v", f)
	}
	if !flags["base-url"].Required {
		t.Error("base-url should be reported as required")
	}
	if _, ok := flags["verbose"]; ok {
		t.Error("persistent flags belong in global_flags only")
	}
}

func TestHelpCommand_Human(t *testing.T) {
	root, buf := newHelpTree(t)
	root.SetArgs([]string{"help", "run"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Execute scenarios") {
		t.Errorf("missing short description:\n%s", buf.String())
	}
}

func TestHelpCommand_UnknownCommand(t *testing.T) {
	root, _ := newHelpTree(t)
	root.SetArgs([]string{"help", "nope"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}
