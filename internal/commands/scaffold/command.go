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

// Package scaffold implements the new command, which writes a starter
// scenario file and its test data.
package scaffold

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tombee/apiscenario/internal/commands/shared"
	"github.com/tombee/apiscenario/internal/config"
	"github.com/tombee/apiscenario/internal/templates"
	pkgerrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/request"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Options are the values the new command needs.
type Options struct {
	Name         string
	Tag          string
	Step         string
	Toggle       string
	Outcome      string
	Product      string
	Operation    string
	Method       string
	URI          string
	ResponseCode int
	BaseURL      string

	ScenarioDir string
	DataDir     string
	Force       bool
}

// NewCommand creates the new command
func NewCommand() *cobra.Command {
	var opts Options
	var noPrompt bool

	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a starter scenario and its test data",
		Annotations: map[string]string{
			"group": "data",
		},
		Long: `New writes <scenario-dir>/<name>.scenario.yaml and the test data it runs,
<data-dir>/<tag>.td.yaml. An apiscenario.yaml is written too when the
current directory has none.

Missing values are asked for interactively unless the session is
non-interactive (CI, APISCENARIO_NON_INTERACTIVE=true, or no terminal).`,
		Example: `  apiscenario new retrieve-case --tag S-101 --method GET --uri /cases/{cid}
  apiscenario new`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Name = args[0]
			}
			if !noPrompt && !shared.IsNonInteractive() {
				if err := prompt(&opts); err != nil {
					return err
				}
			}
			files, err := Write(opts)
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), files)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Tag, "tag", "", "Scenario tag, also the test data identifier (default: the name)")
	f.StringVar(&opts.Step, "step", "to call the operation", "Step text the test data confirms")
	f.StringVar(&opts.Toggle, "toggle", "", "Feature toggle gating the scenario")
	f.StringVar(&opts.Outcome, "outcome", "positive", "Expected response class: positive, negative or empty")
	f.StringVar(&opts.Product, "product", "Example Service", "Product the operation belongs to")
	f.StringVar(&opts.Operation, "operation", "", "Operation name (default: the name)")
	f.StringVar(&opts.Method, "method", "GET", "HTTP method")
	f.StringVar(&opts.URI, "uri", "/", "Request URI, relative to the base URL")
	f.IntVar(&opts.ResponseCode, "response-code", 200, "Expected response code")
	f.StringVar(&opts.BaseURL, "base-url", "http://localhost:8080", "Base URL written to a new config file")
	f.StringVar(&opts.ScenarioDir, "scenario-dir", "scenarios", "Directory for the scenario file")
	f.StringVar(&opts.DataDir, "data-dir", "testdata", "Directory for the test data file")
	f.BoolVar(&opts.Force, "force", false, "Overwrite existing files")
	f.BoolVar(&noPrompt, "no-prompt", false, "Never ask for missing values")

	return cmd
}

func prompt(opts *Options) error {
	methods := make([]huh.Option[string], 0, len(request.Methods))
	for _, m := range request.Methods {
		methods = append(methods, huh.NewOption(m, m))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Scenario name").
				Description("Used for the file name").
				Validate(validateName).
				Value(&opts.Name),
			huh.NewInput().
				Title("Request URI").
				Placeholder("/cases/{cid}").
				Value(&opts.URI),
			huh.NewSelect[string]().
				Title("Method").
				Options(methods...).
				Value(&opts.Method),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return &shared.ExitError{Code: shared.ExitInterrupted, Message: "cancelled"}
		}
		return fmt.Errorf("form cancelled: %w", err)
	}
	return nil
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("use letters, digits, '.', '_' and '-'")
	}
	return nil
}

// Write renders and writes the starter files, returning their paths. It
// refuses to overwrite unless opts.Force is set.
func Write(opts Options) ([]string, error) {
	if err := validateName(opts.Name); err != nil {
		return nil, &pkgerrors.ValidationError{Field: "name", Message: fmt.Sprintf("invalid scenario name %q: %v", opts.Name, err),
			Suggestion: "pass a name such as retrieve-case"}
	}
	method, err := request.ValidateMethod(opts.Method)
	if err != nil {
		return nil, &pkgerrors.ValidationError{Field: "method", Message: err.Error(),
			Suggestion: "use one of " + strings.Join(request.Methods, ", ")}
	}
	if opts.Tag == "" {
		opts.Tag = opts.Name
	}
	if opts.Operation == "" {
		opts.Operation = opts.Name
	}
	vars := templates.Vars{
		Name:         opts.Name,
		Tag:          opts.Tag,
		Step:         opts.Step,
		Toggle:       opts.Toggle,
		Outcome:      opts.Outcome,
		Product:      opts.Product,
		Operation:    opts.Operation,
		Method:       method,
		URI:          opts.URI,
		ResponseCode: opts.ResponseCode,
		BaseURL:      opts.BaseURL,
	}

	targets := []struct {
		template string
		path     string
		optional bool
	}{
		{templates.Scenario, filepath.Join(opts.ScenarioDir, opts.Name+".scenario.yaml"), false},
		{templates.TestData, filepath.Join(opts.DataDir, opts.Tag+".td.yaml"), false},
		{templates.Config, config.DefaultFileName, true},
	}

	var written []string
	for _, t := range targets {
		if _, err := os.Stat(t.path); err == nil {
			if t.optional {
				continue
			}
			if !opts.Force {
				return written, &pkgerrors.ValidationError{Field: "name",
					Message:    fmt.Sprintf("%s already exists", t.path),
					Suggestion: "choose another name or pass --force"}
			}
		}
		content, err := templates.Render(t.template, vars)
		if err != nil {
			return written, err
		}
		if dir := filepath.Dir(t.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return written, fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(t.path, content, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", t.path, err)
		}
		written = append(written, t.path)
	}
	return written, nil
}

func report(w io.Writer, files []string) error {
	if shared.GetJSON() {
		return shared.EmitJSON(w, struct {
			shared.JSONResponse
			Files []string `json:"files"`
		}{shared.NewJSONResponse("new", true), files})
	}
	if shared.GetQuiet() {
		return nil
	}
	for _, f := range files {
		fmt.Fprintln(w, shared.RenderOK("created "+f))
	}
	fmt.Fprintln(w, shared.Muted.Render("Edit the expected response, then run: apiscenario run"))
	return nil
}
