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

// Package convert implements the convert command, which turns a test
// data workbook into per-sheet JSON files.
package convert

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/apiscenario/internal/commands/shared"
	xlsx "github.com/tombee/apiscenario/internal/convert"
	"github.com/tombee/apiscenario/internal/log"
)

// NewCommand creates the convert command
func NewCommand() *cobra.Command {
	var opts xlsx.Options

	cmd := &cobra.Command{
		Use:   "convert <workbook.xlsx>",
		Short: "Convert a test data workbook to JSON files",
		Annotations: map[string]string{
			"group": "data",
		},
		Long: `Convert reads every worksheet of an Excel workbook and writes one JSON
array per sheet, one object per row keyed by the header row.

Files go to <out>/<jurisdiction>/<sheet>.json. The jurisdiction is the
first ID of the Jurisdiction sheet unless --jurisdiction is given.`,
		Example: `  apiscenario convert definitions.xlsx --out build/definitions
  apiscenario convert definitions.xlsx --jurisdiction AUTOTEST1 --header-row 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.OutDir, "out", ".", "Output directory")
	cmd.Flags().StringVar(&opts.Jurisdiction, "jurisdiction", "", "Jurisdiction folder name (default: read from the workbook)")
	cmd.Flags().IntVar(&opts.HeaderRow, "header-row", 0, "Zero-based row holding column names")

	return cmd
}

func run(stdout, stderr io.Writer, path string, opts xlsx.Options) error {
	if opts.HeaderRow < 0 {
		return shared.NewUsageError("invalid --header-row", fmt.Errorf("must be >= 0, got %d", opts.HeaderRow))
	}
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	opts.Logger = log.WithComponent(shared.NewLogger(cfg, stderr), "convert")

	res, err := xlsx.Convert(path, opts)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		return shared.EmitJSON(stdout, struct {
			shared.JSONResponse
			Jurisdiction string   `json:"jurisdiction"`
			Dir          string   `json:"dir"`
			Files        []string `json:"files"`
		}{shared.NewJSONResponse("convert", true), res.Jurisdiction, res.Dir, res.Files})
	}
	if shared.GetQuiet() {
		return nil
	}
	for _, f := range res.Files {
		fmt.Fprintln(stdout, shared.RenderOK(f))
	}
	fmt.Fprintf(stdout, "%d sheets written for %s\n", len(res.Files), shared.Bold.Render(res.Jurisdiction))
	return nil
}
