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

// Package convert turns definition spreadsheets into the JSON files test
// data and importers consume: one array of row objects per sheet, under a
// folder named after the workbook's jurisdiction.
package convert

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apierrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/tree"
)

// JurisdictionSheet and JurisdictionColumn locate the jurisdiction ID.
const (
	JurisdictionSheet  = "Jurisdiction"
	JurisdictionColumn = "ID"
)

// Options configure a conversion.
type Options struct {
	// OutDir receives the jurisdiction folder.
	OutDir string

	// Jurisdiction overrides the ID read from the Jurisdiction sheet.
	Jurisdiction string

	// HeaderRow is the zero-based row holding column names. Rows above it
	// are ignored.
	HeaderRow int

	Logger *slog.Logger
}

// Sheet is one converted worksheet.
type Sheet struct {
	Name string
	Rows []tree.Value
}

// Result describes what was written.
type Result struct {
	Jurisdiction string
	Dir          string
	Files        []string
}

// Convert reads the workbook at path and writes its sheets.
func Convert(path string, opts Options) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets, err := ReadWorkbook(f, opts.HeaderRow)
	if err != nil {
		return nil, err
	}
	return Write(sheets, opts)
}

// ReadWorkbook converts every sheet of f in workbook order.
func ReadWorkbook(f *excelize.File, headerRow int) ([]Sheet, error) {
	names := f.GetSheetList()
	out := make([]Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", name, err)
		}
		out = append(out, Sheet{Name: name, Rows: rowObjects(rows, headerRow)})
	}
	return out, nil
}

// rowObjects keys each data row by the header row. Columns without a
// header, empty cells and blank rows are dropped.
func rowObjects(rows [][]string, headerRow int) []tree.Value {
	if headerRow >= len(rows) {
		return []tree.Value{}
	}
	header := rows[headerRow]
	out := []tree.Value{}
	for _, row := range rows[headerRow+1:] {
		m := tree.NewMap()
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			key := strings.TrimSpace(header[i])
			if key == "" || cell == "" {
				continue
			}
			m.Set(key, tree.String(cell))
		}
		if m.Len() > 0 {
			out = append(out, tree.MapOf(m))
		}
	}
	return out
}

// Jurisdiction returns the ID of the first row of the Jurisdiction sheet.
func Jurisdiction(sheets []Sheet) (string, bool) {
	for _, s := range sheets {
		if s.Name != JurisdictionSheet || len(s.Rows) == 0 {
			continue
		}
		m, ok := s.Rows[0].AsMap()
		if !ok {
			return "", false
		}
		v, ok := m.Get(JurisdictionColumn)
		if !ok || v.Text() == "" {
			return "", false
		}
		return v.Text(), true
	}
	return "", false
}

// Write stores each sheet as <OutDir>/<jurisdiction>/<sheet>.json.
func Write(sheets []Sheet, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jurisdiction := opts.Jurisdiction
	if jurisdiction == "" {
		var ok bool
		if jurisdiction, ok = Jurisdiction(sheets); !ok {
			return nil, &apierrors.ValidationError{
				Field:      "jurisdiction",
				Message:    "workbook has no Jurisdiction sheet with an ID in its first row",
				Suggestion: "pass --jurisdiction to name the output folder",
			}
		}
	}

	dir := filepath.Join(opts.OutDir, fileName(jurisdiction))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output folder: %w", err)
	}

	res := &Result{Jurisdiction: jurisdiction, Dir: dir}
	for _, s := range sheets {
		path := filepath.Join(dir, fileName(s.Name)+".json")
		data := tree.Pretty(tree.Sequence(s.Rows...)) + "\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		logger.Debug("sheet converted", "sheet", s.Name, "rows", len(s.Rows), "path", path)
		res.Files = append(res.Files, path)
	}
	return res, nil
}

// fileName keeps sheet names usable as file names.
func fileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}
