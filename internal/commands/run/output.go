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

package run

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tombee/apiscenario/internal/commands/shared"
	"github.com/tombee/apiscenario/internal/history"
	"github.com/tombee/apiscenario/internal/runner"
	pkgerrors "github.com/tombee/apiscenario/pkg/errors"
)

// Output formats
const (
	FormatHuman = "human"
	FormatJUnit = "junit"
	FormatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case FormatHuman, FormatJUnit, FormatJSON:
		return nil
	}
	return shared.NewUsageError(fmt.Sprintf("unknown output format %q", format),
		fmt.Errorf("use %s, %s or %s", FormatHuman, FormatJUnit, FormatJSON))
}

func writeResults(w io.Writer, format string, results []runner.Result, summary runner.Summary, verbose bool) error {
	switch format {
	case FormatJUnit:
		return outputJUnit(w, results, summary)
	case FormatJSON:
		return outputJSON(w, results, summary)
	default:
		return outputHuman(w, results, summary, verbose)
	}
}

// outputHuman prints one line per scenario. Failed scenarios, and every
// scenario when verbose, are followed by their narration.
func outputHuman(w io.Writer, results []runner.Result, summary runner.Summary, verbose bool) error {
	for _, r := range results {
		line := fmt.Sprintf("%s %s", r.Scenario.Name, shared.Muted.Render("("+roundDuration(r.Duration).String()+")"))
		switch r.Status {
		case history.StatusPassed:
			fmt.Fprintln(w, shared.RenderOK(line))
		case history.StatusSkipped:
			fmt.Fprintln(w, shared.RenderSkip(line+" "+r.Err.Error()))
		default:
			fmt.Fprintln(w, shared.RenderError(line))
			fmt.Fprintln(w, indent(r.Err.Error(), "    "))
		}
		if r.Narration != "" && (verbose || r.Status == history.StatusFailed) {
			fmt.Fprintln(w, shared.Muted.Render(indent(r.Narration, "    | ")))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %d passed, %d failed, %d skipped of %d in %s %s\n",
		shared.Bold.Render("Scenarios:"),
		summary.Passed, summary.Failed, summary.Skipped, summary.Total,
		roundDuration(summary.Duration),
		shared.Muted.Render("(run "+summary.RunID+")"))
	return nil
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       string          `xml:"time,attr"`
	Properties []junitProperty `xml:"properties>property,omitempty"`
	TestCases  []junitTestCase `xml:"testcase"`
}

func outputJUnit(w io.Writer, results []runner.Result, summary runner.Summary) error {
	suite := junitTestSuite{
		Name:       "apiscenario",
		Tests:      summary.Total,
		Failures:   summary.Failed,
		Skipped:    summary.Skipped,
		Time:       seconds(summary.Duration),
		Properties: []junitProperty{{Name: "run_id", Value: summary.RunID}},
		TestCases:  make([]junitTestCase, len(results)),
	}

	for i, r := range results {
		tc := junitTestCase{
			Name:      r.Scenario.Name,
			Classname: r.Scenario.Source,
			Time:      seconds(r.Duration),
			SystemOut: r.Narration,
		}
		switch r.Status {
		case history.StatusSkipped:
			tc.Skipped = &junitSkipped{Message: r.Err.Error()}
		case history.StatusFailed:
			kind := pkgerrors.TypeOf(r.Err)
			if kind == "" {
				kind = "error"
			}
			tc.Failure = &junitFailure{
				Message: firstLine(r.Err.Error()),
				Type:    kind,
				Content: r.Err.Error(),
			}
		}
		suite.TestCases[i] = tc
	}

	out, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JUnit XML: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write JUnit XML: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("failed to write JUnit XML: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

type jsonResult struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	SpecID     string `json:"spec_id"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
	Narration  string `json:"narration,omitempty"`
}

type jsonSummary struct {
	Total      int   `json:"total"`
	Passed     int   `json:"passed"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	DurationMS int64 `json:"duration_ms"`
}

func outputJSON(w io.Writer, results []runner.Result, summary runner.Summary) error {
	type response struct {
		shared.JSONResponse
		RunID   string       `json:"run_id"`
		Summary jsonSummary  `json:"summary"`
		Results []jsonResult `json:"results"`
	}

	resp := response{
		JSONResponse: shared.NewJSONResponse("run", !summary.HasFailures()),
		RunID:        summary.RunID,
		Summary: jsonSummary{
			Total:      summary.Total,
			Passed:     summary.Passed,
			Failed:     summary.Failed,
			Skipped:    summary.Skipped,
			DurationMS: summary.Duration.Milliseconds(),
		},
		Results: make([]jsonResult, 0, len(results)),
	}
	for _, r := range results {
		jr := jsonResult{
			Name:       r.Scenario.Name,
			Source:     r.Scenario.Source,
			SpecID:     r.Scenario.SpecID(),
			Status:     string(r.Status),
			DurationMS: r.Duration.Milliseconds(),
			Narration:  r.Narration,
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
			jr.ErrorType = pkgerrors.TypeOf(r.Err)
		}
		resp.Results = append(resp.Results, jr)
	}
	return shared.EmitJSON(w, resp)
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(10 * time.Millisecond)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
