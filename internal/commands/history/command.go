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

// Package history implements the history command group over the local
// run history database.
package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/apiscenario/internal/commands/shared"
	"github.com/tombee/apiscenario/internal/config"
	store "github.com/tombee/apiscenario/internal/history"
	pkgerrors "github.com/tombee/apiscenario/pkg/errors"
)

// NewCommand creates the history command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "history",
		Annotations: map[string]string{
			"group": "management",
		},
		Short: "View recorded scenario results",
		Long: `Commands for browsing results recorded by 'apiscenario run'.

Results are recorded when history.path is configured or run is given --record.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newRunsCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	var f store.Filter
	var status string
	var failed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent scenario results",
		Example: `  # Most recent results
  apiscenario history list

  # Failures of one scenario
  apiscenario history list --scenario retrieve-case --failed

  # As JSON for scripting
  apiscenario history list --json | jq '.results[] | select(.status=="failed")'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if failed {
				status = string(store.StatusFailed)
			}
			switch store.Status(status) {
			case "", store.StatusPassed, store.StatusFailed, store.StatusSkipped:
				f.Status = store.Status(status)
			default:
				return shared.NewUsageError(fmt.Sprintf("unknown status %q", status), nil)
			}
			return withStore(cmd.Context(), func(s *store.Store) error {
				return list(cmd.Context(), cmd.OutOrStdout(), s, f)
			})
		},
	}

	cmd.Flags().StringVar(&f.Scenario, "scenario", "", "Filter by scenario name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (passed, failed, skipped)")
	cmd.Flags().BoolVar(&failed, "failed", false, "Show only failures (shorthand for --status failed)")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "Maximum number of results")
	return cmd
}

func newRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Summarize recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(s *store.Store) error {
				return runs(cmd.Context(), cmd.OutOrStdout(), s, limit)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of runs")
	return cmd
}

// withStore opens the configured history database, or the default one
// when none is configured.
func withStore(ctx context.Context, fn func(*store.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	path := cfg.History.Path
	if path == "" {
		if path, err = config.DefaultHistoryPath(); err != nil {
			return &pkgerrors.ConfigError{Key: "history.path", Reason: "cannot locate the config directory", Cause: err}
		}
	}
	if _, err := os.Stat(path); err != nil {
		return &pkgerrors.NotFoundError{Resource: "run history", ID: path}
	}

	s, err := store.Open(ctx, path)
	if err != nil {
		return &pkgerrors.ConfigError{Key: "history.path", Reason: "cannot open run history", Cause: err}
	}
	defer s.Close()
	return fn(s)
}

type jsonRecord struct {
	RunID      string    `json:"run_id"`
	Scenario   string    `json:"scenario"`
	SpecID     string    `json:"spec_id"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func list(ctx context.Context, w io.Writer, s *store.Store, f store.Filter) error {
	recs, err := s.Recent(ctx, f)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		out := make([]jsonRecord, 0, len(recs))
		for _, r := range recs {
			out = append(out, jsonRecord{
				RunID:      r.RunID,
				Scenario:   r.Scenario,
				SpecID:     r.SpecID,
				Status:     string(r.Status),
				DurationMS: r.Duration.Milliseconds(),
				Message:    r.Message,
				CreatedAt:  r.CreatedAt,
			})
		}
		return shared.EmitJSON(w, struct {
			shared.JSONResponse
			Results []jsonRecord `json:"results"`
		}{shared.NewJSONResponse("history list", true), out})
	}

	if len(recs) == 0 {
		fmt.Fprintln(w, "No results recorded")
		return nil
	}

	fmt.Fprintln(w, "RUN      STATUS   SCENARIO                       DURATION  RECORDED")
	fmt.Fprintln(w, "-------- -------- ------------------------------ --------- -------------------")
	for _, r := range recs {
		fmt.Fprintf(w, "%-8s %-8s %-30s %9s %s\n",
			shortID(r.RunID), r.Status, truncate(r.Scenario, 30),
			r.Duration.Round(time.Millisecond), r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runs(ctx context.Context, w io.Writer, s *store.Store, limit int) error {
	sums, err := s.Runs(ctx, limit)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		type jsonRun struct {
			RunID     string    `json:"run_id"`
			Passed    int       `json:"passed"`
			Failed    int       `json:"failed"`
			Skipped   int       `json:"skipped"`
			StartedAt time.Time `json:"started_at"`
		}
		out := make([]jsonRun, 0, len(sums))
		for _, r := range sums {
			out = append(out, jsonRun{r.RunID, r.Passed, r.Failed, r.Skipped, r.StartedAt})
		}
		return shared.EmitJSON(w, struct {
			shared.JSONResponse
			Runs []jsonRun `json:"runs"`
		}{shared.NewJSONResponse("history runs", true), out})
	}

	if len(sums) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	for _, r := range sums {
		line := fmt.Sprintf("%s  %d passed, %d failed, %d skipped  %s",
			r.RunID, r.Passed, r.Failed, r.Skipped,
			shared.Muted.Render(r.StartedAt.Local().Format("2006-01-02 15:04:05")))
		if r.Failed > 0 {
			fmt.Fprintln(w, shared.RenderError(line))
		} else {
			fmt.Fprintln(w, shared.RenderOK(line))
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
