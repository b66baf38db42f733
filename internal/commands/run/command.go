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

// Package run implements the run command, which discovers scenario files
// and executes them against the configured target.
package run

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/apiscenario/internal/commands/shared"
	"github.com/tombee/apiscenario/internal/config"
	"github.com/tombee/apiscenario/internal/featureflags"
	"github.com/tombee/apiscenario/internal/history"
	"github.com/tombee/apiscenario/internal/log"
	"github.com/tombee/apiscenario/internal/runner"
	"github.com/tombee/apiscenario/internal/tracing"
	pkgerrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/scenario"
)

// Options holds the run command flags.
type Options struct {
	Paths        []string
	Parallel     int
	Format       string
	OutputFile   string
	Watch        bool
	MetricsFile  string
	TraceFile    string
	HeaderPolicy string
	BaseURL      string
	DataDirs     []string
	Flags        []string
	Record       bool
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "run [path...]",
		Short: "Run API scenarios",
		Annotations: map[string]string{
			"group": "testing",
		},
		Long: `Run discovers scenario files (*.scenario.yaml) and executes each one
against the target API: prerequisite calls first, then the scenario's own
request, then verification of the response against the test data.

Output Formats:
  --format human   Narrated results (default)
  --format junit   JUnit XML for CI
  --format json    Machine-readable results

Exit Codes:
  0  All scenarios passed or were skipped
  1  One or more scenarios failed
  2  Configuration, flag or scenario file error`,
		Example: `  # Run every scenario below the current directory
  apiscenario run

  # Run one directory against a local service, four at a time
  apiscenario run ./scenarios --base-url http://localhost:4452 --parallel 4

  # Fail on header mismatches and write JUnit for CI
  apiscenario run --header-policy FAIL_TEST --format junit --output-file results.xml

  # Force a feature toggle on and re-run on every change
  apiscenario run --flag ccd.get-case=true --watch`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Paths = args
			if len(opts.Paths) == 0 {
				opts.Paths = []string{"."}
			}
			if shared.GetJSON() {
				opts.Format = FormatJSON
			}
			return Run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.Parallel, "parallel", "p", 1, "Number of scenarios to run at once")
	f.StringVarP(&opts.Format, "format", "o", FormatHuman, "Output format: human, junit, json")
	f.StringVar(&opts.OutputFile, "output-file", "", "Write results to a file instead of stdout")
	f.BoolVarP(&opts.Watch, "watch", "w", false, "Re-run when scenario or test data files change")
	f.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	f.StringVar(&opts.TraceFile, "trace-file", "", "Write spans as JSON lines to this file")
	f.StringVar(&opts.HeaderPolicy, "header-policy", "", "Header mismatch policy: JUST_WARN, FAIL_TEST, IGNORE")
	f.StringVar(&opts.BaseURL, "base-url", "", "Base URL of the API under test")
	f.StringSliceVar(&opts.DataDirs, "data-dir", nil, "Test data directory (repeatable)")
	f.StringArrayVar(&opts.Flags, "flag", nil, "Set a feature toggle, as name=true|false (repeatable)")
	f.BoolVar(&opts.Record, "record", false, "Record results in the run history even without history.path")

	return cmd
}

// Run executes the command. It is separate from the cobra wiring so
// tests can drive it directly.
func Run(ctx context.Context, stdout, stderr io.Writer, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateFormat(opts.Format); err != nil {
		return err
	}
	if opts.Parallel < 1 {
		return shared.NewUsageError("invalid --parallel", fmt.Errorf("must be at least 1, got %d", opts.Parallel))
	}
	toggles, err := parseToggles(opts.Flags)
	if err != nil {
		return err
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return &pkgerrors.ConfigError{Key: "validation", Reason: "invalid configuration", Cause: err}
	}
	logger := shared.NewLogger(cfg, stderr)

	v, _, _ := shared.GetVersion()
	provider, err := tracing.New(ctx, tracing.Config{ServiceVersion: v, TraceFile: opts.TraceFile})
	if err != nil {
		return shared.NewUsageError("cannot set up tracing", err)
	}
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing shutdown failed", log.Error(err))
		}
	}()

	store, err := openHistory(ctx, cfg, opts.Record)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	s := &session{
		cfg:      cfg,
		opts:     opts,
		toggles:  toggles,
		logger:   logger,
		provider: provider,
		store:    store,
		stdout:   stdout,
	}
	if opts.Watch {
		return s.watch(ctx)
	}
	return s.once(ctx)
}

// session carries everything one invocation shares across runs.
type session struct {
	cfg      *config.Config
	opts     Options
	toggles  map[string]bool
	logger   *slog.Logger
	provider *tracing.Provider
	store    *history.Store
	stdout   io.Writer
}

func (s *session) once(ctx context.Context) error {
	files, err := scenario.Discover(s.opts.Paths...)
	if err != nil {
		return shared.NewUsageError("cannot find scenarios", err)
	}
	if len(files) == 0 {
		return shared.NewUsageError(fmt.Sprintf("no scenario files found under %s", strings.Join(s.opts.Paths, ", ")), nil)
	}
	scenarios, err := runner.LoadAll(files)
	if err != nil {
		return err
	}

	flags := featureflags.New(s.cfg.Flags)
	for name, on := range s.toggles {
		flags.Set(name, on)
	}
	metrics := s.provider.Metrics()
	player, err := runner.NewPlayer(ctx, s.cfg, s.logger, runner.Options{
		Flags:    flags,
		Tracer:   s.provider.Tracer("github.com/tombee/apiscenario"),
		Observer: metrics,
	})
	if err != nil {
		return err
	}

	r := &runner.Runner{
		Player:   player,
		Parallel: s.opts.Parallel,
		Observer: metrics,
		Logger:   s.logger,
	}
	if s.store != nil {
		r.History = s.store
	}

	results, summary, runErr := r.Run(ctx, scenarios)

	if err := s.report(results, summary); err != nil {
		return err
	}
	if s.opts.MetricsFile != "" {
		if err := s.provider.WriteMetrics(s.opts.MetricsFile); err != nil {
			s.logger.Warn("cannot write metrics file", slog.String("path", s.opts.MetricsFile), log.Error(err))
		}
	}

	if runErr != nil {
		return &shared.ExitError{Code: shared.ExitInterrupted, Message: "run interrupted", Cause: runErr}
	}
	if summary.HasFailures() {
		return shared.NewScenarioFailedError(fmt.Sprintf("%d of %d scenarios failed", summary.Failed, summary.Total))
	}
	return nil
}

func (s *session) report(results []runner.Result, summary runner.Summary) error {
	w := s.stdout
	if s.opts.OutputFile != "" {
		f, err := os.Create(s.opts.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeResults(w, s.opts.Format, results, summary, shared.GetVerbose())
}

func applyOverrides(cfg *config.Config, opts Options) {
	if opts.BaseURL != "" {
		cfg.Target.BaseURL = opts.BaseURL
	}
	if opts.HeaderPolicy != "" {
		cfg.Target.HeaderPolicy = strings.ToUpper(opts.HeaderPolicy)
	}
	if len(opts.DataDirs) > 0 {
		cfg.Data.Dirs = opts.DataDirs
	}
}

func parseToggles(values []string) (map[string]bool, error) {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		name, raw, found := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, shared.NewUsageError(fmt.Sprintf("invalid --flag %q", v), nil)
		}
		if !found {
			out[name] = true
			continue
		}
		on, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, shared.NewUsageError(fmt.Sprintf("invalid --flag %q", v), err)
		}
		out[name] = on
	}
	return out, nil
}

func openHistory(ctx context.Context, cfg *config.Config, record bool) (*history.Store, error) {
	path := cfg.History.Path
	if path == "" && record {
		p, err := config.DefaultHistoryPath()
		if err != nil {
			return nil, &pkgerrors.ConfigError{Key: "history.path", Reason: "cannot locate the config directory", Cause: err}
		}
		path = p
	}
	if path == "" {
		return nil, nil
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		return nil, &pkgerrors.ConfigError{Key: "history.path", Reason: "cannot open run history", Cause: err}
	}
	return store, nil
}
