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

// Package runner executes scenario files with a bounded worker pool and
// reports their results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/apiscenario/internal/history"
	"github.com/tombee/apiscenario/internal/log"
	"github.com/tombee/apiscenario/pkg/scenario"
)

// HistoryRecorder stores scenario results.
type HistoryRecorder interface {
	Record(ctx context.Context, r history.Record) error
}

// ScenarioObserver is told about every finished scenario.
type ScenarioObserver interface {
	ScenarioFinished(ctx context.Context, state scenario.State, elapsed time.Duration)
}

// Result is the outcome of one scenario file.
type Result struct {
	Scenario  *scenario.Scenario
	Context   *scenario.Context
	Status    history.Status
	Err       error
	Duration  time.Duration
	Narration string
}

// Passed reports whether the scenario ran and verified.
func (r Result) Passed() bool {
	return r.Status == history.StatusPassed
}

// Summary counts results by status.
type Summary struct {
	RunID    string
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// HasFailures reports whether any scenario failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Runner runs scenarios through one shared player.
type Runner struct {
	Player *scenario.Player

	// Parallel bounds concurrent scenarios. Values below 1 mean 1.
	Parallel int

	// History and Observer are optional.
	History  HistoryRecorder
	Observer ScenarioObserver

	// Sink additionally receives every scenario's narration as it runs.
	Sink scenario.Sink

	Logger *slog.Logger
}

// LoadAll reads every scenario file, stopping at the first invalid one.
func LoadAll(files []string) ([]*scenario.Scenario, error) {
	out := make([]*scenario.Scenario, 0, len(files))
	for _, f := range files {
		sc, err := scenario.LoadFile(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// Run executes scenarios and returns their results in input order. The
// error is non-nil only when ctx is cancelled before every scenario ran.
func (r *Runner) Run(ctx context.Context, scenarios []*scenario.Scenario) ([]Result, Summary, error) {
	runID := uuid.NewString()
	base := r.logger()
	logger := base.With(log.RunIDKey, runID)
	start := time.Now()

	parallel := r.Parallel
	if parallel < 1 {
		parallel = 1
	}

	results := make([]Result, len(scenarios))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for range parallel {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.runOne(ctx, runID, base, scenarios[i])
			}
		}()
	}

	var cancelled error
dispatch:
	for i := range scenarios {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	sum := Summary{RunID: runID, Duration: time.Since(start)}
	var out []Result
	for i, res := range results {
		if res.Scenario == nil {
			// never dispatched
			continue
		}
		out = append(out, results[i])
		sum.Total++
		switch res.Status {
		case history.StatusPassed:
			sum.Passed++
		case history.StatusSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	logger.Info("run finished",
		"total", sum.Total, "passed", sum.Passed, "failed", sum.Failed, "skipped", sum.Skipped,
		log.DurationKey, sum.Duration.Milliseconds())
	return out, sum, cancelled
}

func (r *Runner) runOne(ctx context.Context, runID string, logger *slog.Logger, sc *scenario.Scenario) (res Result) {
	rec := &scenario.Recorder{}
	start := time.Now()
	res.Scenario = sc
	logger = log.WithScenario(logger, runID, sc.Name)

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("scenario panicked: %v", p)
			res.Status = history.StatusFailed
		}
		res.Duration = time.Since(start)
		res.Narration = rec.String()
		r.finish(ctx, runID, logger, res)
	}()

	c, err := r.Player.Run(ctx, sc, scenario.Tee(rec, r.Sink))
	res.Context = c
	res.Err = err
	switch {
	case err == nil:
		res.Status = history.StatusPassed
	case scenario.IsSkipped(err):
		res.Status = history.StatusSkipped
	default:
		res.Status = history.StatusFailed
	}
	return res
}

func (r *Runner) finish(ctx context.Context, runID string, logger *slog.Logger, res Result) {
	msg := ""
	if res.Err != nil {
		msg = res.Err.Error()
	}
	switch res.Status {
	case history.StatusFailed:
		logger.Error("scenario failed", log.Error(res.Err), slog.Int64(log.DurationKey, res.Duration.Milliseconds()))
	default:
		logger.Info("scenario "+string(res.Status), log.DurationKey, res.Duration.Milliseconds())
	}

	if r.Observer != nil {
		state := scenario.Failed
		if res.Context != nil {
			state = res.Context.State
		}
		r.Observer.ScenarioFinished(ctx, state, res.Duration)
	}
	if r.History != nil {
		// Recording must survive a cancelled run.
		hctx := context.WithoutCancel(ctx)
		err := r.History.Record(hctx, history.Record{
			RunID:    runID,
			Scenario: res.Scenario.Name,
			SpecID:   res.Scenario.SpecID(),
			Status:   res.Status,
			Duration: res.Duration,
			Message:  msg,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("failed to record history", log.Error(err))
		}
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
