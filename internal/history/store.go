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

// Package history records scenario results in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the final state of a recorded scenario.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Record is one scenario result.
type Record struct {
	RunID     string
	Scenario  string
	SpecID    string
	Status    Status
	Duration  time.Duration
	Message   string
	CreatedAt time.Time
}

// RunSummary aggregates the records of one run.
type RunSummary struct {
	RunID     string
	Passed    int
	Failed    int
	Skipped   int
	StartedAt time.Time
}

// Filter narrows Recent.
type Filter struct {
	// Scenario matches the scenario name exactly when set.
	Scenario string
	// Status matches when set.
	Status Status
	// Limit caps the result. Default: 20
	Limit int
}

// Store persists records.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// WAL lets the history command read while a run is writing.
	connStr := path
	if path != ":memory:" {
		connStr += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers from concurrent workers.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenario_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		scenario TEXT NOT NULL,
		spec_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON scenario_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_scenario ON scenario_results(scenario, created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record stores r. A zero CreatedAt is set to now.
func (s *Store) Record(ctx context.Context, r Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO scenario_results (run_id, scenario, spec_id, status, duration_ms, message, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Scenario, r.SpecID, string(r.Status), r.Duration.Milliseconds(), r.Message, r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// Recent returns matching records, newest first.
func (s *Store) Recent(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	query := `
	SELECT run_id, scenario, spec_id, status, duration_ms, message, created_at
	FROM scenario_results
	WHERE (? = '' OR scenario = ?) AND (? = '' OR status = ?)
	ORDER BY created_at DESC, id DESC
	LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, f.Scenario, f.Scenario, string(f.Status), string(f.Status), f.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var status string
		var durationMS, createdMS int64
		if err := rows.Scan(&r.RunID, &r.Scenario, &r.SpecID, &status, &durationMS, &r.Message, &createdMS); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Status = Status(status)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdMS)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs summarizes the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT run_id,
	       SUM(CASE WHEN status = 'passed' THEN 1 ELSE 0 END),
	       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
	       SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END),
	       MIN(created_at)
	FROM scenario_results
	GROUP BY run_id
	ORDER BY MIN(created_at) DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var startedMS int64
		if err := rows.Scan(&r.RunID, &r.Passed, &r.Failed, &r.Skipped, &startedMS); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMS)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
