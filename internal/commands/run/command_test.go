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
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiscenario/internal/commands/shared"
	"github.com/tombee/apiscenario/internal/history"
)

const statusSpec = `
specs: [to check status]
productName: Status Service
operationName: Status
method: GET
uri: /status
users:
  invokingUser:
    username: "${SVC_USER}"
    password: "${SVC_PASS}"
expectedResponse:
  responseCode: 200
  body:
    status: UP
`

const wrongStatusSpec = `
specs: [to check status]
productName: Status Service
operationName: Status
method: GET
uri: /status
users:
  invokingUser:
    username: "${SVC_USER}"
    password: "${SVC_PASS}"
expectedResponse:
  responseCode: 200
  body:
    status: DOWN
`

type project struct {
	dir       string
	scenarios string
	history   string
}

// newProject lays out a config file, test data and a scenarios
// directory pointing at a fake status service.
func newProject(t *testing.T, failing bool) *project {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"UP"}`))
	}))
	t.Cleanup(srv.Close)

	for _, key := range []string{"TEST_URL", "APISCENARIO_BASE_URL", "APISCENARIO_HEADER_POLICY",
		"APISCENARIO_DATA_DIRS", "APISCENARIO_HISTORY_PATH", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}
	t.Setenv("SVC_USER", "monitor@example.com")
	t.Setenv("SVC_PASS", "s3cret-pass")

	dir := t.TempDir()
	p := &project{
		dir:       dir,
		scenarios: filepath.Join(dir, "scenarios"),
		history:   filepath.Join(dir, "history.db"),
	}
	mkdir(t, filepath.Join(dir, "testdata"))
	mkdir(t, p.scenarios)

	write(t, filepath.Join(dir, "testdata", "Status.td.yaml"), statusSpec)
	write(t, filepath.Join(dir, "testdata", "WrongStatus.td.yaml"), wrongStatusSpec)
	write(t, filepath.Join(p.scenarios, "status.scenario.yaml"), "tag: Status\noutcome: positive\n")
	write(t, filepath.Join(p.scenarios, "gated.scenario.yaml"), "tag: Status\ntags: [FeatureToggle(status.v2)]\n")
	if failing {
		write(t, filepath.Join(p.scenarios, "wrong.scenario.yaml"), "tag: WrongStatus\n")
	}

	cfgPath := filepath.Join(dir, "apiscenario.yaml")
	write(t, cfgPath, fmt.Sprintf(`target:
  base_url: %s
data:
  dirs: [testdata]
  temp_dir: %s
history:
  path: %s
log:
  level: error
`, srv.URL, t.TempDir(), p.history))

	shared.SetFlagsForTest(t, false, false, false, cfgPath)
	return p
}

func (p *project) options() Options {
	return Options{Paths: []string{p.scenarios}, Parallel: 2, Format: FormatHuman}
}

func mkdir(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRun_AllPass(t *testing.T) {
	p := newProject(t, false)
	var stdout, stderr bytes.Buffer

	err := Run(context.Background(), &stdout, &stderr, p.options())
	require.NoError(t, err, "stdout: %s", stdout.String())

	out := stdout.String()
	assert.Contains(t, out, "status")
	assert.Contains(t, out, "feature toggle status.v2 is off")
	assert.Contains(t, out, "1 passed, 0 failed, 1 skipped of 2")

	store, err := history.Open(context.Background(), p.history)
	require.NoError(t, err)
	defer store.Close()
	recs, err := store.Recent(context.Background(), history.Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRun_FailureExitCode(t *testing.T) {
	p := newProject(t, true)
	var stdout, stderr bytes.Buffer

	err := Run(context.Background(), &stdout, &stderr, p.options())
	require.Error(t, err)
	assert.Equal(t, shared.ExitScenarioFailed, shared.ExitCode(err))
	assert.Contains(t, err.Error(), "1 of 3 scenarios failed")
	// failed scenarios print their narration
	assert.Contains(t, stdout.String(), "| Called: GET")
}

func TestRun_JUnit(t *testing.T) {
	p := newProject(t, true)
	opts := p.options()
	opts.Format = FormatJUnit
	opts.OutputFile = filepath.Join(p.dir, "results.xml")

	err := Run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, opts)
	require.Error(t, err)

	data, err := os.ReadFile(opts.OutputFile)
	require.NoError(t, err)
	var suite junitTestSuite
	require.NoError(t, xml.Unmarshal(data, &suite))
	assert.Equal(t, 3, suite.Tests)
	assert.Equal(t, 1, suite.Failures)
	assert.Equal(t, 1, suite.Skipped)

	var failed *junitTestCase
	for i := range suite.TestCases {
		if suite.TestCases[i].Failure != nil {
			failed = &suite.TestCases[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "wrong", failed.Name)
	assert.Equal(t, "verification", failed.Failure.Type)
}

func TestRun_JSON(t *testing.T) {
	p := newProject(t, false)
	opts := p.options()
	opts.Format = FormatJSON
	var stdout bytes.Buffer

	require.NoError(t, Run(context.Background(), &stdout, &bytes.Buffer{}, opts))

	var got struct {
		Version string `json:"@version"`
		Success bool   `json:"success"`
		RunID   string `json:"run_id"`
		Summary struct {
			Total   int `json:"total"`
			Skipped int `json:"skipped"`
		} `json:"summary"`
		Results []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, shared.JSONVersion, got.Version)
	assert.True(t, got.Success)
	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, 2, got.Summary.Total)
	require.Len(t, got.Results, 2)
	// discovery order is sorted by path
	assert.Equal(t, "gated", got.Results[0].Name)
	assert.Equal(t, "skipped", got.Results[0].Status)
}

func TestRun_FlagAndMetrics(t *testing.T) {
	p := newProject(t, false)
	opts := p.options()
	opts.Flags = []string{"status.v2=true"}
	opts.MetricsFile = filepath.Join(p.dir, "metrics.prom")
	var stdout bytes.Buffer

	require.NoError(t, Run(context.Background(), &stdout, &bytes.Buffer{}, opts))
	assert.Contains(t, stdout.String(), "2 passed, 0 failed, 0 skipped of 2")

	data, err := os.ReadFile(opts.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "apiscenario_scenarios")
	assert.Contains(t, string(data), "apiscenario_calls")
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"unknown format", func(o *Options) { o.Format = "xml" }},
		{"bad parallel", func(o *Options) { o.Parallel = 0 }},
		{"bad flag value", func(o *Options) { o.Flags = []string{"status.v2=maybe"} }},
		{"bad header policy", func(o *Options) { o.HeaderPolicy = "shout" }},
		{"no scenarios", func(o *Options) { o.Paths = []string{o.Paths[0] + "/../testdata"} }},
		{"missing path", func(o *Options) { o.Paths = []string{"/does/not/exist"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProject(t, false)
			opts := p.options()
			tt.mutate(&opts)

			err := Run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, opts)
			require.Error(t, err)
			assert.Equal(t, shared.ExitUsage, shared.ExitCode(err), "error: %v", err)
		})
	}
}

func TestParseToggles(t *testing.T) {
	got, err := parseToggles([]string{"a=true", "b=0", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": true}, got)

	_, err = parseToggles([]string{"=true"})
	assert.Error(t, err)
}

func TestWaitForChange(t *testing.T) {
	dir := t.TempDir()
	fsw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer fsw.Close()
	require.NoError(t, addWatches(fsw, []string{dir}))

	target := filepath.Join(dir, "new.scenario.yaml")
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644)
		_ = os.WriteFile(target, []byte("tag: X\n"), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	changed, err := waitForChange(ctx, fsw)
	require.NoError(t, err)
	assert.Equal(t, target, changed)
}

func TestWaitForChange_Cancelled(t *testing.T) {
	fsw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer fsw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	changed, err := waitForChange(ctx, fsw)
	assert.NoError(t, err)
	assert.Empty(t, changed)
}
