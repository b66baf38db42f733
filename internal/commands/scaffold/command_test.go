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

package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiscenario/internal/config"
	pkgerrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/scenario"
	"github.com/tombee/apiscenario/pkg/spec"
)

func options() Options {
	return Options{
		Name:         "retrieve-case",
		Tag:          "S-101",
		Step:         "to retrieve a case",
		Outcome:      "positive",
		Product:      "Case Data Service",
		Method:       "get",
		URI:          "/cases/{cid}",
		ResponseCode: 200,
		BaseURL:      "http://localhost:4452",
		ScenarioDir:  "scenarios",
		DataDir:      "testdata",
	}
}

func TestWrite(t *testing.T) {
	t.Chdir(t.TempDir())

	files, err := Write(options())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("scenarios", "retrieve-case.scenario.yaml"),
		filepath.Join("testdata", "S-101.td.yaml"),
		config.DefaultFileName,
	}, files)

	sc, err := scenario.LoadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "S-101", sc.SpecID())
	assert.Equal(t, []string{"to retrieve a case"}, sc.Specs.Request)

	s, err := spec.ReadFile(files[1])
	require.NoError(t, err)
	assert.Equal(t, "GET", s.Method)
	assert.Equal(t, "retrieve-case", s.OperationName)
	for _, step := range append(append(sc.Specs.Users, sc.Specs.Request...), sc.Specs.Response...) {
		assert.True(t, s.MeetsSpec(step), "test data should confirm %q", step)
	}

	cfg, err := config.Load(config.DefaultFileName)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4452", cfg.Target.BaseURL)
}

func TestWrite_ExistingFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(config.DefaultFileName, []byte("target:\n  base_url: http://keep\n"), 0o644))

	files, err := Write(options())
	require.NoError(t, err)
	assert.Len(t, files, 2, "an existing config file is left alone")

	_, err = Write(options())
	var ve *pkgerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Suggestion, "--force")

	opts := options()
	opts.Force = true
	_, err = Write(opts)
	assert.NoError(t, err)

	data, err := os.ReadFile(config.DefaultFileName)
	require.NoError(t, err)
	assert.Contains(t, string(data), "http://keep")
}

func TestWrite_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	opts := options()
	opts.Name = "../escape"
	_, err := Write(opts)
	var ve *pkgerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	opts = options()
	opts.Method = "FETCH"
	_, err = Write(opts)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "method", ve.Field)
}
