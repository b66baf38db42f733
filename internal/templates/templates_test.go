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

package templates

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/tombee/apiscenario/pkg/scenario"
	"github.com/tombee/apiscenario/pkg/spec"
)

func TestList(t *testing.T) {
	names, err := List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	want := []string{Config, Scenario, TestData}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestGet_InvalidName(t *testing.T) {
	for _, name := range []string{"", "../config", "a/b", "nonexistent"} {
		if _, err := Get(name); err == nil {
			t.Errorf("Get(%q) expected error", name)
		}
	}
}

func TestRender_ScenarioParses(t *testing.T) {
	out, err := Render(Scenario, Vars{
		Name:    "retrieve-case",
		Tag:     "S-101",
		Step:    "to retrieve a case",
		Toggle:  "ccd.get-case",
		Outcome: "positive",
	})
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	var sc scenario.Scenario
	if err := yaml.Unmarshal(out, &sc); err != nil {
		t.Fatalf("rendered scenario is not valid YAML: %v\n%s", err, out)
	}
	if err := sc.Validate(); err != nil {
		t.Errorf("rendered scenario invalid: %v", err)
	}
	if sc.SpecID() != "S-101" || len(sc.Tags) != 1 || sc.Outcome != scenario.ExpectPositive {
		t.Errorf("unexpected scenario: %+v", sc)
	}
}

func TestRender_TestDataParses(t *testing.T) {
	out, err := Render(TestData, Vars{
		Name:         "retrieve-case",
		Step:         "to retrieve a case",
		Product:      "Case Data Service",
		Operation:    "Get Case",
		Method:       "GET",
		URI:          "/cases/{cid}",
		ResponseCode: 200,
	})
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	s, err := spec.Parse(out)
	if err != nil {
		t.Fatalf("rendered test data does not parse: %v\n%s", err, out)
	}
	if !s.MeetsSpec("to retrieve a case") {
		t.Errorf("specs = %v", s.Specs)
	}
	if !s.MeetsOperationOfProduct("Case Data Service", "Get Case") {
		t.Errorf("operation = %s/%s", s.ProductName, s.OperationName)
	}
	if s.Expected.ResponseCode != 200 || len(s.Users) != 1 {
		t.Errorf("unexpected specification: %+v", s)
	}
}
