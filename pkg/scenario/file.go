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

package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	apierrors "github.com/tombee/apiscenario/pkg/errors"
)

// FilePattern matches scenario files below a scenario directory.
const FilePattern = "**/*.scenario.{yaml,yml}"

// Expectation is the response class a scenario asserts before the
// detailed comparison.
type Expectation string

const (
	ExpectAny      Expectation = ""
	ExpectPositive Expectation = "positive"
	ExpectNegative Expectation = "negative"
)

// Call is a prerequisite call: Spec is the step text the test data must
// declare, ID the specification to run.
type Call struct {
	Spec string `yaml:"spec"`
	ID   string `yaml:"id"`
}

// Specs are the assertions a scenario makes about its test data at each
// step. Each entry must appear in the specification's specs list.
type Specs struct {
	Users    []string `yaml:"users,omitempty"`
	Request  []string `yaml:"request,omitempty"`
	Response []string `yaml:"response,omitempty"`
}

// Scenario is one executable scenario file.
//
//	name: Retrieve a case by reference
//	tag: S-101
//	tags: [FeatureToggle(ccd.get-case)]
//	calls:
//	  - spec: to create a full case
//	    id: Standard_Full_Case_Creation_Data
//	specs:
//	  users: [with a caseworker role]
//	  request: [uses the reference of the created case]
//	  response: [contains the case details]
//	outcome: positive
type Scenario struct {
	Name string `yaml:"name"`

	// Tag labels the scenario in logs; it is also the default
	// specification identifier.
	Tag  string   `yaml:"tag,omitempty"`
	Tags []string `yaml:"tags,omitempty"`

	// Specification is the identifier of the scenario's own call.
	Specification string `yaml:"specification,omitempty"`

	Calls   []Call      `yaml:"calls,omitempty"`
	Specs   Specs       `yaml:"specs,omitempty"`
	Outcome Expectation `yaml:"outcome,omitempty"`

	// Source is the file the scenario was read from.
	Source string `yaml:"-"`
}

// SpecID returns the identifier of the scenario's own specification.
func (s *Scenario) SpecID() string {
	if s.Specification != "" {
		return s.Specification
	}
	return strings.TrimPrefix(s.Tag, "@")
}

// Label returns the text used to tag log lines.
func (s *Scenario) Label() string {
	if s.Tag != "" {
		return strings.TrimPrefix(s.Tag, "@")
	}
	return s.Name
}

// Validate checks that the scenario can run.
func (s *Scenario) Validate() error {
	if s.SpecID() == "" {
		return &apierrors.ValidationError{
			Field:      "specification",
			Message:    fmt.Sprintf("scenario %q names no specification", s.Name),
			Suggestion: "set specification or tag to the test data identifier",
		}
	}
	for i, call := range s.Calls {
		if call.ID == "" || call.Spec == "" {
			return &apierrors.ValidationError{
				Field:      fmt.Sprintf("calls[%d]", i),
				Message:    "a call needs both spec and id",
				Suggestion: "write calls as {spec: <step text>, id: <test data id>}",
			}
		}
	}
	switch s.Outcome {
	case ExpectAny, ExpectPositive, ExpectNegative:
	default:
		return &apierrors.ValidationError{
			Field:      "outcome",
			Message:    fmt.Sprintf("unknown outcome %q", s.Outcome),
			Suggestion: "use positive or negative, or leave it out",
		}
	}
	return nil
}

// LoadFile reads and validates a scenario file. A name defaults to the
// file name.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &apierrors.ValidationError{
			Field:      path,
			Message:    fmt.Sprintf("invalid scenario YAML: %v", err),
			Suggestion: "check indentation and that calls is a list of {spec, id}",
		}
	}
	s.Source = path
	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = base[:strings.Index(base, ".scenario.")]
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Discover returns the scenario files under each path, sorted. A path
// naming a file is returned as is.
func Discover(paths ...string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path: %w", err)
		}
		var matches []string
		if info.IsDir() {
			matches, err = doublestar.FilepathGlob(filepath.Join(p, FilePattern))
			if err != nil {
				return nil, fmt.Errorf("scanning %s: %w", p, err)
			}
		} else {
			matches = []string{p}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
