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

package verify

import "fmt"

// IssueKind classifies a VerificationIssue.
type IssueKind int

const (
	MissingKey IssueKind = iota + 1
	UnexpectedKey
	TypeMismatch
	ValueMismatch
	LengthMismatch
	MissingValue
	PredicateFailed
	DepthExceeded
)

var issueKindNames = map[IssueKind]string{
	MissingKey:      "missing_key",
	UnexpectedKey:   "unexpected_key",
	TypeMismatch:    "type_mismatch",
	ValueMismatch:   "value_mismatch",
	LengthMismatch:  "length_mismatch",
	MissingValue:    "missing_value",
	PredicateFailed: "predicate_failed",
	DepthExceeded:   "depth_exceeded",
}

func (k IssueKind) String() string {
	if name, ok := issueKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("issue_kind(%d)", int(k))
}

// Issue is one mismatch found while comparing trees. Path uses dot
// notation for map keys and brackets for sequence positions, rooted at the
// verifier's Root.
type Issue struct {
	Path        string
	Kind        IssueKind
	Description string
}

func (i Issue) String() string {
	return i.Path + " " + i.Description
}

// Result is the outcome of a single Verify call.
type Result struct {
	Issues   []Issue
	Verified bool
}

// AllIssues returns the issues rendered in discovery order.
func (r Result) AllIssues() []string {
	out := make([]string, len(r.Issues))
	for i, issue := range r.Issues {
		out[i] = issue.String()
	}
	return out
}

// Count returns how many issues of kind k were found.
func (r Result) Count(k IssueKind) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Kind == k {
			n++
		}
	}
	return n
}
