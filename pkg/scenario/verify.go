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
	"log/slog"
	"strings"

	apierrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/response"
	"github.com/tombee/apiscenario/pkg/verify"
)

// HeaderPolicy decides what header mismatches do to a scenario.
type HeaderPolicy string

const (
	// JustWarn logs header issues and notes them in the report; the
	// scenario can still pass.
	JustWarn HeaderPolicy = "JUST_WARN"
	// FailTest treats header issues like body issues.
	FailTest HeaderPolicy = "FAIL_TEST"
	// IgnoreHeaders drops header issues entirely.
	IgnoreHeaders HeaderPolicy = "IGNORE"
)

// ParseHeaderPolicy parses a policy name case-insensitively. Empty
// selects JustWarn.
func ParseHeaderPolicy(s string) (HeaderPolicy, error) {
	switch HeaderPolicy(strings.ToUpper(strings.TrimSpace(s))) {
	case "", JustWarn:
		return JustWarn, nil
	case FailTest:
		return FailTest, nil
	case IgnoreHeaders:
		return IgnoreHeaders, nil
	}
	return "", &apierrors.ValidationError{
		Field:      "header_policy",
		Message:    fmt.Sprintf("unknown header policy %q", s),
		Suggestion: "use JUST_WARN, FAIL_TEST or IGNORE",
	}
}

// VerificationHeader opens every verification failure message.
const VerificationHeader = "Could not verify the actual response against expected one. Below are the issues."

// Outcome is the result of comparing an actual response with the
// expected one.
type Outcome struct {
	CodeIssue    string
	HeaderIssues []string
	BodyIssues   []string

	// Warnings are header issues demoted by the JustWarn policy.
	Warnings []string

	// Message is the full report, populated whether or not it failed.
	Message string

	failed      bool
	headersFail bool
}

// Failed reports whether the outcome fails the scenario.
func (o *Outcome) Failed() bool {
	return o.failed
}

// Err returns the VerificationFailure for a failed outcome, or nil.
func (o *Outcome) Err() error {
	if !o.failed {
		return nil
	}
	issues := make([]string, 0, 1+len(o.HeaderIssues)+len(o.BodyIssues))
	if o.CodeIssue != "" {
		issues = append(issues, o.CodeIssue)
	}
	if o.headersFail {
		issues = append(issues, o.HeaderIssues...)
	}
	issues = append(issues, o.BodyIssues...)
	return &apierrors.VerificationFailure{Message: o.Message, Issues: issues}
}

// Checker compares responses under a header policy.
type Checker struct {
	Policy  HeaderPolicy
	Headers *verify.MapVerifier
	Body    *verify.MapVerifier
	Logger  *slog.Logger
}

// NewChecker creates a checker with the standard header and body
// verifiers.
func NewChecker(policy HeaderPolicy, predicates *verify.Evaluator, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	headers := verify.HeaderVerifier()
	body := verify.BodyVerifier()
	headers.Predicates = predicates
	body.Predicates = predicates
	return &Checker{Policy: policy, Headers: headers, Body: body, Logger: logger}
}

// Check compares actual against expected. The report lists the response
// code issue, then header issues as the policy dictates, then body issues,
// which are always listed.
func (ck *Checker) Check(expected, actual *response.Descriptor) *Outcome {
	o := &Outcome{}

	if expected.ResponseCode != 0 && actual.ResponseCode != expected.ResponseCode {
		o.CodeIssue = fmt.Sprintf("Response code mismatch, expected: %d, actual: %d",
			expected.ResponseCode, actual.ResponseCode)
	}

	if res := ck.Headers.Verify(expected.Headers, actual.Headers); !res.Verified {
		o.HeaderIssues = res.AllIssues()
	}
	if res := ck.Body.Verify(expected.Body, actual.Body); !res.Verified {
		o.BodyIssues = res.AllIssues()
	}

	var b strings.Builder
	b.WriteString(VerificationHeader)
	b.WriteByte('\n')
	if o.CodeIssue != "" {
		b.WriteString(o.CodeIssue)
		b.WriteByte('\n')
	}

	if len(o.HeaderIssues) > 0 {
		switch ck.Policy {
		case FailTest:
			for _, issue := range o.HeaderIssues {
				b.WriteString(issue)
				b.WriteByte('\n')
			}
		case IgnoreHeaders:
		default:
			ck.Logger.Warn("Issues found in actual response headers as follows:")
			for _, issue := range o.HeaderIssues {
				ck.Logger.Warn(issue)
			}
			o.Warnings = o.HeaderIssues
			fmt.Fprintf(&b, "***[%s] issues in headers are listed just as warnings.\n",
				strings.Join(o.HeaderIssues, ", "))
		}
	}

	for _, issue := range o.BodyIssues {
		b.WriteString(issue)
		b.WriteByte('\n')
	}

	o.Message = b.String()
	o.headersFail = len(o.HeaderIssues) > 0 && ck.Policy == FailTest
	o.failed = o.CodeIssue != "" || o.headersFail || len(o.BodyIssues) > 0
	return o
}
