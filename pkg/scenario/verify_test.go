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
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/response"
	"github.com/tombee/apiscenario/pkg/tree"
)

func TestParseHeaderPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want HeaderPolicy
	}{
		{"", JustWarn},
		{"just_warn", JustWarn},
		{"FAIL_TEST", FailTest},
		{" ignore ", IgnoreHeaders},
	}
	for _, tt := range tests {
		got, err := ParseHeaderPolicy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseHeaderPolicy("LOUD")
	var ve *apierrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func headersOf(kv ...string) tree.Value {
	return bodyOf(kv...)
}

func TestChecker_HeaderPolicies(t *testing.T) {
	expected := &response.Descriptor{
		ResponseCode: 200,
		Headers:      headersOf("Content-Type", "application/json"),
		Body:         bodyOf("state", "Open"),
	}
	actual := &response.Descriptor{
		ResponseCode: 200,
		Headers:      headersOf("content-type", "text/plain"),
		Body:         bodyOf("state", "Open"),
	}

	t.Run("just warn passes and reports", func(t *testing.T) {
		var logs bytes.Buffer
		ck := NewChecker(JustWarn, nil, slog.New(slog.NewTextHandler(&logs, nil)))
		o := ck.Check(expected, actual)

		assert.False(t, o.Failed())
		assert.NoError(t, o.Err())
		require.Len(t, o.Warnings, 1)
		assert.Contains(t, o.Message, "issues in headers are listed just as warnings.")
		assert.Contains(t, logs.String(), "Issues found in actual response headers as follows:")
	})

	t.Run("fail test fails", func(t *testing.T) {
		o := NewChecker(FailTest, nil, slog.New(slog.DiscardHandler)).Check(expected, actual)

		assert.True(t, o.Failed())
		var vf *apierrors.VerificationFailure
		require.ErrorAs(t, o.Err(), &vf)
		assert.Len(t, vf.Issues, 1)
		assert.NotContains(t, o.Message, "just as warnings")
	})

	t.Run("ignore drops header issues", func(t *testing.T) {
		o := NewChecker(IgnoreHeaders, nil, slog.New(slog.DiscardHandler)).Check(expected, actual)

		assert.False(t, o.Failed())
		assert.Empty(t, o.Warnings)
		assert.Equal(t, VerificationHeader+"\n", o.Message)
	})
}

func TestChecker_CodeAndBody(t *testing.T) {
	ck := NewChecker(JustWarn, nil, slog.New(slog.DiscardHandler))
	expected := &response.Descriptor{ResponseCode: 200, Body: bodyOf("state", "Open")}
	actual := &response.Descriptor{ResponseCode: 404, Body: bodyOf("state", "Closed")}

	o := ck.Check(expected, actual)
	require.True(t, o.Failed())
	assert.Equal(t, "Response code mismatch, expected: 200, actual: 404", o.CodeIssue)
	require.Len(t, o.BodyIssues, 1)
	assert.Contains(t, o.BodyIssues[0], "actualResponse.body.state")

	var vf *apierrors.VerificationFailure
	require.ErrorAs(t, o.Err(), &vf)
	assert.Equal(t, []string{o.CodeIssue, o.BodyIssues[0]}, vf.Issues)
	assert.Equal(t, VerificationHeader+"\n"+o.CodeIssue+"\n"+o.BodyIssues[0]+"\n", vf.Error())
}

func TestChecker_NoExpectedCode(t *testing.T) {
	ck := NewChecker(JustWarn, nil, slog.New(slog.DiscardHandler))
	o := ck.Check(&response.Descriptor{}, &response.Descriptor{ResponseCode: 503})
	assert.False(t, o.Failed())
	assert.Empty(t, o.CodeIssue)
}
