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

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiscenario/pkg/tree"
)

func obj(t *testing.T, src string) tree.Value {
	t.Helper()
	v, err := tree.ParseJSON([]byte(src))
	require.NoError(t, err)
	return v
}

func TestVerify_SubsetLaw(t *testing.T) {
	mv := NewMapVerifier("body", BodyDepth, true)

	res := mv.Verify(obj(t, `{"a":1}`), obj(t, `{"a":1,"b":2}`))
	assert.True(t, res.Verified, "extra actual keys must be tolerated: %v", res.AllIssues())

	res = mv.Verify(obj(t, `{"a":1,"b":2}`), obj(t, `{"a":1}`))
	require.False(t, res.Verified)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, MissingKey, res.Issues[0].Kind)
	assert.Equal(t, "body.b", res.Issues[0].Path)
}

func TestVerify_Wildcard(t *testing.T) {
	mv := NewMapVerifier("body", BodyDepth, true)
	expected := obj(t, `{"id":"[[ANYTHING_PRESENT]]"}`)

	tests := []struct {
		name     string
		actual   string
		verified bool
	}{
		{name: "string", actual: `{"id":"anything-non-null"}`, verified: true},
		{name: "number", actual: `{"id":17}`, verified: true},
		{name: "map", actual: `{"id":{"nested":true}}`, verified: true},
		{name: "null", actual: `{"id":null}`, verified: false},
		{name: "absent", actual: `{}`, verified: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mv.Verify(expected, obj(t, tt.actual))
			assert.Equal(t, tt.verified, res.Verified, "issues: %v", res.AllIssues())
		})
	}
}

func TestVerify_HeaderKeysCaseInsensitive(t *testing.T) {
	expected := obj(t, `{"Content-Type":"json"}`)
	actual := obj(t, `{"content-type":"json"}`)

	assert.True(t, NewMapVerifier("headers", 1, false).Verify(expected, actual).Verified)
	assert.True(t, HeaderVerifier().Verify(expected, actual).Verified)

	res := NewMapVerifier("headers", 1, true).Verify(expected, actual)
	assert.False(t, res.Verified, "case-sensitive comparison must not fold keys")
}

func nested(depth int) tree.Value {
	v := tree.String("leaf")
	for i := 0; i < depth; i++ {
		m := tree.NewMap()
		m.Set("n", v)
		v = tree.MapOf(m)
	}
	return v
}

func TestVerify_DepthLimit(t *testing.T) {
	tests := []struct {
		name     string
		maxDepth int
		depth    int
		exceeded int
	}{
		{name: "zero depth", maxDepth: 0, depth: 1, exceeded: 1},
		{name: "negative depth", maxDepth: -3, depth: 4, exceeded: 1},
		{name: "deep payload", maxDepth: 20, depth: 25, exceeded: 1},
		{name: "exactly at limit", maxDepth: 20, depth: 20, exceeded: 0},
		{name: "one past limit", maxDepth: 20, depth: 21, exceeded: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := nested(tt.depth)
			res := NewMapVerifier("body", tt.maxDepth, true).Verify(v, v)
			assert.Equal(t, tt.exceeded, res.Count(DepthExceeded))
			assert.Len(t, res.Issues, tt.exceeded)
		})
	}
}

func TestVerify_DepthExceededStopsTraversal(t *testing.T) {
	expected := obj(t, `{"a":{"x":1},"b":{"y":2},"c":3}`)
	actual := obj(t, `{"a":{"x":9},"b":{"y":8},"c":4}`)

	res := NewMapVerifier("h", 1, false).Verify(expected, actual)
	assert.Equal(t, 1, res.Count(DepthExceeded))
	assert.Len(t, res.Issues, 1)
	assert.Equal(t, "h.a", res.Issues[0].Path)
}

func TestVerify_Sequences(t *testing.T) {
	mv := NewMapVerifier("body", BodyDepth, true)

	res := mv.Verify(obj(t, `{"l":[1,2,3]}`), obj(t, `{"l":[1,5]}`))
	require.Len(t, res.Issues, 2)
	assert.Equal(t, LengthMismatch, res.Issues[0].Kind)
	assert.Equal(t, "body.l", res.Issues[0].Path)
	assert.Equal(t, ValueMismatch, res.Issues[1].Kind)
	assert.Equal(t, "body.l[1]", res.Issues[1].Path)

	res = mv.Verify(obj(t, `{"l":[{"id":"[[ANYTHING_PRESENT]]"}]}`), obj(t, `{"l":[{"id":1,"x":true}]}`))
	assert.True(t, res.Verified, "%v", res.AllIssues())
}

func TestVerify_ExactMarker(t *testing.T) {
	mv := NewMapVerifier("body", BodyDepth, true)
	expected := obj(t, `{"__exact__":true,"a":1}`)

	res := mv.Verify(expected, obj(t, `{"a":1}`))
	assert.True(t, res.Verified, "%v", res.AllIssues())

	res = mv.Verify(expected, obj(t, `{"a":1,"extra":2}`))
	require.Len(t, res.Issues, 1)
	assert.Equal(t, UnexpectedKey, res.Issues[0].Kind)
	assert.Equal(t, "body.extra", res.Issues[0].Path)

	res = mv.Verify(obj(t, `{"__exact__":false,"a":1}`), obj(t, `{"a":1,"extra":2}`))
	assert.True(t, res.Verified)
}

func TestVerify_Scalars(t *testing.T) {
	mv := NewMapVerifier("v", BodyDepth, true)

	tests := []struct {
		name     string
		expected string
		actual   string
		verified bool
	}{
		{name: "equal numbers", expected: `{"n":1}`, actual: `{"n":1.0}`, verified: true},
		{name: "number against numeric string", expected: `{"n":12}`, actual: `{"n":"12"}`, verified: true},
		{name: "different numbers", expected: `{"n":1}`, actual: `{"n":2}`, verified: false},
		{name: "nfc normalized strings", expected: `{"s":"café"}`, actual: `{"s":"café"}`, verified: true},
		{name: "bool", expected: `{"b":true}`, actual: `{"b":true}`, verified: true},
		{name: "bool mismatch", expected: `{"b":true}`, actual: `{"b":false}`, verified: false},
		{name: "null expected accepts anything", expected: `{"x":null}`, actual: `{"x":[1]}`, verified: true},
		{name: "scalar against map", expected: `{"x":"a"}`, actual: `{"x":{"a":1}}`, verified: false},
		{name: "scalar against null", expected: `{"x":"a"}`, actual: `{"x":null}`, verified: false},
		{name: "map against sequence", expected: `{"x":{}}`, actual: `{"x":[]}`, verified: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mv.Verify(obj(t, tt.expected), obj(t, tt.actual))
			assert.Equal(t, tt.verified, res.Verified, "issues: %v", res.AllIssues())
		})
	}
}

func TestVerify_NullExpectation(t *testing.T) {
	res := BodyVerifier().Verify(tree.Null(), obj(t, `{"a":1}`))
	assert.True(t, res.Verified)

	res = BodyVerifier().Verify(obj(t, `{"a":1}`), tree.Null())
	require.Len(t, res.Issues, 1)
	assert.Equal(t, TypeMismatch, res.Issues[0].Kind)
	assert.Equal(t, "actualResponse.body", res.Issues[0].Path)
}

func TestVerify_LongStringDiff(t *testing.T) {
	expected := tree.String(strings.Repeat("a", 30) + "expected-tail")
	actual := tree.String(strings.Repeat("a", 30) + "actual-tail")
	m1, m2 := tree.NewMap(), tree.NewMap()
	m1.Set("s", expected)
	m2.Set("s", actual)

	res := BodyVerifier().Verify(tree.MapOf(m1), tree.MapOf(m2))
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0].Description, "diff:")
	assert.Contains(t, res.Issues[0].Description, "[-")
	assert.Contains(t, res.Issues[0].Description, "{+")
}

func TestVerify_Predicates(t *testing.T) {
	mv := NewMapVerifier("body", BodyDepth, true)
	expected := obj(t, `{"id":"[[EXPR: isUUID(actual)]]","count":"[[EXPR: actual > 2]]"}`)

	res := mv.Verify(expected, obj(t, `{"id":"3b241101-e2bb-4255-8caf-4136c566a962","count":3}`))
	assert.True(t, res.Verified, "%v", res.AllIssues())

	res = mv.Verify(expected, obj(t, `{"id":"nope","count":1}`))
	assert.Equal(t, 2, res.Count(PredicateFailed))

	res = mv.Verify(obj(t, `{"x":"[[EXPR: actual +]]"}`), obj(t, `{"x":1}`))
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0].Description, "could not be checked")
}

func TestEvaluator_DynamicActual(t *testing.T) {
	ev := NewEvaluator()
	tests := []struct {
		expression string
		actual     tree.Value
		want       bool
	}{
		{"actual > 2", tree.Int(3), true},
		{"actual > 2", tree.Int(1), false},
		{"actual * 2 == 7", tree.Float(3.5), true},
		{"len(actual) > 0", tree.String("x"), true},
		{"len(actual) == 2", tree.Sequence(tree.Int(1), tree.Int(2)), true},
		{`actual startsWith "CASE"`, tree.String("CASE-1"), true},
	}
	for _, tt := range tests {
		res := ev.Evaluate(tt.expression, tt.actual)
		require.NoError(t, res.Error, tt.expression)
		assert.Equal(t, tt.want, res.Passed, tt.expression)
	}
}

func TestEvaluator_Caches(t *testing.T) {
	ev := NewEvaluator()
	assert.True(t, ev.Evaluate(`match(actual, "^CASE-[0-9]+$")`, tree.String("CASE-12")).Passed)
	assert.True(t, ev.Evaluate(`match(actual, "^CASE-[0-9]+$")`, tree.String("CASE-99")).Passed)
	assert.False(t, ev.Evaluate(`isTimestamp(actual)`, tree.String("yesterday")).Passed)
	assert.Equal(t, 2, ev.CacheSize())
}

func TestResult_AllIssues(t *testing.T) {
	res := NewMapVerifier("actualResponse.body", BodyDepth, true).Verify(obj(t, `{"a":1}`), obj(t, `{"a":2}`))
	require.Len(t, res.AllIssues(), 1)
	assert.Equal(t, "actualResponse.body.a has unexpected value 2, while 1 was expected", res.AllIssues()[0])
}
