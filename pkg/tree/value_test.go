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

package tree

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseJSON_KeepsOrderAndNumbers(t *testing.T) {
	v, err := ParseJSON([]byte(`{"b": 1, "a": [true, null, 2.50], "c": {"z": "x", "y": "w"}}`))
	require.NoError(t, err)

	m, ok := v.AsMap()
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a", "c"}, m.Keys())

	b, _ := m.Get("b")
	n, ok := b.AsNumber()
	require.True(t, ok)
	assert.Equal(t, "1", n.String())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":[true,null,2.50],"c":{"z":"x","y":"w"}}`, string(out))
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "truncated", input: `{"a": `},
		{name: "trailing data", input: `{"a": 1} {"b": 2}`},
		{name: "empty", input: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestValue_Equal(t *testing.T) {
	a := FromAny(map[string]any{"n": 1, "list": []any{"x", 2.0}})
	b, err := ParseJSON([]byte(`{"list": ["x", 2], "n": 1.0}`))
	require.NoError(t, err)

	assert.True(t, a.Equal(b), "numeric and order-insensitive equality")
	assert.False(t, a.Equal(FromAny(map[string]any{"n": 1})))
	assert.False(t, String("1").Equal(Int(1)))
	assert.True(t, Null().Equal(Value{}))

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("cmp.Diff reported a difference (-want +got):\n%s", diff)
	}
}

func TestNumbersEqual(t *testing.T) {
	assert.True(t, NumbersEqual("1", "1.0"))
	assert.True(t, NumbersEqual("1e3", "1000"))
	assert.False(t, NumbersEqual("1", "2"))
	assert.False(t, NumbersEqual("not-a-number", "1"))
}

func TestMap_SetFold(t *testing.T) {
	m := NewMap()
	m.SetFold("Content-Type", String("text/plain"))
	m.SetFold("X-Trace", String("1"))
	m.SetFold("content-type", String("application/json"))

	assert.Equal(t, []string{"content-type", "X-Trace"}, m.Keys())
	key, v, ok := m.GetFold("CONTENT-TYPE")
	require.True(t, ok)
	assert.Equal(t, "content-type", key)
	assert.Equal(t, "application/json", v.Text())
}

func TestMap_Delete(t *testing.T) {
	m := NewMap()
	m.Set("a", Int(1))
	m.Set("b", Int(2))
	m.Set("c", Int(3))
	m.Delete("b")
	m.Delete("missing")

	assert.Equal(t, []string{"a", "c"}, m.Keys())
	assert.False(t, m.Has("b"))
}

func TestMarkers(t *testing.T) {
	assert.Equal(t, MarkerFileInBody, MarkerOf("__fileInBody__"))
	assert.Equal(t, MarkerNone, MarkerOf("__FileInBody__"), "markers match by exact key only")
	assert.Equal(t, MarkerNone, MarkerOf("x__fileInBody__"))

	wrapped := Wrap(MarkerArrayInMap, Sequence(Int(1), Int(2)))
	assert.True(t, wrapped.HasMarker(MarkerArrayInMap))
	inner, ok := Unwrap(MarkerArrayInMap, wrapped)
	require.True(t, ok)
	assert.Equal(t, 2, inner.Len())

	_, ok = Unwrap(MarkerPlainText, wrapped)
	assert.False(t, ok)

	assert.True(t, String(Wildcard).IsWildcard())
	assert.False(t, String("[[anything_present]]").IsWildcard())
}

func TestYAML_RoundTrip(t *testing.T) {
	src := `
method: GET
count: 3
ratio: 0.5
enabled: true
missing: ~
headers:
  Z-Last: "1"
  A-First: "2"
items:
  - one
  - 2
`
	var v Value
	require.NoError(t, yaml.Unmarshal([]byte(src), &v))

	m, ok := v.AsMap()
	require.True(t, ok)
	assert.Equal(t, []string{"method", "count", "ratio", "enabled", "missing", "headers", "items"}, m.Keys())

	headers, _ := m.Get("headers")
	hm, _ := headers.AsMap()
	assert.Equal(t, []string{"Z-Last", "A-First"}, hm.Keys())

	count, _ := m.Get("count")
	assert.Equal(t, KindNumber, count.Kind())
	missing, _ := m.Get("missing")
	assert.True(t, missing.IsNull())

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	var again Value
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.True(t, v.Equal(again))
}

func TestReplaceStrings(t *testing.T) {
	v := FromAny(map[string]any{
		"id":   "${{ .child.id }}",
		"list": []any{"keep", "${{ .child.id }}"},
		"n":    4,
	})

	out, err := ReplaceStrings(v, func(s string) (Value, error) {
		if s == "${{ .child.id }}" {
			return Int(42), nil
		}
		return String(s), nil
	})
	require.NoError(t, err)

	want := FromAny(map[string]any{"id": 42, "list": []any{"keep", 42}, "n": 4})
	assert.True(t, want.Equal(out), "got %s", out.Text())

	_, err = ReplaceStrings(v, func(string) (Value, error) { return Null(), errors.New("boom") })
	assert.ErrorContains(t, err, "boom")
}

func TestValue_TextAndString(t *testing.T) {
	tests := []struct {
		v        Value
		wantText string
		wantStr  string
	}{
		{v: Null(), wantText: "", wantStr: "null"},
		{v: String("abc"), wantText: "abc", wantStr: `"abc"`},
		{v: Int(7), wantText: "7", wantStr: "7"},
		{v: Bool(false), wantText: "false", wantStr: "false"},
		{v: Sequence(Int(1), String("a")), wantText: `[1,"a"]`, wantStr: `[1,"a"]`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantText, tt.v.Text())
		assert.Equal(t, tt.wantStr, tt.v.String())
	}
}

func TestStripNewlines(t *testing.T) {
	assert.Equal(t, "helloworld", StripNewlines("hello\nworld"))
	assert.Equal(t, "ab", StripNewlines("a\r\nb\n"))
}
