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

// Package verify compares an expected tree against an actual one and
// collects every structural mismatch.
//
// Expected maps are a required subset of actual maps unless they carry the
// __exact__ marker. Sequences compare positionally. The string
// [[ANYTHING_PRESENT]] matches any non-null value, and [[EXPR: ...]]
// evaluates an expr-lang predicate against the actual value.
package verify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tombee/apiscenario/pkg/tree"
)

// Reference depths used for response verification.
const (
	HeaderDepth = 1
	BodyDepth   = 20
)

// MapVerifier holds the comparison settings for one tree. The zero value
// compares case-sensitively with a depth of 0, which fails every
// container comparison; use NewMapVerifier or the presets.
type MapVerifier struct {
	// Root prefixes every issue path.
	Root string
	// MaxDepth bounds recursion. Depth 1 covers the direct entries of the
	// root container.
	MaxDepth int
	// CaseSensitive controls map key matching.
	CaseSensitive bool
	// Predicates evaluates [[EXPR: ...]] expectations. Nil uses a
	// package-level evaluator.
	Predicates *Evaluator
}

// NewMapVerifier returns a verifier with the given settings.
func NewMapVerifier(root string, maxDepth int, caseSensitive bool) *MapVerifier {
	return &MapVerifier{Root: root, MaxDepth: maxDepth, CaseSensitive: caseSensitive}
}

// HeaderVerifier compares response headers: one level deep, keys
// case-insensitive.
func HeaderVerifier() *MapVerifier {
	return NewMapVerifier("actualResponse.headers", HeaderDepth, false)
}

// BodyVerifier compares response bodies with case-sensitive keys.
func BodyVerifier() *MapVerifier {
	return NewMapVerifier("actualResponse.body", BodyDepth, true)
}

// Verify compares expected against actual. A null expectation accepts
// anything.
func (mv *MapVerifier) Verify(expected, actual tree.Value) Result {
	w := &walker{verifier: mv}
	w.compare(mv.Root, expected, actual, 0)
	return Result{Issues: w.issues, Verified: len(w.issues) == 0}
}

type walker struct {
	verifier *MapVerifier
	issues   []Issue
	exceeded bool
}

func (w *walker) add(path string, kind IssueKind, format string, args ...any) {
	w.issues = append(w.issues, Issue{Path: path, Kind: kind, Description: fmt.Sprintf(format, args...)})
}

// compare checks one node. depth is the depth of node itself; its
// children sit at depth+1.
func (w *walker) compare(path string, expected, actual tree.Value, depth int) {
	if w.exceeded || expected.IsNull() {
		return
	}

	if expected.IsWildcard() {
		if actual.IsNull() {
			w.add(path, MissingValue, "is expected to be present, but is missing or null")
		}
		return
	}

	if expr, ok := predicateOf(expected); ok {
		w.predicate(path, expr, actual)
		return
	}

	switch expected.Kind() {
	case tree.KindMap, tree.KindSequence:
		if actual.Kind() != expected.Kind() {
			w.add(path, TypeMismatch, "is expected to be a %s, but is a %s", expected.Kind(), actual.Kind())
			return
		}
		if depth+1 > w.verifier.MaxDepth {
			w.exceeded = true
			w.add(path, DepthExceeded, "exceeds the maximum comparison depth of %d", w.verifier.MaxDepth)
			return
		}
		if expected.Kind() == tree.KindMap {
			em, _ := expected.AsMap()
			am, _ := actual.AsMap()
			w.compareMaps(path, em, am, depth+1)
		} else {
			es, _ := expected.AsSequence()
			as, _ := actual.AsSequence()
			w.compareSequences(path, es, as, depth+1)
		}
	default:
		w.compareScalars(path, expected, actual)
	}
}

func (w *walker) compareMaps(path string, expected, actual *tree.Map, depth int) {
	exact := false
	if marker, ok := expected.Get(tree.MarkerExact.Key()); ok {
		exact, _ = marker.AsBool()
	}

	seen := make(map[string]bool, expected.Len())
	expected.Range(func(key string, ev tree.Value) bool {
		if tree.MarkerOf(key) == tree.MarkerExact {
			return true
		}
		childPath := joinKey(path, key)
		actualKey, av, ok := w.lookup(actual, key)
		if !ok {
			w.add(childPath, MissingKey, "is unavailable, though it was expected to be there")
			return !w.exceeded
		}
		seen[actualKey] = true
		w.compare(childPath, ev, av, depth)
		return !w.exceeded
	})

	if !exact || w.exceeded {
		return
	}
	actual.Range(func(key string, _ tree.Value) bool {
		if !seen[key] {
			w.add(joinKey(path, key), UnexpectedKey, "is unexpected")
		}
		return true
	})
}

func (w *walker) lookup(m *tree.Map, key string) (string, tree.Value, bool) {
	if w.verifier.CaseSensitive {
		v, ok := m.Get(key)
		return key, v, ok
	}
	return m.GetFold(key)
}

func (w *walker) compareSequences(path string, expected, actual []tree.Value, depth int) {
	n := len(expected)
	if len(actual) != len(expected) {
		w.add(path, LengthMismatch, "has %d elements, but %d were expected", len(actual), len(expected))
		n = min(len(actual), len(expected))
	}
	for i := 0; i < n && !w.exceeded; i++ {
		w.compare(joinIndex(path, i), expected[i], actual[i], depth)
	}
}

func (w *walker) compareScalars(path string, expected, actual tree.Value) {
	if actual.IsNull() {
		w.add(path, ValueMismatch, "has value null, but %s was expected", expected)
		return
	}
	if actual.Kind() == tree.KindMap || actual.Kind() == tree.KindSequence {
		w.add(path, TypeMismatch, "is expected to be a %s, but is a %s", expected.Kind(), actual.Kind())
		return
	}
	if scalarsEqual(expected, actual) {
		return
	}
	desc := fmt.Sprintf("has unexpected value %s, while %s was expected", actual, expected)
	if d := textDiff(expected.Text(), actual.Text()); d != "" {
		desc += "; diff: " + d
	}
	w.issues = append(w.issues, Issue{Path: path, Kind: ValueMismatch, Description: desc})
}

func (w *walker) predicate(path, expression string, actual tree.Value) {
	ev := w.verifier.Predicates
	if ev == nil {
		ev = defaultEvaluator
	}
	res := ev.Evaluate(expression, actual)
	if res.Error != nil {
		w.add(path, PredicateFailed, "could not be checked against [[EXPR: %s]]: %v", expression, res.Error)
		return
	}
	if !res.Passed {
		w.add(path, PredicateFailed, "has value %s, which does not satisfy %s", actual, expression)
	}
}

// scalarsEqual compares two non-null scalars. Numbers compare numerically,
// also against numeric strings; everything else compares by its NFC
// normalized text.
func scalarsEqual(expected, actual tree.Value) bool {
	en, eIsNum := numberOf(expected)
	an, aIsNum := numberOf(actual)
	if eIsNum && aIsNum && (expected.Kind() == tree.KindNumber || actual.Kind() == tree.KindNumber) {
		return tree.NumbersEqual(en, an)
	}
	return norm.NFC.String(expected.Text()) == norm.NFC.String(actual.Text())
}

func numberOf(v tree.Value) (json.Number, bool) {
	switch v.Kind() {
	case tree.KindNumber:
		num, _ := v.AsNumber()
		return num, true
	case tree.KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return "", false
		}
		return json.Number(s), true
	}
	return "", false
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func joinIndex(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
