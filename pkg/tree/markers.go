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

// Marker is one of the reserved keys with special meaning inside a body.
// Recognition is by exact key match only.
type Marker int

const (
	MarkerNone Marker = iota
	// MarkerFileInBody in an expected body switches the actual body to
	// binary download handling.
	MarkerFileInBody
	// MarkerArrayInMap wraps a top-level sequence so bodies stay map-shaped.
	MarkerArrayInMap
	// MarkerPlainText wraps a non-JSON text body.
	MarkerPlainText
	// MarkerExact in an expected map forbids extra keys in the actual map.
	MarkerExact
)

// Wildcard is the expected scalar that matches any non-null actual value.
const Wildcard = "[[ANYTHING_PRESENT]]"

var markerKeys = map[Marker]string{
	MarkerFileInBody: "__fileInBody__",
	MarkerArrayInMap: "arrayInMap",
	MarkerPlainText:  "__plainTextValue__",
	MarkerExact:      "__exact__",
}

var keyMarkers = func() map[string]Marker {
	out := make(map[string]Marker, len(markerKeys))
	for m, k := range markerKeys {
		out[k] = m
	}
	return out
}()

// Key returns the reserved key for m, or "" for MarkerNone.
func (m Marker) Key() string { return markerKeys[m] }

func (m Marker) String() string {
	if k := m.Key(); k != "" {
		return k
	}
	return "none"
}

// MarkerOf returns the marker named by key.
func MarkerOf(key string) Marker { return keyMarkers[key] }

// HasMarker reports whether v is a map holding the reserved key for m.
func (v Value) HasMarker(m Marker) bool {
	if v.kind != KindMap || m == MarkerNone {
		return false
	}
	return v.m.Has(m.Key())
}

// IsWildcard reports whether v is the wildcard scalar.
func (v Value) IsWildcard() bool {
	return v.kind == KindString && v.str == Wildcard
}

// Wrap returns {marker: v}.
func Wrap(m Marker, v Value) Value {
	out := NewMap()
	out.Set(m.Key(), v)
	return MapOf(out)
}

// Unwrap returns the value under the marker key when v holds it.
func Unwrap(m Marker, v Value) (Value, bool) {
	if !v.HasMarker(m) {
		return v, false
	}
	inner, _ := v.m.Get(m.Key())
	return inner, true
}
