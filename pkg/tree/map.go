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

import "strings"

// Map is an insertion-ordered string-keyed map of values.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Null(), false
	}
	v, ok := m.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// GetFold looks key up ignoring case and returns the stored key name.
// An exact match wins over a case-folded one.
func (m *Map) GetFold(key string) (string, Value, bool) {
	if m == nil {
		return "", Null(), false
	}
	if v, ok := m.vals[key]; ok {
		return key, v, true
	}
	for _, k := range m.keys {
		if strings.EqualFold(k, key) {
			return k, m.vals[k], true
		}
	}
	return "", Null(), false
}

// Set stores v under key. A new key is appended; an existing key keeps
// its position.
func (m *Map) Set(key string, v Value) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// SetFold stores v under key, replacing any entry whose key differs only
// in case. The replaced entry keeps its position but takes the new name.
func (m *Map) SetFold(key string, v Value) {
	for i, k := range m.keys {
		if strings.EqualFold(k, key) {
			if k != key {
				delete(m.vals, k)
				m.keys[i] = key
			}
			m.vals[key] = v
			return
		}
	}
	m.Set(key, v)
}

// Delete removes key.
func (m *Map) Delete(key string) {
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// Clone returns a shallow copy. Values are immutable so this is enough
// to isolate later Set calls.
func (m *Map) Clone() *Map {
	out := NewMap()
	m.Range(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}

// StringMap converts the entries into a map of their Text renderings.
func (m *Map) StringMap() map[string]string {
	out := make(map[string]string, m.Len())
	m.Range(func(k string, v Value) bool {
		out[k] = v.Text()
		return true
	})
	return out
}
