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

// Package tree provides the canonical value model shared by request
// synthesis, response normalization and structural verification.
//
// A Value is a tagged variant over Null, Bool, Number, String, Map and
// Sequence. Maps keep insertion order so that narration and reports are
// stable, and numbers keep their literal text so that integral values are
// not silently turned into floats.
package tree

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindMap
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindMap:
		return "map"
	case KindSequence:
		return "sequence"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an immutable tree node. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	m    *Map
	seq  []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value holding the literal n.
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// Int returns a numeric value for i.
func Int(i int64) Value { return Number(json.Number(strconv.FormatInt(i, 10))) }

// Float returns a numeric value for f.
func Float(f float64) Value {
	return Number(json.Number(strconv.FormatFloat(f, 'g', -1, 64)))
}

// MapOf wraps m as a value. A nil map yields an empty map value.
func MapOf(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

// Sequence returns a sequence value holding items.
func Sequence(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsZero lets yaml.v3 treat null as empty for omitempty.
func (v Value) IsZero() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the number literal held by v.
func (v Value) AsNumber() (json.Number, bool) { return v.num, v.kind == KindNumber }

// AsMap returns the map held by v.
func (v Value) AsMap() (*Map, bool) { return v.m, v.kind == KindMap }

// AsSequence returns the items held by v. The slice must not be modified.
func (v Value) AsSequence() ([]Value, bool) { return v.seq, v.kind == KindSequence }

// Len returns the number of entries of a map or sequence and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindMap:
		return v.m.Len()
	case KindSequence:
		return len(v.seq)
	}
	return 0
}

// Get returns the value under key when v is a map.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Null(), false
	}
	return v.m.Get(key)
}

// Text renders a scalar the way it would appear in a URL or header:
// strings unquoted, numbers by literal, null as the empty string.
// Maps and sequences render as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return v.num.String()
	case KindString:
		return v.str
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return fmt.Sprintf("%v", v.ToAny())
		}
		return string(data)
	}
}

// String implements fmt.Stringer, quoting strings so that reports can tell
// "1" from 1.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.str)
	default:
		return v.Text()
	}
}

// Equal reports deep equality. Numbers compare by numeric value and maps
// ignore key order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return NumbersEqual(v.num, other.num)
	case KindString:
		return v.str == other.str
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if v.m.Len() != other.m.Len() {
			return false
		}
		for _, k := range v.m.Keys() {
			ov, ok := other.m.Get(k)
			if !ok {
				return false
			}
			mv, _ := v.m.Get(k)
			if !mv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// NumbersEqual compares two numeric literals by value, so 1, 1.0 and 1e0
// are all equal. Unparseable literals fall back to text comparison.
func NumbersEqual(a, b json.Number) bool {
	ra, okA := new(big.Rat).SetString(a.String())
	rb, okB := new(big.Rat).SetString(b.String())
	if !okA || !okB {
		return a.String() == b.String()
	}
	return ra.Cmp(rb) == 0
}

// FromAny converts decoded Go data into a Value. It accepts the shapes
// produced by encoding/json, yaml.v3 and gojq, plus Value and *Map.
// Maps with non-ordered provenance get their keys sorted.
func FromAny(in any) Value {
	switch x := in.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case *Map:
		return MapOf(x)
	case bool:
		return Bool(x)
	case string:
		return String(x)
	case json.Number:
		return Number(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Number(json.Number(strconv.FormatUint(uint64(x), 10)))
	case uint32:
		return Number(json.Number(strconv.FormatUint(uint64(x), 10)))
	case uint64:
		return Number(json.Number(strconv.FormatUint(x, 10)))
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case *big.Int:
		return Number(json.Number(x.String()))
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, FromAny(x[k]))
		}
		return MapOf(m)
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, String(x[k]))
		}
		return MapOf(m)
	case map[any]any:
		converted := make(map[string]any, len(x))
		for k, val := range x {
			converted[fmt.Sprint(k)] = val
		}
		return FromAny(converted)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return Sequence(items...)
	case []string:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = String(item)
		}
		return Sequence(items...)
	case []Value:
		return Sequence(x...)
	default:
		return String(fmt.Sprint(x))
	}
}

// ToAny converts v into plain Go data: nil, bool, json.Number, string,
// map[string]any and []any.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindMap:
		out := make(map[string]any, v.m.Len())
		v.m.Range(func(k string, val Value) bool {
			out[k] = val.ToAny()
			return true
		})
		return out
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.ToAny()
		}
		return out
	}
	return nil
}

// ToNative is like ToAny but turns numbers into int or float64, which
// is what expression engines such as expr and gojq expect.
func (v Value) ToNative() any {
	switch v.kind {
	case KindNumber:
		if i, err := strconv.Atoi(v.num.String()); err == nil {
			return i
		}
		if f, err := v.num.Float64(); err == nil {
			return f
		}
		return v.num.String()
	case KindMap:
		out := make(map[string]any, v.m.Len())
		v.m.Range(func(k string, val Value) bool {
			out[k] = val.ToNative()
			return true
		})
		return out
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.ToNative()
		}
		return out
	}
	return v.ToAny()
}

// ReplaceStrings returns a copy of v in which every string leaf has been
// passed through fn. Map keys are left untouched.
func ReplaceStrings(v Value, fn func(s string) (Value, error)) (Value, error) {
	switch v.kind {
	case KindString:
		return fn(v.str)
	case KindMap:
		out := NewMap()
		var err error
		v.m.Range(func(k string, val Value) bool {
			var replaced Value
			replaced, err = ReplaceStrings(val, fn)
			if err != nil {
				err = fmt.Errorf("%s: %w", k, err)
				return false
			}
			out.Set(k, replaced)
			return true
		})
		if err != nil {
			return Null(), err
		}
		return MapOf(out), nil
	case KindSequence:
		items := make([]Value, len(v.seq))
		for i, item := range v.seq {
			replaced, err := ReplaceStrings(item, fn)
			if err != nil {
				return Null(), fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = replaced
		}
		return Sequence(items...), nil
	}
	return v, nil
}

// StripNewlines removes line breaks from s.
func StripNewlines(s string) string {
	return strings.NewReplacer("\r\n", "", "\n", "", "\r", "").Replace(s)
}
