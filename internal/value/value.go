// Package value defines the tagged-union Value and Document model shared
// across the query matcher, update executor, indexes, and storage layer.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind discriminates the Value union.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

// Value is an immutable tagged union mirroring JSON's data model, plus a
// distinguished Null kind. Object preserves insertion order.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  *orderedMap
}

// orderedMap is a string-keyed map that preserves insertion order.
type orderedMap struct {
	keys   []string
	values map[string]Value
}

func newOrderedMap() *orderedMap {
	return &orderedMap{values: make(map[string]Value)}
}

func (m *orderedMap) get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *orderedMap) set(key string, v Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *orderedMap) delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *orderedMap) clone() *orderedMap {
	out := newOrderedMap()
	out.keys = append([]string(nil), m.keys...)
	out.values = make(map[string]Value, len(m.values))
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// Kind returns the Value's tag.
func (v Value) Kind() Kind { return v.kind }

func NewNull() Value           { return Value{kind: Null} }
func NewBool(b bool) Value     { return Value{kind: Bool, b: b} }
func NewNumber(n float64) Value { return Value{kind: Number, n: n} }
func NewString(s string) Value { return Value{kind: String, s: s} }

func NewArray(items ...Value) Value {
	return Value{kind: Array, arr: append([]Value(nil), items...)}
}

// NewObject builds an Object from keys inserted in the given order.
func NewObject() Value {
	return Value{kind: Object, obj: newOrderedMap()}
}

func (v Value) IsNull() bool   { return v.kind == Null }
func (v Value) AsBool() bool   { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsString() string  { return v.s }
func (v Value) AsArray() []Value  { return v.arr }

// Len returns the number of elements for Array or keys for Object.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		if v.obj == nil {
			return 0
		}
		return len(v.obj.keys)
	default:
		return 0
	}
}

// Keys returns Object keys in insertion order. Nil for non-Objects.
func (v Value) Keys() []string {
	if v.kind != Object || v.obj == nil {
		return nil
	}
	return append([]string(nil), v.obj.keys...)
}

// Get returns the field value and whether it was present. Only valid for
// Object; returns (Null, false) otherwise.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object || v.obj == nil {
		return Value{}, false
	}
	return v.obj.get(key)
}

// Set returns a new Object with key set to val, preserving insertion order
// for existing keys and appending new ones. Panics if v is not an Object.
func (v Value) Set(key string, val Value) Value {
	if v.kind != Object {
		panic("value: Set on non-Object")
	}
	m := v.obj
	if m == nil {
		m = newOrderedMap()
	} else {
		m = m.clone()
	}
	m.set(key, val)
	return Value{kind: Object, obj: m}
}

// Delete returns a new Object with key removed.
func (v Value) Delete(key string) Value {
	if v.kind != Object {
		panic("value: Delete on non-Object")
	}
	if v.obj == nil {
		return v
	}
	m := v.obj.clone()
	m.delete(key)
	return Value{kind: Object, obj: m}
}

// Append returns a new Array with val appended.
func (v Value) Append(val Value) Value {
	if v.kind != Array {
		panic("value: Append on non-Array")
	}
	out := append(append([]Value(nil), v.arr...), val)
	return Value{kind: Array, arr: out}
}

// Equal performs structural equality. NaN != NaN per IEEE-754.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.n == b.n
	case String:
		return a.s == b.s
	case Array:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		ak, bk := a.Keys(), b.Keys()
		if len(ak) != len(bk) {
			return false
		}
		for _, k := range ak {
			av, _ := a.Get(k)
			bv, ok := b.Get(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// FromJSON converts a parsed encoding/json value (as produced by
// json.Unmarshal into interface{}, with float64 or json.Number numbers)
// into a Value. Keys of a map[string]any are inserted in Go's map
// iteration order, which is unspecified, so source key order is not
// preserved. Go types outside that set (such as int) become Null.
func FromJSON(v any) Value {
	switch t := v.(type) {
	case nil:
		return NewNull()
	case bool:
		return NewBool(t)
	case float64:
		return NewNumber(t)
	case json.Number:
		f, _ := t.Float64()
		return NewNumber(f)
	case string:
		return NewString(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromJSON(e)
		}
		return NewArray(items...)
	case map[string]any:
		obj := NewObject()
		for k, e := range t {
			obj = obj.Set(k, FromJSON(e))
		}
		return obj
	default:
		return NewNull()
	}
}

// ToJSON converts a Value to a plain interface{} tree suitable for
// json.Marshal.
func ToJSON(v Value) any {
	switch v.kind {
	case Null:
		return nil
	case Bool:
		return v.b
	case Number:
		return v.n
	case String:
		return v.s
	case Array:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = ToJSON(e)
		}
		return out
	case Object:
		out := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			out[k] = ToJSON(e)
		}
		return out
	default:
		return nil
	}
}

// CanonicalJSON renders v as JSON with Object keys sorted recursively,
// suitable for cache keys and stable hashing.
func CanonicalJSON(v Value) string {
	var buf []byte
	buf = appendCanonical(buf, v)
	return string(buf)
}

func appendCanonical(buf []byte, v Value) []byte {
	switch v.kind {
	case Null:
		return append(buf, "null"...)
	case Bool:
		if v.b {
			return append(buf, "true"...)
		}
		return append(buf, "false"...)
	case Number:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return append(buf, "null"...)
		}
		return append(buf, []byte(formatNumber(v.n))...)
	case String:
		b, _ := json.Marshal(v.s)
		return append(buf, b...)
	case Array:
		buf = append(buf, '[')
		for i, e := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendCanonical(buf, e)
		}
		return append(buf, ']')
	case Object:
		keys := append([]string(nil), v.Keys()...)
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			e, _ := v.Get(k)
			buf = appendCanonical(buf, e)
		}
		return append(buf, '}')
	default:
		return buf
	}
}

func formatNumber(n float64) string {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Sprintf("%v", n)
	}
	return string(b)
}

// Clone returns a deep value; Value is already immutable-by-construction
// for scalar kinds, so Clone only needs to guard against shared backing
// arrays/maps when callers intend to mutate via the builder API. Since Set
// and Append both copy-on-write, Clone is identity for correctness but is
// provided for call sites that want an explicit deep-copy contract.
func Clone(v Value) Value {
	switch v.kind {
	case Array:
		items := make([]Value, len(v.arr))
		for i, e := range v.arr {
			items[i] = Clone(e)
		}
		return Value{kind: Array, arr: items}
	case Object:
		out := NewObject()
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			out = out.Set(k, Clone(e))
		}
		return out
	default:
		return v
	}
}
