// Package path implements dot-separated path traversal over value.Value
// trees: get, set, and unset with lazy Object creation and Array
// positional indexing.
package path

import (
	"strconv"
	"strings"

	"github.com/knirvcorp/embeddb/internal/value"
)

// Segments splits a dotted path into its component segments.
func Segments(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// Get returns the deepest present value and true, or the zero Value and
// false if any segment is absent. Array segments that parse as
// non-negative integers index positionally; any other segment against an
// Array yields absent.
func Get(doc value.Value, p string) (value.Value, bool) {
	cur := doc
	for _, seg := range Segments(p) {
		switch cur.Kind() {
		case value.Object:
			v, ok := cur.Get(seg)
			if !ok {
				return value.Value{}, false
			}
			cur = v
		case value.Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.AsArray()) {
				return value.Value{}, false
			}
			cur = cur.AsArray()[idx]
		default:
			return value.Value{}, false
		}
	}
	return cur, true
}

// Set returns a new root with p set to v, creating missing intermediate
// Objects lazily. It refuses to overwrite a scalar intermediary: if an
// existing intermediate value (not the terminal segment) is neither an
// Object nor an Array, Set returns the original root and false. A Null
// Array element on the path is replaced by a new Object.
func Set(doc value.Value, p string, v value.Value) (value.Value, bool) {
	segs := Segments(p)
	if len(segs) == 0 {
		return doc, false
	}
	return setAt(doc, segs, v)
}

func setAt(cur value.Value, segs []string, v value.Value) (value.Value, bool) {
	seg := segs[0]
	if len(segs) == 1 {
		switch cur.Kind() {
		case value.Object:
			return cur.Set(seg, v), true
		case value.Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 {
				return cur, false
			}
			arr := append([]value.Value(nil), cur.AsArray()...)
			for len(arr) <= idx {
				arr = append(arr, value.NewNull())
			}
			arr[idx] = v
			return value.NewArray(arr...), true
		default:
			return cur, false
		}
	}

	switch cur.Kind() {
	case value.Object:
		child, ok := cur.Get(seg)
		if !ok {
			child = value.NewObject()
		} else if child.Kind() != value.Object && child.Kind() != value.Array {
			return cur, false
		}
		newChild, ok := setAt(child, segs[1:], v)
		if !ok {
			return cur, false
		}
		return cur.Set(seg, newChild), true
	case value.Array:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 {
			return cur, false
		}
		arr := append([]value.Value(nil), cur.AsArray()...)
		for len(arr) <= idx {
			arr = append(arr, value.NewNull())
		}
		child := arr[idx]
		if child.Kind() != value.Object && child.Kind() != value.Array && !child.IsNull() {
			return cur, false
		}
		if child.IsNull() {
			child = value.NewObject()
		}
		newChild, ok := setAt(child, segs[1:], v)
		if !ok {
			return cur, false
		}
		arr[idx] = newChild
		return value.NewArray(arr...), true
	default:
		return cur, false
	}
}

// Unset removes the terminal key of p, leaving intermediates intact. If
// any intermediate segment is absent, Unset is a no-op returning the
// original root unchanged.
func Unset(doc value.Value, p string) value.Value {
	segs := Segments(p)
	if len(segs) == 0 {
		return doc
	}
	out, _ := unsetAt(doc, segs)
	return out
}

func unsetAt(cur value.Value, segs []string) (value.Value, bool) {
	seg := segs[0]
	if len(segs) == 1 {
		switch cur.Kind() {
		case value.Object:
			if _, ok := cur.Get(seg); !ok {
				return cur, false
			}
			return cur.Delete(seg), true
		default:
			return cur, false
		}
	}
	switch cur.Kind() {
	case value.Object:
		child, ok := cur.Get(seg)
		if !ok {
			return cur, false
		}
		newChild, changed := unsetAt(child, segs[1:])
		if !changed {
			return cur, false
		}
		return cur.Set(seg, newChild), true
	case value.Array:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(cur.AsArray()) {
			return cur, false
		}
		child := cur.AsArray()[idx]
		newChild, changed := unsetAt(child, segs[1:])
		if !changed {
			return cur, false
		}
		arr := append([]value.Value(nil), cur.AsArray()...)
		arr[idx] = newChild
		return value.NewArray(arr...), true
	default:
		return cur, false
	}
}
