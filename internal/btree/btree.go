// Package btree implements the ordered index structure backing every Index
// kind: a normalized-key B-tree mapping a composite key to a set of
// document IDs, supporting exact lookup and range scans.
package btree

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	gbtree "github.com/google/btree"

	"github.com/knirvcorp/embeddb/internal/value"
)

// degree controls the branching factor of the underlying google/btree.
const degree = 32

// LowSentinel and HighSentinel bound open-ended ranges.
const (
	LowSentinel  = ""
	HighSentinel = "￿"
)

// Key is a normalized composite key: the `|`-escape-joined tuple of
// per-field normalized string representations.
type Key string

// NormalizeValue renders a single Value into its sort-order-preserving
// string representation per spec: Null sorts below all; booleans -> {0,1};
// numbers ordered numerically (encoded so lexicographic order on the
// encoding matches numeric order); strings lexicographically (optionally
// lowered for case-insensitive indexes); everything else via canonical
// JSON.
func NormalizeValue(v value.Value, caseInsensitive bool) string {
	switch v.Kind() {
	case value.Null:
		return "\x00"
	case value.Bool:
		if v.AsBool() {
			return "\x01\x01"
		}
		return "\x01\x00"
	case value.Number:
		return "\x02" + encodeFloatSortable(v.AsNumber())
	case value.String:
		s := v.AsString()
		if caseInsensitive {
			s = strings.ToLower(s)
		}
		return "\x03" + s
	default:
		return "\x04" + value.CanonicalJSON(v)
	}
}

// encodeFloatSortable encodes a float64 such that byte-lexicographic order
// of the output matches numeric order, using a fixed-width hex
// representation of the IEEE-754 bit pattern with sign-flip.
func encodeFloatSortable(f float64) string {
	bits := floatBitsForSort(f)
	return fmt.Sprintf("%016x", bits)
}

func floatBitsForSort(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		// negative: flip all bits so larger magnitude sorts lower
		return ^bits
	}
	// positive: flip sign bit so positives sort after negatives
	return bits | (1 << 63)
}

// escapeComponent escapes the `|` separator and backslash within a single
// normalized component so composite keys join unambiguously.
func escapeComponent(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "|", "\\|")
	return s
}

// BuildKey joins normalized per-field components into a composite Key.
func BuildKey(components ...string) Key {
	escaped := make([]string, len(components))
	for i, c := range components {
		escaped[i] = escapeComponent(c)
	}
	return Key(strings.Join(escaped, "|"))
}

// entry is the google/btree item: a key plus the set of document IDs
// sharing that key.
type entry struct {
	key Key
	ids map[string]struct{}
}

func (e *entry) Less(other gbtree.Item) bool {
	return e.key < other.(*entry).key
}

// Tree is an ordered key -> document-ID-set index.
type Tree struct {
	tree *gbtree.BTree
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{tree: gbtree.New(degree)}
}

// Insert associates id with key.
func (t *Tree) Insert(key Key, id string) {
	search := &entry{key: key}
	if item := t.tree.Get(search); item != nil {
		item.(*entry).ids[id] = struct{}{}
		return
	}
	t.tree.ReplaceOrInsert(&entry{key: key, ids: map[string]struct{}{id: {}}})
}

// Remove disassociates id from key. Empty entries are pruned.
func (t *Tree) Remove(key Key, id string) {
	search := &entry{key: key}
	item := t.tree.Get(search)
	if item == nil {
		return
	}
	e := item.(*entry)
	delete(e.ids, id)
	if len(e.ids) == 0 {
		t.tree.Delete(search)
	}
}

// Find returns the document IDs exactly matching key.
func (t *Tree) Find(key Key) []string {
	item := t.tree.Get(&entry{key: key})
	if item == nil {
		return nil
	}
	return idsOf(item.(*entry))
}

// Range returns the document IDs for keys in [low, high], inclusivity
// controlled by inclusiveLow/inclusiveHigh.
func (t *Tree) Range(low, high Key, inclusiveLow, inclusiveHigh bool) []string {
	var result []string
	// AscendRange is half-open [low, high); extend past high so we can
	// apply the caller's own inclusivity rule on the upper bound.
	t.tree.AscendRange(&entry{key: low}, &entry{key: high + "\x00"}, func(item gbtree.Item) bool {
		e := item.(*entry)
		if !inclusiveLow && e.key == low {
			return true
		}
		if e.key > high {
			return false
		}
		if e.key == high && !inclusiveHigh {
			return false
		}
		result = append(result, idsOf(e)...)
		return true
	})
	return result
}

func idsOf(e *entry) []string {
	out := make([]string, 0, len(e.ids))
	for id := range e.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct keys currently stored.
func (t *Tree) Len() int { return t.tree.Len() }

// AllKeys returns every stored key in ascending order (test/debug helper).
func (t *Tree) AllKeys() []Key {
	var out []Key
	t.tree.Ascend(func(item gbtree.Item) bool {
		out = append(out, item.(*entry).key)
		return true
	})
	return out
}

// marshalDebug renders the tree contents for diagnostics; unused in
// production paths but handy under a debugger.
func (t *Tree) marshalDebug() string {
	b, _ := json.Marshal(t.AllKeys())
	return string(b)
}
