// Package index implements secondary indexes (SINGLE, COMPOUND, UNIQUE,
// MULTI-VALUED, TEXT) backed by internal/btree, plus the index manager and
// cost-based query planner that selects at most one index per query.
package index

import (
	"strings"
	"time"

	"github.com/knirvcorp/embeddb/internal/btree"
	"github.com/knirvcorp/embeddb/internal/dberrors"
	"github.com/knirvcorp/embeddb/internal/path"
	"github.com/knirvcorp/embeddb/internal/query"
	"github.com/knirvcorp/embeddb/internal/value"
)

// Kind discriminates the index structures.
type Kind int

const (
	Single Kind = iota
	Compound
	Unique
	MultiValued
	Text
)

// Options bundles the policy dimensions an Index may opt into.
type Options struct {
	Sparse          bool
	CaseInsensitive bool
	// Partial restricts membership to documents satisfying this filter.
	// Nil means unrestricted.
	Partial *query.Query
	// TTLSeconds, when > 0, stamps each inserted document's expiry and
	// makes it eligible for Expired() to report it as due for removal.
	TTLSeconds int
}

// Index is a single named secondary structure on a Collection.
type Index struct {
	Name    string
	Fields  []string
	Kind    Kind
	Options Options

	tree      *btree.Tree
	uniqueMap map[btree.Key]string // enforces the UNIQUE invariant
	expiry    map[string]time.Time // TTL id -> expiry
	createdAt int64                // monotonically increasing creation order
}

// New constructs an empty Index.
func New(name string, fields []string, kind Kind, opts Options, creationOrder int64) *Index {
	idx := &Index{
		Name:      name,
		Fields:    append([]string(nil), fields...),
		Kind:      kind,
		Options:   opts,
		tree:      btree.New(),
		createdAt: creationOrder,
	}
	if kind == Unique {
		idx.uniqueMap = make(map[btree.Key]string)
	}
	if opts.TTLSeconds > 0 {
		idx.expiry = make(map[string]time.Time)
	}
	return idx
}

// admits reports whether doc should be a member given the partial filter.
func (idx *Index) admits(doc value.Value) bool {
	if idx.Options.Partial == nil {
		return true
	}
	return query.Matches(doc, *idx.Options.Partial)
}

// keysFor extracts the set of composite keys a document contributes. A
// SINGLE/COMPOUND/UNIQUE index contributes at most one key; MULTI-VALUED
// contributes one key per element when the sole indexed field resolves to
// an Array. Returns nil if the document is sparse-skipped or inadmissible.
func (idx *Index) keysFor(doc value.Value) []btree.Key {
	if !idx.admits(doc) {
		return nil
	}

	if idx.Kind == MultiValued {
		if len(idx.Fields) != 1 {
			return nil
		}
		v, ok := path.Get(doc, idx.Fields[0])
		if !ok {
			if idx.Options.Sparse {
				return nil
			}
			return []btree.Key{btree.BuildKey(btree.NormalizeValue(value.NewNull(), idx.Options.CaseInsensitive))}
		}
		if v.Kind() != value.Array {
			return []btree.Key{btree.BuildKey(btree.NormalizeValue(v, idx.Options.CaseInsensitive))}
		}
		keys := make([]btree.Key, 0, len(v.AsArray()))
		for _, e := range v.AsArray() {
			keys = append(keys, btree.BuildKey(btree.NormalizeValue(e, idx.Options.CaseInsensitive)))
		}
		return keys
	}

	components := make([]string, len(idx.Fields))
	for i, f := range idx.Fields {
		v, ok := path.Get(doc, f)
		if !ok {
			if idx.Options.Sparse {
				return nil
			}
			v = value.NewNull()
		}
		components[i] = btree.NormalizeValue(v, idx.Options.CaseInsensitive)
	}
	return []btree.Key{btree.BuildKey(components...)}
}

// Insert adds docID to the index per doc's current field values. Returns
// DuplicateKey if a UNIQUE constraint is violated; the index is left
// unchanged on error.
func (idx *Index) Insert(docID string, doc value.Value) error {
	keys := idx.keysFor(doc)
	if keys == nil {
		return nil
	}
	if idx.Kind == Unique {
		for _, k := range keys {
			if existing, ok := idx.uniqueMap[k]; ok && existing != docID {
				return dberrors.NewDuplicateKey(idx.Name, string(k))
			}
		}
	}
	for _, k := range keys {
		idx.tree.Insert(k, docID)
		if idx.Kind == Unique {
			idx.uniqueMap[k] = docID
		}
	}
	if idx.expiry != nil {
		idx.expiry[docID] = time.Now().Add(time.Duration(idx.Options.TTLSeconds) * time.Second)
	}
	return nil
}

// Remove disassociates docID using its prior document value.
func (idx *Index) Remove(docID string, doc value.Value) {
	keys := idx.keysFor(doc)
	for _, k := range keys {
		idx.tree.Remove(k, docID)
		if idx.Kind == Unique {
			if cur, ok := idx.uniqueMap[k]; ok && cur == docID {
				delete(idx.uniqueMap, k)
			}
		}
	}
	if idx.expiry != nil {
		delete(idx.expiry, docID)
	}
}

// Update re-indexes docID moving from oldDoc to newDoc, honoring partial
// membership transitions (was-in/will-be-in across all four cases).
func (idx *Index) Update(docID string, oldDoc, newDoc value.Value) error {
	wasIn := idx.admits(oldDoc)
	willBeIn := idx.admits(newDoc)
	switch {
	case wasIn && willBeIn:
		idx.Remove(docID, oldDoc)
		if err := idx.Insert(docID, newDoc); err != nil {
			_ = idx.Insert(docID, oldDoc)
			return err
		}
		return nil
	case wasIn && !willBeIn:
		idx.Remove(docID, oldDoc)
		return nil
	case !wasIn && willBeIn:
		return idx.Insert(docID, newDoc)
	default:
		return nil
	}
}

// Find returns IDs for an exact equality match on the index's full field
// tuple (values given in field order).
func (idx *Index) Find(values []value.Value) []string {
	components := make([]string, len(values))
	for i, v := range values {
		components[i] = btree.NormalizeValue(v, idx.Options.CaseInsensitive)
	}
	return idx.tree.Find(btree.BuildKey(components...))
}

// Range returns IDs whose normalized key for the last field lies in
// [low, high], with the leading fields pinned to prefix (equality on all
// but the last field).
func (idx *Index) Range(prefix []value.Value, low, high value.Value, inclusiveLow, inclusiveHigh bool) []string {
	prefixComponents := make([]string, len(prefix))
	for i, v := range prefix {
		prefixComponents[i] = btree.NormalizeValue(v, idx.Options.CaseInsensitive)
	}
	lowComp := btree.LowSentinel
	if !low.IsNull() {
		lowComp = btree.NormalizeValue(low, idx.Options.CaseInsensitive)
	}
	highComp := btree.HighSentinel
	if !high.IsNull() {
		highComp = btree.NormalizeValue(high, idx.Options.CaseInsensitive)
	}
	lowKey := btree.BuildKey(append(append([]string(nil), prefixComponents...), lowComp)...)
	highKey := btree.BuildKey(append(append([]string(nil), prefixComponents...), highComp)...)
	return idx.tree.Range(lowKey, highKey, inclusiveLow, inclusiveHigh)
}

// Prefix returns IDs whose string value at the sole indexed field starts
// with p, serving TEXT indexes' prefix predicate.
func (idx *Index) Prefix(p string) []string {
	if idx.Options.CaseInsensitive {
		p = strings.ToLower(p)
	}
	low := btree.BuildKey(btree.NormalizeValue(value.NewString(p), idx.Options.CaseInsensitive))
	highVal := p + "￿"
	high := btree.BuildKey(btree.NormalizeValue(value.NewString(highVal), idx.Options.CaseInsensitive))
	return idx.tree.Range(low, high, true, true)
}

// Expired returns IDs whose TTL has elapsed as of now.
func (idx *Index) Expired(now time.Time) []string {
	if idx.expiry == nil {
		return nil
	}
	var out []string
	for id, exp := range idx.expiry {
		if now.After(exp) {
			out = append(out, id)
		}
	}
	return out
}

// Len reports the number of distinct keys stored.
func (idx *Index) Len() int { return idx.tree.Len() }
