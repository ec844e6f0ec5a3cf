package index

import (
	"sort"
	"strings"

	"github.com/knirvcorp/embeddb/internal/query"
	"github.com/knirvcorp/embeddb/internal/value"
)

// ScanType identifies how the planner decided to evaluate a query.
type ScanType int

const (
	FullScan ScanType = iota
	IndexScan
)

// Plan is the planner's decision for one query evaluation.
type Plan struct {
	Scan      ScanType
	IndexName string
	Candidate []string // document IDs to re-filter; nil for FullScan
}

// suggestionTracker observes recent queries to drive the background
// self-tuning routine described in spec.md 4.6's closing paragraph.
type suggestionTracker struct {
	window       []query.Query
	maxWindow    int
	fieldCounts  map[string]int
	comboCounts  map[string]int
}

func newSuggestionTracker() *suggestionTracker {
	return &suggestionTracker{
		maxWindow:   50,
		fieldCounts: make(map[string]int),
		comboCounts: make(map[string]int),
	}
}

func (s *suggestionTracker) observe(q query.Query) {
	s.window = append(s.window, q)
	s.tally(q, 1)
	if len(s.window) > s.maxWindow {
		s.tally(s.window[0], -1)
		s.window = s.window[1:]
	}
}

// tally adds delta to the counts of q's fields and field combination.
func (s *suggestionTracker) tally(q query.Query, delta int) {
	fields := query.ExtractLeadingFields(q)
	for _, f := range fields {
		s.fieldCounts[f] += delta
	}
	if len(fields) >= 2 {
		combo := fields[0]
		for _, f := range fields[1:] {
			combo += "," + f
		}
		s.comboCounts[combo] += delta
	}
}

// Suggestion names a field or field-combination that has crossed the
// self-tuning threshold and is not yet indexed.
type Suggestion struct {
	Fields []string
	Kind   Kind
}

// Suggestions returns SINGLE suggestions for fields seen in >= 3 of the
// last >= 10 queries, and COMPOUND suggestions for combinations seen in
// >= 2 queries, per spec.md 4.6.
func (s *suggestionTracker) Suggestions() []Suggestion {
	var out []Suggestion
	if len(s.window) < 10 {
		return out
	}
	for f, c := range s.fieldCounts {
		if c >= 3 {
			out = append(out, Suggestion{Fields: []string{f}, Kind: Single})
		}
	}
	for combo, c := range s.comboCounts {
		if c >= 2 {
			out = append(out, Suggestion{Fields: splitCombo(combo), Kind: Compound})
		}
	}
	return out
}

func splitCombo(combo string) []string {
	var out []string
	cur := ""
	for _, r := range combo {
		if r == ',' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// Manager owns a Collection's index set and selects a query plan.
type Manager struct {
	indexes      map[string]*Index
	order        []string // creation order, for tie-breaking
	nextCreation int64
	tracker      *suggestionTracker
}

// NewManager returns an empty index manager.
func NewManager() *Manager {
	return &Manager{
		indexes: make(map[string]*Index),
		tracker: newSuggestionTracker(),
	}
}

// Create registers a new index under name. Returns an error if the name
// is already taken.
func (m *Manager) Create(name string, fields []string, kind Kind, opts Options) (*Index, error) {
	if _, exists := m.indexes[name]; exists {
		return nil, indexAlreadyExists(name)
	}
	idx := New(name, fields, kind, opts, m.nextCreation)
	m.nextCreation++
	m.indexes[name] = idx
	m.order = append(m.order, name)
	return idx, nil
}

// Drop removes an index, freeing its state.
func (m *Manager) Drop(name string) {
	delete(m.indexes, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Get returns the named index, if any.
func (m *Manager) Get(name string) (*Index, bool) {
	idx, ok := m.indexes[name]
	return idx, ok
}

// All returns every index in creation order.
func (m *Manager) All() []*Index {
	out := make([]*Index, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.indexes[n])
	}
	return out
}

// InsertDocument updates every index for a newly-inserted document. On the
// first error (a UNIQUE violation) it rolls back indexes already updated
// for this document and returns the error, leaving all indexes unchanged.
func (m *Manager) InsertDocument(docID string, doc value.Value) error {
	applied := make([]*Index, 0, len(m.order))
	for _, n := range m.order {
		idx := m.indexes[n]
		if err := idx.Insert(docID, doc); err != nil {
			for _, done := range applied {
				done.Remove(docID, doc)
			}
			return err
		}
		applied = append(applied, idx)
	}
	return nil
}

// RemoveDocument updates every index for a deleted document.
func (m *Manager) RemoveDocument(docID string, doc value.Value) {
	for _, n := range m.order {
		m.indexes[n].Remove(docID, doc)
	}
}

// UpdateDocument re-indexes docID across every index. Rolls back on the
// first UNIQUE violation, restoring every index to its old-document state.
func (m *Manager) UpdateDocument(docID string, oldDoc, newDoc value.Value) error {
	applied := make([]*Index, 0, len(m.order))
	for _, n := range m.order {
		idx := m.indexes[n]
		if err := idx.Update(docID, oldDoc, newDoc); err != nil {
			for _, done := range applied {
				done.Update(docID, newDoc, oldDoc)
			}
			return err
		}
		applied = append(applied, idx)
	}
	return nil
}

// Rebuild clears every index and re-adds entries from docs.
func (m *Manager) Rebuild(docs []value.Value, idOf func(value.Value) string) {
	for _, n := range m.order {
		old := m.indexes[n]
		fresh := New(old.Name, old.Fields, old.Kind, old.Options, old.createdAt)
		m.indexes[n] = fresh
	}
	for _, doc := range docs {
		id := idOf(doc)
		for _, n := range m.order {
			_ = m.indexes[n].Insert(id, doc)
		}
	}
}

// scoredCandidate is an internal bookkeeping struct for Select.
type scoredCandidate struct {
	idx      *Index
	score    float64
	weight   float64
	ids      []string
}

// Select applies the spec's scoring rules to choose at most one index.
// It always records the query for the self-tuning observer.
func (m *Manager) Select(q query.Query, totalDocs int) Plan {
	m.tracker.observe(q)

	eq := query.ExtractEqualityFields(q)
	leading := query.ExtractLeadingFields(q)

	var best *scoredCandidate

	for _, n := range m.order {
		idx := m.indexes[n]
		cand := m.scoreIndex(idx, q, eq, leading)
		if cand == nil {
			continue
		}
		if best == nil || cand.weight > best.weight || (cand.weight == best.weight && cand.score > best.score) {
			best = cand
		}
	}

	if best == nil {
		return Plan{Scan: FullScan}
	}
	return Plan{Scan: IndexScan, IndexName: best.idx.Name, Candidate: best.ids}
}

func (m *Manager) scoreIndex(idx *Index, q query.Query, eq map[string]value.Value, leading []string) *scoredCandidate {
	// A PARTIAL index only admits documents satisfying its own filter; it
	// may only serve q if q provably implies that filter, otherwise
	// documents excluded from the index could still match q.
	if idx.Options.Partial != nil && !query.Implies(q, *idx.Options.Partial) {
		return nil
	}

	allEqual := len(idx.Fields) > 0
	values := make([]value.Value, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		v, ok := eq[f]
		if !ok {
			allEqual = false
			break
		}
		values = append(values, v)
	}

	// Rule 1: compound exact match — every field of a multi-field index
	// appears as equality in the query (one-field indexes fall to rule 2).
	if allEqual && len(idx.Fields) > 1 {
		ids := idx.Find(values)
		selectivity := 1.0 / float64(len(ids)+1)
		return &scoredCandidate{idx: idx, score: selectivity, weight: 2 * selectivity, ids: ids}
	}

	// Rule 2: single-field equality.
	if allEqual && len(idx.Fields) == 1 {
		ids := idx.Find(values)
		selectivity := 1.0 / float64(len(ids)+1)
		return &scoredCandidate{idx: idx, score: selectivity, weight: 1.5 * selectivity, ids: ids}
	}

	// Rule 3: leading field participates (range/$in/prefix); fall back to
	// returning every ID currently in the index as the candidate set,
	// since we cannot narrow further without re-filtering. A SPARSE index
	// has no entry for a document missing one of its fields, so it's only
	// safe here if q provably requires every indexed field to be present —
	// otherwise a document q matches could be absent from the candidate set.
	if len(idx.Fields) > 0 && containsString(leading, idx.Fields[0]) {
		if idx.Options.Sparse {
			for _, f := range idx.Fields {
				if !query.FieldRequiresPresence(q, f) {
					return nil
				}
			}
		}
		ids := allIDs(idx)
		selectivity := 1.0 / float64(len(ids)+1)
		return &scoredCandidate{idx: idx, score: selectivity, weight: selectivity, ids: ids}
	}

	return nil
}

func allIDs(idx *Index) []string {
	seen := make(map[string]struct{})
	for _, k := range idx.tree.AllKeys() {
		for _, id := range idx.tree.Find(k) {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Suggestions exposes the self-tuning routine's current recommendations.
func (m *Manager) Suggestions() []Suggestion {
	var out []Suggestion
next:
	for _, s := range m.tracker.Suggestions() {
		for _, idx := range m.indexes {
			if strings.Join(idx.Fields, ",") == strings.Join(s.Fields, ",") {
				continue next
			}
		}
		out = append(out, s)
	}
	return out
}

type indexExistsError struct{ name string }

func (e *indexExistsError) Error() string { return "index already exists: " + e.name }

func indexAlreadyExists(name string) error { return &indexExistsError{name: name} }
