// Package query implements the MongoDB-style filter dialect: matches
// decides whether a document satisfies a query expression.
package query

import (
	"regexp"
	"sort"

	"github.com/knirvcorp/embeddb/internal/path"
	"github.com/knirvcorp/embeddb/internal/value"
)

// Query is the parsed form of a filter document, produced by Parse or
// built directly by callers that already hold a value.Value tree.
type Query struct {
	raw value.Value
}

// Parse wraps a filter Object as a Query. An empty or Null filter matches
// every document.
func Parse(v value.Value) Query { return Query{raw: v} }

// Matches reports whether doc satisfies q. The matcher is pure and
// deterministic.
func Matches(doc value.Value, q Query) bool {
	return matchesNode(doc, q.raw)
}

func matchesNode(doc value.Value, node value.Value) bool {
	if node.IsNull() {
		return true
	}
	if node.Kind() != value.Object {
		return false
	}
	if node.Len() == 0 {
		return true
	}
	for _, key := range node.Keys() {
		child, _ := node.Get(key)
		var ok bool
		switch key {
		case "$and":
			ok = matchesAnd(doc, child)
		case "$or":
			ok = matchesOr(doc, child)
		case "$not":
			ok = matchesNot(doc, child)
		default:
			ok = matchesField(doc, key, child)
		}
		if !ok {
			return false
		}
	}
	return true
}

func matchesAnd(doc value.Value, clauses value.Value) bool {
	if clauses.Kind() != value.Array {
		return false
	}
	for _, c := range clauses.AsArray() {
		if !matchesNode(doc, c) {
			return false
		}
	}
	return true
}

func matchesOr(doc value.Value, clauses value.Value) bool {
	if clauses.Kind() != value.Array {
		return false
	}
	for _, c := range clauses.AsArray() {
		if matchesNode(doc, c) {
			return true
		}
	}
	return false
}

func matchesNot(doc value.Value, sub value.Value) bool {
	if sub.Kind() == value.Array {
		for _, c := range sub.AsArray() {
			if matchesNode(doc, c) {
				return false
			}
		}
		return true
	}
	return !matchesNode(doc, sub)
}

func matchesField(doc value.Value, fieldPath string, operand value.Value) bool {
	fieldVal, present := path.Get(doc, fieldPath)

	if operand.Kind() == value.Object && isOperatorMap(operand) {
		for _, op := range operand.Keys() {
			arg, _ := operand.Get(op)
			if !matchesOperator(op, fieldVal, present, arg) {
				return false
			}
		}
		return true
	}

	if !present {
		return false
	}
	return equalsOrContains(fieldVal, operand)
}

func isOperatorMap(v value.Value) bool {
	for _, k := range v.Keys() {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return v.Len() > 0
}

func equalsOrContains(fieldVal, literal value.Value) bool {
	if value.Equal(fieldVal, literal) {
		return true
	}
	if fieldVal.Kind() == value.Array {
		for _, e := range fieldVal.AsArray() {
			if value.Equal(e, literal) {
				return true
			}
		}
	}
	return false
}

func matchesOperator(op string, fieldVal value.Value, present bool, arg value.Value) bool {
	switch op {
	case "$exists":
		want := arg.Kind() == value.Bool && arg.AsBool()
		return present == want
	case "$eq":
		return present && equalsOrContains(fieldVal, arg)
	case "$ne":
		return !present || !equalsOrContains(fieldVal, arg)
	case "$gt":
		cmp, ok := compareOrdered(fieldVal, arg)
		return present && ok && cmp > 0
	case "$gte":
		cmp, ok := compareOrdered(fieldVal, arg)
		return present && ok && cmp >= 0
	case "$lt":
		cmp, ok := compareOrdered(fieldVal, arg)
		return present && ok && cmp < 0
	case "$lte":
		cmp, ok := compareOrdered(fieldVal, arg)
		return present && ok && cmp <= 0
	case "$in":
		return present && inSet(fieldVal, arg)
	case "$nin":
		return !present || !inSet(fieldVal, arg)
	case "$regex":
		return present && matchesRegex(fieldVal, arg)
	default:
		return false
	}
}

// compareOrdered returns -1/0/1 for a<b, a==b, a>b along with ok=true, only
// when a and b are the same ordered kind (Number or String). Cross-kind or
// non-ordered-kind comparisons return ok=false.
func compareOrdered(a, b value.Value) (result int, ok bool) {
	if a.Kind() != b.Kind() {
		return 0, false
	}
	switch a.Kind() {
	case value.Number:
		switch {
		case a.AsNumber() < b.AsNumber():
			return -1, true
		case a.AsNumber() > b.AsNumber():
			return 1, true
		default:
			return 0, true
		}
	case value.String:
		switch {
		case a.AsString() < b.AsString():
			return -1, true
		case a.AsString() > b.AsString():
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

func inSet(fieldVal, operands value.Value) bool {
	if operands.Kind() != value.Array {
		return false
	}
	for _, op := range operands.AsArray() {
		if equalsOrContains(fieldVal, op) {
			return true
		}
	}
	return false
}

func matchesRegex(fieldVal, pattern value.Value) bool {
	if fieldVal.Kind() != value.String || pattern.Kind() != value.String {
		return false
	}
	re, err := regexp.Compile(pattern.AsString())
	if err != nil {
		return false
	}
	return re.MatchString(fieldVal.AsString())
}

// ExtractEqualityFields returns the set of field-paths the query pins to
// an exact literal or $eq operand at the top level, used by the index
// planner to detect compound/single-equality candidates. Fields nested
// inside $and are included (at any depth of nested $and); $or and $not
// are opaque to this analysis.
func ExtractEqualityFields(q Query) map[string]value.Value {
	out := make(map[string]value.Value)
	collectEquality(q.raw, out)
	return out
}

func collectEquality(node value.Value, out map[string]value.Value) {
	if node.Kind() != value.Object {
		return
	}
	for _, key := range node.Keys() {
		child, _ := node.Get(key)
		switch key {
		case "$and":
			if child.Kind() == value.Array {
				for _, c := range child.AsArray() {
					collectEquality(c, out)
				}
			}
		case "$or", "$not":
			// opaque to equality extraction
		default:
			if child.Kind() == value.Object && isOperatorMap(child) {
				if eq, ok := child.Get("$eq"); ok {
					out[key] = eq
				}
			} else {
				out[key] = child
			}
		}
	}
}

// EqualitySignature is like ExtractEqualityFields but additionally reports
// whether the query, taken as a whole, is nothing more than a conjunction
// of such equality constraints (no $or/$not anywhere, no operator besides
// $eq). Used by Implies to check whether a filter is provably subsumed by
// another query.
func EqualitySignature(q Query) (fields map[string]value.Value, exact bool) {
	fields = make(map[string]value.Value)
	exact = true
	collectEqualityExact(q.raw, fields, &exact)
	return fields, exact
}

func collectEqualityExact(node value.Value, out map[string]value.Value, exact *bool) {
	if node.Kind() != value.Object {
		return
	}
	for _, key := range node.Keys() {
		child, _ := node.Get(key)
		switch key {
		case "$and":
			if child.Kind() != value.Array {
				*exact = false
				continue
			}
			for _, c := range child.AsArray() {
				collectEqualityExact(c, out, exact)
			}
		case "$or", "$not":
			*exact = false
		default:
			if child.Kind() == value.Object && isOperatorMap(child) {
				if eq, ok := child.Get("$eq"); ok && child.Len() == 1 {
					out[key] = eq
				} else {
					*exact = false
				}
			} else {
				out[key] = child
			}
		}
	}
}

// Implies reports whether every document matching q is guaranteed to also
// satisfy filter. Only the common case of a pure-equality filter is
// recognized; anything filter does with $or, $not, or non-$eq operators
// makes this conservatively false, since it cannot be proven from q's
// equality constraints alone.
func Implies(q Query, filter Query) bool {
	filterEq, exact := EqualitySignature(filter)
	if !exact {
		return false
	}
	qEq := ExtractEqualityFields(q)
	for field, want := range filterEq {
		got, ok := qEq[field]
		if !ok || !value.Equal(got, want) {
			return false
		}
	}
	return true
}

// FieldRequiresPresence reports whether q's top-level clause for field can
// only be satisfied by a document where field is present — i.e. it is not
// one of the absence-tolerant predicates ($ne, $nin, $exists:false) and is
// not simply unreferenced by q. Used to guard sparse indexes: a sparse
// index has no entry for documents missing one of its fields, so it may
// only serve a query when every field it indexes is provably required.
func FieldRequiresPresence(q Query, field string) bool {
	if q.raw.Kind() != value.Object {
		return false
	}
	operand, ok := q.raw.Get(field)
	if !ok {
		return false
	}
	probe := value.NewObject()
	return !matchesField(probe, field, operand)
}

// ExtractLeadingFields returns the field-paths referenced anywhere at the
// top level (including range/$in operators), used to find indexes whose
// leading field participates in the query even without an exact match.
func ExtractLeadingFields(q Query) []string {
	seen := make(map[string]bool)
	var out []string
	if q.raw.Kind() != value.Object {
		return out
	}
	for _, key := range q.raw.Keys() {
		if key == "$and" || key == "$or" || key == "$not" {
			continue
		}
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
