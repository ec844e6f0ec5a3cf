package index

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/knirvcorp/embeddb/internal/dberrors"
	"github.com/knirvcorp/embeddb/internal/query"
	"github.com/knirvcorp/embeddb/internal/value"
)

func mustParseFilter(jsonStr string) query.Query {
	var raw any
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		panic(err)
	}
	return query.Parse(value.FromJSON(raw))
}

func obj(pairs ...any) value.Value {
	o := value.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o = o.Set(pairs[i].(string), pairs[i+1].(value.Value))
	}
	return o
}

func TestSingleIndexFind(t *testing.T) {
	idx := New("by_email", []string{"email"}, Single, Options{}, 0)
	doc := obj("id", value.NewString("1"), "email", value.NewString("a@x"))
	if err := idx.Insert("1", doc); err != nil {
		t.Fatal(err)
	}
	ids := idx.Find([]value.Value{value.NewString("a@x")})
	if len(ids) != 1 || ids[0] != "1" {
		t.Fatalf("expected [1], got %v", ids)
	}
}

func TestUniqueIndexRejectsDuplicate(t *testing.T) {
	idx := New("by_email", []string{"email"}, Unique, Options{}, 0)
	doc1 := obj("id", value.NewString("1"), "email", value.NewString("a@x"))
	doc2 := obj("id", value.NewString("2"), "email", value.NewString("a@x"))
	if err := idx.Insert("1", doc1); err != nil {
		t.Fatal(err)
	}
	err := idx.Insert("2", doc2)
	if err == nil {
		t.Fatal("expected DuplicateKey error")
	}
	if !errors.Is(err, dberrors.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestMultiValuedIndexesEachElement(t *testing.T) {
	idx := New("by_tag", []string{"tags"}, MultiValued, Options{}, 0)
	doc := obj("id", value.NewString("1"), "tags", value.NewArray(value.NewString("a"), value.NewString("b")))
	if err := idx.Insert("1", doc); err != nil {
		t.Fatal(err)
	}
	if ids := idx.Find([]value.Value{value.NewString("a")}); len(ids) != 1 {
		t.Fatalf("expected doc indexed under tag a, got %v", ids)
	}
	if ids := idx.Find([]value.Value{value.NewString("b")}); len(ids) != 1 {
		t.Fatalf("expected doc indexed under tag b, got %v", ids)
	}
}

func TestSparseSkipsMissingField(t *testing.T) {
	idx := New("by_email", []string{"email"}, Single, Options{Sparse: true}, 0)
	doc := obj("id", value.NewString("1"))
	if err := idx.Insert("1", doc); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected sparse skip, len=%d", idx.Len())
	}
}

func TestPartialIndexMembershipTransitions(t *testing.T) {
	filter := mustParseFilter(`{"active":true}`)
	idx := New("active_last", []string{"lastActive"}, Single, Options{Partial: &filter}, 0)

	d1 := obj("id", value.NewString("1"), "active", value.NewBool(true), "lastActive", value.NewNumber(1))
	d2 := obj("id", value.NewString("2"), "active", value.NewBool(true), "lastActive", value.NewNumber(2))
	d3 := obj("id", value.NewString("3"), "active", value.NewBool(false), "lastActive", value.NewNumber(3))

	for _, d := range []value.Value{d1, d2, d3} {
		id, _ := d.Get("id")
		if err := idx.Insert(id.AsString(), d); err != nil {
			t.Fatal(err)
		}
	}
	if countIDs(idx) != 2 {
		t.Fatalf("expected 2 members, got %d", countIDs(idx))
	}

	d2Off := obj("id", value.NewString("2"), "active", value.NewBool(false), "lastActive", value.NewNumber(2))
	if err := idx.Update("2", d2, d2Off); err != nil {
		t.Fatal(err)
	}
	if countIDs(idx) != 1 {
		t.Fatalf("expected 1 member after turning off active, got %d", countIDs(idx))
	}

	d3On := obj("id", value.NewString("3"), "active", value.NewBool(true), "lastActive", value.NewNumber(3))
	if err := idx.Update("3", d3, d3On); err != nil {
		t.Fatal(err)
	}
	if countIDs(idx) != 2 {
		t.Fatalf("expected 2 members after turning on active, got %d", countIDs(idx))
	}
}

func countIDs(idx *Index) int {
	seen := map[string]struct{}{}
	for _, k := range idx.tree.AllKeys() {
		for _, id := range idx.tree.Find(k) {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
