package index

import (
	"testing"

	"github.com/knirvcorp/embeddb/internal/value"
)

func TestSelectPrefersCompoundExactOverSingle(t *testing.T) {
	m := NewManager()
	single, _ := m.Create("by_category", []string{"category"}, Single, Options{})
	compound, _ := m.Create("by_category_stock", []string{"category", "inStock"}, Compound, Options{})

	doc := obj("id", value.NewString("1"), "category", value.NewString("B"), "inStock", value.NewBool(true))
	_ = single.Insert("1", doc)
	_ = compound.Insert("1", doc)

	q := mustParseFilter(`{"category":"B","inStock":true}`)
	plan := m.Select(q, 1)
	if plan.Scan != IndexScan || plan.IndexName != "by_category_stock" {
		t.Fatalf("expected compound index selected, got %+v", plan)
	}
}

func TestSelectFallsBackToFullScan(t *testing.T) {
	m := NewManager()
	q := mustParseFilter(`{"name":"Alice"}`)
	plan := m.Select(q, 1)
	if plan.Scan != FullScan {
		t.Fatalf("expected full scan, got %+v", plan)
	}
}

func TestUpdateDocumentMovesIndexEntry(t *testing.T) {
	m := NewManager()
	idx, _ := m.Create("by_email", []string{"email"}, Unique, Options{})
	old := obj("id", value.NewString("1"), "email", value.NewString("a@x"))
	newDoc := obj("id", value.NewString("1"), "email", value.NewString("b@x"))
	if err := m.InsertDocument("1", old); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateDocument("1", old, newDoc); err != nil {
		t.Fatal(err)
	}
	if ids := idx.Find([]value.Value{value.NewString("a@x")}); len(ids) != 0 {
		t.Fatalf("expected old key cleared, got %v", ids)
	}
	if ids := idx.Find([]value.Value{value.NewString("b@x")}); len(ids) != 1 {
		t.Fatalf("expected new key present, got %v", ids)
	}
}

func TestSelectSkipsPartialIndexWhenFilterNotImplied(t *testing.T) {
	m := NewManager()
	partial := mustParseFilter(`{"active":true}`)
	idx, _ := m.Create("active_last", []string{"lastActive"}, Single, Options{Partial: &partial})

	d1 := obj("id", value.NewString("1"), "active", value.NewBool(true), "v", value.NewNumber(5))
	d2 := obj("id", value.NewString("2"), "active", value.NewBool(false), "v", value.NewNumber(5))
	_ = idx.Insert("1", d1)
	_ = idx.Insert("2", d2)

	q := mustParseFilter(`{"lastActive":{"$gt":0}}`)
	plan := m.Select(q, 2)
	if plan.Scan == IndexScan && plan.IndexName == "active_last" {
		t.Fatalf("expected partial index not selected for a query that doesn't imply its filter, got %+v", plan)
	}
}

func TestSelectUsesPartialIndexWhenFilterIsImplied(t *testing.T) {
	m := NewManager()
	partial := mustParseFilter(`{"active":true}`)
	idx, _ := m.Create("active_last", []string{"lastActive"}, Single, Options{Partial: &partial})

	d1 := obj("id", value.NewString("1"), "active", value.NewBool(true), "lastActive", value.NewNumber(5))
	_ = idx.Insert("1", d1)

	q := mustParseFilter(`{"active":true,"lastActive":5}`)
	plan := m.Select(q, 1)
	if plan.Scan != IndexScan || plan.IndexName != "active_last" {
		t.Fatalf("expected partial index selected when query implies its filter, got %+v", plan)
	}
}

func TestSelectSkipsSparseIndexWhenFieldNotRequiredPresent(t *testing.T) {
	m := NewManager()
	idx, _ := m.Create("by_email", []string{"email"}, Single, Options{Sparse: true})
	d1 := obj("id", value.NewString("1"), "email", value.NewString("a@x"))
	_ = idx.Insert("1", d1)

	// $ne can be satisfied by a document missing the field entirely, so the
	// sparse index (which has no entry for such a document) must not serve it.
	q := mustParseFilter(`{"email":{"$ne":"b@x"}}`)
	plan := m.Select(q, 1)
	if plan.Scan == IndexScan && plan.IndexName == "by_email" {
		t.Fatalf("expected sparse index not selected for a field-absence-tolerant predicate, got %+v", plan)
	}
}

func TestSelectUsesSparseIndexWhenFieldRequiredPresent(t *testing.T) {
	m := NewManager()
	idx, _ := m.Create("by_age", []string{"age"}, Single, Options{Sparse: true})
	d1 := obj("id", value.NewString("1"), "age", value.NewNumber(30))
	_ = idx.Insert("1", d1)

	q := mustParseFilter(`{"age":{"$gt":10}}`)
	plan := m.Select(q, 1)
	if plan.Scan != IndexScan || plan.IndexName != "by_age" {
		t.Fatalf("expected sparse index selected for a presence-requiring predicate, got %+v", plan)
	}
}

func TestInsertDocumentRollsBackOnUniqueViolation(t *testing.T) {
	m := NewManager()
	single, _ := m.Create("by_name", []string{"name"}, Single, Options{})
	unique, _ := m.Create("by_email", []string{"email"}, Unique, Options{})

	doc1 := obj("id", value.NewString("1"), "name", value.NewString("A"), "email", value.NewString("a@x"))
	if err := m.InsertDocument("1", doc1); err != nil {
		t.Fatal(err)
	}
	doc2 := obj("id", value.NewString("2"), "name", value.NewString("B"), "email", value.NewString("a@x"))
	if err := m.InsertDocument("2", doc2); err == nil {
		t.Fatal("expected duplicate key error")
	}
	if ids := single.Find([]value.Value{value.NewString("B")}); len(ids) != 0 {
		t.Fatalf("expected single index rolled back, got %v", ids)
	}
	if ids := unique.Find([]value.Value{value.NewString("a@x")}); len(ids) != 1 {
		t.Fatalf("expected unique index unchanged, got %v", ids)
	}
}
