package value

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEqualScalars(t *testing.T) {
	if !Equal(NewNumber(1), NewNumber(1)) {
		t.Error("expected 1 == 1")
	}
	if Equal(NewNumber(1), NewNumber(2)) {
		t.Error("expected 1 != 2")
	}
	nan := NewNumber(math.NaN())
	if Equal(nan, nan) {
		t.Error("NaN must not equal itself")
	}
	if !Equal(NewString("a"), NewString("a")) {
		t.Error("expected strings equal")
	}
	if Equal(NewNull(), NewBool(false)) {
		t.Error("Null must not equal false")
	}
}

func TestEqualObjectsIgnoreOrder(t *testing.T) {
	a := NewObject().Set("x", NewNumber(1)).Set("y", NewNumber(2))
	b := NewObject().Set("y", NewNumber(2)).Set("x", NewNumber(1))
	if !Equal(a, b) {
		t.Error("objects with same fields in different insertion order should be equal")
	}
}

func TestObjectPreservesInsertionOrder(t *testing.T) {
	o := NewObject().Set("z", NewNumber(1)).Set("a", NewNumber(2))
	want := []string{"z", "a"}
	if diff := cmp.Diff(want, o.Keys()); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}
}

func TestSetCopyOnWrite(t *testing.T) {
	a := NewObject().Set("x", NewNumber(1))
	b := a.Set("x", NewNumber(2))
	av, _ := a.Get("x")
	if av.AsNumber() != 1 {
		t.Error("original object mutated by Set")
	}
	bv, _ := b.Get("x")
	if bv.AsNumber() != 2 {
		t.Error("new object missing updated field")
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a := NewObject().Set("b", NewNumber(1)).Set("a", NewNumber(2))
	got := CanonicalJSON(a)
	want := `{"a":2,"b":1}`
	if got != want {
		t.Errorf("CanonicalJSON = %q, want %q", got, want)
	}
}

func TestFromJSONToJSONRoundTrip(t *testing.T) {
	in := map[string]any{"a": float64(1), "b": "s", "c": []any{float64(1), true, nil}}
	v := FromJSON(in)
	out := ToJSON(v)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentGeneratesID(t *testing.T) {
	d := NewDocument(NewObject().Set("name", NewString("Alice")))
	id := d.ID()
	if id.Kind() != String || id.AsString() == "" {
		t.Errorf("expected generated string id, got %#v", id)
	}
}

func TestDocumentKeepsExplicitID(t *testing.T) {
	d := NewDocument(NewObject().Set("id", NewString("1")).Set("name", NewString("Alice")))
	if d.IDString() != "1" {
		t.Errorf("expected id 1, got %s", d.IDString())
	}
}

func TestToJSONViewStripsEnvelopes(t *testing.T) {
	obj := NewObject().Set("id", NewString("1")).Set("name", NewString("Alice")).
		Set(FieldVector, NewObject()).Set(FieldDeleted, NewBool(true))
	d := WithValue(obj)
	view := d.ToJSONView()
	if _, ok := view.Get(FieldVector); ok {
		t.Error("expected _vector stripped from view")
	}
	if _, ok := view.Get("name"); !ok {
		t.Error("expected name preserved in view")
	}
}

func TestIsDeleted(t *testing.T) {
	d := WithValue(NewObject().Set(FieldDeleted, NewBool(true)))
	if !d.IsDeleted() {
		t.Error("expected deleted true")
	}
	d2 := WithValue(NewObject())
	if d2.IsDeleted() {
		t.Error("expected deleted false by default")
	}
}
