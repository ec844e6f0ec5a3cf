package update

import (
	"testing"

	"github.com/knirvcorp/embeddb/internal/value"
)

func obj(pairs ...any) value.Value {
	o := value.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o = o.Set(pairs[i].(string), pairs[i+1].(value.Value))
	}
	return o
}

func mustApply(t *testing.T, doc, upd value.Value) value.Value {
	t.Helper()
	out, err := Apply(doc, upd)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	return out
}

func TestSet(t *testing.T) {
	doc := obj("age", value.NewNumber(30))
	out := mustApply(t, doc, obj("$set", obj("age", value.NewNumber(31))))
	v, _ := out.Get("age")
	if v.AsNumber() != 31 {
		t.Fatalf("expected 31, got %v", v.AsNumber())
	}
}

func TestIncAbsentTreatedAsZero(t *testing.T) {
	doc := obj()
	out := mustApply(t, doc, obj("$inc", obj("count", value.NewNumber(5))))
	v, _ := out.Get("count")
	if v.AsNumber() != 5 {
		t.Fatalf("expected 5, got %v", v.AsNumber())
	}
}

func TestMulAbsentSetsZero(t *testing.T) {
	doc := obj()
	out := mustApply(t, doc, obj("$mul", obj("count", value.NewNumber(5))))
	v, _ := out.Get("count")
	if v.AsNumber() != 0 {
		t.Fatalf("expected 0, got %v", v.AsNumber())
	}
}

func TestMinMaxIdempotent(t *testing.T) {
	doc := obj("score", value.NewNumber(10))
	upd := obj("$min", obj("score", value.NewNumber(5)))
	once := mustApply(t, doc, upd)
	twice := mustApply(t, once, upd)
	if !value.Equal(once, twice) {
		t.Fatal("expected $min idempotent")
	}
	v, _ := once.Get("score")
	if v.AsNumber() != 5 {
		t.Fatalf("expected 5, got %v", v.AsNumber())
	}
}

func TestPushCreatesArray(t *testing.T) {
	doc := obj()
	out := mustApply(t, doc, obj("$push", obj("tags", value.NewString("a"))))
	v, _ := out.Get("tags")
	if v.Kind() != value.Array || len(v.AsArray()) != 1 {
		t.Fatalf("expected array of 1, got %#v", v)
	}
}

func TestPullRemovesMatching(t *testing.T) {
	doc := obj("tags", value.NewArray(value.NewString("a"), value.NewString("b"), value.NewString("a")))
	out := mustApply(t, doc, obj("$pull", obj("tags", value.NewString("a"))))
	v, _ := out.Get("tags")
	if len(v.AsArray()) != 1 || v.AsArray()[0].AsString() != "b" {
		t.Fatalf("expected [b], got %#v", v)
	}
}

func TestAddToSetIdempotent(t *testing.T) {
	doc := obj("tags", value.NewArray(value.NewString("a")))
	upd := obj("$addToSet", obj("tags", value.NewString("a")))
	out := mustApply(t, doc, upd)
	out2 := mustApply(t, out, upd)
	if !value.Equal(out, out2) {
		t.Fatal("expected $addToSet idempotent")
	}
	v, _ := out.Get("tags")
	if len(v.AsArray()) != 1 {
		t.Fatalf("expected single element, got %#v", v)
	}
}

func TestRenameMovesField(t *testing.T) {
	doc := obj("old", value.NewNumber(1))
	out := mustApply(t, doc, obj("$rename", obj("old", value.NewString("new"))))
	if _, ok := out.Get("old"); ok {
		t.Fatal("expected old field removed")
	}
	v, ok := out.Get("new")
	if !ok || v.AsNumber() != 1 {
		t.Fatalf("expected new field = 1, got %#v ok=%v", v, ok)
	}
}

func TestRenameAbsentIsNoOp(t *testing.T) {
	doc := obj("x", value.NewNumber(1))
	out := mustApply(t, doc, obj("$rename", obj("missing", value.NewString("y"))))
	if !value.Equal(doc, out) {
		t.Fatal("expected no-op rename of absent field")
	}
}

func TestConflictingOperatorsRejected(t *testing.T) {
	doc := obj("x", value.NewNumber(1))
	upd := value.NewObject().
		Set("$set", obj("x", value.NewNumber(2))).
		Set("$inc", obj("x", value.NewNumber(1)))
	if _, err := Apply(doc, upd); err == nil {
		t.Fatal("expected error for conflicting operators on same field")
	}
}

func TestUnknownOperatorRejected(t *testing.T) {
	doc := obj()
	upd := obj("$bogus", obj("x", value.NewNumber(1)))
	if _, err := Apply(doc, upd); err == nil {
		t.Fatal("expected error for unknown operator")
	}
}
