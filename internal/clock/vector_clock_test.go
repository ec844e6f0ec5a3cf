package clock

import "testing"

func TestIncrementAllocatesNilClock(t *testing.T) {
	var v VectorClock
	v = Increment(v, "peer1")
	if v["peer1"] != 1 {
		t.Fatalf("expected 1, got %d", v["peer1"])
	}
	v = Increment(v, "peer1")
	if v["peer1"] != 2 {
		t.Fatalf("expected 2, got %d", v["peer1"])
	}
}

func TestMergeTakesPointwiseMax(t *testing.T) {
	a := VectorClock{"a": 1, "b": 2}
	b := VectorClock{"a": 3, "c": 4}
	merged := Merge(a, b)
	if merged["a"] != 3 || merged["b"] != 2 || merged["c"] != 4 {
		t.Fatalf("unexpected merge result: %v", merged)
	}
}

func TestCompare(t *testing.T) {
	a := VectorClock{"a": 1, "b": 2}

	equal := VectorClock{"a": 1, "b": 2}
	if Compare(a, equal) != Equal {
		t.Fatal("expected Equal")
	}

	ahead := VectorClock{"a": 2, "b": 2}
	if Compare(a, ahead) != Before {
		t.Fatal("expected Before")
	}

	behind := VectorClock{"a": 0, "b": 2}
	if Compare(a, behind) != After {
		t.Fatal("expected After")
	}

	diverged := VectorClock{"a": 2, "b": 1}
	if Compare(a, diverged) != Concurrent {
		t.Fatal("expected Concurrent")
	}
}

func TestCloneIsIndependentCopy(t *testing.T) {
	v := VectorClock{"a": 1, "b": 2}
	cloned := Clone(v)
	if cloned["a"] != 1 || cloned["b"] != 2 {
		t.Fatalf("unexpected clone: %v", cloned)
	}
	cloned["a"] = 3
	if v["a"] != 1 {
		t.Fatal("expected original clock to be unaffected by mutating the clone")
	}
}

func TestCloneNilIsNil(t *testing.T) {
	var v VectorClock
	if Clone(v) != nil {
		t.Fatal("expected clone of a nil clock to be nil")
	}
}
