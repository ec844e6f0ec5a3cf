package resolver

import (
	"testing"

	"github.com/knirvcorp/embeddb/internal/clock"
)

func TestResolveConflictNilCases(t *testing.T) {
	local := &Document{ID: "1", Payload: map[string]any{"data": "local"}}
	if ResolveConflict(local, nil) != local {
		t.Error("expected local when remote is nil")
	}
	if ResolveConflict(nil, local) != local {
		t.Error("expected remote returned when local is nil")
	}
}

func TestResolveConflictAfterWins(t *testing.T) {
	v1 := clock.VectorClock{"a": 1}
	v2 := clock.VectorClock{"a": 2}
	doc1 := &Document{ID: "1", Vector: v1, Timestamp: 100, PeerID: "a"}
	doc2 := &Document{ID: "1", Vector: v2, Timestamp: 200, PeerID: "b"}

	result := ResolveConflict(doc1, doc2)
	if result.Vector["a"] != 2 {
		t.Error("expected higher vector clock to win")
	}
}

func TestResolveConflictConcurrentTimestampTiebreak(t *testing.T) {
	doc1 := &Document{ID: "1", Vector: clock.VectorClock{"p1": 2, "p2": 1}, Timestamp: 100, PeerID: "p1", Payload: map[string]any{"name": "P1"}}
	doc2 := &Document{ID: "1", Vector: clock.VectorClock{"p1": 1, "p2": 2}, Timestamp: 200, PeerID: "p2", Payload: map[string]any{"age": 42}}

	winner := ResolveConflict(doc1, doc2)
	if winner.Payload["name"] != "P1" || winner.Payload["age"] != 42 {
		t.Errorf("expected merged fields from both, got %+v", winner.Payload)
	}
	if winner.Vector["p1"] != 2 || winner.Vector["p2"] != 2 {
		t.Errorf("expected pointwise-max merged vector, got %+v", winner.Vector)
	}
}

func TestResolveConflictDeletionTombstone(t *testing.T) {
	local := &Document{ID: "1", Vector: clock.VectorClock{"a": 1}, Deleted: false}
	remote := &Document{ID: "1", Vector: clock.VectorClock{"a": 2}, Deleted: true}
	result := ResolveConflict(local, remote)
	if !result.Deleted {
		t.Error("expected tombstone to win when not strictly before")
	}
}

func TestApplyOperationInsert(t *testing.T) {
	op := Operation{
		Kind:       OpInsert,
		DocumentID: "1",
		Data:       map[string]any{"data": "test"},
		Vector:     clock.VectorClock{"a": 1},
	}
	result := ApplyOperation(nil, op)
	if result == nil || result.ID != "1" {
		t.Fatal("insert operation failed")
	}
}

func TestApplyOperationUpdateMergesFields(t *testing.T) {
	doc := &Document{ID: "1", Vector: clock.VectorClock{"a": 1}}
	op := Operation{
		Kind:   OpUpdate,
		Data:   map[string]any{"data": "updated"},
		Vector: clock.VectorClock{"a": 2},
	}
	result := ApplyOperation(doc, op)
	if result.Payload["data"] != "updated" {
		t.Fatal("update operation failed")
	}
}

func TestApplyOperationDelete(t *testing.T) {
	doc := &Document{ID: "1", Vector: clock.VectorClock{"a": 1}}
	op := Operation{Kind: OpDelete, Vector: clock.VectorClock{"a": 3}}
	result := ApplyOperation(doc, op)
	if !result.Deleted {
		t.Fatal("delete operation failed")
	}
}

func TestApplyOperationIgnoresStaleOp(t *testing.T) {
	doc := &Document{ID: "1", Vector: clock.VectorClock{"a": 5}, Payload: map[string]any{"x": 1}}
	op := Operation{Kind: OpUpdate, Data: map[string]any{"x": 2}, Vector: clock.VectorClock{"a": 1}}
	result := ApplyOperation(doc, op)
	if result.Payload["x"] != 1 {
		t.Fatal("expected stale operation to be ignored")
	}
}

func TestNewDocumentStampsVector(t *testing.T) {
	payload := map[string]any{"id": "1", "data": "test"}
	doc := NewDocument(payload, "peer1")
	if doc.ID != "1" || doc.PeerID != "peer1" {
		t.Fatal("NewDocument failed")
	}
	if doc.Vector["peer1"] != 1 {
		t.Fatal("vector clock not set correctly")
	}
}

func TestToPayloadNilSafe(t *testing.T) {
	if ToPayload(nil) != nil {
		t.Fatal("expected nil payload for nil document")
	}
	doc := &Document{Payload: map[string]any{"data": "test"}}
	if ToPayload(doc)["data"] != "test" {
		t.Fatal("ToPayload failed")
	}
}
