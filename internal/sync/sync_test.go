package sync

import (
	"context"
	"testing"
	"time"

	"github.com/knirvcorp/embeddb/internal/collection"
	"github.com/knirvcorp/embeddb/internal/transport"
	"github.com/knirvcorp/embeddb/internal/value"
)

func newEngine(t *testing.T, hub *transport.Hub, peerID string) (*Engine, *collection.Collection) {
	t.Helper()
	c, err := collection.New("notes")
	if err != nil {
		t.Fatalf("collection.New: %v", err)
	}
	tp := hub.NewTransport(peerID)
	e := NewEngine(c, "notes", "net1", tp)
	return e, c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestInsertBroadcastsToPeer(t *testing.T) {
	ctx := context.Background()
	hub := transport.NewHub()
	e1, _ := newEngine(t, hub, "peer-1")
	_, c2 := newEngine(t, hub, "peer-2")

	doc := value.NewObject().Set("id", value.NewString("n1")).Set("title", value.NewString("hello"))
	if _, err := e1.Insert(ctx, doc); err != nil {
		t.Fatalf("insert: %v", err)
	}

	waitFor(t, func() bool {
		result, _ := c2.FindOne(ctx, value.NewObject().Set("id", value.NewString("n1")))
		return !result.IsNull()
	})
}

func TestUpdateConvergesAcrossPeers(t *testing.T) {
	ctx := context.Background()
	hub := transport.NewHub()
	e1, c1 := newEngine(t, hub, "peer-1")
	_, c2 := newEngine(t, hub, "peer-2")

	doc := value.NewObject().Set("id", value.NewString("n1")).Set("count", value.NewNumber(1))
	if _, err := e1.Insert(ctx, doc); err != nil {
		t.Fatalf("insert: %v", err)
	}
	waitFor(t, func() bool {
		r, _ := c2.FindOne(ctx, value.NewObject().Set("id", value.NewString("n1")))
		return !r.IsNull()
	})

	if _, err := e1.Update(ctx, value.NewObject().Set("id", value.NewString("n1")),
		value.NewObject().Set("$inc", value.NewObject().Set("count", value.NewNumber(9)))); err != nil {
		t.Fatalf("update: %v", err)
	}

	waitFor(t, func() bool {
		r, _ := c2.FindOne(ctx, value.NewObject().Set("id", value.NewString("n1")))
		if r.IsNull() {
			return false
		}
		v, _ := r.Get("count")
		return v.AsNumber() == 10
	})

	localResult, _ := c1.FindOne(ctx, value.NewObject().Set("id", value.NewString("n1")))
	v, _ := localResult.Get("count")
	if v.AsNumber() != 10 {
		t.Fatalf("expected local count 10, got %v", v.AsNumber())
	}
}

func TestDeletePropagatesToPeer(t *testing.T) {
	ctx := context.Background()
	hub := transport.NewHub()
	e1, _ := newEngine(t, hub, "peer-1")
	_, c2 := newEngine(t, hub, "peer-2")

	doc := value.NewObject().Set("id", value.NewString("n1"))
	if _, err := e1.Insert(ctx, doc); err != nil {
		t.Fatalf("insert: %v", err)
	}
	waitFor(t, func() bool {
		r, _ := c2.FindOne(ctx, value.NewObject().Set("id", value.NewString("n1")))
		return !r.IsNull()
	})

	if _, err := e1.Delete(ctx, value.NewObject().Set("id", value.NewString("n1"))); err != nil {
		t.Fatalf("delete: %v", err)
	}

	waitFor(t, func() bool {
		r, _ := c2.FindOne(ctx, value.NewObject().Set("id", value.NewString("n1")))
		return r.IsNull()
	})
}

func TestRequestSyncClearsFlagOnResponse(t *testing.T) {
	hub := transport.NewHub()
	e1, _ := newEngine(t, hub, "peer-1")
	newEngine(t, hub, "peer-2")

	e1.RequestSync("peer-2")
	waitFor(t, func() bool { return !e1.SyncInProgress("peer-2") })
}
