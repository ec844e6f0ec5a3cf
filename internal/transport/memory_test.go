package transport

import (
	"testing"
	"time"
)

func TestBroadcastReachesOtherPeersOnly(t *testing.T) {
	hub := NewHub()
	a := hub.NewTransport("peer-a")
	b := hub.NewTransport("peer-b")
	a.JoinNetwork("net1")
	b.JoinNetwork("net1")

	received := make(chan Message, 1)
	b.Register(MsgOperation, func(msg Message) { received <- msg })
	a.Register(MsgOperation, func(msg Message) { t.Fatal("sender should not receive its own broadcast") })

	if err := a.Broadcast("net1", Message{Type: MsgOperation, NetworkID: "net1"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case msg := <-received:
		if msg.SenderID != "peer-a" {
			t.Fatalf("expected sender peer-a, got %s", msg.SenderID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
	}
}

func TestSendTargetsSinglePeer(t *testing.T) {
	hub := NewHub()
	a := hub.NewTransport("peer-a")
	b := hub.NewTransport("peer-b")
	c := hub.NewTransport("peer-c")
	for _, p := range []*InMemoryTransport{a, b, c} {
		p.JoinNetwork("net1")
	}

	received := make(chan struct{}, 1)
	b.Register(MsgSyncRequest, func(msg Message) { received <- struct{}{} })
	c.Register(MsgSyncRequest, func(msg Message) { t.Fatal("peer-c should not receive a direct send to peer-b") })

	if err := a.Send("peer-b", "net1", Message{Type: MsgSyncRequest}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for direct delivery")
	}
}

func TestListPeersExcludesSelf(t *testing.T) {
	hub := NewHub()
	a := hub.NewTransport("peer-a")
	b := hub.NewTransport("peer-b")
	a.JoinNetwork("net1")
	b.JoinNetwork("net1")

	peers := a.ListPeers("net1")
	if len(peers) != 1 || peers[0] != "peer-b" {
		t.Fatalf("expected [peer-b], got %v", peers)
	}
}
