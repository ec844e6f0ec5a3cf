package transport

import "sync"

// Hub is the shared medium a set of in-memory transports register with.
// It exists only for tests and single-process demos; a real deployment
// would replace it with a TCP/DHT/pubsub-backed Transport.
type Hub struct {
	mu       sync.RWMutex
	peers    map[string]*InMemoryTransport
	networks map[string]map[string]bool // networkID -> peerID set
}

func NewHub() *Hub {
	return &Hub{
		peers:    make(map[string]*InMemoryTransport),
		networks: make(map[string]map[string]bool),
	}
}

// NewTransport registers a new peer on the hub and returns its Transport.
func (h *Hub) NewTransport(peerID string) *InMemoryTransport {
	t := &InMemoryTransport{
		hub:      h,
		peerID:   peerID,
		handlers: make(map[MessageType][]Handler),
		events:   make(chan Event, 64),
	}
	h.mu.Lock()
	h.peers[peerID] = t
	h.mu.Unlock()
	return t
}

func (h *Hub) joinNetwork(networkID, peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.networks[networkID] == nil {
		h.networks[networkID] = make(map[string]bool)
	}
	h.networks[networkID][peerID] = true
}

func (h *Hub) peersIn(networkID string) []*InMemoryTransport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*InMemoryTransport
	for id := range h.networks[networkID] {
		if t, ok := h.peers[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// InMemoryTransport is a reference Transport implementation: messages
// are delivered synchronously in-process through the owning Hub,
// skipping any real network or serialization boundary.
type InMemoryTransport struct {
	hub    *Hub
	peerID string

	mu       sync.RWMutex
	handlers map[MessageType][]Handler
	events   chan Event
}

// JoinNetwork makes this peer visible to Broadcast/ListPeers for networkID.
func (t *InMemoryTransport) JoinNetwork(networkID string) {
	t.hub.joinNetwork(networkID, t.peerID)
}

func (t *InMemoryTransport) PeerID() string { return t.peerID }

func (t *InMemoryTransport) Broadcast(networkID string, msg Message) error {
	msg.SenderID = t.peerID
	for _, peer := range t.hub.peersIn(networkID) {
		if peer.peerID == t.peerID {
			continue
		}
		peer.deliver(msg)
	}
	return nil
}

func (t *InMemoryTransport) Send(peerID, networkID string, msg Message) error {
	msg.SenderID = t.peerID
	t.hub.mu.RLock()
	peer, ok := t.hub.peers[peerID]
	t.hub.mu.RUnlock()
	if !ok {
		return nil
	}
	peer.deliver(msg)
	return nil
}

func (t *InMemoryTransport) Register(msgType MessageType, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[msgType] = append(t.handlers[msgType], handler)
}

func (t *InMemoryTransport) ListPeers(networkID string) []string {
	peers := t.hub.peersIn(networkID)
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		if p.peerID != t.peerID {
			out = append(out, p.peerID)
		}
	}
	return out
}

func (t *InMemoryTransport) Events() <-chan Event {
	return t.events
}

func (t *InMemoryTransport) deliver(msg Message) {
	t.mu.RLock()
	handlers := append([]Handler(nil), t.handlers[msg.Type]...)
	t.mu.RUnlock()

	m := msg
	select {
	case t.events <- Event{Kind: EventMessageReceived, PeerID: msg.SenderID, Message: &m}:
	default:
	}
	for _, h := range handlers {
		h(msg)
	}
}
