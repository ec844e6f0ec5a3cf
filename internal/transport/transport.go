// Package transport defines the collaborator the sync engine requires
// (spec.md 6.3): peer identity, broadcast/send, handler registration,
// peer listing, and a connect/disconnect/message event stream. The
// engine is agnostic to wire format; messages are exchanged as the
// Message struct below and a real implementation would marshal Payload
// as JSON.
package transport

// MessageType discriminates the sync engine's wire protocol messages
// (spec.md 4.14).
type MessageType string

const (
	MsgOperation          MessageType = "OPERATION"
	MsgSyncRequest        MessageType = "SYNC_REQUEST"
	MsgSyncResponse       MessageType = "SYNC_RESPONSE"
	MsgCollectionAnnounce MessageType = "COLLECTION_ANNOUNCE"
	MsgCollectionRequest  MessageType = "COLLECTION_REQUEST"
	MsgHeartbeat          MessageType = "HEARTBEAT"
)

// Message is the envelope exchanged between peers.
type Message struct {
	Type      MessageType
	NetworkID string
	SenderID  string
	Timestamp int64
	Payload   map[string]any
}

// Handler receives messages of the type it was registered for.
type Handler func(msg Message)

// EventKind discriminates entries on a Transport's event stream.
type EventKind string

const (
	EventPeerConnect     EventKind = "peer-connect"
	EventPeerDisconnect  EventKind = "peer-disconnect"
	EventMessageReceived EventKind = "message-received"
)

// Event is a single entry on a Transport's event stream.
type Event struct {
	Kind    EventKind
	PeerID  string
	Message *Message
}

// Transport is the collaborator the sync engine depends on. Networks
// are named by networkID; a Transport implementation decides how peers
// discover and join one.
type Transport interface {
	PeerID() string
	Broadcast(networkID string, msg Message) error
	Send(peerID, networkID string, msg Message) error
	Register(msgType MessageType, handler Handler)
	ListPeers(networkID string) []string
	Events() <-chan Event
}
