package resolver

import "github.com/knirvcorp/embeddb/internal/clock"

// OperationKind discriminates the three replicable unit kinds.
type OperationKind int

const (
	OpInsert OperationKind = iota
	OpUpdate
	OpDelete
)

// Operation is a replicable unit of change in the sync protocol: an
// identifier, kind, collection name, document ID, payload (for
// INSERT/UPDATE), vector clock snapshot, wall-clock timestamp, and
// originating peer ID.
type Operation struct {
	ID         string
	Kind       OperationKind
	Collection string
	DocumentID string
	Data       map[string]any
	Vector     clock.VectorClock
	Timestamp  int64
	PeerID     string
}
