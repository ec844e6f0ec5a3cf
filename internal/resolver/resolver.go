// Package resolver implements the CRDT conflict resolver: given two
// versions of the same document (each carrying a vector clock, wall-clock
// timestamp, and originating peer ID), it decides which survives or how
// they merge, and applies incoming Operations to local documents.
package resolver

import (
	"time"

	"github.com/knirvcorp/embeddb/internal/clock"
)

// Document is the distributed envelope around a plain payload: the
// document's field map plus replication metadata.
type Document struct {
	ID        string
	Payload   map[string]any
	Vector    clock.VectorClock
	Timestamp int64
	PeerID    string
	Deleted   bool
}

// ResolveConflict decides, given two Documents for the same ID, which one
// survives or how to merge them, per spec.md 4.13.
func ResolveConflict(local, remote *Document) *Document {
	if remote == nil {
		return local
	}
	if local == nil {
		return remote
	}

	if remote.Deleted && !local.Deleted {
		// Tombstone (remote) wins iff its clock is not strictly before
		// the other's.
		if clock.Compare(remote.Vector, local.Vector) != clock.Before {
			return remote
		}
		return local
	}
	if local.Deleted && !remote.Deleted {
		if clock.Compare(local.Vector, remote.Vector) != clock.Before {
			return local
		}
		return remote
	}

	switch clock.Compare(local.Vector, remote.Vector) {
	case clock.After:
		return local
	case clock.Before:
		return remote
	case clock.Equal:
		return local
	case clock.Concurrent:
		if local.Timestamp > remote.Timestamp {
			return mergeDocuments(local, remote)
		}
		if local.Timestamp < remote.Timestamp {
			return mergeDocuments(remote, local)
		}
		if local.PeerID >= remote.PeerID {
			return mergeDocuments(local, remote)
		}
		return mergeDocuments(remote, local)
	default:
		return local
	}
}

// mergeDocuments builds the winner's document, absorbing any
// non-conflicting fields present only in the loser's payload, and
// advancing the clock to the pointwise max of both.
func mergeDocuments(winner, loser *Document) *Document {
	merged := *winner
	merged.Vector = clock.Merge(winner.Vector, loser.Vector)
	merged.Payload = cloneMap(winner.Payload)
	for k, v := range loser.Payload {
		if _, ok := merged.Payload[k]; !ok {
			merged.Payload[k] = v
		}
	}
	return &merged
}

// ApplyOperation applies op to doc (nil if the document does not yet
// exist locally), returning the resulting Document. Stale operations
// whose clock is strictly dominated by the current document are ignored.
func ApplyOperation(doc *Document, op Operation) *Document {
	switch op.Kind {
	case OpInsert, OpUpdate:
		if doc == nil {
			if op.Data == nil {
				return nil
			}
			return &Document{
				ID:        op.DocumentID,
				Payload:   cloneMap(op.Data),
				Vector:    clock.Clone(op.Vector),
				Timestamp: op.Timestamp,
				PeerID:    op.PeerID,
			}
		}
		comp := clock.Compare(doc.Vector, op.Vector)
		if comp == clock.Before || comp == clock.Concurrent {
			if doc.Payload == nil {
				doc.Payload = make(map[string]any)
			}
			for k, v := range op.Data {
				doc.Payload[k] = v
			}
			doc.Vector = clock.Merge(doc.Vector, op.Vector)
			if op.Timestamp > doc.Timestamp {
				doc.Timestamp = op.Timestamp
			}
		}
		return doc

	case OpDelete:
		if doc == nil {
			return nil
		}
		comp := clock.Compare(doc.Vector, op.Vector)
		if comp == clock.Before || comp == clock.Concurrent {
			doc.Deleted = true
			doc.Vector = clock.Merge(doc.Vector, op.Vector)
			if op.Timestamp > doc.Timestamp {
				doc.Timestamp = op.Timestamp
			}
		}
		return doc

	default:
		return doc
	}
}

// NewDocument builds a fresh Document for a locally-originated payload,
// stamping a single-peer vector clock and the current wall time.
func NewDocument(payload map[string]any, peerID string) *Document {
	v := clock.NewVectorClock()
	v[peerID] = 1
	id, _ := payload["id"].(string)
	return &Document{
		ID:        id,
		Payload:   cloneMap(payload),
		Vector:    v,
		Timestamp: time.Now().UnixMilli(),
		PeerID:    peerID,
	}
}

// ToPayload strips replication metadata, returning the plain field map.
func ToPayload(doc *Document) map[string]any {
	if doc == nil {
		return nil
	}
	return cloneMap(doc.Payload)
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
