// Package sync implements the replication engine of spec.md 4.14: a
// per-Collection operation log, vector-clock bookkeeping, OPERATION
// broadcast on local mutation, and a pull-sync handshake for catching a
// peer up after a partition. It is grounded on the teacher's
// DistributedCollection, re-pointed at the internal/transport and
// internal/resolver contracts instead of the teacher's network/storage
// packages.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/knirvcorp/embeddb/internal/clock"
	"github.com/knirvcorp/embeddb/internal/collection"
	"github.com/knirvcorp/embeddb/internal/logging"
	"github.com/knirvcorp/embeddb/internal/monitoring"
	"github.com/knirvcorp/embeddb/internal/resolver"
	"github.com/knirvcorp/embeddb/internal/transport"
	"github.com/knirvcorp/embeddb/internal/value"
)

// quietTimeout is how long a pull-sync waits for a SYNC_RESPONSE before
// abandoning it, per spec.md 4.14.
const quietTimeout = 10 * time.Second

// defaultMaxLogSize bounds the operation log; the oldest entries are
// dropped once exceeded.
const defaultMaxLogSize = 1000

// heartbeatInterval is how often an Engine broadcasts HEARTBEAT while
// running. The teacher declares the HEARTBEAT message type but never
// sends one; this wires an actual periodic send.
const heartbeatInterval = 30 * time.Second

// Engine attaches replication to a single Collection within one network.
type Engine struct {
	coll           *collection.Collection
	collectionName string
	networkID      string
	transport      transport.Transport
	peerID         string
	maxLogSize     int

	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu             sync.Mutex
	localVector    clock.VectorClock
	log            []resolver.Operation
	docMeta        map[string]*resolver.Document
	syncInProgress map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithMaxLogSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLogSize = n
		}
	}
}

// NewEngine attaches replication for coll to networkID over tp, joining
// the network and registering protocol message handlers.
func NewEngine(coll *collection.Collection, collectionName, networkID string, tp transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		coll:           coll,
		collectionName: collectionName,
		networkID:      networkID,
		transport:      tp,
		peerID:         tp.PeerID(),
		maxLogSize:     defaultMaxLogSize,
		localVector:    clock.NewVectorClock(),
		docMeta:        make(map[string]*resolver.Document),
		syncInProgress: make(map[string]bool),
		stopCh:         make(chan struct{}),
	}
	for _, apply := range opts {
		apply(e)
	}

	if hj, ok := tp.(interface{ JoinNetwork(string) }); ok {
		hj.JoinNetwork(networkID)
	}
	tp.Register(transport.MsgOperation, e.handleOperationMessage)
	tp.Register(transport.MsgSyncRequest, e.handleSyncRequest)
	tp.Register(transport.MsgSyncResponse, e.handleSyncResponse)
	tp.Register(transport.MsgHeartbeat, e.handleHeartbeat)

	go e.runHeartbeat()
	return e
}

// runHeartbeat broadcasts a HEARTBEAT on heartbeatInterval until Stop is
// called.
func (e *Engine) runHeartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = e.transport.Broadcast(e.networkID, transport.Message{
				Type:      transport.MsgHeartbeat,
				NetworkID: e.networkID,
			})
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) handleHeartbeat(msg transport.Message) {
	if e.logger != nil {
		e.logger.WithPeerID(msg.SenderID).Debug("heartbeat received")
	}
}

// Stop halts this Engine's heartbeat goroutine. Call once no further
// replication traffic is expected.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Insert applies an insert locally and broadcasts the resulting
// operation to the network.
func (e *Engine) Insert(ctx context.Context, doc value.Value) (value.Value, error) {
	result, err := e.coll.Insert(ctx, doc)
	if err != nil {
		return value.Value{}, err
	}
	id := mustID(result)
	op := e.stampOperation(resolver.OpInsert, id, value.ToJSON(result).(map[string]any))
	e.recordAndBroadcast(op)
	return result, nil
}

// Update applies an update locally and broadcasts one operation per
// affected document so peers converge on the same post-update state.
func (e *Engine) Update(ctx context.Context, q, upd value.Value) (int, error) {
	before, err := e.coll.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	n, err := e.coll.Update(ctx, q, upd)
	if err != nil || n == 0 {
		return n, err
	}
	ids := make([]string, 0, len(before))
	for _, d := range before {
		ids = append(ids, mustID(d))
	}
	for _, id := range ids {
		after, ferr := e.coll.FindOne(ctx, objWithID(id))
		if ferr != nil || after.IsNull() {
			continue
		}
		op := e.stampOperation(resolver.OpUpdate, id, value.ToJSON(after).(map[string]any))
		e.recordAndBroadcast(op)
	}
	return n, nil
}

// Delete applies a delete locally and broadcasts one operation per
// removed document.
func (e *Engine) Delete(ctx context.Context, q value.Value) (int, error) {
	matches, err := e.coll.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	n, err := e.coll.Delete(ctx, q)
	if err != nil || n == 0 {
		return n, err
	}
	for _, d := range matches {
		id := mustID(d)
		op := e.stampOperation(resolver.OpDelete, id, nil)
		e.recordAndBroadcast(op)
	}
	return n, nil
}

func objWithID(id string) value.Value {
	return value.NewObject().Set("id", value.NewString(id))
}

func mustID(v value.Value) string {
	return value.NewDocument(v).IDString()
}

// stampOperation increments this peer's vector-clock slot and builds the
// Operation envelope for a locally-originated mutation.
func (e *Engine) stampOperation(kind resolver.OperationKind, docID string, data map[string]any) resolver.Operation {
	e.mu.Lock()
	e.localVector = clock.Increment(e.localVector, e.peerID)
	vec := clock.Clone(e.localVector)
	e.mu.Unlock()

	return resolver.Operation{
		ID:         value.GenerateID(),
		Kind:       kind,
		Collection: e.collectionName,
		DocumentID: docID,
		Data:       data,
		Vector:     vec,
		Timestamp:  time.Now().UnixMilli(),
		PeerID:     e.peerID,
	}
}

// recordAndBroadcast appends op to the bounded log, updates local
// conflict-resolution metadata, and broadcasts it to the network.
func (e *Engine) recordAndBroadcast(op resolver.Operation) {
	e.mu.Lock()
	e.appendLog(op)
	e.docMeta[op.DocumentID] = resolver.ApplyOperation(e.docMeta[op.DocumentID], op)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SyncOperationsSent.Inc()
	}
	_ = e.transport.Broadcast(e.networkID, transport.Message{
		Type:      transport.MsgOperation,
		NetworkID: e.networkID,
		Payload:   operationToPayload(op),
	})
}

// appendLog appends op, dropping the oldest entry once over maxLogSize.
// Caller holds e.mu.
func (e *Engine) appendLog(op resolver.Operation) {
	e.log = append(e.log, op)
	if len(e.log) > e.maxLogSize {
		e.log = e.log[len(e.log)-e.maxLogSize:]
	}
}

// handleOperationMessage applies a remote operation without
// re-broadcasting it, per spec.md 4.14's remote operation path.
func (e *Engine) handleOperationMessage(msg transport.Message) {
	op, ok := operationFromPayload(msg.Payload)
	if !ok || op.Collection != e.collectionName {
		return
	}
	e.applyRemoteOperation(op)
}

func (e *Engine) applyRemoteOperation(op resolver.Operation) {
	e.mu.Lock()
	resolved := resolver.ApplyOperation(e.docMeta[op.DocumentID], op)
	e.docMeta[op.DocumentID] = resolved
	e.appendLog(op)
	e.localVector = clock.Merge(e.localVector, op.Vector)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SyncOperationsRecv.Inc()
	}

	ctx := context.Background()
	id := op.DocumentID
	switch op.Kind {
	case resolver.OpInsert:
		existing, _ := e.coll.FindOne(ctx, objWithID(id))
		payload := resolver.ToPayload(resolved)
		doc := value.FromJSON(payload)
		if existing.IsNull() {
			_, _ = e.coll.Insert(ctx, doc)
		} else {
			_, _ = e.coll.Update(ctx, objWithID(id), value.NewObject().Set("$set", doc))
		}
	case resolver.OpUpdate:
		payload := resolver.ToPayload(resolved)
		doc := value.FromJSON(payload)
		_, _ = e.coll.Update(ctx, objWithID(id), value.NewObject().Set("$set", doc))
	case resolver.OpDelete:
		_, _ = e.coll.Delete(ctx, objWithID(id))
	}
}

// RequestSync asks peerID for every operation it has that this replica
// lacks, per this replica's current vector clock.
func (e *Engine) RequestSync(peerID string) {
	e.mu.Lock()
	e.syncInProgress[peerID] = true
	vec := clock.Clone(e.localVector)
	e.mu.Unlock()

	_ = e.transport.Send(peerID, e.networkID, transport.Message{
		Type:      transport.MsgSyncRequest,
		NetworkID: e.networkID,
		Payload: map[string]any{
			"collection": e.collectionName,
			"vector":     vectorToPayload(vec),
		},
	})

	go func() {
		time.Sleep(quietTimeout)
		e.mu.Lock()
		delete(e.syncInProgress, peerID)
		e.mu.Unlock()
	}()
}

// handleSyncRequest replies with every logged operation the requester's
// vector clock does not yet reflect, per peer slot.
func (e *Engine) handleSyncRequest(msg transport.Message) {
	collectionName, _ := msg.Payload["collection"].(string)
	if collectionName != e.collectionName {
		return
	}
	requesterVec := vectorFromPayload(msg.Payload["vector"])

	e.mu.Lock()
	var missing []resolver.Operation
	for _, op := range e.log {
		if op.Vector[op.PeerID] > requesterVec[op.PeerID] {
			missing = append(missing, op)
		}
	}
	e.mu.Unlock()

	ops := make([]map[string]any, 0, len(missing))
	for _, op := range missing {
		ops = append(ops, operationToPayload(op))
	}

	_ = e.transport.Send(msg.SenderID, e.networkID, transport.Message{
		Type:      transport.MsgSyncResponse,
		NetworkID: e.networkID,
		Payload: map[string]any{
			"collection": e.collectionName,
			"operations": ops,
		},
	})
}

// handleSyncResponse applies every returned operation in order and
// clears the quiet-timeout flag for the responding peer.
func (e *Engine) handleSyncResponse(msg transport.Message) {
	collectionName, _ := msg.Payload["collection"].(string)
	if collectionName != e.collectionName {
		return
	}
	rawOps, _ := msg.Payload["operations"].([]map[string]any)
	for _, raw := range rawOps {
		if op, ok := operationFromPayload(raw); ok {
			e.applyRemoteOperation(op)
		}
	}

	e.mu.Lock()
	delete(e.syncInProgress, msg.SenderID)
	e.mu.Unlock()
}

// SyncInProgress reports whether a pull-sync with peerID is outstanding.
func (e *Engine) SyncInProgress(peerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncInProgress[peerID]
}

// LocalVector returns a copy of this replica's vector clock.
func (e *Engine) LocalVector() clock.VectorClock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clock.Clone(e.localVector)
}

func operationToPayload(op resolver.Operation) map[string]any {
	return map[string]any{
		"id":         op.ID,
		"kind":       int(op.Kind),
		"collection": op.Collection,
		"documentId": op.DocumentID,
		"data":       op.Data,
		"vector":     vectorToPayload(op.Vector),
		"timestamp":  op.Timestamp,
		"peerId":     op.PeerID,
	}
}

func operationFromPayload(raw map[string]any) (resolver.Operation, bool) {
	if raw == nil {
		return resolver.Operation{}, false
	}
	kindF, _ := raw["kind"].(int)
	data, _ := raw["data"].(map[string]any)
	op := resolver.Operation{
		ID:         stringField(raw, "id"),
		Kind:       resolver.OperationKind(kindF),
		Collection: stringField(raw, "collection"),
		DocumentID: stringField(raw, "documentId"),
		Data:       data,
		Vector:     vectorFromPayload(raw["vector"]),
		Timestamp:  int64Field(raw, "timestamp"),
		PeerID:     stringField(raw, "peerId"),
	}
	return op, true
}

func vectorToPayload(v clock.VectorClock) map[string]int64 {
	out := make(map[string]int64, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func vectorFromPayload(raw any) clock.VectorClock {
	v := clock.NewVectorClock()
	m, ok := raw.(map[string]int64)
	if ok {
		for k, val := range m {
			v[k] = val
		}
		return v
	}
	if m2, ok := raw.(map[string]any); ok {
		for k, val := range m2 {
			switch n := val.(type) {
			case int64:
				v[k] = n
			case float64:
				v[k] = int64(n)
			}
		}
	}
	return v
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func int64Field(m map[string]any, key string) int64 {
	switch n := m[key].(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
