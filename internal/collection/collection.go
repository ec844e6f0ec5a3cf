// Package collection implements the Collection operations of spec.md
// 4.11: CRUD under a per-Collection rw-lock, batch operations with a
// single lock acquisition and change signal, reactive subscriptions,
// and index lifecycle management. It binds together every lower-level
// package (value, path, query, update, btree, index, cache, compress,
// concurrency) the way the teacher's DistributedCollection binds
// LocalCollection, storage, and the resolver.
package collection

import (
	"context"
	"sort"
	"sync"

	"github.com/knirvcorp/embeddb/internal/cache"
	"github.com/knirvcorp/embeddb/internal/compress"
	"github.com/knirvcorp/embeddb/internal/concurrency"
	"github.com/knirvcorp/embeddb/internal/dberrors"
	"github.com/knirvcorp/embeddb/internal/index"
	"github.com/knirvcorp/embeddb/internal/logging"
	"github.com/knirvcorp/embeddb/internal/monitoring"
	"github.com/knirvcorp/embeddb/internal/plugin"
	"github.com/knirvcorp/embeddb/internal/query"
	"github.com/knirvcorp/embeddb/internal/update"
	"github.com/knirvcorp/embeddb/internal/value"
)

// UpdatePair is one (query, update) step of an UpdateBatch call.
type UpdatePair struct {
	Query  value.Value
	Update value.Value
}

// Unsubscribe removes a subscription registered via Subscribe.
type Unsubscribe func()

type subscription struct {
	id       uint64
	rawQuery value.Value
	callback func([]value.Value)
}

// Collection is a named set of documents plus its secondary indexes,
// query cache, and reactive subscribers.
type Collection struct {
	name string

	lock *concurrency.RWLock
	docs map[string]value.Document

	indexes    *index.Manager
	queryCache *cache.QueryCache
	compressor *compress.Compressor
	plugins    *plugin.Registry
	logger     *logging.Logger
	metrics    *monitoring.Metrics

	subMu     sync.Mutex
	subs      map[uint64]*subscription
	nextSubID uint64
}

// New constructs an empty Collection.
func New(name string, opts ...Option) (*Collection, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	o = applyDefaults(o)

	c := &Collection{
		name:    name,
		lock:    concurrency.NewRWLock(),
		docs:    make(map[string]value.Document),
		indexes: index.NewManager(),
		plugins: o.Plugins,
		logger:  o.Logger,
		metrics: o.Metrics,
		subs:    make(map[uint64]*subscription),
	}
	if c.plugins == nil {
		c.plugins = plugin.NewRegistry()
	}

	if o.CacheEnabled {
		qc, err := cache.New(cache.Options{MaxCost: o.CacheMaxCost, DefaultTTL: o.CacheTTL})
		if err != nil {
			return nil, dberrors.WrapBackend("collection.New: cache", err)
		}
		c.queryCache = qc
	}
	if o.CompressEnabled {
		cp, err := compress.New(compress.Options{ThresholdBytes: o.CompressThresholdBytes, Fields: o.CompressFields})
		if err != nil {
			return nil, dberrors.WrapBackend("collection.New: compressor", err)
		}
		c.compressor = cp
	}

	return c, nil
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) decompress(stored value.Value) value.Value {
	if c.compressor == nil {
		return stored
	}
	return c.compressor.Decompress(stored)
}

func (c *Collection) compress(logical value.Value) value.Value {
	if c.compressor == nil {
		return logical
	}
	return c.compressor.Compress(logical)
}

func (c *Collection) invalidateCache() {
	if c.queryCache == nil {
		return
	}
	_ = c.queryCache.Clear(context.Background())
}

func (c *Collection) debug(msg string) {
	if c.logger != nil {
		c.logger.WithCollection(c.name).Debug(msg)
	}
}

// Insert allocates an id if missing, runs pre/post-insert hooks, adds
// the document to every index, and invalidates the query cache, all
// under the write lock; the change signal fires once the lock releases.
func (c *Collection) Insert(ctx context.Context, doc value.Value) (value.Value, error) {
	c.lock.Lock()
	result, err := c.insertLocked(doc)
	c.lock.Unlock()

	if err != nil {
		if c.metrics != nil {
			c.metrics.ErrorCount.Inc()
		}
		return value.Value{}, err
	}
	if c.metrics != nil {
		c.metrics.DocumentsInserted.Inc()
	}
	c.fireChangeSignal()
	c.debug("insert")
	return result, nil
}

func (c *Collection) insertLocked(raw value.Value) (value.Value, error) {
	transformed, err := c.plugins.DispatchBeforeInsert(c.name, raw)
	if err != nil {
		return value.Value{}, err
	}
	if transformed.Kind() != value.Object {
		return value.Value{}, dberrors.NewInvalidArgument("document must be an object")
	}

	doc := value.NewDocument(transformed)
	id := doc.IDString()
	if _, exists := c.docs[id]; exists {
		return value.Value{}, dberrors.NewDuplicateKey("_id", id)
	}

	logical := doc.Value()
	if err := c.indexes.InsertDocument(id, logical); err != nil {
		return value.Value{}, err
	}

	c.docs[id] = value.WithValue(c.compress(logical))
	c.invalidateCache()

	result := doc.ToJSONView()
	if err := c.plugins.DispatchAfterInsert(c.name, result); err != nil {
		return result, err
	}
	return result, nil
}

// Find evaluates a query (cache lookup, plan selection, candidate
// re-filtering, decompression) under a read lock, returning defensive
// copies of the matching documents' plain views.
func (c *Collection) Find(ctx context.Context, q value.Value) ([]value.Value, error) {
	transformedQ, err := c.plugins.DispatchBeforeQuery(c.name, q)
	if err != nil {
		return nil, err
	}

	c.lock.RLock()
	results, err := c.findLocked(ctx, transformedQ)
	c.lock.RUnlock()
	if err != nil {
		return nil, err
	}

	if err := c.plugins.DispatchAfterQuery(c.name, transformedQ, results); err != nil {
		return results, err
	}
	return results, nil
}

// FindOne returns the first match of Find, or a Null sentinel if none.
func (c *Collection) FindOne(ctx context.Context, q value.Value) (value.Value, error) {
	results, err := c.Find(ctx, q)
	if err != nil {
		return value.Value{}, err
	}
	if len(results) == 0 {
		return value.NewNull(), nil
	}
	return results[0], nil
}

func (c *Collection) findLocked(ctx context.Context, qv value.Value) ([]value.Value, error) {
	parsed := query.Parse(qv)
	cacheable := c.queryCache != nil && cache.IsCacheable(qv)
	var key string

	if cacheable {
		key = cache.Key(qv)
		if entry, err := c.queryCache.Get(ctx, key); err == nil {
			if c.metrics != nil {
				c.metrics.CacheHits.Inc()
			}
			return c.viewsForIDs(entry.IDs), nil
		}
		if c.metrics != nil {
			c.metrics.CacheMisses.Inc()
		}
	}

	plan := c.indexes.Select(parsed, len(c.docs))
	var candidateIDs []string
	if plan.Scan == index.IndexScan {
		candidateIDs = plan.Candidate
	} else {
		candidateIDs = c.allIDs()
	}

	matched := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		logical := c.decompress(doc.Value())
		if query.Matches(logical, parsed) {
			matched = append(matched, id)
		}
	}

	if cacheable {
		_ = c.queryCache.Set(ctx, key, cache.Entry{IDs: matched}, 0)
	}
	return c.viewsForIDs(matched), nil
}

func (c *Collection) viewsForIDs(ids []string) []value.Value {
	out := make([]value.Value, 0, len(ids))
	for _, id := range ids {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		logical := c.decompress(doc.Value())
		out = append(out, value.WithValue(logical).ToJSONView())
	}
	return out
}

func (c *Collection) allIDs() []string {
	out := make([]string, 0, len(c.docs))
	for id := range c.docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Update matches documents against q, applies upd to each, re-indexes
// the old/new pair, and invalidates the cache. It returns the number of
// documents changed. If upd fails to apply to any matched document, no
// document is mutated.
func (c *Collection) Update(ctx context.Context, q, upd value.Value) (int, error) {
	q, upd, err := c.plugins.DispatchBeforeUpdate(c.name, q, upd)
	if err != nil {
		return 0, err
	}

	c.lock.Lock()
	n, err := c.updateLocked(ctx, q, upd, nil)
	c.lock.Unlock()

	if err != nil {
		if c.metrics != nil {
			c.metrics.ErrorCount.Inc()
		}
		return 0, err
	}
	if n > 0 {
		if c.metrics != nil {
			c.metrics.DocumentsUpdated.Add(float64(n))
		}
		c.fireChangeSignal()
	}
	if aerr := c.plugins.DispatchAfterUpdate(c.name, q, upd, n); aerr != nil {
		return n, aerr
	}
	return n, nil
}

// updateLocked applies upd to every match not already present in
// skip (used by UpdateBatch to honor "skip docs touched by an earlier
// pair"). skip is mutated with the IDs this call touches.
func (c *Collection) updateLocked(ctx context.Context, q, upd value.Value, skip map[string]bool) (int, error) {
	parsed := query.Parse(q)
	plan := c.indexes.Select(parsed, len(c.docs))
	var candidateIDs []string
	if plan.Scan == index.IndexScan {
		candidateIDs = plan.Candidate
	} else {
		candidateIDs = c.allIDs()
	}

	type change struct {
		id         string
		oldLogical value.Value
		newLogical value.Value
	}
	var changes []change

	for _, id := range candidateIDs {
		if skip != nil && skip[id] {
			continue
		}
		stored, ok := c.docs[id]
		if !ok {
			continue
		}
		oldLogical := c.decompress(stored.Value())
		if !query.Matches(oldLogical, parsed) {
			continue
		}
		newLogical, err := update.Apply(oldLogical, upd)
		if err != nil {
			return 0, err
		}
		changes = append(changes, change{id: id, oldLogical: oldLogical, newLogical: newLogical})
	}

	applied := 0
	for _, ch := range changes {
		if err := c.indexes.UpdateDocument(ch.id, ch.oldLogical, ch.newLogical); err != nil {
			for _, done := range changes[:applied] {
				c.docs[done.id] = value.WithValue(c.compress(done.oldLogical))
				_ = c.indexes.UpdateDocument(done.id, done.newLogical, done.oldLogical)
			}
			return 0, err
		}
		c.docs[ch.id] = value.WithValue(c.compress(ch.newLogical))
		if skip != nil {
			skip[ch.id] = true
		}
		applied++
	}

	if applied > 0 {
		c.invalidateCache()
	}
	return applied, nil
}

// Delete matches documents against q, removes them from storage and
// every index, and invalidates the cache. Returns the number removed.
func (c *Collection) Delete(ctx context.Context, q value.Value) (int, error) {
	q, err := c.plugins.DispatchBeforeDelete(c.name, q)
	if err != nil {
		return 0, err
	}

	c.lock.Lock()
	n := c.deleteLocked(q, nil)
	c.lock.Unlock()

	if n > 0 {
		if c.metrics != nil {
			c.metrics.DocumentsDeleted.Add(float64(n))
		}
		c.fireChangeSignal()
	}
	if aerr := c.plugins.DispatchAfterDelete(c.name, q, n); aerr != nil {
		return n, aerr
	}
	return n, nil
}

func (c *Collection) deleteLocked(q value.Value, skip map[string]bool) int {
	parsed := query.Parse(q)
	plan := c.indexes.Select(parsed, len(c.docs))
	var candidateIDs []string
	if plan.Scan == index.IndexScan {
		candidateIDs = plan.Candidate
	} else {
		candidateIDs = c.allIDs()
	}

	removed := 0
	for _, id := range candidateIDs {
		if skip != nil && skip[id] {
			continue
		}
		stored, ok := c.docs[id]
		if !ok {
			continue
		}
		logical := c.decompress(stored.Value())
		if !query.Matches(logical, parsed) {
			continue
		}
		c.indexes.RemoveDocument(id, logical)
		delete(c.docs, id)
		if skip != nil {
			skip[id] = true
		}
		removed++
	}
	if removed > 0 {
		c.invalidateCache()
	}
	return removed
}

// InsertBatch inserts every document under a single write-lock
// acquisition, firing one change signal at the end. On the first
// failure it stops and returns the documents inserted so far alongside
// the error.
func (c *Collection) InsertBatch(ctx context.Context, docs []value.Value) ([]value.Value, error) {
	c.lock.Lock()
	results := make([]value.Value, 0, len(docs))
	var firstErr error
	for _, d := range docs {
		r, err := c.insertLocked(d)
		if err != nil {
			firstErr = err
			break
		}
		results = append(results, r)
	}
	c.lock.Unlock()

	if len(results) > 0 {
		if c.metrics != nil {
			c.metrics.DocumentsInserted.Add(float64(len(results)))
		}
		c.fireChangeSignal()
	}
	return results, firstErr
}

// UpdateBatch applies each (query, update) pair in order under a single
// write-lock acquisition; a document touched by an earlier pair is
// skipped by later pairs. Fires one change signal at the end.
func (c *Collection) UpdateBatch(ctx context.Context, pairs []UpdatePair) (int, error) {
	c.lock.Lock()
	touched := make(map[string]bool)
	total := 0
	var firstErr error
	for _, p := range pairs {
		n, err := c.updateLocked(ctx, p.Query, p.Update, touched)
		if err != nil {
			firstErr = err
			break
		}
		total += n
	}
	c.lock.Unlock()

	if total > 0 {
		if c.metrics != nil {
			c.metrics.DocumentsUpdated.Add(float64(total))
		}
		c.fireChangeSignal()
	}
	return total, firstErr
}

// DeleteBatch deletes matches of every query under a single write-lock
// acquisition, firing one change signal at the end.
func (c *Collection) DeleteBatch(ctx context.Context, queries []value.Value) (int, error) {
	c.lock.Lock()
	touched := make(map[string]bool)
	total := 0
	for _, q := range queries {
		total += c.deleteLocked(q, touched)
	}
	c.lock.Unlock()

	if total > 0 {
		if c.metrics != nil {
			c.metrics.DocumentsDeleted.Add(float64(total))
		}
		c.fireChangeSignal()
	}
	return total, nil
}

// Subscribe registers a callback that receives the current matching set
// immediately, then the new matching set on every subsequent change
// signal. The returned Unsubscribe removes the registration.
func (c *Collection) Subscribe(ctx context.Context, q value.Value, callback func([]value.Value)) (Unsubscribe, error) {
	c.lock.RLock()
	initial, err := c.findLocked(ctx, q)
	c.lock.RUnlock()
	if err != nil {
		return nil, err
	}
	callback(initial)

	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = &subscription{id: id, rawQuery: q, callback: callback}
	count := len(c.subs)
	c.subMu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveSubscribers.Set(float64(count))
	}

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		remaining := len(c.subs)
		c.subMu.Unlock()
		if c.metrics != nil {
			c.metrics.ActiveSubscribers.Set(float64(remaining))
		}
	}, nil
}

// fireChangeSignal re-evaluates every subscriber's query and invokes its
// callback sequentially, on a goroutine started after the write lock
// has already been released, so a slow subscriber never blocks a
// mutation.
func (c *Collection) fireChangeSignal() {
	c.subMu.Lock()
	subsCopy := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subsCopy = append(subsCopy, s)
	}
	c.subMu.Unlock()
	if len(subsCopy) == 0 {
		return
	}

	go func() {
		ctx := context.Background()
		for _, s := range subsCopy {
			c.lock.RLock()
			results, err := c.findLocked(ctx, s.rawQuery)
			c.lock.RUnlock()
			if err != nil {
				continue
			}
			s.callback(results)
		}
	}()
}

// CreateIndex registers a new index and backfills it from the current
// document set.
func (c *Collection) CreateIndex(name string, fields []string, kind index.Kind, opts index.Options) (*index.Index, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	idx, err := c.indexes.Create(name, fields, kind, opts)
	if err != nil {
		return nil, err
	}
	for id, doc := range c.docs {
		logical := c.decompress(doc.Value())
		if err := idx.Insert(id, logical); err != nil {
			c.indexes.Drop(name)
			return nil, err
		}
	}
	return idx, nil
}

// DropIndex removes an index by name.
func (c *Collection) DropIndex(name string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.indexes.Drop(name)
}

// GetIndexes returns every index in creation order.
func (c *Collection) GetIndexes() []*index.Index {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.indexes.All()
}

// RebuildIndexes clears and re-adds every index from the current
// document set.
func (c *Collection) RebuildIndexes() {
	c.lock.Lock()
	defer c.lock.Unlock()

	docs := make([]value.Value, 0, len(c.docs))
	for _, doc := range c.docs {
		docs = append(docs, c.decompress(doc.Value()))
	}
	c.indexes.Rebuild(docs, func(v value.Value) string {
		return value.WithValue(v).IDString()
	})
}

// Refresh resyncs the query cache and index set with the current
// in-memory document set, without touching the backing persistence
// layer (that is the Database's responsibility, spec.md 4.12).
func (c *Collection) Refresh() {
	c.invalidateCache()
	c.RebuildIndexes()
}

// Snapshot returns every document currently held, in their logical
// (decompressed, envelope-intact) form, for the Database's save path.
func (c *Collection) Snapshot() []value.Document {
	c.lock.RLock()
	defer c.lock.RUnlock()

	out := make([]value.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		out = append(out, value.WithValue(c.decompress(doc.Value())))
	}
	return out
}

// LoadSnapshot replaces the document set wholesale (the persistence
// back-end's load() is always a full replacement, spec.md 6.1) and
// rebuilds every index from it.
func (c *Collection) LoadSnapshot(docs []value.Document) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.docs = make(map[string]value.Document, len(docs))
	for _, d := range docs {
		id := d.IDString()
		c.docs[id] = value.WithValue(c.compress(d.Value()))
	}
	values := make([]value.Value, 0, len(docs))
	for _, d := range docs {
		values = append(values, d.Value())
	}
	c.indexes.Rebuild(values, func(v value.Value) string {
		return value.WithValue(v).IDString()
	})
	c.invalidateCache()
}

// Close releases the Collection's resources (the query cache).
func (c *Collection) Close() error {
	if c.queryCache != nil {
		return c.queryCache.Close()
	}
	return nil
}
