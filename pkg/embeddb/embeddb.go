// Package embeddb is the public API of the embeddable document database
// engine: a DB owns a set of named Collections, an optional on-disk
// persistence backend, and optional peer-to-peer replication. It is
// grounded on the teacher's pkg/knirvbase public wrapper, generalized
// from a single distributed-collection adapter to embeddb's full
// Collection/database/sync contracts.
package embeddb

import (
	"context"
	"fmt"
	"sync"

	"github.com/knirvcorp/embeddb/internal/collection"
	"github.com/knirvcorp/embeddb/internal/database"
	"github.com/knirvcorp/embeddb/internal/index"
	"github.com/knirvcorp/embeddb/internal/logging"
	"github.com/knirvcorp/embeddb/internal/monitoring"
	"github.com/knirvcorp/embeddb/internal/plugin"
	"github.com/knirvcorp/embeddb/internal/storage"
	syncengine "github.com/knirvcorp/embeddb/internal/sync"
	"github.com/knirvcorp/embeddb/internal/transport"
	"github.com/knirvcorp/embeddb/internal/value"
)

// Options configures a DB at construction time.
type Options struct {
	// DataDir, if non-empty, persists every collection as one JSON
	// snapshot file per collection under this directory. Empty means
	// purely in-memory, non-durable storage.
	DataDir string

	// LogLevel and LogFormat configure the shared structured logger
	// ("debug"|"info"|"warn"|"error", "json"|"console").
	LogLevel  string
	LogFormat string

	// Plugins registered against every collection created by this DB.
	Plugins []plugin.Plugin
}

// DB is the embeddable database handle: a named-Collection registry plus
// its persistence and replication collaborators.
type DB struct {
	inner   *database.Database
	backend storage.Backend
	logger  *logging.Logger
	metrics *monitoring.Metrics
	hub     *transport.Hub
	peerID  string
}

// New constructs a DB per opts and loads any existing persisted state.
func New(ctx context.Context, opts Options) (*DB, error) {
	if ctx == nil {
		return nil, fmt.Errorf("embeddb: context cannot be nil")
	}

	var backend storage.Backend
	if opts.DataDir != "" {
		fb, err := storage.NewFileSnapshotBackend(opts.DataDir)
		if err != nil {
			return nil, fmt.Errorf("embeddb: failed to open data directory: %w", err)
		}
		backend = fb
	} else {
		backend = storage.NewMemoryBackend()
	}

	logger, err := logging.NewLogger(orDefault(opts.LogLevel, "info"), orDefault(opts.LogFormat, "console"))
	if err != nil {
		return nil, fmt.Errorf("embeddb: failed to build logger: %w", err)
	}

	registry := plugin.NewRegistry()
	for _, p := range opts.Plugins {
		registry.Register(p)
	}

	inner := database.New(backend, database.WithPlugins(registry))
	if err := inner.Init(); err != nil {
		return nil, fmt.Errorf("embeddb: plugin init failed: %w", err)
	}
	if err := inner.Load(ctx); err != nil {
		return nil, fmt.Errorf("embeddb: failed to load persisted state: %w", err)
	}

	return &DB{
		inner:   inner,
		backend: backend,
		logger:  logger,
		metrics: sharedMetrics(),
		hub:     transport.NewHub(),
		peerID:  value.GenerateID(),
	}, nil
}

var (
	metricsOnce sync.Once
	metrics     *monitoring.Metrics
)

// sharedMetrics returns one Metrics for the whole process: NewMetrics
// registers its collectors with the default Prometheus registry, which
// accepts each metric name only once.
func sharedMetrics() *monitoring.Metrics {
	metricsOnce.Do(func() { metrics = monitoring.NewMetrics() })
	return metrics
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Collection returns the named Collection, creating it on first use.
func (d *DB) Collection(name string, opts ...collection.Option) (*Collection, error) {
	opts = append(opts, collection.WithLogger(d.logger), collection.WithMetrics(d.metrics))
	c, err := d.inner.Collection(name, opts...)
	if err != nil {
		return nil, err
	}
	return &Collection{c: c}, nil
}

// AttachNetwork joins networkID over this DB's shared in-memory
// transport hub and replicates name's mutations to every other DB
// attached to the same networkID on the same hub. Real deployments
// would substitute a Transport backed by an actual wire protocol;
// embeddb only ships the in-memory reference implementation.
func (d *DB) AttachNetwork(name, networkID string) (*syncengine.Engine, error) {
	tp := d.hub.NewTransport(d.peerID)
	return d.inner.AttachSync(name, networkID, tp, syncengine.WithLogger(d.logger), syncengine.WithMetrics(d.metrics))
}

// Join attaches this DB to another DB's transport hub, so the two
// replicate as peers of the same in-memory network. Intended for
// same-process testing and demos.
func (d *DB) Join(other *DB) {
	d.hub = other.hub
}

// PeerID identifies this DB on the replication network.
func (d *DB) PeerID() string { return d.peerID }

// Save snapshots every collection and writes them to the backend.
func (d *DB) Save(ctx context.Context) error {
	return d.inner.Save(ctx)
}

// Close dispatches plugin teardown hooks and releases every resource.
func (d *DB) Close() error {
	return d.inner.Close()
}

// Collection is the public handle for document CRUD, batch operations,
// reactive subscriptions, and index management against one named set of
// documents. Documents are exchanged as map[string]interface{} here;
// Raw() exposes the internal value.Value-typed API for advanced use.
type Collection struct {
	c *collection.Collection
}

// Raw returns the underlying internal Collection for callers that want
// to work with value.Value directly instead of map[string]interface{}.
func (c *Collection) Raw() *collection.Collection { return c.c }

func (c *Collection) Name() string { return c.c.Name() }

func (c *Collection) Insert(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error) {
	result, err := c.c.Insert(ctx, value.FromJSON(doc))
	if err != nil {
		return nil, err
	}
	return asMap(result), nil
}

func (c *Collection) Find(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	results, err := c.c.Find(ctx, value.FromJSON(query))
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		out = append(out, asMap(r))
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, query map[string]interface{}) (map[string]interface{}, error) {
	result, err := c.c.FindOne(ctx, value.FromJSON(query))
	if err != nil {
		return nil, err
	}
	if result.IsNull() {
		return nil, nil
	}
	return asMap(result), nil
}

func (c *Collection) Update(ctx context.Context, query, update map[string]interface{}) (int, error) {
	return c.c.Update(ctx, value.FromJSON(query), value.FromJSON(update))
}

func (c *Collection) Delete(ctx context.Context, query map[string]interface{}) (int, error) {
	return c.c.Delete(ctx, value.FromJSON(query))
}

func (c *Collection) InsertBatch(ctx context.Context, docs []map[string]interface{}) ([]map[string]interface{}, error) {
	in := make([]value.Value, 0, len(docs))
	for _, d := range docs {
		in = append(in, value.FromJSON(d))
	}
	results, err := c.c.InsertBatch(ctx, in)
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		out = append(out, asMap(r))
	}
	return out, err
}

// UpdatePair is one (query, update) step of an UpdateBatch call.
type UpdatePair struct {
	Query  map[string]interface{}
	Update map[string]interface{}
}

func (c *Collection) UpdateBatch(ctx context.Context, pairs []UpdatePair) (int, error) {
	in := make([]collection.UpdatePair, 0, len(pairs))
	for _, p := range pairs {
		in = append(in, collection.UpdatePair{Query: value.FromJSON(p.Query), Update: value.FromJSON(p.Update)})
	}
	return c.c.UpdateBatch(ctx, in)
}

func (c *Collection) DeleteBatch(ctx context.Context, queries []map[string]interface{}) (int, error) {
	in := make([]value.Value, 0, len(queries))
	for _, q := range queries {
		in = append(in, value.FromJSON(q))
	}
	return c.c.DeleteBatch(ctx, in)
}

// Subscribe registers a callback invoked with the current matching set
// immediately, then again on every subsequent mutation.
func (c *Collection) Subscribe(ctx context.Context, query map[string]interface{}, callback func([]map[string]interface{})) (collection.Unsubscribe, error) {
	return c.c.Subscribe(ctx, value.FromJSON(query), func(results []value.Value) {
		out := make([]map[string]interface{}, 0, len(results))
		for _, r := range results {
			out = append(out, asMap(r))
		}
		callback(out)
	})
}

func (c *Collection) CreateIndex(name string, fields []string, kind index.Kind, opts index.Options) (*index.Index, error) {
	return c.c.CreateIndex(name, fields, kind, opts)
}

func (c *Collection) DropIndex(name string) { c.c.DropIndex(name) }

func (c *Collection) GetIndexes() []*index.Index { return c.c.GetIndexes() }

func (c *Collection) RebuildIndexes() { c.c.RebuildIndexes() }

func (c *Collection) Refresh() { c.c.Refresh() }

func asMap(v value.Value) map[string]interface{} {
	out, _ := value.ToJSON(v).(map[string]interface{})
	if out == nil {
		out = make(map[string]interface{})
	}
	return out
}
