// Package database implements the Database type of spec.md 4.12: a
// registry of named Collections backed by a shared persistence
// collaborator, with lifecycle hooks dispatched to registered plugins.
// It is grounded on the teacher's DistributedDatabase, generalized from
// a single distributed-collection map to embeddb's Collection/storage
// contracts.
package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/knirvcorp/embeddb/internal/collection"
	"github.com/knirvcorp/embeddb/internal/plugin"
	"github.com/knirvcorp/embeddb/internal/storage"
	syncengine "github.com/knirvcorp/embeddb/internal/sync"
	"github.com/knirvcorp/embeddb/internal/transport"
	"github.com/knirvcorp/embeddb/internal/value"
)

// Database owns every Collection in one logical store plus the
// persistence collaborator they are saved to and loaded from.
type Database struct {
	mu          sync.Mutex
	collections map[string]*collection.Collection
	syncEngines map[string]*syncengine.Engine
	backend     storage.Backend
	plugins     *plugin.Registry
}

// Option configures a Database at construction time.
type Option func(*Database)

func WithPlugins(r *plugin.Registry) Option {
	return func(d *Database) { d.plugins = r }
}

// New constructs a Database persisted through backend. backend may be
// nil for a purely in-memory, non-durable database.
func New(backend storage.Backend, opts ...Option) *Database {
	d := &Database{
		collections: make(map[string]*collection.Collection),
		syncEngines: make(map[string]*syncengine.Engine),
		backend:     backend,
		plugins:     plugin.NewRegistry(),
	}
	for _, apply := range opts {
		apply(d)
	}
	return d
}

// Init dispatches OnInit to every registered plugin.
func (d *Database) Init() error {
	return d.plugins.DispatchInit(d)
}

// Collection returns the named Collection, creating it (with opts, only
// honored on first creation) and dispatching OnCollectionCreate if this
// is the first time it is requested.
func (d *Database) Collection(name string, opts ...collection.Option) (*collection.Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.collections[name]; ok {
		return c, nil
	}

	opts = append(opts, collection.WithPlugins(d.plugins))
	c, err := collection.New(name, opts...)
	if err != nil {
		return nil, err
	}
	d.collections[name] = c
	if err := d.plugins.DispatchCollectionCreate(name); err != nil {
		return c, err
	}
	return c, nil
}

// CollectionNames returns every collection name currently registered.
func (d *Database) CollectionNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.collections))
	for name := range d.collections {
		names = append(names, name)
	}
	return names
}

// AttachSync attaches replication to an existing collection over tp,
// joining networkID, and records the resulting Engine for SyncEngine.
// Only writes issued through that Engine's Insert/Update/Delete are
// replicated; writes made directly on the Collection are not.
func (d *Database) AttachSync(name, networkID string, tp transport.Transport, opts ...syncengine.Option) (*syncengine.Engine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[name]
	if !ok {
		return nil, fmt.Errorf("database: collection %q not found", name)
	}
	e := syncengine.NewEngine(c, name, networkID, tp, opts...)
	d.syncEngines[name] = e
	return e, nil
}

// SyncEngine returns the replication engine attached to name, if any.
func (d *Database) SyncEngine(name string) (*syncengine.Engine, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.syncEngines[name]
	return e, ok
}

// Load replaces every collection's contents wholesale from the backend,
// per spec.md 6.1's load() semantics.
func (d *Database) Load(ctx context.Context) error {
	if d.backend == nil {
		return nil
	}
	snapshot, err := d.backend.Load(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for name, docs := range snapshot {
		c, ok := d.collections[name]
		if !ok {
			c, err = collection.New(name, collection.WithPlugins(d.plugins))
			if err != nil {
				return err
			}
			d.collections[name] = c
		}
		c.LoadSnapshot(docs)
	}
	return nil
}

// Save snapshots every collection and writes them wholesale to the
// backend.
func (d *Database) Save(ctx context.Context) error {
	if d.backend == nil {
		return nil
	}
	d.mu.Lock()
	snapshot := make(map[string][]value.Document, len(d.collections))
	for name, c := range d.collections {
		snapshot[name] = c.Snapshot()
	}
	d.mu.Unlock()

	return d.backend.Save(ctx, snapshot)
}

// Close dispatches OnDestroy to every plugin, then closes every
// collection and the backend (if it implements Closer).
func (d *Database) Close() error {
	if err := d.plugins.DispatchDestroy(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.collections {
		_ = c.Close()
	}
	if closer, ok := d.backend.(storage.Closer); ok {
		return closer.Close()
	}
	return nil
}
