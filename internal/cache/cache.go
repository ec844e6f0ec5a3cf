// Package cache implements the per-Collection query result cache: a
// bounded TTL cache keyed by the canonical JSON of a query, storing a
// deep-copied snapshot of the matching document ID list.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/knirvcorp/embeddb/internal/value"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// ErrCacheClosed is returned by any operation on a closed cache.
var ErrCacheClosed = errors.New("cache is closed")

// Entry is a cached query result: a snapshot of matching document IDs at
// the time of caching.
type Entry struct {
	IDs []string
}

// QueryCache is the Cache[Entry]-shaped bounded TTL cache backing
// Collection.find. It follows the generic Cache[T] contract used across
// the corpus (Get/Set/Delete/Clear/Close), specialized to Entry since
// ristretto's type parameter is fixed per instance.
type QueryCache struct {
	ring       *ristretto.Cache[string, Entry]
	defaultTTL time.Duration
	closed     bool
}

// Options configures a QueryCache.
type Options struct {
	// MaxCost bounds the cache's approximate total cost (ristretto
	// counts one unit of cost per cached ID by default here).
	MaxCost int64
	// DefaultTTL is used when Set is called with ttl <= 0.
	DefaultTTL time.Duration
}

func defaultOptions() Options {
	return Options{MaxCost: 10000, DefaultTTL: 30 * time.Second}
}

// New constructs a QueryCache. NumCounters follows ristretto's guidance of
// ~10x the expected number of distinct keys.
func New(opts Options) (*QueryCache, error) {
	if opts.MaxCost <= 0 {
		opts.MaxCost = defaultOptions().MaxCost
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaultOptions().DefaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: opts.MaxCost * 10,
		MaxCost:     opts.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &QueryCache{ring: c, defaultTTL: opts.DefaultTTL}, nil
}

// Key returns the canonical cache key for a query value. Empty queries
// (matching Kind Null or an empty Object) are never cached; callers
// should skip Set/Get for them.
func Key(query value.Value) string {
	return value.CanonicalJSON(query)
}

// IsCacheable reports whether a parsed query should ever be cached.
func IsCacheable(query value.Value) bool {
	return !query.IsNull() && query.Len() > 0
}

// Get retrieves a cached Entry by key.
func (c *QueryCache) Get(ctx context.Context, key string) (Entry, error) {
	if c.closed {
		return Entry{}, ErrCacheClosed
	}
	v, ok := c.ring.Get(key)
	if !ok {
		return Entry{}, ErrCacheMiss
	}
	return Entry{IDs: append([]string(nil), v.IDs...)}, nil
}

// Set stores a deep copy of entry under key with the given TTL (or the
// cache's default when ttl <= 0).
func (c *QueryCache) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	if c.closed {
		return ErrCacheClosed
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	snapshot := Entry{IDs: append([]string(nil), entry.IDs...)}
	c.ring.SetWithTTL(key, snapshot, int64(len(snapshot.IDs))+1, ttl)
	c.ring.Wait()
	return nil
}

// Delete removes a single key.
func (c *QueryCache) Delete(ctx context.Context, key string) error {
	if c.closed {
		return ErrCacheClosed
	}
	c.ring.Del(key)
	return nil
}

// Clear invalidates the entire cache, used wholesale on any write to the
// owning Collection.
func (c *QueryCache) Clear(ctx context.Context) error {
	if c.closed {
		return ErrCacheClosed
	}
	c.ring.Clear()
	return nil
}

// Close releases the cache's resources.
func (c *QueryCache) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.ring.Close()
	return nil
}
