// Package storage defines the persistence back-end contract (spec.md 6.1)
// plus two reference implementations: an in-memory backend for tests and
// embedding scenarios that never need durability, and a file-snapshot
// backend that writes one JSON file per collection using atomic renames.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	natomic "github.com/natefinch/atomic"

	"github.com/knirvcorp/embeddb/internal/value"
)

// Backend is the contract every persistence collaborator must satisfy.
// Load is treated as wholesale replacement: incremental back-ends must
// synthesize the full view when asked. Save receives the full snapshot
// of every collection and must replace whatever it previously held.
type Backend interface {
	Load(ctx context.Context) (map[string][]value.Document, error)
	Save(ctx context.Context, collections map[string][]value.Document) error
}

// Closer is an optional capability a Backend may implement.
type Closer interface {
	Close() error
}

// VectorSearchOptions parameterizes a specialized adapter's similarity
// search. The core engine never calls this itself; it is exposed purely
// so a Backend implementation can be reached through the same interface
// boundary plugins and adapters use.
type VectorSearchOptions struct {
	Field string
	Query []float64
	K     int
}

// VectorSearcher is an optional capability a Backend may implement.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, collection string, opts VectorSearchOptions) ([]value.Document, error)
}

// MemoryBackend keeps every collection's documents in process memory. It
// never touches disk; Save simply replaces its in-memory snapshot.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string][]value.Document
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string][]value.Document)}
}

func (m *MemoryBackend) Load(ctx context.Context) (map[string][]value.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]value.Document, len(m.collections))
	for name, docs := range m.collections {
		cp := make([]value.Document, len(docs))
		copy(cp, docs)
		out[name] = cp
	}
	return out, nil
}

func (m *MemoryBackend) Save(ctx context.Context, collections map[string][]value.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]value.Document, len(collections))
	for name, docs := range collections {
		cp := make([]value.Document, len(docs))
		copy(cp, docs)
		out[name] = cp
	}
	m.collections = out
	return nil
}

// FileSnapshotBackend persists each collection as a single JSON file
// under baseDir, written atomically (write-to-temp + rename) via
// natefinch/atomic so a crash mid-write never leaves a half-written file
// on disk.
type FileSnapshotBackend struct {
	baseDir string
	mu      sync.Mutex
}

func NewFileSnapshotBackend(baseDir string) (*FileSnapshotBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create base dir: %w", err)
	}
	return &FileSnapshotBackend{baseDir: baseDir}, nil
}

func (f *FileSnapshotBackend) collectionPath(name string) string {
	return filepath.Join(f.baseDir, name+".json")
}

func (f *FileSnapshotBackend) Load(ctx context.Context) (map[string][]value.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]value.Document{}, nil
		}
		return nil, fmt.Errorf("storage: read base dir: %w", err)
	}

	out := make(map[string][]value.Document)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		name := entry.Name()[:len(entry.Name())-len(".json")]
		docs, err := f.loadCollection(name)
		if err != nil {
			return nil, err
		}
		out[name] = docs
	}
	return out, nil
}

func (f *FileSnapshotBackend) loadCollection(name string) ([]value.Document, error) {
	data, err := os.ReadFile(f.collectionPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read collection %s: %w", name, err)
	}
	var rawDocs []json.RawMessage
	if err := json.Unmarshal(data, &rawDocs); err != nil {
		return nil, fmt.Errorf("storage: decode collection %s: %w", name, err)
	}
	docs := make([]value.Document, 0, len(rawDocs))
	for _, raw := range rawDocs {
		var any interface{}
		if err := json.Unmarshal(raw, &any); err != nil {
			return nil, fmt.Errorf("storage: decode document in %s: %w", name, err)
		}
		docs = append(docs, value.NewDocument(value.FromJSON(any)))
	}
	return docs, nil
}

func (f *FileSnapshotBackend) Save(ctx context.Context, collections map[string][]value.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for name, docs := range collections {
		views := make([]interface{}, 0, len(docs))
		for _, d := range docs {
			views = append(views, value.ToJSON(d.Value()))
		}
		data, err := json.Marshal(views)
		if err != nil {
			return fmt.Errorf("storage: encode collection %s: %w", name, err)
		}
		if err := natomic.WriteFile(f.collectionPath(name), bytes.NewReader(data)); err != nil {
			return fmt.Errorf("storage: write collection %s: %w", name, err)
		}
	}
	return nil
}
