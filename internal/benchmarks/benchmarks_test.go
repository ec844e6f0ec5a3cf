// Package benchmarks holds performance baselines for the public API
// against realistic document workloads, following the teacher's
// TestMain-based benchmark harness (database setup once, shared across
// every Benchmark* function) with the PQC/credential-specific workload
// replaced by plain document CRUD.
package benchmarks

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/knirvcorp/embeddb/internal/index"
	"github.com/knirvcorp/embeddb/pkg/embeddb"
)

var (
	benchCtx context.Context
	benchDB  *embeddb.DB
)

func TestMain(m *testing.M) {
	benchCtx = context.Background()

	tempDir, err := os.MkdirTemp("", "embeddb-bench-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tempDir)

	benchDB, err = embeddb.New(benchCtx, embeddb.Options{DataDir: tempDir})
	if err != nil {
		panic(err)
	}
	defer benchDB.Close()

	os.Exit(m.Run())
}

func BenchmarkDocumentInsert(b *testing.B) {
	users, err := benchDB.Collection("bench_insert")
	if err != nil {
		b.Fatalf("collection: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := users.Insert(benchCtx, map[string]interface{}{
			"id":    fmt.Sprintf("u%d", i),
			"name":  "alice",
			"email": fmt.Sprintf("u%d@example.com", i),
		})
		if err != nil {
			b.Fatalf("insert: %v", err)
		}
	}
}

func BenchmarkFindByIndexedField(b *testing.B) {
	users, err := benchDB.Collection("bench_find")
	if err != nil {
		b.Fatalf("collection: %v", err)
	}
	if _, err := users.CreateIndex("by_email", []string{"email"}, index.Unique, index.Options{}); err != nil {
		b.Fatalf("create index: %v", err)
	}
	for i := 0; i < 10000; i++ {
		if _, err := users.Insert(benchCtx, map[string]interface{}{
			"id":    fmt.Sprintf("u%d", i),
			"email": fmt.Sprintf("u%d@example.com", i),
		}); err != nil {
			b.Fatalf("insert: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		email := fmt.Sprintf("u%d@example.com", i%10000)
		if _, err := users.FindOne(benchCtx, map[string]interface{}{"email": email}); err != nil {
			b.Fatalf("find one: %v", err)
		}
	}
}

func BenchmarkUpdateByID(b *testing.B) {
	users, err := benchDB.Collection("bench_update")
	if err != nil {
		b.Fatalf("collection: %v", err)
	}
	if _, err := users.Insert(benchCtx, map[string]interface{}{"id": "u1", "count": 0}); err != nil {
		b.Fatalf("insert: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := users.Update(benchCtx,
			map[string]interface{}{"id": "u1"},
			map[string]interface{}{"$inc": map[string]interface{}{"count": 1}},
		); err != nil {
			b.Fatalf("update: %v", err)
		}
	}
}
