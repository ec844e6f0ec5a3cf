package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/knirvcorp/embeddb/internal/index"
	"github.com/knirvcorp/embeddb/pkg/embeddb"
)

func main() {
	ctx := context.Background()

	appDataDir := os.Getenv("XDG_DATA_HOME")
	if appDataDir == "" {
		home, _ := os.UserHomeDir()
		appDataDir = filepath.Join(home, ".local", "share", "embeddb")
	}
	if err := os.MkdirAll(appDataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	db, err := embeddb.New(ctx, embeddb.Options{DataDir: appDataDir})
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	notes, err := db.Collection("notes")
	if err != nil {
		log.Fatal(err)
	}
	if _, err := notes.CreateIndex("by_author", []string{"author"}, index.Single, index.Options{}); err != nil {
		log.Fatal(err)
	}

	if _, err := notes.Insert(ctx, map[string]interface{}{
		"id":     "note1",
		"author": "alice",
		"title":  "hello embeddb",
	}); err != nil {
		log.Fatal(err)
	}
	fmt.Println("inserted note1")

	results, err := notes.Find(ctx, map[string]interface{}{"author": "alice"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("notes by alice: %v\n", results)

	unsub, err := notes.Subscribe(ctx, map[string]interface{}{"author": "alice"}, func(docs []map[string]interface{}) {
		fmt.Printf("subscription update: %d matching notes\n", len(docs))
	})
	if err != nil {
		log.Fatal(err)
	}
	defer unsub()

	if _, err := notes.Insert(ctx, map[string]interface{}{
		"id":     "note2",
		"author": "alice",
		"title":  "second note",
	}); err != nil {
		log.Fatal(err)
	}

	if err := db.Save(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Println("saved to", appDataDir)
}
