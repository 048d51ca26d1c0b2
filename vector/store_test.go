package vector_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/vector"
)

func TestStoreQueryRanking(t *testing.T) {
	ctx := context.Background()
	store := vector.NewStore(4)

	fireID, err := store.Add(ctx, core.Document{
		Content:   "Fire signifies passion",
		Metadata:  map[string]string{"source": "elements", "category": "A"},
		Embedding: core.Embedding{1, 0, 0, 0},
	})
	if err != nil {
		t.Fatalf("Add fire: %v", err)
	}
	if _, err := store.Add(ctx, core.Document{
		Content:   "Cups relate to emotion",
		Metadata:  map[string]string{"source": "suits", "category": "B"},
		Embedding: core.Embedding{0, 1, 0, 0},
	}); err != nil {
		t.Fatalf("Add cups: %v", err)
	}
	store.Build(8)

	// Query vector closer to the fire document.
	results, err := store.Query(ctx, core.Embedding{0.95, 0.05, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
	if results[0].Document.ID != fireID {
		t.Fatalf("expected the fire document, got %q", results[0].Document.Content)
	}
}

func TestStoreDimensionEnforcement(t *testing.T) {
	ctx := context.Background()
	store := vector.NewStore(4)

	_, err := store.Add(ctx, core.Document{Content: "short", Embedding: core.Embedding{1, 0}})
	if !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("got %v, want ErrDimensionMismatch", err)
	}
	if store.Len() != 0 {
		t.Fatalf("failed add must leave the store unchanged, size %d", store.Len())
	}
}

func TestStoreEmptyQuery(t *testing.T) {
	store := vector.NewStore(4)
	results, err := store.Query(context.Background(), core.Embedding{1, 0, 0, 0}, 3)
	if err != nil {
		t.Fatalf("empty store query errored: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("empty store should return empty results, got %d", len(results))
	}
}

func TestStoreUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := vector.NewStore(3)

	id, err := store.Add(ctx, core.Document{Content: "original", Embedding: core.Embedding{1, 0, 0}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	store.Build(4)

	if err := store.Update(ctx, "missing", "x", core.Embedding{0, 1, 0}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Update missing: got %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Delete missing: got %v, want ErrNotFound", err)
	}

	if err := store.Update(ctx, id, "moved", core.Embedding{0, 1, 0}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	store.Build(4)

	results, err := store.Query(ctx, core.Embedding{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Document.Content != "moved" {
		t.Fatalf("expected updated document, got %+v", results)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if results, _ = store.Query(ctx, core.Embedding{0, 1, 0}, 1); len(results) != 0 {
		t.Fatalf("deleted document still queryable: %+v", results)
	}
	if store.Len() != 0 {
		t.Fatalf("store should be empty after delete, size %d", store.Len())
	}
}

func TestStoreSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	store := vector.NewStore(3)

	if _, err := store.Add(ctx, core.Document{
		ID: "doc-1", Content: "hold fast", Embedding: core.Embedding{0, 0, 1},
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var buf bytes.Buffer
	if err := store.Snapshot(&buf); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := vector.NewStore(3)
	if err := restored.Restore(&buf); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	results, err := restored.Query(ctx, core.Embedding{0, 0, 1}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Document.ID != "doc-1" {
		t.Fatalf("restored store missing document: %+v", results)
	}
}
