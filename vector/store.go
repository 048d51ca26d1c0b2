package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/becomeliminal/arcana-go/core"
)

// Result is one similarity hit: the stored document and its angular distance
// from the query vector.
type Result struct {
	Document core.Document
	Distance float64
}

// Store owns documents and their embeddings and answers k-nearest queries
// through an Index. Documents are immutable once added except via Update and
// Delete. Safe for concurrent use.
type Store struct {
	index *Index

	mu    sync.RWMutex
	docs  map[string]core.Document
	slots map[int]string // index insertion id -> document id
	dead  int            // cumulative slots orphaned by Update/Delete; orphans survive rebuilds, so this never resets
}

// NewStore creates a store for embeddings of the given dimension.
func NewStore(dims int) *Store {
	return &Store{
		index: NewIndex(dims),
		docs:  make(map[string]core.Document),
		slots: make(map[int]string),
	}
}

// Dimensions returns the configured embedding dimension.
func (s *Store) Dimensions() int { return s.index.Dimensions() }

// Len returns the number of live documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Add appends a document, assigning a uuid when it has no id. The document
// becomes queryable after the next Build. Returns ErrDimensionMismatch when
// the embedding length disagrees with the store's dimension; the store is
// left unchanged.
func (s *Store) Add(ctx context.Context, doc core.Document) (string, error) {
	if len(doc.Embedding) != s.index.Dimensions() {
		return "", fmt.Errorf("add %q: %w: got %d, want %d",
			doc.ID, core.ErrDimensionMismatch, len(doc.Embedding), s.index.Dimensions())
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return "", fmt.Errorf("document %q already stored", doc.ID)
	}
	slot, err := s.index.Add(doc.Embedding)
	if err != nil {
		return "", err
	}
	s.docs[doc.ID] = doc
	s.slots[slot] = doc.ID
	return doc.ID, nil
}

// Build (re)constructs the searchable index over all current documents.
// Concurrent queries keep seeing the previous snapshot until the swap.
func (s *Store) Build(trees int) {
	s.index.Build(trees)
}

// Query returns up to k nearest live documents ascending by distance, ties
// broken by insertion order. An empty or not-yet-built store yields an empty
// slice, never an error.
func (s *Store) Query(ctx context.Context, vec core.Embedding, k int) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}

	s.mu.RLock()
	overfetch := k + s.dead
	s.mu.RUnlock()

	neighbors, err := s.index.Query(vec, overfetch)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Result, 0, k)
	for _, n := range neighbors {
		id, ok := s.slots[n.ID]
		if !ok {
			continue // orphaned by Update/Delete
		}
		out = append(out, Result{Document: s.docs[id], Distance: n.Distance})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Update replaces a document's content and embedding. The new embedding is
// indexed under a fresh slot and the old one is orphaned, so the change
// becomes visible to queries after the next Build. Fails with ErrNotFound
// for an absent id.
func (s *Store) Update(ctx context.Context, id, content string, emb core.Embedding) error {
	if len(emb) != s.index.Dimensions() {
		return fmt.Errorf("update %q: %w: got %d, want %d",
			id, core.ErrDimensionMismatch, len(emb), s.index.Dimensions())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("update %q: %w", id, core.ErrNotFound)
	}

	slot, err := s.index.Add(emb)
	if err != nil {
		return err
	}
	s.orphanLocked(id)
	doc.Content = content
	doc.Embedding = emb
	s.docs[id] = doc
	s.slots[slot] = id
	return nil
}

// Delete removes a document. Fails with ErrNotFound for an absent id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("delete %q: %w", id, core.ErrNotFound)
	}
	s.orphanLocked(id)
	delete(s.docs, id)
	return nil
}

// orphanLocked drops the slot mappings pointing at id. Callers hold s.mu.
func (s *Store) orphanLocked(id string) {
	for slot, docID := range s.slots {
		if docID == id {
			delete(s.slots, slot)
			s.dead++
		}
	}
}

// Snapshot writes every live document as JSON. Persistence is the caller's
// concern; the store only offers the hook.
func (s *Store) Snapshot(w io.Writer) error {
	s.mu.RLock()
	docs := make([]core.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	s.mu.RUnlock()

	return json.NewEncoder(w).Encode(docs)
}

// Restore loads documents from a Snapshot stream into an empty store and
// builds the index. Restoring into a non-empty store is an error.
func (s *Store) Restore(r io.Reader) error {
	s.mu.RLock()
	occupied := len(s.docs) > 0
	s.mu.RUnlock()
	if occupied {
		return fmt.Errorf("restore into non-empty store")
	}

	var docs []core.Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	for _, doc := range docs {
		if _, err := s.Add(context.Background(), doc); err != nil {
			return err
		}
	}
	s.Build(0)
	return nil
}
