// Package chromem implements retrieval.Store on chromem-go, an embedded
// pure-Go vector database. Unlike vector.Store it searches online (Build is
// a no-op), which makes it a drop-in backend when the batch build/query
// discipline is not wanted, e.g. for corpora that mutate continuously.
package chromem

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/vector"
)

const collectionName = "knowledge"

// Store wraps a chromem collection. Document bookkeeping (metadata,
// insertion order) is kept locally; chromem owns the similarity search.
type Store struct {
	col *chromem.Collection

	mu    sync.RWMutex
	docs  map[string]core.Document
	order map[string]int // document id -> insertion sequence, for stable ties
	next  int
	dims  int
}

// New creates an in-memory chromem-backed store for embeddings of the given
// dimension.
func New(dims int) (*Store, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Store{
		col:   col,
		docs:  make(map[string]core.Document),
		order: make(map[string]int),
		dims:  dims,
	}, nil
}

// Add implements retrieval.Store.
func (s *Store) Add(ctx context.Context, doc core.Document) (string, error) {
	if len(doc.Embedding) != s.dims {
		return "", fmt.Errorf("add %q: %w: got %d, want %d",
			doc.ID, core.ErrDimensionMismatch, len(doc.Embedding), s.dims)
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return "", fmt.Errorf("document %q already stored", doc.ID)
	}

	if err := s.col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: doc.Embedding,
		Metadata:  doc.Metadata,
	}); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}

	s.docs[doc.ID] = doc
	s.order[doc.ID] = s.next
	s.next++
	return doc.ID, nil
}

// Build implements retrieval.Store. chromem searches online, so there is
// nothing to construct.
func (s *Store) Build(trees int) {}

// Query implements retrieval.Store.
func (s *Store) Query(ctx context.Context, vec core.Embedding, k int) ([]vector.Result, error) {
	if len(vec) != s.dims {
		return nil, core.ErrDimensionMismatch
	}

	s.mu.RLock()
	count := len(s.docs)
	s.mu.RUnlock()
	if count == 0 || k <= 0 {
		return []vector.Result{}, nil
	}
	if k > count {
		k = count // chromem rejects nResults above the collection size
	}

	results, err := s.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vector.Result, 0, len(results))
	for _, res := range results {
		doc, ok := s.docs[res.ID]
		if !ok {
			continue
		}
		out = append(out, vector.Result{
			Document: doc,
			Distance: distanceFromSimilarity(float64(res.Similarity)),
		})
	}
	// chromem orders by similarity but leaves ties arbitrary; pin them to
	// insertion order for deterministic results.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return s.order[out[i].Document.ID] < s.order[out[j].Document.ID]
	})
	return out, nil
}

// Update implements retrieval.Store.
func (s *Store) Update(ctx context.Context, id, content string, emb core.Embedding) error {
	if len(emb) != s.dims {
		return fmt.Errorf("update %q: %w: got %d, want %d",
			id, core.ErrDimensionMismatch, len(emb), s.dims)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("update %q: %w", id, core.ErrNotFound)
	}

	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete for update: %w", err)
	}
	doc.Content = content
	doc.Embedding = emb
	if err := s.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: emb,
		Metadata:  doc.Metadata,
	}); err != nil {
		return fmt.Errorf("re-add for update: %w", err)
	}
	s.docs[id] = doc
	return nil
}

// Delete implements retrieval.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("delete %q: %w", id, core.ErrNotFound)
	}
	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	delete(s.docs, id)
	delete(s.order, id)
	return nil
}

// Len implements retrieval.Store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// distanceFromSimilarity converts chromem's cosine similarity to the angular
// distance the Store interface reports.
func distanceFromSimilarity(cos float64) float64 {
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Sqrt(2 * (1 - cos))
}
