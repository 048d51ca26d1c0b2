// Package retrieval turns natural-language queries into ranked,
// provenance-tagged context for the interpretation pipeline.
//
// Architecture:
//   - Store: similarity-searchable document backend (vector.Store by
//     default, retrieval/store/chromem as an embedded alternative)
//   - Reranker: optional secondary relevance pass over the candidate set
//   - Retriever: orchestrates embedding, search, reranking, and indexing
//
// Retrieval is a quality enhancement to the pipeline, not a correctness
// requirement: the retriever reports provider failures to its caller, and
// the pipeline's knowledge stage degrades to an empty context rather than
// failing the reading.
package retrieval

import (
	"context"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/vector"
)

// Store is the document backend interface.
// Implementations: vector.Store (in-process ANN), chromem.Store (embedded
// vector database).
type Store interface {
	// Add appends a document, returning its id. The document becomes
	// queryable after the next Build. Fails with core.ErrDimensionMismatch
	// on an embedding of the wrong length.
	Add(ctx context.Context, doc core.Document) (string, error)

	// Build (re)constructs the searchable structure over all added
	// documents; trees tunes build quality for backends that support it.
	Build(trees int)

	// Query returns up to k nearest documents ascending by distance.
	// An empty store yields an empty slice, never an error.
	Query(ctx context.Context, vec core.Embedding, k int) ([]vector.Result, error)

	// Update replaces a document's content and embedding; Delete removes
	// it. Both fail with core.ErrNotFound for an absent id.
	Update(ctx context.Context, id, content string, emb core.Embedding) error
	Delete(ctx context.Context, id string) error

	// Len returns the number of live documents.
	Len() int
}

// Reranker reorders a candidate set by a secondary relevance score. A
// failing reranker never fails retrieval; the retriever falls back to the
// similarity ordering.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []vector.Result, topK int) ([]vector.Result, error)
}
