package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/provider"
	"github.com/becomeliminal/arcana-go/retrieval"
	"github.com/becomeliminal/arcana-go/vector"
)

// vocabEmbedder maps known texts to fixed vectors so tests control
// similarity exactly; unknown texts embed to the fallback vector.
type vocabEmbedder struct {
	dims     int
	vectors  map[string]core.Embedding
	fallback core.Embedding
	failText string
	failAll  error
}

func (e *vocabEmbedder) Embed(ctx context.Context, text string) (core.Embedding, error) {
	if e.failAll != nil {
		return nil, e.failAll
	}
	if text == e.failText {
		return nil, core.NewProviderError("vocab", core.KindProviderFault, errors.New("scripted failure"))
	}
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return e.fallback, nil
}

func (e *vocabEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]provider.BatchResult, error) {
	if e.failAll != nil {
		return nil, e.failAll
	}
	out := make([]provider.BatchResult, len(texts))
	for i, t := range texts {
		emb, err := e.Embed(ctx, t)
		out[i] = provider.BatchResult{Embedding: emb, Err: err}
	}
	return out, nil
}

func (e *vocabEmbedder) Dimensions() int { return e.dims }

func newFixture(t *testing.T) (*retrieval.Retriever, *vocabEmbedder, *vector.Store) {
	t.Helper()
	embedder := &vocabEmbedder{
		dims: 4,
		vectors: map[string]core.Embedding{
			"Fire signifies passion": {1, 0, 0, 0},
			"Cups relate to emotion": {0, 1, 0, 0},
			"fire and passion":       {0.95, 0.05, 0, 0},
		},
		fallback: core.Embedding{0, 0, 0, 1},
	}
	store := vector.NewStore(4)
	return retrieval.NewRetriever(store, embedder, nil), embedder, store
}

func indexFixture(t *testing.T, r *retrieval.Retriever) {
	t.Helper()
	report, err := r.Index(context.Background(), []retrieval.IndexDocument{
		{Content: "Fire signifies passion", Metadata: map[string]string{"source": "elements"}},
		{Content: "Cups relate to emotion", Metadata: map[string]string{"source": "suits"}},
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.Indexed != 2 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRetrieveRanksBySimilarity(t *testing.T) {
	r, _, _ := newFixture(t)
	indexFixture(t, r)

	result, err := r.Retrieve(context.Background(), "fire and passion", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(result.Content, "Fire signifies passion") {
		t.Fatalf("expected the fire document, got %q", result.Content)
	}
	if len(result.Sources) != 1 {
		t.Fatalf("expected one source, got %v", result.Sources)
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", result.Confidence)
	}
}

func TestRetrieveConfidenceIsMinimum(t *testing.T) {
	r, _, _ := newFixture(t)
	indexFixture(t, r)

	result, err := r.Retrieve(context.Background(), "fire and passion", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Sources) != 2 {
		t.Fatalf("expected two sources, got %v", result.Sources)
	}
	// The second document is nearly orthogonal to the query, so the
	// conservative bound must be far below the best match's similarity.
	if result.Confidence > 0.5 {
		t.Fatalf("confidence should reflect the weakest document, got %f", result.Confidence)
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	r, _, _ := newFixture(t)

	result, err := r.Retrieve(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Retrieve on empty store: %v", err)
	}
	if !result.Empty() || result.Confidence != 0 {
		t.Fatalf("expected the no-knowledge sentinel, got %+v", result)
	}
}

func TestRetrievePropagatesEmbedFailure(t *testing.T) {
	r, embedder, _ := newFixture(t)
	indexFixture(t, r)

	embedder.failAll = core.NewProviderError("vocab", core.KindConnection, errors.New("down"))
	_, err := r.Retrieve(context.Background(), "fire", 1)
	if core.KindOf(err) != core.KindConnection {
		t.Fatalf("expected the provider error to propagate, got %v", err)
	}
}

type failingReranker struct{}

func (failingReranker) Rerank(ctx context.Context, query string, results []vector.Result, topK int) ([]vector.Result, error) {
	return nil, errors.New("reranker offline")
}

func TestRetrieveRerankFailureFallsBack(t *testing.T) {
	embedder := &vocabEmbedder{
		dims:     4,
		vectors:  map[string]core.Embedding{"Fire signifies passion": {1, 0, 0, 0}},
		fallback: core.Embedding{0.9, 0.1, 0, 0},
	}
	store := vector.NewStore(4)
	r := retrieval.NewRetriever(store, embedder, &retrieval.Config{Reranker: failingReranker{}})

	if _, err := r.Index(context.Background(), []retrieval.IndexDocument{
		{Content: "Fire signifies passion"},
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	result, err := r.Retrieve(context.Background(), "fire", 1)
	if err != nil {
		t.Fatalf("rerank failure must not fail retrieval: %v", err)
	}
	if result.Empty() {
		t.Fatal("expected the similarity-ordered result")
	}
	if result.Metadata["reranked"] != "false" {
		t.Fatalf("result should record the rerank fallback, got %v", result.Metadata)
	}
}

func TestIndexPartialFailure(t *testing.T) {
	r, embedder, store := newFixture(t)
	embedder.failText = "Cups relate to emotion"

	report, err := r.Index(context.Background(), []retrieval.IndexDocument{
		{Content: "Fire signifies passion"},
		{Content: "Cups relate to emotion"},
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.Indexed != 1 {
		t.Fatalf("expected 1 indexed, got %d", report.Indexed)
	}
	if len(report.Failed) != 1 || report.Failed[0].Document.Content != "Cups relate to emotion" {
		t.Fatalf("expected the cups document reported failed, got %+v", report.Failed)
	}
	if store.Len() != 1 {
		t.Fatalf("successful documents must still be stored, size %d", store.Len())
	}

	// The surviving document is queryable without a separate Build call.
	result, err := r.Retrieve(context.Background(), "fire and passion", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.Empty() {
		t.Fatal("indexed document should be retrievable")
	}
}

func TestIndexManyDocumentsBatches(t *testing.T) {
	embedder := &vocabEmbedder{dims: 4, fallback: core.Embedding{0, 0, 1, 0}}
	store := vector.NewStore(4)
	r := retrieval.NewRetriever(store, embedder, &retrieval.Config{IndexWorkers: 2, IndexBatch: 8})

	docs := make([]retrieval.IndexDocument, 50)
	for i := range docs {
		docs[i] = retrieval.IndexDocument{Content: fmt.Sprintf("passage %d", i)}
	}
	report, err := r.Index(context.Background(), docs)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if report.Indexed != 50 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if store.Len() != 50 {
		t.Fatalf("expected 50 stored documents, got %d", store.Len())
	}
}
