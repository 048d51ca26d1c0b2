package retrieval

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/provider"
	"github.com/becomeliminal/arcana-go/vector"
)

// Config holds Retriever configuration.
type Config struct {
	// TopK is the default number of documents per query. Default: 5.
	TopK int

	// IndexWorkers bounds concurrent embedding calls during indexing.
	// Default: 4.
	IndexWorkers int

	// IndexBatch is the number of texts per batched embedding call.
	// Default: 16.
	IndexBatch int

	// BuildTrees tunes index build quality. Default: vector.DefaultTrees.
	BuildTrees int

	// Reranker optionally reorders candidates; nil keeps similarity order.
	Reranker Reranker
}

// DefaultConfig returns sensible retriever defaults.
var DefaultConfig = &Config{
	TopK:         5,
	IndexWorkers: 4,
	IndexBatch:   16,
	BuildTrees:   vector.DefaultTrees,
}

func (c *Config) withDefaults() *Config {
	out := *DefaultConfig
	if c == nil {
		return &out
	}
	if c.TopK > 0 {
		out.TopK = c.TopK
	}
	if c.IndexWorkers > 0 {
		out.IndexWorkers = c.IndexWorkers
	}
	if c.IndexBatch > 0 {
		out.IndexBatch = c.IndexBatch
	}
	if c.BuildTrees > 0 {
		out.BuildTrees = c.BuildTrees
	}
	out.Reranker = c.Reranker
	return &out
}

// Retriever answers queries with ranked knowledge context and indexes new
// documents into the store.
type Retriever struct {
	store    Store
	embedder provider.EmbeddingGenerator
	config   *Config
}

// NewRetriever creates a retriever; nil config uses DefaultConfig.
func NewRetriever(store Store, embedder provider.EmbeddingGenerator, config *Config) *Retriever {
	return &Retriever{store: store, embedder: embedder, config: config.withDefaults()}
}

// Retrieve embeds the query, searches the store, optionally reranks, and
// concatenates the winning documents in rank order. Confidence is the lowest
// similarity among the included documents. Embedding failures propagate as
// provider errors; retry policy lives at the provider adapter, not here.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) (core.RetrievalResult, error) {
	if topK <= 0 {
		topK = r.config.TopK
	}

	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return core.RetrievalResult{}, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.Query(ctx, emb, topK)
	if err != nil {
		return core.RetrievalResult{}, fmt.Errorf("query store: %w", err)
	}
	if len(results) == 0 {
		log.Printf("[RETRIEVAL] No documents found for query: %q", truncateLog(query, 60))
		return core.NoKnowledge(), nil
	}

	reranked := false
	if r.config.Reranker != nil {
		better, rerr := r.config.Reranker.Rerank(ctx, query, results, topK)
		if rerr != nil {
			// Reranking is best-effort; keep the similarity ordering.
			log.Printf("[RETRIEVAL] Rerank failed, keeping similarity order: %v", rerr)
		} else {
			results = better
			reranked = true
		}
	}

	var parts []string
	sources := make([]string, 0, len(results))
	confidence := 1.0
	for _, res := range results {
		parts = append(parts, res.Document.Content)
		sources = append(sources, res.Document.ID)
		if sim := similarity(res.Distance); sim < confidence {
			confidence = sim
		}
	}

	log.Printf("[RETRIEVAL] Retrieved %d documents (confidence %.2f) for query: %q",
		len(results), confidence, truncateLog(query, 60))

	return core.RetrievalResult{
		Content:    strings.Join(parts, "\n\n"),
		Sources:    sources,
		Confidence: confidence,
		Metadata: map[string]string{
			"top_k":    strconv.Itoa(topK),
			"reranked": strconv.FormatBool(reranked),
		},
	}, nil
}

// IndexDocument is one knowledge unit to be embedded and stored.
type IndexDocument struct {
	Content  string
	Metadata map[string]string
}

// IndexFailure reports one document whose embedding failed.
type IndexFailure struct {
	Document IndexDocument
	Reason   string
}

// IndexReport summarizes an indexing run.
type IndexReport struct {
	Indexed int
	Failed  []IndexFailure
}

// Index embeds documents in batches through a bounded worker pool and adds
// them to the store, then triggers a single build. A failed embedding skips
// that document and lands in the report; the rest are still indexed. Only
// caller cancellation aborts the run.
func (r *Retriever) Index(ctx context.Context, docs []IndexDocument) (IndexReport, error) {
	if len(docs) == 0 {
		return IndexReport{}, nil
	}

	var (
		mu     sync.Mutex
		report IndexReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.IndexWorkers)

	for start := 0; start < len(docs); start += r.config.IndexBatch {
		end := start + r.config.IndexBatch
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, d := range batch {
				texts[i] = d.Content
			}

			results, err := r.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				for _, d := range batch {
					report.Failed = append(report.Failed, IndexFailure{Document: d, Reason: err.Error()})
				}
				mu.Unlock()
				return nil
			}

			for i, res := range results {
				if res.Err != nil {
					mu.Lock()
					report.Failed = append(report.Failed, IndexFailure{Document: batch[i], Reason: res.Err.Error()})
					mu.Unlock()
					continue
				}
				_, addErr := r.store.Add(gctx, core.Document{
					Content:   batch[i].Content,
					Metadata:  batch[i].Metadata,
					Embedding: res.Embedding,
				})
				mu.Lock()
				if addErr != nil {
					report.Failed = append(report.Failed, IndexFailure{Document: batch[i], Reason: addErr.Error()})
				} else {
					report.Indexed++
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	r.store.Build(r.config.BuildTrees)
	log.Printf("[RETRIEVAL] Indexed %d documents (%d failed)", report.Indexed, len(report.Failed))
	return report, nil
}

// similarity maps an angular distance to a [0,1] score: the underlying
// cosine, clamped at zero so anti-correlated documents never raise
// confidence.
func similarity(distance float64) float64 {
	cos := vector.CosineFromDistance(distance)
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}

func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
