// Package engine wires retrieval, the agent pipeline, and the interpretation
// cache into the single entry point callers use to read a spread.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/becomeliminal/arcana-go/agents"
	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/provider"
	"github.com/becomeliminal/arcana-go/retrieval"
)

// Cache is the interpretation cache the engine consults before running the
// pipeline. Implemented by cache.Cache.
type Cache interface {
	Get(fp core.Fingerprint) (core.Reading, bool)
	GetOrCompute(ctx context.Context, fp core.Fingerprint, compute func(ctx context.Context) (core.Reading, error)) (core.Reading, error)
	Invalidate(fp core.Fingerprint)
}

// Engine produces readings. Construct with NewEngine; safe for concurrent
// use.
type Engine struct {
	retriever *retrieval.Retriever
	pipeline  *agents.Pipeline
	cache     Cache // Optional: nil computes every request

	generate provider.GenerateOptions
	topK     int
	minWords int
	reranker retrieval.Reranker
}

// Option configures the engine.
type Option func(*Engine)

// WithCache sets the interpretation cache.
func WithCache(c Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithGenerateOptions sets model parameters for interpretation calls.
func WithGenerateOptions(opts provider.GenerateOptions) Option {
	return func(e *Engine) {
		e.generate = opts
	}
}

// WithTopK sets how many knowledge documents back each reading.
func WithTopK(k int) Option {
	return func(e *Engine) {
		e.topK = k
	}
}

// WithMinWords sets the validator's minimum draft length.
func WithMinWords(n int) Option {
	return func(e *Engine) {
		e.minWords = n
	}
}

// WithReranker sets a reranker for knowledge retrieval.
func WithReranker(r retrieval.Reranker) Option {
	return func(e *Engine) {
		e.reranker = r
	}
}

// NewEngine creates an engine over a text generator, an embedder, and a
// document store.
func NewEngine(generator provider.TextGenerator, embedder provider.EmbeddingGenerator, store retrieval.Store, opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	e.retriever = retrieval.NewRetriever(store, embedder, &retrieval.Config{
		TopK:     e.topK,
		Reranker: e.reranker,
	})
	e.pipeline = agents.NewPipeline(generator, &agents.Config{
		Retriever: e.retriever,
		TopK:      e.topK,
		Generate:  e.generate,
		MinWords:  e.minWords,
	})
	return e
}

// Interpret produces a reading for the spread. Identical requests coalesce on
// their fingerprint: concurrent callers share one pipeline run and later
// callers hit the cache. An invalid draft earns exactly one revision with the
// validation errors fed back as guidance; a draft that still fails validation
// is returned flagged Degraded rather than failing the request. Only when
// generation itself is impossible, including the reduced-context fallback,
// does Interpret fail with ErrInterpretationUnavailable.
func (e *Engine) Interpret(ctx context.Context, spread []core.DrawnCard, question string, extra map[string]string) (core.Reading, error) {
	if len(spread) == 0 {
		return core.Reading{}, core.ErrEmptySpread
	}

	fp := core.FingerprintReading(spread, question, extra)
	compute := func(ctx context.Context) (core.Reading, error) {
		return e.interpret(ctx, spread, question, extra)
	}

	if e.cache == nil {
		return compute(ctx)
	}
	return e.cache.GetOrCompute(ctx, fp, compute)
}

// interpret runs the pipeline for one uncached request.
func (e *Engine) interpret(ctx context.Context, spread []core.DrawnCard, question string, extra map[string]string) (core.Reading, error) {
	pc := core.NewPipelineContext(spread, question, extra)

	if err := e.pipeline.Run(ctx, pc); err != nil {
		if ctx.Err() != nil {
			return core.Reading{}, err
		}
		return e.fallback(ctx, pc, err)
	}

	if !pc.Validation.Valid {
		pc.Guidance = append(pc.Guidance, pc.Validation.Errors...)
		log.Printf("[ENGINE] Draft invalid, revising once: %v", pc.Validation.Errors)

		if err := e.pipeline.Revise(ctx, pc); err != nil {
			if ctx.Err() != nil {
				return core.Reading{}, err
			}
			// The first draft exists; degraded beats unavailable.
			log.Printf("[ENGINE] Revision failed, returning first draft degraded: %v", err)
			return e.reading(pc, true), nil
		}
	}

	degraded := !pc.Validation.Valid
	if degraded {
		log.Printf("[ENGINE] Reading still invalid after revision, returning degraded")
	}
	return e.reading(pc, degraded), nil
}

// fallback makes one reduced-context generation attempt after the full
// pipeline's generation failed.
func (e *Engine) fallback(ctx context.Context, pc *core.PipelineContext, cause error) (core.Reading, error) {
	log.Printf("[ENGINE] Generation failed, attempting reduced-context fallback: %v", cause)

	text, err := e.pipeline.Interpretation().GenerateReduced(ctx, pc)
	if err != nil {
		return core.Reading{}, fmt.Errorf("%w: %v", core.ErrInterpretationUnavailable, errors.Join(cause, err))
	}
	return core.Reading{
		Text:      text,
		Degraded:  true,
		CreatedAt: time.Now(),
	}, nil
}

// reading assembles the result from the finished pipeline context.
func (e *Engine) reading(pc *core.PipelineContext, degraded bool) core.Reading {
	r := core.Reading{
		Text:      pc.Draft,
		Degraded:  degraded,
		CreatedAt: time.Now(),
	}
	if pc.Knowledge != nil {
		r.Confidence = pc.Knowledge.Confidence
		r.Sources = append([]string(nil), pc.Knowledge.Sources...)
	}
	return r
}

// IndexKnowledge adds documents to the knowledge base, embedding them in
// batches. Per-document failures are reported, not fatal.
func (e *Engine) IndexKnowledge(ctx context.Context, docs []retrieval.IndexDocument) (retrieval.IndexReport, error) {
	return e.retriever.Index(ctx, docs)
}

// InvalidateCache drops the cached reading for a fingerprint. A no-op
// without a cache.
func (e *Engine) InvalidateCache(fp core.Fingerprint) {
	if e.cache != nil {
		e.cache.Invalidate(fp)
	}
}
