// Package mock provides deterministic in-process providers for tests and
// local development: a hash-based embedder and a scriptable text generator.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/provider"
)

// Embedder generates deterministic embeddings from a text hash. The vectors
// carry no real semantics, but identical texts always embed identically,
// which is what index and retrieval tests need.
type Embedder struct {
	dims int

	mu        sync.Mutex
	failTexts map[string]error
	embedErr  error
	calls     atomic.Int64
}

// NewEmbedder creates an embedder producing dims-length unit vectors.
func NewEmbedder(dims int) *Embedder {
	return &Embedder{dims: dims, failTexts: make(map[string]error)}
}

// FailText makes every subsequent embedding of text fail with err. Batch
// calls report the failure in that item's slot only.
func (e *Embedder) FailText(text string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failTexts[text] = err
}

// FailAll makes every call fail with err until reset with FailAll(nil).
func (e *Embedder) FailAll(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embedErr = err
}

// Calls returns the number of Embed and EmbedBatch invocations so far.
func (e *Embedder) Calls() int64 { return e.calls.Load() }

// Embed implements provider.EmbeddingGenerator.
func (e *Embedder) Embed(ctx context.Context, text string) (core.Embedding, error) {
	e.calls.Add(1)
	if err := e.scriptedErr(text); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

// EmbedBatch implements provider.EmbeddingGenerator. Item failures scripted
// with FailText land in the matching slot; FailAll fails the whole call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]provider.BatchResult, error) {
	e.calls.Add(1)
	e.mu.Lock()
	callErr := e.embedErr
	e.mu.Unlock()
	if callErr != nil {
		return nil, callErr
	}

	out := make([]provider.BatchResult, len(texts))
	for i, text := range texts {
		if err := e.scriptedErr(text); err != nil {
			out[i] = provider.BatchResult{Err: err}
			continue
		}
		out[i] = provider.BatchResult{Embedding: e.vector(text)}
	}
	return out, nil
}

// Dimensions implements provider.EmbeddingGenerator.
func (e *Embedder) Dimensions() int { return e.dims }

func (e *Embedder) scriptedErr(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.embedErr != nil {
		return e.embedErr
	}
	return e.failTexts[text]
}

// vector derives a unit vector from the text hash via a linear congruential
// generator, so equal texts map to equal vectors.
func (e *Embedder) vector(text string) core.Embedding {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make(core.Embedding, e.dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec)
}

func normalize(vec core.Embedding) core.Embedding {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}

// Generator is a scriptable TextGenerator. By default it echoes a canned
// interpretation; tests can queue errors or a custom response function.
type Generator struct {
	mu      sync.Mutex
	queue   []error
	respond func(prompt string) (string, error)
	calls   atomic.Int64
}

// NewGenerator creates a generator answering with respond; nil respond
// yields a generic non-empty response.
func NewGenerator(respond func(prompt string) (string, error)) *Generator {
	return &Generator{respond: respond}
}

// QueueError makes the next call fail with err before respond is consulted.
// Multiple queued errors fail successive calls in order.
func (g *Generator) QueueError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, err)
}

// Calls returns the number of Generate invocations so far.
func (g *Generator) Calls() int64 { return g.calls.Load() }

// Generate implements provider.TextGenerator.
func (g *Generator) Generate(ctx context.Context, prompt string, opts provider.GenerateOptions) (string, error) {
	g.calls.Add(1)

	g.mu.Lock()
	var next error
	if len(g.queue) > 0 {
		next = g.queue[0]
		g.queue = g.queue[1:]
	}
	respond := g.respond
	g.mu.Unlock()

	if next != nil {
		return "", next
	}
	if respond != nil {
		return respond(prompt)
	}
	return fmt.Sprintf("mock interpretation (%d chars of prompt)", len(prompt)), nil
}
