// Package agents implements the interpretation pipeline: a fixed sequence of
// stages that enrich a PipelineContext from drawn cards to a validated draft.
package agents

import (
	"context"

	"github.com/becomeliminal/arcana-go/core"
)

// Stage is one step of the pipeline. A stage reads earlier results from the
// context and appends its own; it never rewrites what came before it.
type Stage interface {
	// Name identifies the stage in logs.
	Name() string

	// Run executes the stage against the accumulated context.
	Run(ctx context.Context, pc *core.PipelineContext) error
}

// Retriever supplies ranked knowledge context for a query.
// Implemented by retrieval.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) (core.RetrievalResult, error)
}
