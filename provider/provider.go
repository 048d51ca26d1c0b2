// Package provider defines the two external capabilities the interpretation
// pipeline consumes: text generation and embedding generation. Concrete
// adapters live in sub-packages and are passed in explicitly at construction;
// nothing in this module looks a provider up globally.
package provider

import (
	"context"

	"github.com/becomeliminal/arcana-go/core"
)

// GenerateOptions tunes a single text-generation call.
type GenerateOptions struct {
	// Model selects the provider's model; empty uses the adapter default.
	Model string

	// MaxTokens caps the response length; zero uses the adapter default.
	MaxTokens int64

	// System is the system prompt, empty for none.
	System string

	// Temperature in [0,1]; adapters treat zero as "use default".
	Temperature float64
}

// TextGenerator produces text for a prompt. Failures carry a
// *core.ProviderError so callers can branch on the error kind.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// BatchResult is one slot of a batch embedding call. Exactly one of
// Embedding and Err is meaningful; slots line up with the input texts.
type BatchResult struct {
	Embedding core.Embedding
	Err       error
}

// EmbeddingGenerator converts text to vectors.
type EmbeddingGenerator interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) (core.Embedding, error)

	// EmbedBatch embeds several texts in one round-trip where the provider
	// allows it. The result preserves input order and reports per-item
	// failures individually; a non-nil error means the whole call failed.
	EmbedBatch(ctx context.Context, texts []string) ([]BatchResult, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
