//go:build onnx

// Package onnx provides a local, offline EmbeddingGenerator backed by ONNX
// Runtime and a sentence-transformer model such as all-MiniLM-L6-v2. Useful
// when no embedding API is reachable; build with -tags onnx.
package onnx

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/provider"
)

const providerName = "onnx"

// Config configures the local embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file. Required.
	ModelPath string

	// TokenizerPath is the path to the model's tokenizer.json. Required.
	TokenizerPath string

	// LibraryPath locates libonnxruntime; empty uses the process default.
	LibraryPath string

	// Dimensions is the embedding size. Default: 384 (all-MiniLM-L6-v2).
	Dimensions int

	// MaxSequence is the token window per text. Default: 128.
	MaxSequence int
}

// Embedder implements provider.EmbeddingGenerator with a local model.
// Inference runs one text at a time; EmbedBatch serializes items and
// reports any per-item inference failure in that item's slot.
type Embedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *wordPieceTokenizer
	dims      int
	maxSeq    int
}

// New initializes the runtime, loads the tokenizer, and opens a session.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx: ModelPath and TokenizerPath are required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxSequence == 0 {
		cfg.MaxSequence = 128
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", err)
	}

	tokenizer, err := loadWordPieceTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: open session: %w", err)
	}

	return &Embedder{
		session:   session,
		tokenizer: tokenizer,
		dims:      cfg.Dimensions,
		maxSeq:    cfg.MaxSequence,
	}, nil
}

// Embed implements provider.EmbeddingGenerator.
func (e *Embedder) Embed(ctx context.Context, text string) (core.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec, err := e.infer(text)
	if err != nil {
		return nil, core.NewProviderError(providerName, core.KindProviderFault, err)
	}
	return vec, nil
}

// EmbedBatch implements provider.EmbeddingGenerator.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]provider.BatchResult, error) {
	out := make([]provider.BatchResult, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.infer(text)
		if err != nil {
			out[i] = provider.BatchResult{Err: core.NewProviderError(providerName, core.KindProviderFault, err)}
			continue
		}
		out[i] = provider.BatchResult{Embedding: vec}
	}
	return out, nil
}

// Dimensions implements provider.EmbeddingGenerator.
func (e *Embedder) Dimensions() int { return e.dims }

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return err
		}
		e.session = nil
	}
	return nil
}

// infer tokenizes one text, runs the model, and mean-pools the hidden states
// into a unit vector. The session is not safe for concurrent Run calls.
func (e *Embedder) infer(text string) (core.Embedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("embedder is closed")
	}

	ids, mask, types := e.tokenizer.encode(text, e.maxSeq)

	shape := ort.NewShape(1, int64(e.maxSeq))
	inputIDs, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attention, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attention.Destroy()

	tokenTypes, err := ort.NewTensor(shape, types)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer tokenTypes.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attention, tokenTypes}, outputs); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	return e.pool(tensor, mask)
}

// pool reduces [1, seq, hidden] hidden states to a normalized [hidden]
// vector by averaging attended positions; an already pooled [1, hidden]
// output is passed through.
func (e *Embedder) pool(tensor *ort.Tensor[float32], mask []int64) (core.Embedding, error) {
	data := tensor.GetData()
	shape := tensor.GetShape()

	switch len(shape) {
	case 2:
		if len(data) < e.dims {
			return nil, fmt.Errorf("output dimension %d below configured %d", len(data), e.dims)
		}
		vec := make(core.Embedding, e.dims)
		copy(vec, data[:e.dims])
		return normalize(vec), nil

	case 3:
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != e.dims {
			return nil, fmt.Errorf("hidden size %d does not match configured %d", hidden, e.dims)
		}
		vec := make(core.Embedding, hidden)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			row := data[i*hidden : (i+1)*hidden]
			for j, v := range row {
				vec[j] += v
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("no attended tokens")
		}
		for j := range vec {
			vec[j] /= attended
		}
		return normalize(vec), nil

	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
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
