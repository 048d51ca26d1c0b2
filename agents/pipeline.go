package agents

import (
	"context"
	"log"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/provider"
)

// Pipeline is the fixed stage sequence of one interpretation run:
// KNOWLEDGE, then INTERPRETATION, then VALIDATION. The order never changes
// and no stage repeats within a run; retries are the caller's decision.
type Pipeline struct {
	knowledge      *KnowledgeStage
	interpretation *InterpretationStage
	validation     *ValidationStage
}

// Config assembles a pipeline's stages.
type Config struct {
	// Retriever backs the knowledge stage. Nil skips retrieval entirely.
	Retriever Retriever

	// TopK is the number of knowledge documents to retrieve. Zero defers
	// to the retriever's default.
	TopK int

	// Generate configures the interpretation stage's generation calls.
	Generate provider.GenerateOptions

	// MinWords is the validator's minimum draft length. Zero means
	// DefaultMinWords.
	MinWords int
}

// NewPipeline creates the pipeline around a text generator.
func NewPipeline(generator provider.TextGenerator, config *Config) *Pipeline {
	if config == nil {
		config = &Config{}
	}
	return &Pipeline{
		knowledge:      NewKnowledgeStage(config.Retriever, config.TopK),
		interpretation: NewInterpretationStage(generator, config.Generate),
		validation:     &ValidationStage{MinWords: config.MinWords},
	}
}

// Interpretation exposes the generation stage for reduced-context fallback
// calls.
func (p *Pipeline) Interpretation() *InterpretationStage {
	return p.interpretation
}

// Run executes all stages in order against pc. The only fatal stage is
// INTERPRETATION; knowledge degradation and validation verdicts are recorded
// on the context instead.
func (p *Pipeline) Run(ctx context.Context, pc *core.PipelineContext) error {
	stages := []Stage{p.knowledge, p.interpretation, p.validation}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Printf("[AGENT] Stage %s", stage.Name())
		if err := stage.Run(ctx, pc); err != nil {
			return err
		}
	}
	return nil
}

// Revise reruns INTERPRETATION and VALIDATION only, keeping the knowledge
// already on the context. The caller appends guidance to pc before calling.
func (p *Pipeline) Revise(ctx context.Context, pc *core.PipelineContext) error {
	for _, stage := range []Stage{p.interpretation, p.validation} {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Printf("[AGENT] Stage %s (revision)", stage.Name())
		if err := stage.Run(ctx, pc); err != nil {
			return err
		}
	}
	return nil
}
