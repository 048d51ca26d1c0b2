package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/provider"
)

// InterpretationStage turns the accumulated context into a reading draft with
// a single generation call. Provider failures are fatal to the stage and
// surface to the caller unchanged.
type InterpretationStage struct {
	generator provider.TextGenerator
	opts      provider.GenerateOptions
}

// NewInterpretationStage creates the generation stage. opts fields left zero
// defer to the generator's defaults.
func NewInterpretationStage(generator provider.TextGenerator, opts provider.GenerateOptions) *InterpretationStage {
	return &InterpretationStage{generator: generator, opts: opts}
}

func (s *InterpretationStage) Name() string { return "INTERPRETATION" }

// Run generates the draft from cards, question, retrieved knowledge, and any
// guidance accumulated from a prior validation pass.
func (s *InterpretationStage) Run(ctx context.Context, pc *core.PipelineContext) error {
	text, err := s.generator.Generate(ctx, interpretationPrompt(pc), s.generateOptions())
	if err != nil {
		return fmt.Errorf("generate interpretation: %w", err)
	}

	pc.Draft = strings.TrimSpace(text)
	log.Printf("[AGENT] Interpretation drafted (%d chars)", len(pc.Draft))
	return nil
}

// GenerateReduced produces a reading from the spread alone: no retrieved
// knowledge, no guidance, a deliberately simple prompt. Used as the fallback
// when the full pipeline's generation cannot complete.
func (s *InterpretationStage) GenerateReduced(ctx context.Context, pc *core.PipelineContext) (string, error) {
	var b strings.Builder
	b.WriteString("Give a brief tarot reading for this spread:\n")
	for _, d := range pc.Cards {
		fmt.Fprintf(&b, "- %s\n", d.Label())
	}
	if pc.Question != "" {
		fmt.Fprintf(&b, "Question: %s\n", pc.Question)
	}

	text, err := s.generator.Generate(ctx, b.String(), s.generateOptions())
	if err != nil {
		return "", fmt.Errorf("generate reduced interpretation: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// generateOptions returns the stage's options with the default system prompt
// filled in only when the caller supplied none.
func (s *InterpretationStage) generateOptions() provider.GenerateOptions {
	opts := s.opts
	if opts.System == "" {
		opts.System = interpretationSystemPrompt
	}
	return opts
}

// interpretationPrompt renders the full generation prompt from the context.
func interpretationPrompt(pc *core.PipelineContext) string {
	var b strings.Builder

	b.WriteString("Interpret the following tarot spread.\n\nCards:\n")
	for _, d := range pc.Cards {
		fmt.Fprintf(&b, "- %s", d.Label())
		if meaning := d.Card.MeaningFor(d.Reversed); meaning != "" {
			fmt.Fprintf(&b, ": %s", meaning)
		}
		if len(d.Card.Keywords) > 0 {
			fmt.Fprintf(&b, " (keywords: %s)", strings.Join(d.Card.Keywords, ", "))
		}
		b.WriteString("\n")
	}

	if pc.Question != "" {
		fmt.Fprintf(&b, "\nQuestion: %s\n", pc.Question)
	}

	if pc.Knowledge != nil && !pc.Knowledge.Empty() {
		fmt.Fprintf(&b, "\nRelevant background (confidence %.2f):\n%s\n",
			pc.Knowledge.Confidence, pc.Knowledge.Content)
	}

	if len(pc.Guidance) > 0 {
		b.WriteString("\nA previous draft had these problems; address them:\n")
		for _, g := range pc.Guidance {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}

	b.WriteString("\nWeave the cards into one coherent reading. Name every card explicitly.")
	return b.String()
}

const interpretationSystemPrompt = `You are an experienced tarot reader.

GUIDELINES:
- Address the querent's question directly when one is given
- Ground the reading in the cards drawn, naming each card
- Respect orientation: a reversed card shifts or internalizes its meaning
- Draw on the provided background material when it is relevant
- Be specific and grounded; avoid vague universal statements`
