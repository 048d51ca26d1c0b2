package agents

import (
	"context"
	"log"
	"strings"

	"github.com/becomeliminal/arcana-go/core"
)

// KnowledgeStage retrieves supporting context for the spread. Retrieval is an
// enrichment, never a gate: any failure degrades to the explicit no-knowledge
// sentinel and the pipeline proceeds.
type KnowledgeStage struct {
	retriever Retriever
	topK      int
}

// NewKnowledgeStage creates the retrieval stage. topK <= 0 defers to the
// retriever's own default.
func NewKnowledgeStage(retriever Retriever, topK int) *KnowledgeStage {
	return &KnowledgeStage{retriever: retriever, topK: topK}
}

func (s *KnowledgeStage) Name() string { return "KNOWLEDGE" }

// Run builds a query from the spread and question, retrieves, and records the
// result on the context. Never returns an error.
func (s *KnowledgeStage) Run(ctx context.Context, pc *core.PipelineContext) error {
	if s.retriever == nil {
		noKnowledge := core.NoKnowledge()
		pc.Knowledge = &noKnowledge
		return nil
	}

	query := knowledgeQuery(pc)
	result, err := s.retriever.Retrieve(ctx, query, s.topK)
	if err != nil {
		log.Printf("[AGENT] Knowledge retrieval failed, proceeding without context: %v", err)
		result = core.NoKnowledge()
	}
	pc.Knowledge = &result
	return nil
}

// knowledgeQuery combines card names and the question into the retrieval
// query, mirroring how the knowledge base talks about cards.
func knowledgeQuery(pc *core.PipelineContext) string {
	var b strings.Builder
	for i, d := range pc.Cards {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Label())
	}
	if pc.Question != "" {
		b.WriteString(". ")
		b.WriteString(pc.Question)
	}
	return b.String()
}
