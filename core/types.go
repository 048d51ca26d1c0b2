package core

import "time"

// Embedding is a fixed-length vector representing the semantic content of
// text. All embeddings flowing through one deployment share a single
// dimension; a mismatch is a programming error, not a runtime condition.
type Embedding []float32

// Suit identifies a card's suit, or Major for the major arcana.
type Suit string

const (
	SuitMajor     Suit = "major"
	SuitWands     Suit = "wands"
	SuitCups      Suit = "cups"
	SuitSwords    Suit = "swords"
	SuitPentacles Suit = "pentacles"
)

// CardEmbeddings holds the optional multi-vector embeddings for a card.
// Meaning covers the upright/reversed texts, Symbolism the keywords and
// correspondences, Contextual the knowledge-base annotation.
type CardEmbeddings struct {
	Meaning    Embedding `json:"meaning,omitempty"`
	Symbolism  Embedding `json:"symbolism,omitempty"`
	Contextual Embedding `json:"contextual,omitempty"`
}

// CardDatum is a single card from the external card corpus. The pipeline
// treats loaded cards as read-only; it may populate missing meanings or
// embeddings, but persisting them back is the corpus owner's concern.
type CardDatum struct {
	Name            string            `json:"name"`
	Number          int               `json:"number"`
	Suit            Suit              `json:"suit"`
	Keywords        []string          `json:"keywords"`
	UprightMeaning  string            `json:"upright_meaning"`
	ReversedMeaning string            `json:"reversed_meaning"`
	Element         string            `json:"element,omitempty"`
	Astrological    string            `json:"astrological,omitempty"`
	Kabbalistic     string            `json:"kabbalistic,omitempty"`
	Annotation      map[string]string `json:"annotation,omitempty"`
	Embeddings      *CardEmbeddings   `json:"embeddings,omitempty"`
}

// MeaningFor returns the meaning text matching the card's orientation.
func (c CardDatum) MeaningFor(reversed bool) string {
	if reversed {
		return c.ReversedMeaning
	}
	return c.UprightMeaning
}

// DrawnCard pairs a card with its orientation in a spread.
type DrawnCard struct {
	Card     CardDatum
	Reversed bool
}

// Label renders the card the way prompts and validation refer to it,
// e.g. "The Fool (Reversed)".
func (d DrawnCard) Label() string {
	if d.Reversed {
		return d.Card.Name + " (Reversed)"
	}
	return d.Card.Name + " (Upright)"
}

// Document is one retrievable knowledge unit. Owned exclusively by the
// document store once added; mutated only through explicit Update/Delete.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding Embedding         `json:"embedding"`
}

// RetrievalResult is the ranked, provenance-tagged context produced for one
// query. Created fresh per query and never persisted. Confidence is a
// conservative bound: the lowest similarity among the contributing documents,
// and 0 with empty Sources when nothing relevant exists.
type RetrievalResult struct {
	Content    string            `json:"content"`
	Sources    []string          `json:"sources"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NoKnowledge is the explicit "no knowledge available" sentinel used when
// retrieval fails or finds nothing. The pipeline proceeds with it rather
// than aborting.
func NoKnowledge() RetrievalResult {
	return RetrievalResult{Confidence: 0}
}

// Empty reports whether the result carries no retrieved context.
func (r RetrievalResult) Empty() bool {
	return r.Content == "" && len(r.Sources) == 0
}

// Reading is a completed interpretation of one spread. Degraded marks a
// reading whose draft never passed validation or that was generated without
// retrieved knowledge after a provider failure.
type Reading struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Sources    []string  `json:"sources,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validation is the outcome of the validation stage.
type Validation struct {
	Valid  bool
	Errors []string
}

// PipelineContext is the mutable accumulator threaded through the agent
// stages of one interpretation run. Fields are appended monotonically:
// a later stage never overwrites what an earlier stage produced. It is
// created per request and never shared across concurrent requests.
type PipelineContext struct {
	Cards    []DrawnCard
	Question string
	Extra    map[string]string

	// Guidance carries validation feedback injected before a retry of the
	// interpretation stage. Appended to, never replaced.
	Guidance []string

	Knowledge  *RetrievalResult
	Draft      string
	Validation *Validation

	StartedAt time.Time
}

// NewPipelineContext builds the accumulator for one run.
func NewPipelineContext(cards []DrawnCard, question string, extra map[string]string) *PipelineContext {
	return &PipelineContext{
		Cards:     cards,
		Question:  question,
		Extra:     extra,
		StartedAt: time.Now(),
	}
}

// CardNames returns the spread's card names in drawn order.
func (p *PipelineContext) CardNames() []string {
	names := make([]string, len(p.Cards))
	for i, d := range p.Cards {
		names[i] = d.Card.Name
	}
	return names
}
