package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/becomeliminal/arcana-go/core"
)

// DefaultMinWords is the minimum draft length the validator accepts.
const DefaultMinWords = 30

// ValidationStage runs structural checks over the draft. It records the
// verdict on the context and never errors; deciding what to do with an
// invalid draft belongs to the caller.
type ValidationStage struct {
	// MinWords overrides DefaultMinWords when positive.
	MinWords int
}

func (s *ValidationStage) Name() string { return "VALIDATION" }

// Run checks the draft and records Validation on the context.
func (s *ValidationStage) Run(ctx context.Context, pc *core.PipelineContext) error {
	minWords := s.MinWords
	if minWords <= 0 {
		minWords = DefaultMinWords
	}

	var errs []string
	draft := strings.TrimSpace(pc.Draft)

	if draft == "" {
		errs = append(errs, "interpretation is empty")
	} else if words := len(strings.Fields(draft)); words < minWords {
		errs = append(errs, fmt.Sprintf("interpretation too short: %d words, need at least %d", words, minWords))
	}

	lower := strings.ToLower(draft)
	for _, d := range pc.Cards {
		if !strings.Contains(lower, strings.ToLower(d.Card.Name)) {
			errs = append(errs, fmt.Sprintf("card %q is never mentioned", d.Card.Name))
		}
	}

	pc.Validation = &core.Validation{Valid: len(errs) == 0, Errors: errs}
	if len(errs) > 0 {
		log.Printf("[AGENT] Validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
