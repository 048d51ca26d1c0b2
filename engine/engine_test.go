package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/becomeliminal/arcana-go/cache"
	"github.com/becomeliminal/arcana-go/core"
	"github.com/becomeliminal/arcana-go/engine"
	"github.com/becomeliminal/arcana-go/provider/mock"
	"github.com/becomeliminal/arcana-go/retrieval"
	"github.com/becomeliminal/arcana-go/vector"
)

func spread() []core.DrawnCard {
	return []core.DrawnCard{
		{Card: core.CardDatum{Name: "The Magician", Suit: core.SuitMajor, UprightMeaning: "willpower and skill"}},
		{Card: core.CardDatum{Name: "Three of Cups", Suit: core.SuitCups, UprightMeaning: "celebration"}},
	}
}

// validDraft names both cards and clears the validator's word count.
const validDraft = "The Magician sets the tone here: you hold every tool the situation requires, " +
	"and the question is only whether you will pick them up. The Three of Cups answers " +
	"with company, suggesting the work ahead is not solitary and that the people around " +
	"you are ready to mark the milestone with you. Read together, the cards favor acting " +
	"now and letting the celebration follow the effort rather than precede it."

func newMockEngine(t *testing.T, gen *mock.Generator, opts ...engine.Option) *engine.Engine {
	t.Helper()
	return engine.NewEngine(gen, mock.NewEmbedder(8), vector.NewStore(8), opts...)
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestInterpretEmptySpread(t *testing.T) {
	e := newMockEngine(t, mock.NewGenerator(nil))
	if _, err := e.Interpret(context.Background(), nil, "question", nil); !errors.Is(err, core.ErrEmptySpread) {
		t.Fatalf("expected ErrEmptySpread, got %v", err)
	}
}

func TestInterpretHappyPath(t *testing.T) {
	gen := mock.NewGenerator(func(prompt string) (string, error) { return validDraft, nil })
	e := newMockEngine(t, gen)

	reading, err := e.Interpret(context.Background(), spread(), "Should I launch?", nil)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if reading.Text != validDraft {
		t.Fatal("unexpected reading text")
	}
	if reading.Degraded {
		t.Fatal("valid reading must not be degraded")
	}
	if n := gen.Calls(); n != 1 {
		t.Fatalf("expected one generation, got %d", n)
	}
}

func TestInterpretCoalescesConcurrentRequests(t *testing.T) {
	release := make(chan struct{})
	gen := mock.NewGenerator(func(prompt string) (string, error) {
		<-release
		return validDraft, nil
	})
	e := newMockEngine(t, gen, engine.WithCache(newTestCache(t)))

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Interpret(context.Background(), spread(), "same question", nil)
		}(i)
	}
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if n := gen.Calls(); n != 1 {
		t.Fatalf("identical requests must share one pipeline run, got %d generations", n)
	}

	// A later identical request is a pure cache hit.
	if _, err := e.Interpret(context.Background(), spread(), "same question", nil); err != nil {
		t.Fatalf("cached Interpret: %v", err)
	}
	if n := gen.Calls(); n != 1 {
		t.Fatalf("expected a cache hit, got %d generations", n)
	}
}

func TestInterpretDistinctRequestsDoNotCoalesce(t *testing.T) {
	gen := mock.NewGenerator(func(prompt string) (string, error) { return validDraft, nil })
	e := newMockEngine(t, gen, engine.WithCache(newTestCache(t)))

	if _, err := e.Interpret(context.Background(), spread(), "first question", nil); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := e.Interpret(context.Background(), spread(), "second question", nil); err != nil {
		t.Fatalf("second: %v", err)
	}
	if n := gen.Calls(); n != 2 {
		t.Fatalf("different questions must compute separately, got %d generations", n)
	}
}

func TestInterpretRevisesInvalidDraft(t *testing.T) {
	var prompts []string
	gen := mock.NewGenerator(func(prompt string) (string, error) {
		prompts = append(prompts, prompt)
		if len(prompts) == 1 {
			return "Too short.", nil
		}
		return validDraft, nil
	})
	e := newMockEngine(t, gen)

	reading, err := e.Interpret(context.Background(), spread(), "", nil)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(prompts) != 2 {
		t.Fatalf("expected exactly one revision, got %d generations", len(prompts))
	}
	if !strings.Contains(prompts[1], "previous draft") {
		t.Fatal("revision prompt must carry the validation feedback")
	}
	if reading.Degraded {
		t.Fatal("a successful revision must not be degraded")
	}
	if reading.Text != validDraft {
		t.Fatal("expected the revised draft")
	}
}

func TestInterpretDegradedWhenRevisionStillInvalid(t *testing.T) {
	gen := mock.NewGenerator(func(prompt string) (string, error) {
		return "Persistently too short.", nil
	})
	e := newMockEngine(t, gen)

	reading, err := e.Interpret(context.Background(), spread(), "", nil)
	if err != nil {
		t.Fatalf("a bad draft is degraded, never an error: %v", err)
	}
	if !reading.Degraded {
		t.Fatal("expected the degraded flag")
	}
	if n := gen.Calls(); n != 2 {
		t.Fatalf("expected exactly two generations (draft + one revision), got %d", n)
	}
	if reading.Text == "" {
		t.Fatal("degraded reading still carries the draft")
	}
}

func TestInterpretFallbackOnProviderFailure(t *testing.T) {
	boom := core.NewProviderError("mock", core.KindProviderFault, errors.New("overloaded"))
	gen := mock.NewGenerator(func(prompt string) (string, error) { return validDraft, nil })
	gen.QueueError(boom)
	e := newMockEngine(t, gen)

	reading, err := e.Interpret(context.Background(), spread(), "", nil)
	if err != nil {
		t.Fatalf("fallback should have rescued the request: %v", err)
	}
	if !reading.Degraded {
		t.Fatal("a fallback reading is degraded")
	}
	if reading.Confidence != 0 || len(reading.Sources) != 0 {
		t.Fatalf("fallback reading must not claim knowledge: %+v", reading)
	}
	if n := gen.Calls(); n != 2 {
		t.Fatalf("expected failed generation plus one fallback, got %d", n)
	}
}

func TestFallbackReadingNotPinnedByCache(t *testing.T) {
	boom := core.NewProviderError("mock", core.KindProviderFault, errors.New("overloaded"))
	gen := mock.NewGenerator(func(prompt string) (string, error) { return validDraft, nil })
	gen.QueueError(boom)
	e := newMockEngine(t, gen, engine.WithCache(newTestCache(t)))

	first, err := e.Interpret(context.Background(), spread(), "q", nil)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !first.Degraded {
		t.Fatal("expected the fallback reading to be degraded")
	}

	// The provider has recovered; the repeat request must run the full
	// pipeline rather than serve the knowledge-free fallback from cache.
	second, err := e.Interpret(context.Background(), spread(), "q", nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Degraded {
		t.Fatal("recovered request must not be served the cached fallback")
	}
	if n := gen.Calls(); n != 3 {
		t.Fatalf("expected failed draft + fallback + fresh run, got %d generations", n)
	}

	// The full reading is cached from here on.
	if _, err := e.Interpret(context.Background(), spread(), "q", nil); err != nil {
		t.Fatalf("third: %v", err)
	}
	if n := gen.Calls(); n != 3 {
		t.Fatalf("expected a cache hit after recovery, got %d generations", n)
	}
}

func TestInterpretUnavailableWhenFallbackFails(t *testing.T) {
	boom := core.NewProviderError("mock", core.KindProviderFault, errors.New("overloaded"))
	gen := mock.NewGenerator(nil)
	gen.QueueError(boom)
	gen.QueueError(boom)
	e := newMockEngine(t, gen)

	_, err := e.Interpret(context.Background(), spread(), "", nil)
	if !errors.Is(err, core.ErrInterpretationUnavailable) {
		t.Fatalf("expected ErrInterpretationUnavailable, got %v", err)
	}
}

func TestIndexKnowledgeFeedsInterpretation(t *testing.T) {
	gen := mock.NewGenerator(func(prompt string) (string, error) { return validDraft, nil })
	e := newMockEngine(t, gen)

	report, err := e.IndexKnowledge(context.Background(), []retrieval.IndexDocument{
		{Content: "The Magician channels raw potential into directed action."},
		{Content: "Cups govern relationships and feeling."},
	})
	if err != nil {
		t.Fatalf("IndexKnowledge: %v", err)
	}
	if report.Indexed != 2 {
		t.Fatalf("expected 2 indexed, got %+v", report)
	}

	reading, err := e.Interpret(context.Background(), spread(), "", nil)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(reading.Sources) == 0 {
		t.Fatal("expected the reading to cite indexed knowledge")
	}
}

func TestInvalidateCacheForcesRecompute(t *testing.T) {
	gen := mock.NewGenerator(func(prompt string) (string, error) { return validDraft, nil })
	e := newMockEngine(t, gen, engine.WithCache(newTestCache(t)))

	cards := spread()
	if _, err := e.Interpret(context.Background(), cards, "q", nil); err != nil {
		t.Fatalf("first: %v", err)
	}
	e.InvalidateCache(core.FingerprintReading(cards, "q", nil))
	if _, err := e.Interpret(context.Background(), cards, "q", nil); err != nil {
		t.Fatalf("second: %v", err)
	}
	if n := gen.Calls(); n != 2 {
		t.Fatalf("expected recompute after invalidation, got %d generations", n)
	}
}
