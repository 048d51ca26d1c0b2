package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/becomeliminal/arcana-go/vector"
)

// TermOverlapReranker reorders candidates by blending the original
// similarity score with the fraction of query terms found in each document.
// It needs no external capability, so it can never introduce a provider
// failure into retrieval.
type TermOverlapReranker struct {
	// OverlapWeight is the blend weight for the term-overlap score, the
	// remainder going to the similarity score. Zero means half and half.
	OverlapWeight float64
}

// Rerank implements Reranker.
func (r *TermOverlapReranker) Rerank(ctx context.Context, query string, results []vector.Result, topK int) ([]vector.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return results, nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return results, nil
	}

	weight := r.OverlapWeight
	if weight <= 0 || weight >= 1 {
		weight = 0.5
	}

	type scored struct {
		res   vector.Result
		rank  int
		score float64
	}
	ranked := make([]scored, len(results))
	for i, res := range results {
		overlap := termOverlap(queryTerms, tokenize(res.Document.Content))
		ranked[i] = scored{
			res:   res,
			rank:  i,
			score: (1-weight)*similarity(res.Distance) + weight*overlap,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].rank < ranked[j].rank
	})

	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	out := make([]vector.Result, len(ranked))
	for i, s := range ranked {
		out[i] = s.res
	}
	return out, nil
}

// tokenize lowercases and splits on non-alphanumerics, dropping stopwords
// and fragments too short to discriminate.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 2 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// termOverlap is the fraction of distinct query terms present in the
// document.
func termOverlap(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = struct{}{}
	}
	matched := make(map[string]struct{})
	for _, t := range queryTerms {
		if _, ok := docSet[t]; ok {
			matched[t] = struct{}{}
		}
	}
	distinct := make(map[string]struct{})
	for _, t := range queryTerms {
		distinct[t] = struct{}{}
	}
	return float64(len(matched)) / float64(len(distinct))
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "are": true, "was": true, "were": true,
	"will": true, "would": true, "could": true, "should": true, "have": true,
	"has": true, "had": true, "not": true, "but": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "how": true,
	"your": true, "their": true, "about": true, "into": true,
}
