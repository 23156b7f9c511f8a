// Package retrieval implements the hybrid search pipeline: query
// enhancement, parallel dense+sparse retrieval, weighted reciprocal-rank
// fusion, bounded reranking, and composite scoring.
package retrieval

import (
	"strings"
	"unicode"
)

// QueryKind classifies a query for fusion weighting.
type QueryKind string

const (
	// KindConceptual marks longer, natural-language queries that benefit
	// from dense (semantic) ranking.
	KindConceptual QueryKind = "conceptual"

	// KindExact marks short, code-like or quoted queries that benefit from
	// sparse (lexical) ranking.
	KindExact QueryKind = "exact"

	// KindBalanced marks queries with no strong signal either way.
	KindBalanced QueryKind = "balanced"
)

// FusionWeights are the per-list weights applied during rank fusion.
type FusionWeights struct {
	Dense  float64
	Sparse float64
}

// Weights returns the fusion weights for the query kind.
func (k QueryKind) Weights() FusionWeights {
	switch k {
	case KindConceptual:
		return FusionWeights{Dense: 0.7, Sparse: 0.3}
	case KindExact:
		return FusionWeights{Dense: 0.3, Sparse: 0.7}
	default:
		return FusionWeights{Dense: 0.5, Sparse: 0.5}
	}
}

// ClassifyQuery judges whether a query is conceptual or exact-match style.
// Quoted segments and code-like tokens (dotted paths, camelCase, snake_case)
// push towards exact; longer prose with neither pushes towards conceptual.
func ClassifyQuery(query string) QueryKind {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return KindBalanced
	}

	words := strings.Fields(trimmed)

	exactSignals := 0
	if strings.Contains(trimmed, `"`) || strings.Contains(trimmed, "`") {
		exactSignals += 2
	}
	for _, w := range words {
		if isCodeLike(w) {
			exactSignals++
		}
	}

	switch {
	case exactSignals >= 2:
		return KindExact
	case exactSignals == 1 && len(words) <= 4:
		return KindExact
	case len(words) >= 6 && exactSignals == 0:
		return KindConceptual
	case exactSignals == 0 && len(words) >= 4:
		return KindConceptual
	default:
		return KindBalanced
	}
}

// isCodeLike reports whether a token looks like an identifier: dotted path,
// snake_case, or mixed-case in the middle of the word.
func isCodeLike(word string) bool {
	word = strings.Trim(word, `"'.,;:!?`)
	if len(word) < 3 {
		return false
	}
	if strings.ContainsAny(word, "._/(){}") {
		return true
	}
	// camelCase: an upper-case rune after the first position with a
	// preceding lower-case rune.
	runes := []rune(word)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
			return true
		}
	}
	return false
}
