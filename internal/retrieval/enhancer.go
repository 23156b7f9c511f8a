package retrieval

import (
	"context"
	"log"
	"strings"

	"github.com/scrypster/engram/internal/provider"
)

// synonymTable expands common developer vocabulary so lexically distant but
// equivalent phrasings still meet in the sparse index.
var synonymTable = map[string][]string{
	"bug":      {"error", "defect"},
	"error":    {"exception", "failure"},
	"fix":      {"solution", "resolve"},
	"crash":    {"panic", "fatal"},
	"slow":     {"latency", "performance"},
	"auth":     {"authentication", "login"},
	"config":   {"configuration", "settings"},
	"db":       {"database"},
	"func":     {"function"},
	"repo":     {"repository"},
	"deps":     {"dependencies"},
	"npe":      {"nullpointerexception", "nil pointer"},
	"timeout":  {"deadline", "hang"},
	"memory":   {"leak", "allocation"},
	"refactor": {"restructure", "rewrite"},
}

// typoTable corrects frequent misspellings before expansion.
var typoTable = map[string]string{
	"recieve":    "receive",
	"seperate":   "separate",
	"occured":    "occurred",
	"definately": "definitely",
	"paramter":   "parameter",
	"lenght":     "length",
	"widht":      "width",
	"fucntion":   "function",
	"databse":    "database",
	"conection":  "connection",
}

// LocalEnhancer expands queries with synonym and typo-correction variants
// using static tables. It never fails, which keeps the enhancement stage
// from ever aborting a search.
type LocalEnhancer struct{}

// NewLocalEnhancer returns the static-table enhancer.
func NewLocalEnhancer() *LocalEnhancer {
	return &LocalEnhancer{}
}

// Enhance produces the original query plus up to two variants: a
// typo-corrected form and a synonym-expanded form. The original query is
// always first so downstream stages can prefer it.
func (e *LocalEnhancer) Enhance(_ context.Context, query string) ([]string, error) {
	variants := []string{query}

	corrected := correctTypos(query)
	if corrected != query {
		variants = append(variants, corrected)
	}

	expanded := expandSynonyms(corrected)
	if expanded != corrected && expanded != query {
		variants = append(variants, expanded)
	}

	return variants, nil
}

// correctTypos replaces known misspellings word by word.
func correctTypos(query string) string {
	words := strings.Fields(query)
	changed := false
	for i, w := range words {
		lower := strings.ToLower(w)
		if fixed, ok := typoTable[lower]; ok {
			words[i] = fixed
			changed = true
		}
	}
	if !changed {
		return query
	}
	return strings.Join(words, " ")
}

// expandSynonyms appends the first synonym of each matched word.
func expandSynonyms(query string) string {
	words := strings.Fields(query)
	var extra []string
	for _, w := range words {
		lower := strings.ToLower(strings.Trim(w, `"'.,;:`))
		if syns, ok := synonymTable[lower]; ok && len(syns) > 0 {
			extra = append(extra, syns[0])
		}
	}
	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}

// enhanceOrRaw runs the enhancer and degrades to the raw query on failure.
// Enhancement is best-effort: a provider outage must never abort a search.
func enhanceOrRaw(ctx context.Context, enhancer provider.Enhancer, query string) []string {
	if enhancer == nil {
		return []string{query}
	}
	variants, err := enhancer.Enhance(ctx, query)
	if err != nil || len(variants) == 0 {
		log.Printf("retrieval: query enhancement degraded to raw query: %v", err)
		return []string{query}
	}
	return variants
}
