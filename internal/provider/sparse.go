package provider

import (
	"math"
	"strings"
	"unicode"
)

// sparseStopwords are excluded from sparse term-weight vectors. The list is
// deliberately short: code identifiers and error tokens must survive.
var sparseStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "is": true, "it": true,
	"for": true, "on": true, "with": true, "that": true, "this": true,
	"was": true, "are": true, "be": true, "as": true, "at": true,
}

// SparseTerms computes a log-scaled term-frequency weight vector for text.
// It tokenizes on non-alphanumeric boundaries but keeps dotted identifiers
// (UserService.getProfile) intact as additional exact-match terms, so
// code-like queries retain their lexical anchors.
func SparseTerms(text string) map[string]float64 {
	terms := make(map[string]float64)
	counts := make(map[string]int)

	for _, tok := range tokenize(text) {
		if sparseStopwords[tok] || len(tok) < 2 {
			continue
		}
		counts[tok]++
	}

	for tok, n := range counts {
		terms[tok] = 1.0 + math.Log(float64(n))
	}
	return terms
}

// tokenize splits text into lowercase tokens. Dotted compounds contribute
// both the compound and its parts.
func tokenize(text string) []string {
	var tokens []string
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_'
	})

	for _, f := range fields {
		f = strings.Trim(strings.ToLower(f), "._")
		if f == "" {
			continue
		}
		tokens = append(tokens, f)
		if strings.ContainsAny(f, "._") {
			for _, part := range strings.FieldsFunc(f, func(r rune) bool {
				return r == '.' || r == '_'
			}) {
				if part != "" {
					tokens = append(tokens, part)
				}
			}
		}
	}
	return tokens
}

// SparseDot returns the dot product of two sparse term-weight vectors.
func SparseDot(a, b map[string]float64) float64 {
	// Iterate the smaller map.
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, wa := range a {
		if wb, ok := b[term]; ok {
			sum += wa * wb
		}
	}
	return sum
}

// SparseCosine returns the cosine similarity of two sparse term-weight
// vectors, or 0 when either is empty.
func SparseCosine(a, b map[string]float64) float64 {
	dot := SparseDot(a, b)
	if dot == 0 {
		return 0
	}
	var na, nb float64
	for _, w := range a {
		na += w * w
	}
	for _, w := range b {
		nb += w * w
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CosineSimilarity returns the cosine similarity of two dense vectors,
// or 0 when either has zero magnitude or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
