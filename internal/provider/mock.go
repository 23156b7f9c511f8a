package provider

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// Mock is a deterministic in-process Embedder/Reranker/Enhancer used by
// tests and by the engine when no provider is configured. Dense vectors are
// derived from token hashes so related texts land near each other; rerank
// scores are lexical-overlap based.
type Mock struct {
	mu sync.Mutex

	// FailDense makes EmbedDense return ErrProviderUnavailable, simulating
	// a provider outage for degraded-mode tests.
	FailDense bool

	// FailRerank makes Score return ErrProviderUnavailable.
	FailRerank bool

	// DenseCalls counts EmbedDense invocations.
	DenseCalls int
}

// NewMock returns a mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// EmbedDense returns a 64-dimension bag-of-token-hashes vector.
func (m *Mock) EmbedDense(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.DenseCalls++
	fail := m.FailDense
	m.mu.Unlock()

	if fail {
		return nil, ErrProviderUnavailable
	}

	const dim = 64
	vec := make([]float32, dim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%dim] += 1.0
	}

	// L2-normalize so cosine similarity behaves.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedSparse returns the local sparse term vector.
func (m *Mock) EmbedSparse(_ context.Context, text string) (map[string]float64, error) {
	return SparseTerms(text), nil
}

// Score returns token-overlap relevance between query and candidate.
func (m *Mock) Score(_ context.Context, query, candidate string) (float64, error) {
	m.mu.Lock()
	fail := m.FailRerank
	m.mu.Unlock()

	if fail {
		return 0, ErrProviderUnavailable
	}

	q := SparseTerms(query)
	c := SparseTerms(candidate)
	if len(q) == 0 {
		return 0, nil
	}
	matched := 0
	for term := range q {
		if _, ok := c[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(q)), nil
}

// Enhance lowercases the query and strips duplicate whitespace, producing a
// single cleaned variant alongside the original.
func (m *Mock) Enhance(_ context.Context, query string) ([]string, error) {
	cleaned := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if cleaned == "" || cleaned == query {
		return []string{query}, nil
	}
	return []string{query, cleaned}, nil
}
