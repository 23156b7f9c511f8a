// Package provider contains the external-collaborator clients for the
// embedding and rerank providers, together with the resilience wrappers
// (circuit breaker, rate limiter, embedding cache) the engine expects.
package provider

import (
	"context"
	"errors"
)

// ErrProviderUnavailable indicates that a provider call failed after retries
// or was rejected by an open circuit breaker. Callers degrade per the search
// pipeline rules instead of failing the request.
var ErrProviderUnavailable = errors.New("provider unavailable")

// Embedder maps text to a dense vector and a sparse term-weight vector.
// Both calls may fail or time out; callers must tolerate degraded operation.
type Embedder interface {
	// EmbedDense returns the dense embedding for the given text.
	EmbedDense(ctx context.Context, text string) ([]float32, error)

	// EmbedSparse returns the sparse term-weight vector for the given text.
	EmbedSparse(ctx context.Context, text string) (map[string]float64, error)
}

// Reranker scores a candidate text against the original query, cross-encoder
// style. Higher scores indicate stronger relevance.
type Reranker interface {
	Score(ctx context.Context, query, candidate string) (float64, error)
}

// Enhancer produces query variants (synonym expansion, typo correction).
// A failing enhancer degrades to the raw query, never aborts the search.
type Enhancer interface {
	Enhance(ctx context.Context, query string) ([]string, error)
}
