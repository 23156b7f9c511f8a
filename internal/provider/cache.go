package provider

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an Embedder with an LRU cache keyed by input text.
// Repeat searches for the same query skip the provider round-trip entirely;
// errors are never cached.
type CachedEmbedder struct {
	inner  Embedder
	dense  *lru.Cache[string, []float32]
	sparse *lru.Cache[string, map[string]float64]
}

// NewCachedEmbedder creates a caching wrapper with the given capacity.
// A capacity below 1 defaults to 512 entries.
func NewCachedEmbedder(inner Embedder, capacity int) (*CachedEmbedder, error) {
	if capacity < 1 {
		capacity = 512
	}
	dense, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, err
	}
	sparse, err := lru.New[string, map[string]float64](capacity)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, dense: dense, sparse: sparse}, nil
}

// EmbedDense returns the cached dense embedding or delegates to the inner
// embedder and caches the result.
func (c *CachedEmbedder) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.dense.Get(text); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedDense(ctx, text)
	if err != nil {
		return nil, err
	}
	c.dense.Add(text, vec)
	return vec, nil
}

// EmbedSparse returns the cached sparse vector or delegates and caches.
func (c *CachedEmbedder) EmbedSparse(ctx context.Context, text string) (map[string]float64, error) {
	if terms, ok := c.sparse.Get(text); ok {
		return terms, nil
	}
	terms, err := c.inner.EmbedSparse(ctx, text)
	if err != nil {
		return nil, err
	}
	c.sparse.Add(text, terms)
	return terms, nil
}
