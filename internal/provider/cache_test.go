package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_DenseHit(t *testing.T) {
	mock := NewMock()
	cached, err := NewCachedEmbedder(mock, 8)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cached.EmbedDense(ctx, "worker pool sizing query")
	require.NoError(t, err)
	second, err := cached.EmbedDense(ctx, "worker pool sizing query")
	require.NoError(t, err)

	assert.Equal(t, 1, mock.DenseCalls, "repeat query must not hit the provider")
	assert.Equal(t, first, second)

	_, err = cached.EmbedDense(ctx, "a different query entirely")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.DenseCalls)
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	mock := NewMock()
	cached, err := NewCachedEmbedder(mock, 8)
	require.NoError(t, err)
	ctx := context.Background()

	mock.FailDense = true
	_, err = cached.EmbedDense(ctx, "flaky query")
	require.ErrorIs(t, err, ErrProviderUnavailable)

	mock.FailDense = false
	_, err = cached.EmbedDense(ctx, "flaky query")
	assert.NoError(t, err, "outage result must not be cached")
}

func TestCachedEmbedder_Sparse(t *testing.T) {
	mock := NewMock()
	cached, err := NewCachedEmbedder(mock, 8)
	require.NoError(t, err)

	terms, err := cached.EmbedSparse(context.Background(), "connection pool exhaustion")
	require.NoError(t, err)
	assert.Contains(t, terms, "pool")

	again, err := cached.EmbedSparse(context.Background(), "connection pool exhaustion")
	require.NoError(t, err)
	assert.Equal(t, terms, again)
}
