package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient talks to an Ollama-compatible provider API for dense embeddings
// and rerank scoring. All HTTP calls are wrapped with circuit breaker
// protection and paced by a shared rate limiter; sparse vectors are computed
// locally because the API has no sparse endpoint.
type HTTPClient struct {
	baseURL        string
	client         *http.Client
	breaker        *CircuitBreaker
	limiter        *rate.Limiter
	embeddingModel string
	rerankModel    string
	timeout        time.Duration
	maxRetries     int
}

// HTTPClientConfig holds provider client configuration.
type HTTPClientConfig struct {
	// BaseURL is the base URL for the provider API (default: http://localhost:11434)
	BaseURL string

	// EmbeddingModel is the dense embedding model name (default: nomic-embed-text)
	EmbeddingModel string

	// RerankModel is the rerank model name (default: bge-reranker)
	RerankModel string

	// Timeout is the per-request timeout duration (default: 5s)
	Timeout time.Duration

	// RatePerSecond limits outbound provider calls (default: 20)
	RatePerSecond float64

	// MaxRetries is the number of transient-failure retries (default: 2)
	MaxRetries int
}

// embedRequest represents the request body for the /api/embed endpoint.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse represents the response from the /api/embed endpoint.
// The embeddings field is a 2D array; we always use the first embedding.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// rerankRequest represents the request body for the /api/rerank endpoint.
type rerankRequest struct {
	Model     string `json:"model"`
	Query     string `json:"query"`
	Candidate string `json:"candidate"`
}

// rerankResponse represents the response from the /api/rerank endpoint.
type rerankResponse struct {
	Score float64 `json:"score"`
}

// NewHTTPClient creates a provider client with the given configuration,
// applying defaults for any zero-valued field.
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "nomic-embed-text"
	}
	if config.RerankModel == "" {
		config.RerankModel = "bge-reranker"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 20
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &HTTPClient{
		baseURL: config.BaseURL,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		breaker:        NewCircuitBreaker("provider"),
		limiter:        rate.NewLimiter(rate.Limit(config.RatePerSecond), int(config.RatePerSecond)),
		embeddingModel: config.EmbeddingModel,
		rerankModel:    config.RerankModel,
		timeout:        config.Timeout,
		maxRetries:     config.MaxRetries,
	}
}

// EmbedDense returns the dense embedding for text. Transient failures are
// retried up to MaxRetries times; an open circuit or exhausted retries map
// to ErrProviderUnavailable so the caller can degrade.
func (c *HTTPClient) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			return c.embed(ctx, text)
		})
		if err == nil {
			return result.([]float32), nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
			break
		}
	}
	return nil, fmt.Errorf("%w: embed: %v", ErrProviderUnavailable, lastErr)
}

// EmbedSparse returns the sparse term-weight vector for text. This is
// computed locally and never fails, keeping the sparse retrieval path alive
// when the embedding API is down.
func (c *HTTPClient) EmbedSparse(_ context.Context, text string) (map[string]float64, error) {
	return SparseTerms(text), nil
}

// Score sends a rerank request and returns the relevance score.
func (c *HTTPClient) Score(ctx context.Context, query, candidate string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.rerank(ctx, query, candidate)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: rerank: %v", ErrProviderUnavailable, err)
	}
	return result.(float64), nil
}

// embed is the internal implementation without breaker wrapping.
func (c *HTTPClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: c.embeddingModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	resp, err := c.post(ctx, "/api/embed", body)
	if err != nil {
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Embeddings) == 0 || len(parsed.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed response contained no embedding")
	}
	return parsed.Embeddings[0], nil
}

// rerank is the internal implementation without breaker wrapping.
func (c *HTTPClient) rerank(ctx context.Context, query, candidate string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rerankRequest{Model: c.rerankModel, Query: query, Candidate: candidate})
	if err != nil {
		return 0, fmt.Errorf("marshal rerank request: %w", err)
	}

	resp, err := c.post(ctx, "/api/rerank", body)
	if err != nil {
		return 0, err
	}

	var parsed rerankResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return 0, fmt.Errorf("parse rerank response: %w", err)
	}
	return parsed.Score, nil
}

// post issues a POST request and returns the raw response body.
func (c *HTTPClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider %s returned status %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}
