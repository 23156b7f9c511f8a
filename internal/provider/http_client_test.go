package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPClient_EmbedDense(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings": [[0.1, 0.2, 0.3]]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, RatePerSecond: 1000})

	vec, err := c.EmbedDense(context.Background(), "connection pool exhaustion")
	if err != nil {
		t.Fatalf("EmbedDense: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector length = %d, want 3", len(vec))
	}
}

// An open circuit must surface as ErrProviderUnavailable without reaching
// the backend, so the retrieval pipeline can degrade to sparse-only search.
func TestHTTPClient_OpenCircuitSurfacesProviderUnavailable(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, RatePerSecond: 1000})
	ctx := context.Background()

	// The default breaker trips after three consecutive failures.
	for i := 0; i < 3; i++ {
		if _, err := c.EmbedDense(ctx, "some query"); !errors.Is(err, ErrProviderUnavailable) {
			t.Fatalf("call %d: err = %v, want ErrProviderUnavailable", i, err)
		}
	}
	if c.breaker.State() != "open" {
		t.Fatalf("breaker state = %s, want open", c.breaker.State())
	}

	before := atomic.LoadInt32(&hits)
	if _, err := c.EmbedDense(ctx, "some query"); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable while open", err)
	}
	if got := atomic.LoadInt32(&hits); got != before {
		t.Errorf("open circuit reached the backend (%d extra requests)", got-before)
	}

	if _, err := c.Score(ctx, "query", "candidate"); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("rerank err = %v, want ErrProviderUnavailable while open", err)
	}
}

// Sparse embedding is computed locally and must survive a backend outage.
func TestHTTPClient_SparseSurvivesOutage(t *testing.T) {
	c := NewHTTPClient(HTTPClientConfig{BaseURL: "http://127.0.0.1:0", RatePerSecond: 1000})

	terms, err := c.EmbedSparse(context.Background(), "connection pool exhaustion")
	if err != nil {
		t.Fatalf("EmbedSparse: %v", err)
	}
	if _, ok := terms["pool"]; !ok {
		t.Errorf("terms = %v, want local sparse vector with \"pool\"", terms)
	}
}
