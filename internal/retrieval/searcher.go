package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// SearchOptions controls a single search invocation.
type SearchOptions struct {
	Limit    int                   // Max results (0 = config default)
	MinScore float64               // Composite score floor, 0 disables
	Filters  storage.SearchFilters // Metadata pre-filters applied in both indexes
}

// SearchResult is one ranked hit with its score breakdown.
type SearchResult struct {
	Memory       types.Memory
	Score        float64 // Composite score in [0, 1]
	FusionScore  float64 // Normalized rank-fusion contribution
	RerankScore  float64 // Cross-encoder relevance, 0 when degraded
	QualityScore float64 // Memory quality at search time
}

// SearchResponse carries the ranked results plus pipeline diagnostics.
type SearchResponse struct {
	Results []SearchResult
	Kind    QueryKind

	// Variants are the query forms produced by enhancement, original first.
	Variants []string

	// DenseDegraded is set when the embedding provider was unavailable and
	// the search fell back to sparse-only retrieval.
	DenseDegraded bool

	// RerankDegraded is set when the reranker was unavailable and results
	// kept their fused order.
	RerankDegraded bool
}

// AccessRecorder is invoked once per returned memory so the lifecycle layer
// can apply reconsolidation. Failures are logged, not propagated: access
// bookkeeping never breaks a search.
type AccessRecorder func(ctx context.Context, memory *types.Memory, now time.Time) error

// Searcher runs the hybrid retrieval pipeline against a store and provider.
type Searcher struct {
	store    storage.Store
	embedder provider.Embedder
	reranker provider.Reranker
	enhancer provider.Enhancer
	cfg      config.RetrievalConfig
	onAccess AccessRecorder
	now      func() time.Time
}

// NewSearcher wires the pipeline. reranker, enhancer, and onAccess may be
// nil; the corresponding stages are skipped.
func NewSearcher(store storage.Store, embedder provider.Embedder, reranker provider.Reranker, enhancer provider.Enhancer, cfg config.RetrievalConfig, onAccess AccessRecorder) *Searcher {
	return &Searcher{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		enhancer: enhancer,
		cfg:      cfg,
		onAccess: onAccess,
		now:      time.Now,
	}
}

// Search runs the full pipeline: enhance, classify, embed, parallel
// dense+sparse retrieval, rank fusion, rerank, composite scoring, and
// access bookkeeping for the returned hits.
//
// Provider outages degrade rather than fail: a dense outage falls back to
// sparse-only retrieval, a rerank outage keeps the fused order. An empty
// candidate set is an empty result, never an error.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("retrieval: searcher has no embedder")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	resp := &SearchResponse{
		Variants: enhanceOrRaw(ctx, s.enhancer, query),
		Kind:     ClassifyQuery(query),
	}
	weights := resp.Kind.Weights()

	dense, sparse, denseDegraded, err := s.retrieve(ctx, resp.Variants, opts.Filters)
	if err != nil {
		return nil, err
	}
	resp.DenseDegraded = denseDegraded
	if denseDegraded {
		// All fusion mass goes to the surviving list.
		weights = FusionWeights{Sparse: weights.Dense + weights.Sparse}
	}

	fused := FuseRanks(dense, sparse, weights, s.cfg.FusionK)
	if len(fused) == 0 {
		return resp, nil
	}

	candidates := s.loadCandidates(ctx, fused, opts.Filters)
	if len(candidates) == 0 {
		return resp, nil
	}

	tieBreak(fused, func(id string) float64 {
		if m, ok := candidates[id]; ok {
			return m.Strength
		}
		return -1
	}, func(id string) time.Time {
		if m, ok := candidates[id]; ok {
			return m.LastAccessed
		}
		return time.Time{}
	})

	rerankScores, rerankDegraded := s.rerank(ctx, query, fused, candidates)
	resp.RerankDegraded = rerankDegraded

	results := s.score(fused, candidates, rerankScores, rerankDegraded, weights)

	if opts.MinScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= opts.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) > limit {
		results = results[:limit]
	}
	resp.Results = results

	s.recordAccesses(ctx, results)
	return resp, nil
}

// retrieve embeds the query and fans out to both indexes in parallel. The
// dense leg covers the primary variant; the sparse leg merges terms from
// every variant so synonym expansions widen lexical recall.
func (s *Searcher) retrieve(ctx context.Context, variants []string, filters storage.SearchFilters) (dense, sparse []storage.ScoredID, denseDegraded bool, err error) {
	primary := variants[0]

	denseVec, embedErr := s.embedder.EmbedDense(ctx, primary)
	if embedErr != nil {
		if !errors.Is(embedErr, provider.ErrProviderUnavailable) {
			return nil, nil, false, fmt.Errorf("retrieval: dense embedding: %w", embedErr)
		}
		log.Printf("retrieval: embedding provider unavailable, sparse-only search")
		denseDegraded = true
	}

	terms := make(map[string]float64)
	for _, v := range variants {
		vt, sparseErr := s.embedder.EmbedSparse(ctx, v)
		if sparseErr != nil {
			continue
		}
		for term, w := range vt {
			if w > terms[term] {
				terms[term] = w
			}
		}
	}

	var (
		wg        sync.WaitGroup
		denseErr  error
		sparseErr error
	)
	if !denseDegraded {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dense, denseErr = s.store.DenseTopK(ctx, denseVec, filters, s.cfg.CandidateK)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sparse, sparseErr = s.store.SparseTopK(ctx, terms, filters, s.cfg.CandidateK)
	}()
	wg.Wait()

	if denseErr != nil {
		return nil, nil, false, fmt.Errorf("retrieval: dense query: %w", denseErr)
	}
	if sparseErr != nil {
		return nil, nil, false, fmt.Errorf("retrieval: sparse query: %w", sparseErr)
	}
	return dense, sparse, denseDegraded, nil
}

// loadCandidates fetches the fused candidates and drops any that fail the
// metadata post-filter. Ids the store no longer knows are skipped; the
// indexes may lag a purge.
func (s *Searcher) loadCandidates(ctx context.Context, fused []fusedCandidate, filters storage.SearchFilters) map[string]*types.Memory {
	loaded := make(map[string]*types.Memory, len(fused))
	for _, c := range fused {
		m, err := s.store.Get(ctx, c.ID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				log.Printf("retrieval: load candidate %s: %v", c.ID, err)
			}
			continue
		}
		if !filters.Matches(m) {
			continue
		}
		loaded[c.ID] = m
	}
	return loaded
}

// rerank scores the top fused candidates with the cross-encoder. A provider
// failure on the first call degrades the whole stage; partial failures skip
// the affected candidate only.
func (s *Searcher) rerank(ctx context.Context, query string, fused []fusedCandidate, candidates map[string]*types.Memory) (map[string]float64, bool) {
	if s.reranker == nil {
		return nil, true
	}
	scores := make(map[string]float64)
	topN := s.cfg.RerankTopN
	scored := 0
	for _, c := range fused {
		if topN > 0 && scored >= topN {
			break
		}
		m, ok := candidates[c.ID]
		if !ok {
			continue
		}
		score, err := s.reranker.Score(ctx, query, m.Content)
		if err != nil {
			if scored == 0 {
				log.Printf("retrieval: reranker unavailable, keeping fused order: %v", err)
				return nil, true
			}
			continue
		}
		scores[c.ID] = clamp01(score)
		scored++
	}
	return scores, false
}

// score blends fusion, rerank, and quality into the composite score carried
// on each result. The reranker's output fixes the final order, with the
// fused ranking breaking ties; the composite is exposed to callers, not
// used as the sort key. When the reranker is degraded its weight folds into
// fusion and results keep the fused order.
func (s *Searcher) score(fused []fusedCandidate, candidates map[string]*types.Memory, rerankScores map[string]float64, rerankDegraded bool, weights FusionWeights) []SearchResult {
	fw, rw, qw := s.cfg.FusionWeight, s.cfg.RerankWeight, s.cfg.QualityWeight
	if rerankDegraded {
		fw += rw
		rw = 0
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range fused {
		m, ok := candidates[c.ID]
		if !ok {
			continue
		}
		r := SearchResult{
			Memory:       *m,
			FusionScore:  normalizeFusion(c.FusionScore, weights, s.cfg.FusionK),
			RerankScore:  rerankScores[c.ID],
			QualityScore: clamp01(m.QualityScore),
		}
		r.Score = fw*r.FusionScore + rw*r.RerankScore + qw*r.QualityScore
		results = append(results, r)
	}
	if !rerankDegraded {
		// results were appended in fused order, so the stable sort leaves
		// rerank ties in that order.
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].RerankScore > results[j].RerankScore
		})
	}
	return results
}

// recordAccesses applies access bookkeeping exactly once per returned hit.
func (s *Searcher) recordAccesses(ctx context.Context, results []SearchResult) {
	if s.onAccess == nil {
		return
	}
	now := s.now()
	for i := range results {
		if err := s.onAccess(ctx, &results[i].Memory, now); err != nil {
			log.Printf("retrieval: access bookkeeping for %s: %v", results[i].Memory.ID, err)
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
