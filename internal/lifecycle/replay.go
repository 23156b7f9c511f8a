package lifecycle

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/scrypster/engram/pkg/types"
)

// RunSpacedRepetition reconsolidates memories whose time since last access
// exceeds their tier's review interval, mimicking rehearsal before the
// memory fades. Returns the number of memories reviewed.
func (l *Manager) RunSpacedRepetition(ctx context.Context) (int, error) {
	now := l.now()
	reviewed := 0
	err := l.forEachMemory(ctx, false, func(m *types.Memory) error {
		interval, ok := l.cfg.ReviewIntervals[m.Tier]
		if !ok {
			return nil
		}
		if now.Sub(m.LastAccessed) < interval {
			return nil
		}
		if err := l.Reconsolidate(ctx, m, "", now); err != nil {
			return err
		}
		reviewed++
		return nil
	})
	return reviewed, err
}

// RunReplay is the sleep-mode pass: it samples a weighted-random subset
// biased toward high-importance, low-access memories and reconsolidates
// them, strengthening valuable but underused knowledge. Returns the number
// of memories replayed.
func (l *Manager) RunReplay(ctx context.Context) (int, error) {
	sample, err := l.weightedSample(ctx, l.cfg.ReplaySampleSize)
	if err != nil {
		return 0, err
	}
	now := l.now()
	for _, m := range sample {
		if err := l.Reconsolidate(ctx, m, "", now); err != nil {
			return 0, err
		}
	}
	return len(sample), nil
}

// RunDream is the faster, larger-sample replay that feeds its sample to a
// bounded relation inference pass instead of reconsolidating, surfacing
// unexpected connections. Returns the number of relations inferred.
func (l *Manager) RunDream(ctx context.Context) (int, error) {
	if l.graph == nil {
		return 0, nil
	}
	sample, err := l.weightedSample(ctx, l.cfg.DreamSampleSize)
	if err != nil {
		return 0, err
	}
	return l.graph.InferOver(ctx, sample)
}

// weightedSample draws up to n live memories without replacement, each
// weighted by importance plus an underuse bonus so rarely-touched valuable
// memories are preferred.
func (l *Manager) weightedSample(ctx context.Context, n int) ([]*types.Memory, error) {
	if n <= 0 {
		return nil, nil
	}

	type weighted struct {
		m *types.Memory
		w float64
	}
	var pool []weighted
	err := l.forEachMemory(ctx, false, func(m *types.Memory) error {
		cp := *m
		underuse := 1.0 - saturating(float64(m.AccessCount), 5)
		w := 0.1 + cp.ImportanceScore + underuse
		pool = append(pool, weighted{m: &cp, w: w})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: sample scan: %w", err)
	}
	if len(pool) <= n {
		out := make([]*types.Memory, len(pool))
		for i := range pool {
			out[i] = pool[i].m
		}
		return out, nil
	}

	// Weighted sampling without replacement via exponential sort keys.
	type keyed struct {
		m   *types.Memory
		key float64
	}
	keys := make([]keyed, len(pool))
	for i := range pool {
		u := l.randFloat()
		for u == 0 {
			u = l.randFloat()
		}
		// Larger weight means larger key on average.
		keys[i] = keyed{m: pool[i].m, key: math.Pow(u, 1.0/pool[i].w)}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].key > keys[j].key })

	out := make([]*types.Memory, n)
	for i := 0; i < n; i++ {
		out[i] = keys[i].m
	}
	return out, nil
}
