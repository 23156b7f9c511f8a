// Package lifecycle implements the memory lifecycle engine: exponential
// strength decay, reconsolidation on access, spaced repetition, replay and
// dream passes, emotional weighting, quality scoring, interference
// detection, and the tier transition state machine.
package lifecycle

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/graph"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// batchPageSize bounds how many memories a batch job loads per store query.
const batchPageSize = 500

// Manager runs lifecycle computations against the store. Batch passes are
// paced by a shared rate limiter so they never crowd out interactive
// search traffic.
type Manager struct {
	store   storage.Store
	graph   *graph.Manager
	cfg     config.LifecycleConfig
	limiter *rate.Limiter
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewManager creates a lifecycle manager. graphMgr may be nil, which turns
// dream mode into a no-op. ratePerSecond bounds batch record throughput;
// values <= 0 disable pacing.
func NewManager(store storage.Store, graphMgr *graph.Manager, cfg config.LifecycleConfig, ratePerSecond float64) *Manager {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Manager{
		store:   store,
		graph:   graphMgr,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// pace blocks until the batch limiter admits one more record.
func (l *Manager) pace(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// forEachMemory pages through memories (archived included when asked) and
// calls fn for each. fn errors abort the scan.
func (l *Manager) forEachMemory(ctx context.Context, includeArchived bool, fn func(*types.Memory) error) error {
	opts := storage.ListOptions{
		Page:            1,
		Limit:           batchPageSize,
		SortBy:          "created_at",
		SortOrder:       "asc",
		IncludeArchived: includeArchived,
	}
	for {
		page, err := l.store.List(ctx, opts)
		if err != nil {
			return err
		}
		for i := range page.Items {
			if err := l.pace(ctx); err != nil {
				return err
			}
			if err := fn(&page.Items[i]); err != nil {
				return err
			}
		}
		if !page.HasMore {
			return nil
		}
		opts.Page++
	}
}

// ImportanceFor computes the ingestion importance score for a memory:
// the per-type baseline plus the emotional bonus when the content carries a
// frustration or breakthrough marker, clamped to [0, 1].
func (l *Manager) ImportanceFor(memoryType types.MemoryType, content string) float64 {
	score := l.cfg.BaselineImportance[memoryType]
	if l.emotionallyCharged(content) {
		score += l.cfg.EmotionalBonus
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// emotionallyCharged reports whether content matches any configured
// sentiment marker.
func (l *Manager) emotionallyCharged(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range l.cfg.FrustrationMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	for _, marker := range l.cfg.BreakthroughMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// randFloat returns a uniform float in [0, 1) under the manager's lock.
func (l *Manager) randFloat() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}
