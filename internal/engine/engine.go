// Package engine wires storage, providers, retrieval, graph, lifecycle,
// and the scheduler into the single facade callers operate against.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/graph"
	"github.com/scrypster/engram/internal/lifecycle"
	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/internal/retrieval"
	"github.com/scrypster/engram/internal/scheduler"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Engine is the top-level memory engine. Construct with New, then Start to
// launch background jobs; Stop drains them. All request-path operations are
// safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	store     storage.Store
	embedder  provider.Embedder
	searcher  *retrieval.Searcher
	graph     *graph.Manager
	lifecycle *lifecycle.Manager
	sched     *scheduler.Scheduler

	mu      sync.Mutex
	started bool
}

// New assembles an engine from its collaborators. reranker and enhancer may
// be nil; the corresponding search stages degrade as they would on provider
// failure.
func New(cfg *config.Config, store storage.Store, embedder provider.Embedder, reranker provider.Reranker, enhancer provider.Enhancer) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: nil config")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: nil store")
	}
	if embedder == nil {
		return nil, fmt.Errorf("engine: nil embedder")
	}

	graphMgr := graph.NewManager(store, embedder, cfg.Graph)
	lifecycleMgr := lifecycle.NewManager(store, graphMgr, cfg.Lifecycle, cfg.Scheduler.JobRatePerSecond)

	e := &Engine{
		cfg:       cfg,
		store:     store,
		embedder:  embedder,
		graph:     graphMgr,
		lifecycle: lifecycleMgr,
		sched:     scheduler.New(cfg.Scheduler.MaxJobDuration),
	}

	e.searcher = retrieval.NewSearcher(store, embedder, reranker, enhancer, cfg.Retrieval, e.recordAccess)

	if err := e.registerJobs(); err != nil {
		return nil, err
	}
	return e, nil
}

// Start launches the background job scheduler.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine: already started")
	}
	if err := e.sched.Start(); err != nil {
		return err
	}
	e.started = true
	log.Printf("engine: started")
	return nil
}

// Stop drains background jobs and closes the store.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		e.sched.Stop()
		e.started = false
	}
	return e.store.Close()
}

// recordAccess is the searcher's per-hit bookkeeping hook.
func (e *Engine) recordAccess(ctx context.Context, m *types.Memory, now time.Time) error {
	return e.lifecycle.Reconsolidate(ctx, m, "", now)
}

// MemoryCreate is the ingestion request.
type MemoryCreate struct {
	Type    types.MemoryType `json:"type"`
	Content string           `json:"content"`
	Project string           `json:"project"`
	Source  string           `json:"source"`
	Context string           `json:"context,omitempty"`
	Tags    []string         `json:"tags,omitempty"`
	Detail  types.Detail     `json:"detail,omitempty"`
	Pinned  bool             `json:"pinned,omitempty"`
}

// Ingest validates and stores a new memory, indexes its embeddings, and
// links byte-identical prior content with SIMILAR_TO relations. Dedup is
// relational, never destructive: the new record is always created.
// An embedding provider outage degrades to sparse-only indexing.
func (e *Engine) Ingest(ctx context.Context, req MemoryCreate) (*types.Memory, error) {
	now := time.Now()
	m := &types.Memory{
		ID:              uuid.NewString(),
		Type:            req.Type,
		Content:         req.Content,
		Project:         req.Project,
		Source:          req.Source,
		Context:         req.Context,
		Tags:            req.Tags,
		Detail:          req.Detail,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastAccessed:    now,
		Tier:            types.TierEpisodic,
		Strength:        1.0,
		Pinned:          req.Pinned,
		ImportanceScore: e.lifecycle.ImportanceFor(req.Type, req.Content),
		RecencyScore:    1.0,
		ContentHash:     types.HashContent(req.Content),
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	duplicates, err := e.store.FindByContentHash(ctx, m.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("engine: dedup lookup: %w", err)
	}

	if err := e.store.Store(ctx, m); err != nil {
		return nil, fmt.Errorf("engine: store memory: %w", err)
	}

	e.index(ctx, m)

	for _, dupID := range duplicates {
		if _, err := e.graph.Link(ctx, m.ID, dupID, types.RelationSimilarTo, now); err != nil &&
			!errors.Is(err, storage.ErrDuplicateRelation) {
			log.Printf("engine: dedup link %s -> %s: %v", m.ID, dupID, err)
		}
	}
	return m, nil
}

// index writes the memory's dense and sparse vectors. Indexing failures
// degrade: the memory stays retrievable through whichever index succeeded.
func (e *Engine) index(ctx context.Context, m *types.Memory) {
	if vec, err := e.embedder.EmbedDense(ctx, m.Content); err != nil {
		log.Printf("engine: dense indexing degraded for %s: %v", m.ID, err)
	} else if err := e.store.IndexDense(ctx, m.ID, vec); err != nil {
		log.Printf("engine: dense index write for %s: %v", m.ID, err)
	}

	if terms, err := e.embedder.EmbedSparse(ctx, m.Content); err != nil {
		log.Printf("engine: sparse indexing degraded for %s: %v", m.ID, err)
	} else if err := e.store.IndexSparse(ctx, m.ID, terms); err != nil {
		log.Printf("engine: sparse index write for %s: %v", m.ID, err)
	}
}

// Get retrieves a memory by id, archived included.
func (e *Engine) Get(ctx context.Context, id string) (*types.Memory, error) {
	return e.store.Get(ctx, id)
}

// List pages through memories.
func (e *Engine) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	return e.store.List(ctx, opts)
}

// Search runs the hybrid retrieval pipeline.
func (e *Engine) Search(ctx context.Context, query string, opts retrieval.SearchOptions) (*retrieval.SearchResponse, error) {
	return e.searcher.Search(ctx, query, opts)
}

// Reinforce explicitly strengthens a memory, applying the same
// reconsolidation pass a search hit would. extraContext, when non-empty,
// is merged into the memory's context.
func (e *Engine) Reinforce(ctx context.Context, id string, extraContext string) (*types.Memory, error) {
	m, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.lifecycle.Reconsolidate(ctx, m, extraContext, time.Now()); err != nil {
		return nil, err
	}
	return m, nil
}

// Rate sets the user rating (1-5) on a memory.
func (e *Engine) Rate(ctx context.Context, id string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating %d outside [1, 5]", storage.ErrInvalidInput, rating)
	}
	m, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	m.Rating = rating
	m.UpdatedAt = time.Now()
	return e.store.Update(ctx, m)
}

// Pin exempts a memory from decay, archival, and purge.
func (e *Engine) Pin(ctx context.Context, id string) error {
	return e.setPinned(ctx, id, true)
}

// Unpin re-enters a memory into the normal lifecycle.
func (e *Engine) Unpin(ctx context.Context, id string) error {
	return e.setPinned(ctx, id, false)
}

func (e *Engine) setPinned(ctx context.Context, id string, pinned bool) error {
	m, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Pinned == pinned {
		return nil
	}
	m.Pinned = pinned
	m.UpdatedAt = time.Now()
	return e.store.Update(ctx, m)
}

// Archive moves a memory out of default search immediately.
func (e *Engine) Archive(ctx context.Context, id string) error {
	return e.lifecycle.Archive(ctx, id)
}

// Purge hard-deletes a memory, its relations, and its index entries.
// Pinned memories refuse.
func (e *Engine) Purge(ctx context.Context, id string) error {
	m, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Pinned {
		return fmt.Errorf("%w: memory %s is pinned", storage.ErrInvalidInput, id)
	}
	if err := e.store.Purge(ctx, id); err != nil {
		return err
	}
	if err := e.store.RemoveFromIndex(ctx, id); err != nil {
		log.Printf("engine: drop index entries for %s: %v", id, err)
	}
	return nil
}

// Link creates an explicit relation between two memories.
func (e *Engine) Link(ctx context.Context, sourceID, targetID string, relType types.RelationType, validFrom time.Time) (*types.Relation, error) {
	return e.graph.Link(ctx, sourceID, targetID, relType, validFrom)
}

// Unlink ends a relation's validity.
func (e *Engine) Unlink(ctx context.Context, relationID string) error {
	return e.graph.Unlink(ctx, relationID)
}

// Relations returns every relation touching a memory.
func (e *Engine) Relations(ctx context.Context, id string) ([]types.Relation, error) {
	return e.store.Relations(ctx, id)
}

// RelatedTo traverses the graph from a memory within bounds.
func (e *Engine) RelatedTo(ctx context.Context, id string, bounds storage.TraversalBounds) ([]graph.Related, error) {
	return e.graph.RelatedTo(ctx, id, bounds)
}

// Recommend ranks unlinked memories by shared graph neighbors.
func (e *Engine) Recommend(ctx context.Context, id string, limit int) ([]graph.Recommendation, error) {
	return e.graph.Recommend(ctx, id, limit)
}

// RunInference executes every relation inference pass once.
func (e *Engine) RunInference(ctx context.Context) (int, error) {
	return e.graph.RunInference(ctx)
}

// DetectContradictions reports conflicting memory pairs with suggested
// resolutions.
func (e *Engine) DetectContradictions(ctx context.Context) ([]graph.Conflict, error) {
	return e.graph.DetectContradictions(ctx)
}

// RunJob triggers a background job by name and returns its summary.
func (e *Engine) RunJob(ctx context.Context, name string) (string, error) {
	return e.sched.RunNow(ctx, name)
}

// JobStatus reports the state of every background job.
func (e *Engine) JobStatus() []scheduler.JobStatus {
	return e.sched.Status()
}
