// Package graph implements the knowledge graph engine: explicit linking,
// temporally-scoped traversal, relation inference, contradiction detection,
// and shared-neighbor recommendations. The graph is a central edge list over
// memory ids and may contain cycles; traversal is always bounded.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Manager operates the knowledge graph on top of the store. All writes go
// through the store's relation API; the manager holds no graph state of its
// own.
type Manager struct {
	store    storage.Store
	embedder provider.Embedder
	cfg      config.GraphConfig
	now      func() time.Time
}

// NewManager creates a graph manager. embedder may be nil, which disables
// the semantic inference pass.
func NewManager(store storage.Store, embedder provider.Embedder, cfg config.GraphConfig) *Manager {
	return &Manager{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Link creates an explicit relation between two existing memories. A zero
// validFrom means active immediately. Both endpoints must exist; duplicate
// active edges surface storage.ErrDuplicateRelation, which idempotent
// callers treat as success.
func (g *Manager) Link(ctx context.Context, sourceID, targetID string, relType types.RelationType, validFrom time.Time) (*types.Relation, error) {
	if _, err := g.store.Get(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("graph: link source %s: %w", sourceID, err)
	}
	if _, err := g.store.Get(ctx, targetID); err != nil {
		return nil, fmt.Errorf("graph: link target %s: %w", targetID, err)
	}

	rel, err := types.NewRelation(uuid.NewString(), sourceID, targetID, relType, validFrom)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if err := g.store.CreateRelation(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// Unlink ends a relation's validity by setting valid_to to now. The edge
// stays in the store for temporal queries; it is simply no longer active.
func (g *Manager) Unlink(ctx context.Context, relationID string) error {
	return g.store.CloseRelation(ctx, relationID, g.now())
}

// Related is one traversal hit: the memory reached plus the relation path
// from the starting memory.
type Related struct {
	Memory *types.Memory
	Path   []types.Relation
	Depth  int
}

// Walk streams a breadth-first traversal of memories reachable from id over
// relations active at bounds.AsOf, calling visit for each reached memory
// (the start node itself is not visited). Traversal follows edges in both
// directions. It stops early when visit returns an error, and returns
// storage.ErrTraversalBoundsExceeded when the node budget runs out with
// frontier remaining.
func (g *Manager) Walk(ctx context.Context, id string, bounds storage.TraversalBounds, visit func(Related) error) error {
	bounds.Normalize()

	if _, err := g.store.Get(ctx, id); err != nil {
		return err
	}

	type queued struct {
		id    string
		path  []types.Relation
		depth int
	}

	visited := map[string]bool{id: true}
	queue := []queued{{id: id}}
	nodes := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= bounds.MaxDepth {
			continue
		}

		rels, err := g.store.Relations(ctx, cur.id)
		if err != nil {
			return fmt.Errorf("graph: relations of %s: %w", cur.id, err)
		}

		for i := range rels {
			rel := rels[i]
			if !rel.ActiveAt(bounds.AsOf) {
				continue
			}
			next := rel.TargetID
			if next == cur.id {
				next = rel.SourceID
			}
			if visited[next] {
				continue
			}
			visited[next] = true

			if nodes >= bounds.MaxNodes {
				return storage.ErrTraversalBoundsExceeded
			}

			m, err := g.store.Get(ctx, next)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return err
			}
			if m.CreatedAt.After(bounds.AsOf) {
				continue
			}
			nodes++

			path := make([]types.Relation, len(cur.path)+1)
			copy(path, cur.path)
			path[len(cur.path)] = rel

			if err := visit(Related{Memory: m, Path: path, Depth: cur.depth + 1}); err != nil {
				return err
			}
			queue = append(queue, queued{id: next, path: path, depth: cur.depth + 1})
		}
	}
	return nil
}

// RelatedTo collects the bounded traversal from id into a slice, ordered by
// discovery (closest hops first). Hitting the node budget truncates the
// result rather than failing.
func (g *Manager) RelatedTo(ctx context.Context, id string, bounds storage.TraversalBounds) ([]Related, error) {
	var results []Related
	err := g.Walk(ctx, id, bounds, func(r Related) error {
		results = append(results, r)
		return nil
	})
	if err != nil && !errors.Is(err, storage.ErrTraversalBoundsExceeded) {
		return nil, err
	}
	return results, nil
}

// Recommendation pairs a candidate memory id with its shared-neighbor count.
type Recommendation struct {
	MemoryID        string
	SharedNeighbors int
}

// Recommend ranks memories sharing at least one graph neighbor with id by
// shared-neighbor count, excluding id itself and anything already linked to
// it. Only relations active now are considered.
func (g *Manager) Recommend(ctx context.Context, id string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 10
	}

	neighbors, err := g.activeNeighbors(ctx, id)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for n := range neighbors {
		second, err := g.activeNeighbors(ctx, n)
		if err != nil {
			return nil, err
		}
		for candidate := range second {
			if candidate == id {
				continue
			}
			if _, linked := neighbors[candidate]; linked {
				continue
			}
			counts[candidate]++
		}
	}

	recs := make([]Recommendation, 0, len(counts))
	for mid, c := range counts {
		recs = append(recs, Recommendation{MemoryID: mid, SharedNeighbors: c})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].SharedNeighbors != recs[j].SharedNeighbors {
			return recs[i].SharedNeighbors > recs[j].SharedNeighbors
		}
		return recs[i].MemoryID < recs[j].MemoryID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// activeNeighbors returns the set of ids connected to id by a currently
// active relation, in either direction.
func (g *Manager) activeNeighbors(ctx context.Context, id string) (map[string]bool, error) {
	rels, err := g.store.Relations(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rels))
	for i := range rels {
		if !rels[i].Active() {
			continue
		}
		if rels[i].SourceID == id {
			out[rels[i].TargetID] = true
		} else {
			out[rels[i].SourceID] = true
		}
	}
	return out, nil
}
