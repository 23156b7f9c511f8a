package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/pkg/types"
)

func newTestGraph(t *testing.T) (*Manager, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(store, provider.NewMock(), config.Default().Graph), store
}

// addMemory stores a memory of the given type with sensible defaults.
func addMemory(t *testing.T, store *sqlite.Store, id string, mType types.MemoryType, content, project string, createdAt time.Time) {
	t.Helper()
	m := &types.Memory{
		ID:           id,
		Type:         mType,
		Content:      content,
		Project:      project,
		Source:       "test",
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		LastAccessed: createdAt,
		Tier:         types.TierEpisodic,
		Strength:     1.0,
	}
	switch mType {
	case types.MemoryTypeError:
		m.Detail.Error = &types.ErrorDetail{Message: content}
	case types.MemoryTypeDecision:
		m.Detail.Decision = &types.DecisionDetail{Decision: content}
	}
	if err := store.Store(context.Background(), m); err != nil {
		t.Fatalf("store %s: %v", id, err)
	}
}

func TestLink_And_Unlink(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	now := time.Now()

	addMemory(t, store, "a", types.MemoryTypeLearning, "first learning about retry backoff strategies", "proj", now)
	addMemory(t, store, "b", types.MemoryTypeLearning, "second learning about retry jitter configuration", "proj", now)

	rel, err := g.Link(ctx, "a", "b", types.RelationSupports, time.Time{})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if !rel.Active() {
		t.Error("new relation should be active")
	}

	// Duplicate active edge converges.
	_, err = g.Link(ctx, "a", "b", types.RelationSupports, time.Time{})
	if !errors.Is(err, storage.ErrDuplicateRelation) {
		t.Fatalf("duplicate Link error = %v, want ErrDuplicateRelation", err)
	}

	if err := g.Unlink(ctx, rel.ID); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	rels, err := store.Relations(ctx, "a")
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("Relations count = %d, want 1 (closed edge preserved)", len(rels))
	}
	if rels[0].Active() {
		t.Error("unlinked relation should be inactive")
	}
}

func TestLink_Errors(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	addMemory(t, store, "a", types.MemoryTypeLearning, "only memory in the whole store here", "proj", time.Now())

	if _, err := g.Link(ctx, "a", "ghost", types.RelationRelated, time.Time{}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("link to missing target error = %v, want ErrNotFound", err)
	}
	if _, err := g.Link(ctx, "a", "a", types.RelationRelated, time.Time{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("self-loop error = %v, want ErrInvalidInput", err)
	}
}

func TestRelatedTo_BoundedTraversal(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	now := time.Now()

	// Chain a - b - c - d.
	for _, id := range []string{"a", "b", "c", "d"} {
		addMemory(t, store, id, types.MemoryTypeLearning, "chain node "+id+" with enough content", "proj", now)
	}
	mustLink(t, g, "a", "b")
	mustLink(t, g, "b", "c")
	mustLink(t, g, "c", "d")

	results, err := g.RelatedTo(ctx, "a", storage.TraversalBounds{MaxDepth: 2, MaxNodes: 100})
	if err != nil {
		t.Fatalf("RelatedTo: %v", err)
	}
	ids := map[string]int{}
	for _, r := range results {
		ids[r.Memory.ID] = r.Depth
	}
	if ids["b"] != 1 || ids["c"] != 2 {
		t.Errorf("depths = %v, want b:1 c:2", ids)
	}
	if _, ok := ids["d"]; ok {
		t.Error("depth-2 traversal reached d at depth 3")
	}
}

func TestRelatedTo_TemporalValidity(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	now := time.Now()

	addMemory(t, store, "a", types.MemoryTypeLearning, "temporal traversal start node content", "proj", now.Add(-3*time.Hour))
	addMemory(t, store, "b", types.MemoryTypeLearning, "temporal traversal linked node content", "proj", now.Add(-3*time.Hour))

	rel, err := g.Link(ctx, "a", "b", types.RelationRelated, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := store.CloseRelation(ctx, rel.ID, now.Add(-1*time.Hour)); err != nil {
		t.Fatalf("CloseRelation: %v", err)
	}

	// As of 90 minutes ago the edge was active.
	results, err := g.RelatedTo(ctx, "a", storage.TraversalBounds{AsOf: now.Add(-90 * time.Minute)})
	if err != nil {
		t.Fatalf("RelatedTo (past): %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != "b" {
		t.Errorf("past traversal results = %v, want [b]", results)
	}

	// Now the edge is closed.
	results, err = g.RelatedTo(ctx, "a", storage.TraversalBounds{})
	if err != nil {
		t.Fatalf("RelatedTo (now): %v", err)
	}
	if len(results) != 0 {
		t.Errorf("current traversal returned %d results, want 0", len(results))
	}
}

func TestRecommend_SharedNeighbors(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"center", "n1", "n2", "cand", "far"} {
		addMemory(t, store, id, types.MemoryTypeLearning, "recommendation node "+id+" content here", "proj", now)
	}
	// center shares neighbors n1 and n2 with cand; far is unconnected.
	mustLink(t, g, "center", "n1")
	mustLink(t, g, "center", "n2")
	mustLink(t, g, "cand", "n1")
	mustLink(t, g, "cand", "n2")

	recs, err := g.Recommend(ctx, "center", 10)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("recommendations = %d, want 1", len(recs))
	}
	if recs[0].MemoryID != "cand" || recs[0].SharedNeighbors != 2 {
		t.Errorf("top recommendation = %+v, want cand with 2 shared neighbors", recs[0])
	}

	// Already-linked memories are excluded.
	mustLink(t, g, "center", "cand")
	recs, err = g.Recommend(ctx, "center", 10)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for _, r := range recs {
		if r.MemoryID == "cand" {
			t.Error("linked memory still recommended")
		}
	}
}

func defaultBounds() storage.TraversalBounds {
	return storage.TraversalBounds{MaxDepth: 3, MaxNodes: 200}
}

func mustLink(t *testing.T, g *Manager, source, target string) {
	t.Helper()
	if _, err := g.Link(context.Background(), source, target, types.RelationRelated, time.Time{}); err != nil {
		t.Fatalf("link %s -> %s: %v", source, target, err)
	}
}
