package graph

import (
	"context"
	"testing"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

func TestDetectContradictions_Cycle(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	now := time.Now()

	addMemory(t, store, "a", types.MemoryTypeDecision,
		"We will keep the monolith until the extraction plan is ready", "backend", now.Add(-2*time.Hour))
	addMemory(t, store, "b", types.MemoryTypeDecision,
		"Begin extracting services from the monolith immediately", "backend", now.Add(-time.Hour))

	if _, err := g.Link(ctx, "a", "b", types.RelationContradicts, time.Time{}); err != nil {
		t.Fatalf("link a -> b: %v", err)
	}
	if _, err := g.Link(ctx, "b", "a", types.RelationContradicts, time.Time{}); err != nil {
		t.Fatalf("link b -> a: %v", err)
	}

	conflicts, err := g.DetectContradictions(ctx)
	if err != nil {
		t.Fatalf("DetectContradictions: %v", err)
	}
	foundCycle := false
	for _, c := range conflicts {
		if c.Reason == "cycle in CONTRADICTS/SUPPORTS subgraph" {
			foundCycle = true
			if c.SuggestedKeep != "a" && c.SuggestedKeep != "b" {
				t.Errorf("SuggestedKeep = %q, want one of the pair", c.SuggestedKeep)
			}
		}
	}
	if !foundCycle {
		t.Error("mutual CONTRADICTS edges not reported as a cycle")
	}
}

func TestDetectContradictions_OpposedDecisions(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	now := time.Now()

	addMemory(t, store, "older", types.MemoryTypeDecision,
		"Always use the shared connection pool for database access in services", "backend", now.Add(-48*time.Hour))
	addMemory(t, store, "newer", types.MemoryTypeDecision,
		"Never use the shared connection pool for database access in services", "backend", now)

	conflicts, err := g.DetectContradictions(ctx)
	if err != nil {
		t.Fatalf("DetectContradictions: %v", err)
	}
	found := false
	for _, c := range conflicts {
		pair := (c.MemoryA == "older" && c.MemoryB == "newer") ||
			(c.MemoryA == "newer" && c.MemoryB == "older")
		if pair {
			found = true
			if c.SuggestedKeep != "newer" {
				t.Errorf("SuggestedKeep = %q, want newer (same quality, more recent)", c.SuggestedKeep)
			}
		}
	}
	if !found {
		t.Error("opposed decisions on the same topic not detected")
	}
}

func TestDetectContradictions_SupersedesWins(t *testing.T) {
	g, store := newTestGraph(t)
	ctx := context.Background()
	now := time.Now()

	addMemory(t, store, "older", types.MemoryTypeDecision,
		"Enable the experimental query planner for analytics workloads", "backend", now.Add(-48*time.Hour))
	addMemory(t, store, "newer", types.MemoryTypeDecision,
		"Disable the experimental query planner for analytics workloads", "backend", now)

	// The older decision explicitly supersedes the newer rollback.
	if _, err := g.Link(ctx, "older", "newer", types.RelationSupersedes, time.Time{}); err != nil {
		t.Fatalf("link supersedes: %v", err)
	}

	conflicts, err := g.DetectContradictions(ctx)
	if err != nil {
		t.Fatalf("DetectContradictions: %v", err)
	}
	for _, c := range conflicts {
		pair := (c.MemoryA == "older" && c.MemoryB == "newer") ||
			(c.MemoryA == "newer" && c.MemoryB == "older")
		if pair && c.SuggestedKeep != "older" {
			t.Errorf("SuggestedKeep = %q, want the SUPERSEDES source", c.SuggestedKeep)
		}
	}
}

func TestDecisionsOpposed(t *testing.T) {
	a := &types.Memory{Content: "Always run migrations before deploying the api service"}
	b := &types.Memory{Content: "Never run migrations before deploying the api service"}
	if !decisionsOpposed(a, b, 0.75) {
		t.Error("always/never pair on shared topic not judged opposed")
	}

	c := &types.Memory{Content: "Always run migrations before deploying the api service"}
	d := &types.Memory{Content: "Never store credentials in the repository settings file"}
	if decisionsOpposed(c, d, 0.75) {
		t.Error("opposed stance without shared topic judged opposed")
	}
}
