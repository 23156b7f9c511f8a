package graph

import (
	"context"
	"strings"

	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Conflict reports a candidate contradiction between two memories. It is
// surfaced as data for a human or tooling to act on; nothing is resolved
// automatically.
type Conflict struct {
	// MemoryA and MemoryB are the conflicting pair.
	MemoryA string
	MemoryB string

	// Reason describes how the conflict was detected.
	Reason string

	// SuggestedKeep is the id the resolution heuristic prefers: an explicit
	// SUPERSEDES winner, else the higher-quality memory, else the newer one.
	SuggestedKeep string
}

// opposedPairs are verb/stance pairs whose co-occurrence over a shared topic
// marks two decisions as semantically opposed.
var opposedPairs = [][2]string{
	{"use", "avoid"},
	{"enable", "disable"},
	{"always", "never"},
	{"add", "remove"},
	{"adopt", "drop"},
	{"allow", "forbid"},
	{"keep", "delete"},
}

// DetectContradictions inspects the CONTRADICTS/SUPPORTS subgraph for
// cycles and scans active decision memories for semantically opposed pairs
// on the same topic. Each finding carries a suggested resolution.
func (g *Manager) DetectContradictions(ctx context.Context) ([]Conflict, error) {
	var conflicts []Conflict

	cycles, err := g.contradictionCycles(ctx)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, cycles...)

	opposed, err := g.opposedDecisions(ctx)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, opposed...)

	return conflicts, nil
}

// contradictionCycles finds cycles in the directed subgraph of active
// CONTRADICTS and SUPPORTS edges. A cycle means the support/contradiction
// structure is not internally consistent; each edge closing a cycle is
// reported as one conflict.
func (g *Manager) contradictionCycles(ctx context.Context) ([]Conflict, error) {
	rels, err := g.store.AllRelations(ctx)
	if err != nil {
		return nil, err
	}

	adj := make(map[string][]string)
	for i := range rels {
		r := &rels[i]
		if !r.Active() {
			continue
		}
		if r.Type != types.RelationContradicts && r.Type != types.RelationSupports {
			continue
		}
		adj[r.SourceID] = append(adj[r.SourceID], r.TargetID)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)
	var conflicts []Conflict

	var dfs func(id string, stack []string)
	dfs = func(id string, stack []string) {
		state[id] = inStack
		stack = append(stack, id)
		for _, next := range adj[id] {
			switch state[next] {
			case inStack:
				conflicts = append(conflicts, g.cycleConflict(ctx, id, next))
			case unvisited:
				dfs(next, stack)
			}
		}
		state[id] = done
	}

	for id := range adj {
		if state[id] == unvisited {
			dfs(id, nil)
		}
	}
	return conflicts, nil
}

// cycleConflict builds the conflict record for a back edge a -> b.
func (g *Manager) cycleConflict(ctx context.Context, a, b string) Conflict {
	return Conflict{
		MemoryA:       a,
		MemoryB:       b,
		Reason:        "cycle in CONTRADICTS/SUPPORTS subgraph",
		SuggestedKeep: g.preferredOf(ctx, a, b),
	}
}

// opposedDecisions scans active, non-archived decision memories for pairs
// in the same project whose content shares a topic but takes an opposed
// stance.
func (g *Manager) opposedDecisions(ctx context.Context) ([]Conflict, error) {
	page, err := g.store.List(ctx, storage.ListOptions{
		Page:      1,
		Limit:     g.cfg.InferenceBatchSize,
		SortBy:    "created_at",
		SortOrder: "desc",
		Type:      types.MemoryTypeDecision,
	})
	if err != nil {
		return nil, err
	}
	decisions := page.Items

	var conflicts []Conflict
	for i := 0; i < len(decisions); i++ {
		for j := i + 1; j < len(decisions); j++ {
			a, b := &decisions[i], &decisions[j]
			if a.Project != b.Project {
				continue
			}
			if !decisionsOpposed(a, b, g.cfg.RelatedThreshold) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				MemoryA:       a.ID,
				MemoryB:       b.ID,
				Reason:        "opposed active decisions on a shared topic",
				SuggestedKeep: g.preferredOf(ctx, a.ID, b.ID),
			})
		}
	}
	return conflicts, nil
}

// decisionsOpposed reports whether two decisions share enough topic overlap
// and an opposed stance pair. topicThreshold is the lexical cosine cutoff
// for "same topic".
func decisionsOpposed(a, b *types.Memory, topicThreshold float64) bool {
	la, lb := strings.ToLower(a.Content), strings.ToLower(b.Content)

	opposed := false
	for _, pair := range opposedPairs {
		if (strings.Contains(la, pair[0]) && strings.Contains(lb, pair[1])) ||
			(strings.Contains(la, pair[1]) && strings.Contains(lb, pair[0])) {
			opposed = true
			break
		}
	}
	if !opposed {
		return false
	}

	// Topic overlap is measured with the stance words removed so the
	// opposed pair itself does not dilute the similarity.
	sim := provider.SparseCosine(stanceStripped(la), stanceStripped(lb))
	return sim >= topicThreshold*0.5
}

// stanceStripped returns the sparse terms of content with stance words
// excluded.
func stanceStripped(content string) map[string]float64 {
	terms := provider.SparseTerms(content)
	for _, pair := range opposedPairs {
		delete(terms, pair[0])
		delete(terms, pair[1])
	}
	return terms
}

// preferredOf picks the resolution suggestion between two memory ids:
// an active SUPERSEDES edge wins outright; otherwise the higher quality
// score; otherwise the more recently created.
func (g *Manager) preferredOf(ctx context.Context, aID, bID string) string {
	if rels, err := g.store.Relations(ctx, aID); err == nil {
		for i := range rels {
			if rels[i].Type != types.RelationSupersedes || !rels[i].Active() {
				continue
			}
			if rels[i].SourceID == aID && rels[i].TargetID == bID {
				return aID
			}
			if rels[i].SourceID == bID && rels[i].TargetID == aID {
				return bID
			}
		}
	}

	a, errA := g.store.Get(ctx, aID)
	b, errB := g.store.Get(ctx, bID)
	if errA != nil || errB != nil {
		return aID
	}
	if a.QualityScore != b.QualityScore {
		if a.QualityScore > b.QualityScore {
			return aID
		}
		return bID
	}
	if b.CreatedAt.After(a.CreatedAt) {
		return bID
	}
	return aID
}
