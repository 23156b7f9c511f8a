package lifecycle

import (
	"context"
	"fmt"

	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/pkg/types"
)

// interferenceOverlap is the lexical-cosine floor above which two memories
// are considered near-duplicates for interference purposes.
const interferenceOverlap = 0.8

// Interference reports a pair of memories whose coexistence raises
// ambiguity: near-duplicate content with divergent conclusions. The
// suggestion is advisory; nothing is changed automatically.
type Interference struct {
	MemoryA string
	MemoryB string

	// Overlap is the lexical similarity of the pair.
	Overlap float64

	// Suggestion names the resolution the heuristic prefers, e.g. which
	// memory to keep or merge into.
	Suggestion string
}

// RunInterference scans live memories for near-duplicate pairs with
// divergent conclusions. It is the slowest lifecycle pass and runs at the
// longest cadence; candidates are loaded once and compared pairwise.
func (l *Manager) RunInterference(ctx context.Context) ([]Interference, error) {
	var memories []*types.Memory
	err := l.forEachMemory(ctx, false, func(m *types.Memory) error {
		cp := *m
		memories = append(memories, &cp)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: interference scan: %w", err)
	}

	terms := make([]map[string]float64, len(memories))
	for i, m := range memories {
		terms[i] = provider.SparseTerms(m.Content)
	}

	var findings []Interference
	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			a, b := memories[i], memories[j]
			if a.Type != b.Type || a.ContentHash == b.ContentHash {
				continue
			}
			overlap := provider.SparseCosine(terms[i], terms[j])
			if overlap < interferenceOverlap {
				continue
			}
			if !conclusionsDiverge(a, b) {
				continue
			}
			keep := a.ID
			if b.QualityScore > a.QualityScore ||
				(b.QualityScore == a.QualityScore && b.CreatedAt.After(a.CreatedAt)) {
				keep = b.ID
			}
			findings = append(findings, Interference{
				MemoryA:    a.ID,
				MemoryB:    b.ID,
				Overlap:    overlap,
				Suggestion: "merge into " + keep,
			})
		}
	}
	return findings, nil
}

// conclusionsDiverge reports whether two near-duplicate memories reach
// different conclusions: for errors, differing solutions or resolution
// state; for decisions, differing decision text; otherwise differing
// trailing content.
func conclusionsDiverge(a, b *types.Memory) bool {
	if a.Detail.Error != nil && b.Detail.Error != nil {
		if a.Detail.Error.Resolved != b.Detail.Error.Resolved {
			return true
		}
		return a.Detail.Error.Solution != b.Detail.Error.Solution
	}
	if a.Detail.Decision != nil && b.Detail.Decision != nil {
		return a.Detail.Decision.Decision != b.Detail.Decision.Decision
	}
	return tail(a.Content) != tail(b.Content)
}

// tail returns the last quarter of content, where conclusions usually live.
func tail(content string) string {
	if len(content) < 40 {
		return content
	}
	return content[len(content)*3/4:]
}
