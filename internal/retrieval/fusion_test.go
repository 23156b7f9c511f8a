package retrieval

import (
	"testing"
	"time"

	"github.com/scrypster/engram/internal/storage"
)

func scoredIDs(ids ...string) []storage.ScoredID {
	out := make([]storage.ScoredID, len(ids))
	for i, id := range ids {
		out[i] = storage.ScoredID{ID: id, Score: 1.0 / float64(i+1)}
	}
	return out
}

// A candidate present in both lists must never score below what it would
// earn from either list alone.
func TestFuseRanks_Monotonicity(t *testing.T) {
	weights := FusionWeights{Dense: 0.5, Sparse: 0.5}

	both := FuseRanks(scoredIDs("x", "a"), scoredIDs("x", "b"), weights, 60)
	denseOnly := FuseRanks(scoredIDs("x", "a"), nil, weights, 60)
	sparseOnly := FuseRanks(nil, scoredIDs("x", "b"), weights, 60)

	find := func(fused []fusedCandidate, id string) float64 {
		for _, c := range fused {
			if c.ID == id {
				return c.FusionScore
			}
		}
		t.Fatalf("candidate %s missing from fused list", id)
		return 0
	}

	bothScore := find(both, "x")
	if bothScore < find(denseOnly, "x") {
		t.Errorf("dual-list score %v < dense-only score %v", bothScore, find(denseOnly, "x"))
	}
	if bothScore < find(sparseOnly, "x") {
		t.Errorf("dual-list score %v < sparse-only score %v", bothScore, find(sparseOnly, "x"))
	}
}

func TestFuseRanks_DualPresenceBeatsSingle(t *testing.T) {
	weights := FusionWeights{Dense: 0.5, Sparse: 0.5}
	// "x" is rank 2 in both lists; "a" and "b" are rank 1 in one list each.
	fused := FuseRanks(scoredIDs("a", "x"), scoredIDs("b", "x"), weights, 60)

	if fused[0].ID != "x" {
		t.Errorf("top candidate = %s, want x (present in both lists)", fused[0].ID)
	}
}

func TestFuseRanks_WeightsSteerRanking(t *testing.T) {
	dense := scoredIDs("d")
	sparse := scoredIDs("s")

	exact := FuseRanks(dense, sparse, KindExact.Weights(), 60)
	if exact[0].ID != "s" {
		t.Errorf("exact-weighted top = %s, want s", exact[0].ID)
	}

	conceptual := FuseRanks(dense, sparse, KindConceptual.Weights(), 60)
	if conceptual[0].ID != "d" {
		t.Errorf("conceptual-weighted top = %s, want d", conceptual[0].ID)
	}
}

func TestTieBreak_StrengthThenRecency(t *testing.T) {
	fused := []fusedCandidate{
		{ID: "weak", FusionScore: 0.5},
		{ID: "strong", FusionScore: 0.5},
		{ID: "top", FusionScore: 0.9},
	}

	now := time.Now()
	strengths := map[string]float64{"weak": 0.2, "strong": 0.8, "top": 0.1}
	accesses := map[string]time.Time{"weak": now, "strong": now, "top": now}

	tieBreak(fused,
		func(id string) float64 { return strengths[id] },
		func(id string) time.Time { return accesses[id] })

	if fused[0].ID != "top" || fused[1].ID != "strong" || fused[2].ID != "weak" {
		t.Errorf("order = %s, %s, %s; want top, strong, weak",
			fused[0].ID, fused[1].ID, fused[2].ID)
	}

	// Equal strength falls through to recency.
	fused = []fusedCandidate{
		{ID: "old", FusionScore: 0.5},
		{ID: "fresh", FusionScore: 0.5},
	}
	strengths = map[string]float64{"old": 0.5, "fresh": 0.5}
	accesses = map[string]time.Time{"old": now.Add(-time.Hour), "fresh": now}

	tieBreak(fused,
		func(id string) float64 { return strengths[id] },
		func(id string) time.Time { return accesses[id] })

	if fused[0].ID != "fresh" {
		t.Errorf("recency tie-break top = %s, want fresh", fused[0].ID)
	}
}

func TestNormalizeFusion(t *testing.T) {
	weights := FusionWeights{Dense: 0.5, Sparse: 0.5}
	max := (weights.Dense + weights.Sparse) / 61.0

	if got := normalizeFusion(max, weights, 60); got != 1 {
		t.Errorf("normalizeFusion(max) = %v, want 1", got)
	}
	if got := normalizeFusion(0, weights, 60); got != 0 {
		t.Errorf("normalizeFusion(0) = %v, want 0", got)
	}
	if got := normalizeFusion(max/2, weights, 60); got <= 0 || got >= 1 {
		t.Errorf("normalizeFusion(max/2) = %v, want in (0, 1)", got)
	}
}
