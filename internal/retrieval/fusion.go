package retrieval

import (
	"sort"
	"time"

	"github.com/scrypster/engram/internal/storage"
)

// fusedCandidate is a memory id with its reciprocal-rank-fusion score and
// the per-list ranks that produced it.
type fusedCandidate struct {
	ID          string
	FusionScore float64
	DenseRank   int // 0 = absent from the dense list
	SparseRank  int // 0 = absent from the sparse list
}

// FuseRanks combines the dense and sparse ranked lists with weighted
// reciprocal rank fusion:
//
//	score(id) = Σ over lists containing id of weight_list / (k + rank_in_list)
//
// Candidates absent from a list contribute 0 from that list, so a candidate
// present in both lists always scores at least as high as it would from
// either list alone. k is the smoothing constant (60 is the well-tuned
// default). The result is sorted by fusion score descending; score ties are
// left adjacent for the caller's strength/recency tie-break.
func FuseRanks(dense, sparse []storage.ScoredID, weights FusionWeights, k float64) []fusedCandidate {
	if k <= 0 {
		k = 60
	}

	byID := make(map[string]*fusedCandidate)

	for rank, item := range dense {
		c := &fusedCandidate{ID: item.ID, DenseRank: rank + 1}
		c.FusionScore = weights.Dense / (k + float64(rank+1))
		byID[item.ID] = c
	}
	for rank, item := range sparse {
		c, ok := byID[item.ID]
		if !ok {
			c = &fusedCandidate{ID: item.ID}
			byID[item.ID] = c
		}
		c.SparseRank = rank + 1
		c.FusionScore += weights.Sparse / (k + float64(rank+1))
	}

	fused := make([]fusedCandidate, 0, len(byID))
	for _, c := range byID {
		fused = append(fused, *c)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FusionScore > fused[j].FusionScore
	})
	return fused
}

// tieBreak orders candidates with equal fusion scores by higher strength,
// then by more recent last access. strengthOf/accessOf look up the loaded
// memory; unknown ids sort last.
func tieBreak(fused []fusedCandidate, strengthOf func(id string) float64, accessOf func(id string) time.Time) {
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].FusionScore != fused[j].FusionScore {
			return fused[i].FusionScore > fused[j].FusionScore
		}
		si, sj := strengthOf(fused[i].ID), strengthOf(fused[j].ID)
		if si != sj {
			return si > sj
		}
		return accessOf(fused[i].ID).After(accessOf(fused[j].ID))
	})
}

// normalizeFusion maps a raw RRF score into [0, 1] relative to the maximum
// achievable score for the given weights and k (both lists at rank 1).
func normalizeFusion(score float64, weights FusionWeights, k float64) float64 {
	if k <= 0 {
		k = 60
	}
	max := (weights.Dense + weights.Sparse) / (k + 1)
	if max <= 0 {
		return 0
	}
	n := score / max
	if n > 1 {
		n = 1
	}
	return n
}
