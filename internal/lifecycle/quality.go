package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

// Quality blend weights. Access frequency and recency dominate; rating,
// content length, tags, and graph connectivity refine.
const (
	qualityAccessWeight   = 0.30
	qualityRecencyWeight  = 0.25
	qualityRatingWeight   = 0.20
	qualityLengthWeight   = 0.10
	qualityTagWeight      = 0.05
	qualityRelationWeight = 0.10

	// recencyHalfLife is the last-access age at which the recency component
	// is worth half its maximum.
	recencyHalfLife = 7 * 24 * time.Hour
)

// saturating maps a count into [0, 1) with diminishing returns: n/(n+half).
func saturating(n, half float64) float64 {
	if n <= 0 {
		return 0
	}
	return n / (n + half)
}

// QualityScore computes the blended quality of a memory from access
// frequency, recency, rating, content length (diminishing returns), tag
// count, and relation count. Unrated memories score a neutral 0.5 on the
// rating component.
func (l *Manager) QualityScore(m *types.Memory, relationCount int, now time.Time) float64 {
	access := saturating(float64(m.AccessCount), 5)

	age := now.Sub(m.LastAccessed)
	recency := math.Exp(-math.Ln2 * age.Hours() / recencyHalfLife.Hours())

	rating := 0.5
	if m.Rating > 0 {
		rating = float64(m.Rating) / 5.0
	}

	length := saturating(float64(len(m.Content)), 400)
	tags := saturating(float64(len(m.Tags)), 3)
	relations := saturating(float64(relationCount), 4)

	score := qualityAccessWeight*access +
		qualityRecencyWeight*recency +
		qualityRatingWeight*rating +
		qualityLengthWeight*length +
		qualityTagWeight*tags +
		qualityRelationWeight*relations

	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// RunQualityRecompute recomputes the quality score of every live memory in
// batch. Quality is expensive to compute exactly (it needs relation counts)
// so it is refreshed here rather than on every access. It also maintains
// the usefulness score, the recency score, and the low-quality-since marker
// that gates archival. Returns the number of memories updated.
func (l *Manager) RunQualityRecompute(ctx context.Context) (int, error) {
	now := l.now()
	updated := 0
	err := l.forEachMemory(ctx, false, func(m *types.Memory) error {
		rels, err := l.store.Relations(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("lifecycle: relations of %s: %w", m.ID, err)
		}
		relCount := 0
		for i := range rels {
			if rels[i].Active() {
				relCount++
			}
		}

		quality := l.QualityScore(m, relCount, now)
		recency := math.Exp(-math.Ln2 * now.Sub(m.LastAccessed).Hours() / recencyHalfLife.Hours())
		usefulness := l.usefulnessScore(m, relCount)

		lowSince := m.LowQualitySince
		if quality < l.cfg.ArchiveThreshold {
			if lowSince == nil {
				t := now
				lowSince = &t
			}
		} else {
			lowSince = nil
		}

		unchanged := quality == m.QualityScore &&
			usefulness == m.UsefulnessScore &&
			recency == m.RecencyScore &&
			equalTimePtr(lowSince, m.LowQualitySince)
		if unchanged {
			return nil
		}

		m.QualityScore = quality
		m.RecencyScore = recency
		m.UsefulnessScore = usefulness
		m.LowQualitySince = lowSince
		m.UpdatedAt = now
		if err := l.store.Update(ctx, m); err != nil {
			return fmt.Errorf("lifecycle: quality update %s: %w", m.ID, err)
		}
		updated++
		return nil
	})
	return updated, err
}

// usefulnessScore blends rating, access count, and graph connectivity into
// a long-term usefulness signal.
func (l *Manager) usefulnessScore(m *types.Memory, relationCount int) float64 {
	rating := 0.0
	if m.Rating > 0 {
		rating = float64(m.Rating) / 5.0
	}
	score := 0.4*rating + 0.4*saturating(float64(m.AccessCount), 10) + 0.2*saturating(float64(relationCount), 4)
	if score > 1 {
		return 1
	}
	return score
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
