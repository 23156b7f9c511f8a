package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

// TransitionSummary reports what a tier transition run changed.
type TransitionSummary struct {
	Promoted int
	Demoted  int
	Archived int
}

// RunTransitions evaluates the tier state machine for every live memory.
// Promotion and demotion are driven by quality crossing the configured
// thresholds; archival requires quality to stay under the archive threshold
// for the full archive window (tracked by the low-quality-since marker set
// during quality recompute). This job is the only caller of UpdateTier.
func (l *Manager) RunTransitions(ctx context.Context) (*TransitionSummary, error) {
	now := l.now()
	summary := &TransitionSummary{}

	err := l.forEachMemory(ctx, false, func(m *types.Memory) error {
		if m.Pinned {
			return nil
		}

		// Sustained low quality archives regardless of tier.
		if m.LowQualitySince != nil && now.Sub(*m.LowQualitySince) >= l.cfg.ArchiveWindow {
			if err := l.archive(ctx, m, now); err != nil {
				return err
			}
			summary.Archived++
			return nil
		}

		target := l.targetTier(m)
		if target == m.Tier {
			return nil
		}
		if !types.IsValidTierTransition(m.Tier, target) {
			// Multi-step moves settle over successive runs.
			target = l.stepTowards(m.Tier, target)
			if target == m.Tier || !types.IsValidTierTransition(m.Tier, target) {
				return nil
			}
		}

		if err := l.store.UpdateTier(ctx, m.ID, target); err != nil {
			return fmt.Errorf("lifecycle: tier %s -> %s for %s: %w", m.Tier, target, m.ID, err)
		}
		if tierRank(target) > tierRank(m.Tier) {
			summary.Promoted++
		} else {
			summary.Demoted++
		}
		return nil
	})
	return summary, err
}

// targetTier maps a memory's quality score onto its deserved tier.
func (l *Manager) targetTier(m *types.Memory) types.Tier {
	q := m.QualityScore
	switch {
	case q >= l.cfg.PromoteProcedural:
		return types.TierProcedural
	case q >= l.cfg.PromoteSemantic:
		return types.TierSemantic
	case q >= l.cfg.PromoteStaging:
		return types.TierStaging
	default:
		return types.TierEpisodic
	}
}

// tierRank orders the live tiers for promotion accounting.
func tierRank(t types.Tier) int {
	switch t {
	case types.TierEpisodic:
		return 0
	case types.TierStaging:
		return 1
	case types.TierSemantic:
		return 2
	case types.TierProcedural:
		return 3
	default:
		return -1
	}
}

// stepTowards returns the single adjacent tier move from cur in the
// direction of target, since the state machine only allows one step at a
// time.
func (l *Manager) stepTowards(cur, target types.Tier) types.Tier {
	cr, tr := tierRank(cur), tierRank(target)
	if cr < 0 || tr < 0 || cr == tr {
		return cur
	}
	order := []types.Tier{types.TierEpisodic, types.TierStaging, types.TierSemantic, types.TierProcedural}
	if tr > cr {
		return order[cr+1]
	}
	return order[cr-1]
}

// archive moves a memory to the ARCHIVED tier and flags it out of default
// search.
func (l *Manager) archive(ctx context.Context, m *types.Memory, now time.Time) error {
	if err := l.store.UpdateTier(ctx, m.ID, types.TierArchived); err != nil {
		return fmt.Errorf("lifecycle: archive tier %s: %w", m.ID, err)
	}
	m.Tier = types.TierArchived
	m.Archived = true
	t := now
	m.ArchivedAt = &t
	m.UpdatedAt = now
	if err := l.store.Update(ctx, m); err != nil {
		return fmt.Errorf("lifecycle: archive update %s: %w", m.ID, err)
	}
	return nil
}

// Archive immediately archives a memory by id on caller request. Pinned
// memories refuse.
func (l *Manager) Archive(ctx context.Context, id string) error {
	m, err := l.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Pinned {
		return fmt.Errorf("lifecycle: memory %s is pinned", id)
	}
	if m.Archived {
		return nil
	}
	if !types.IsValidTierTransition(m.Tier, types.TierArchived) {
		return fmt.Errorf("lifecycle: cannot archive from tier %s", m.Tier)
	}
	return l.archive(ctx, m, l.now())
}

// RunPurge hard-deletes archived memories whose retention window has
// elapsed without any touch. Pinned memories never purge. Returns the
// number of memories removed.
func (l *Manager) RunPurge(ctx context.Context) (int, error) {
	now := l.now()
	purged := 0
	err := l.forEachMemory(ctx, true, func(m *types.Memory) error {
		if !m.Archived || m.Pinned || m.ArchivedAt == nil {
			return nil
		}
		idle := m.ArchivedAt
		if m.LastAccessed.After(*idle) {
			idle = &m.LastAccessed
		}
		if now.Sub(*idle) < l.cfg.PurgeRetention {
			return nil
		}
		if err := l.store.UpdateTier(ctx, m.ID, types.TierPurged); err != nil {
			return fmt.Errorf("lifecycle: purge tier %s: %w", m.ID, err)
		}
		if err := l.store.Purge(ctx, m.ID); err != nil {
			return fmt.Errorf("lifecycle: purge %s: %w", m.ID, err)
		}
		if err := l.store.RemoveFromIndex(ctx, m.ID); err != nil {
			log.Printf("lifecycle: drop index entries for %s: %v", m.ID, err)
		}
		purged++
		return nil
	})
	return purged, err
}
