package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

// decayReference returns the instant the stored strength was last exact:
// the last access, or the last decay-job write if that came later.
func decayReference(m *types.Memory) time.Time {
	ref := m.LastAccessed
	if m.DecayedAt != nil && m.DecayedAt.After(ref) {
		ref = *m.DecayedAt
	}
	return ref
}

// DecayedStrength computes the strength a memory would hold at now:
//
//	strength(t) = strength_ref * e^(-λ * hours_since_reference)
//
// λ is the per-hour decay constant for the memory's type. The stored
// strength is exact at the decay reference, so chaining runs over
// sub-intervals reproduces the closed form strength_0 * e^(-λ * Δt) from
// the last access; elapsed time is never decayed twice. Pinned memories
// hold their last value. Strength never decays below zero.
func (l *Manager) DecayedStrength(m *types.Memory, now time.Time) float64 {
	if m.Pinned {
		return m.Strength
	}
	hours := now.Sub(decayReference(m)).Hours()
	if hours <= 0 {
		return m.Strength
	}
	lambda := l.cfg.DecayRate(m.Type)
	decayed := m.Strength * math.Exp(-lambda*hours)
	if decayed < 0 {
		return 0
	}
	return decayed
}

// RunDecay applies decay to every live memory and persists the new
// strength. Pinned and archived memories are skipped. Returns the number
// of memories touched.
func (l *Manager) RunDecay(ctx context.Context) (int, error) {
	now := l.now()
	touched := 0
	err := l.forEachMemory(ctx, false, func(m *types.Memory) error {
		if m.Pinned {
			return nil
		}
		decayed := l.DecayedStrength(m, now)
		if decayed == m.Strength {
			return nil
		}
		m.Strength = decayed
		m.DecayedAt = &now
		m.UpdatedAt = now
		if err := l.store.Update(ctx, m); err != nil {
			return fmt.Errorf("lifecycle: decay update %s: %w", m.ID, err)
		}
		touched++
		return nil
	})
	return touched, err
}

// Reconsolidate applies the access-time strengthening pass: strength is
// bumped by the reinforcement delta (capped at 1.0) and access bookkeeping
// is written atomically through the store. extraContext, when non-empty,
// is appended to the memory's context, never overwriting it.
func (l *Manager) Reconsolidate(ctx context.Context, m *types.Memory, extraContext string, now time.Time) error {
	newStrength := math.Min(1.0, l.DecayedStrength(m, now)+l.cfg.ReinforcementDelta)
	if err := l.store.RecordAccess(ctx, m.ID, newStrength, now); err != nil {
		return fmt.Errorf("lifecycle: record access %s: %w", m.ID, err)
	}
	m.Strength = newStrength
	m.AccessCount++
	m.LastAccessed = now

	if extraContext != "" {
		if m.Context == "" {
			m.Context = extraContext
		} else {
			m.Context = m.Context + "\n" + extraContext
		}
		m.UpdatedAt = now
		if err := l.store.Update(ctx, m); err != nil {
			return fmt.Errorf("lifecycle: merge context %s: %w", m.ID, err)
		}
	}
	return nil
}
