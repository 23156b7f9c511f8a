package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// High quality in EPISODIC earns PROCEDURAL, but the state machine only
// moves one tier per run.
func TestRunTransitions_OneStepPromotion(t *testing.T) {
	l, store := newTestLifecycle(t)
	ctx := context.Background()

	putMemory(t, store, "m", func(m *types.Memory) {
		m.QualityScore = 0.9
	})

	want := []types.Tier{types.TierStaging, types.TierSemantic, types.TierProcedural}
	for _, tier := range want {
		summary, err := l.RunTransitions(ctx)
		if err != nil {
			t.Fatalf("RunTransitions: %v", err)
		}
		if summary.Promoted != 1 {
			t.Fatalf("Promoted = %d, want 1", summary.Promoted)
		}
		m, err := store.Get(ctx, "m")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if m.Tier != tier {
			t.Fatalf("tier = %s, want %s", m.Tier, tier)
		}
	}

	// Settled: a further run changes nothing.
	summary, err := l.RunTransitions(ctx)
	if err != nil {
		t.Fatalf("RunTransitions (settled): %v", err)
	}
	if summary.Promoted != 0 || summary.Demoted != 0 {
		t.Errorf("settled run moved memories: %+v", summary)
	}
}

func TestRunTransitions_Demotion(t *testing.T) {
	l, store := newTestLifecycle(t)
	ctx := context.Background()

	putMemory(t, store, "m", func(m *types.Memory) {
		m.Tier = types.TierProcedural
		m.QualityScore = 0.55
	})

	summary, err := l.RunTransitions(ctx)
	if err != nil {
		t.Fatalf("RunTransitions: %v", err)
	}
	if summary.Demoted != 1 {
		t.Errorf("Demoted = %d, want 1", summary.Demoted)
	}
	m, _ := store.Get(ctx, "m")
	if m.Tier != types.TierSemantic {
		t.Errorf("tier = %s, want one-step demotion to SEMANTIC", m.Tier)
	}
}

func TestRunTransitions_ArchiveAfterSustainedLowQuality(t *testing.T) {
	l, store := newTestLifecycle(t)
	ctx := context.Background()
	now := time.Now()
	l.now = func() time.Time { return now }

	sustained := now.Add(-l.cfg.ArchiveWindow - time.Hour)
	recent := now.Add(-time.Hour)
	putMemory(t, store, "old-low", func(m *types.Memory) {
		m.QualityScore = 0.1
		m.LowQualitySince = &sustained
	})
	putMemory(t, store, "new-low", func(m *types.Memory) {
		m.QualityScore = 0.1
		m.LowQualitySince = &recent
	})

	summary, err := l.RunTransitions(ctx)
	if err != nil {
		t.Fatalf("RunTransitions: %v", err)
	}
	if summary.Archived != 1 {
		t.Errorf("Archived = %d, want 1", summary.Archived)
	}

	m, err := store.Get(ctx, "old-low")
	if err != nil {
		t.Fatalf("Get old-low: %v", err)
	}
	if m.Tier != types.TierArchived || !m.Archived || m.ArchivedAt == nil {
		t.Errorf("old-low not archived: tier=%s archived=%v", m.Tier, m.Archived)
	}

	m, err = store.Get(ctx, "new-low")
	if err != nil {
		t.Fatalf("Get new-low: %v", err)
	}
	if m.Archived {
		t.Error("new-low archived before the window elapsed")
	}
}

func TestArchive_Manual(t *testing.T) {
	l, store := newTestLifecycle(t)
	ctx := context.Background()

	putMemory(t, store, "m", nil)
	putMemory(t, store, "pinned", func(m *types.Memory) { m.Pinned = true })

	if err := l.Archive(ctx, "m"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	m, _ := store.Get(ctx, "m")
	if !m.Archived {
		t.Error("memory not archived")
	}
	// Repeat archive is a no-op.
	if err := l.Archive(ctx, "m"); err != nil {
		t.Errorf("re-archive errored: %v", err)
	}

	if err := l.Archive(ctx, "pinned"); err == nil {
		t.Error("archiving a pinned memory succeeded")
	}
}

func TestRunPurge_RetentionWindow(t *testing.T) {
	l, store := newTestLifecycle(t)
	ctx := context.Background()
	now := time.Now()
	l.now = func() time.Time { return now }

	expired := now.Add(-l.cfg.PurgeRetention - 24*time.Hour)
	fresh := now.Add(-24 * time.Hour)

	putMemory(t, store, "expired", func(m *types.Memory) {
		m.Tier = types.TierArchived
		m.Archived = true
		m.ArchivedAt = &expired
		m.LastAccessed = expired
	})
	putMemory(t, store, "kept", func(m *types.Memory) {
		m.Tier = types.TierArchived
		m.Archived = true
		m.ArchivedAt = &fresh
		m.LastAccessed = fresh
	})
	// Touched after archival: the idle clock restarts from the access.
	putMemory(t, store, "touched", func(m *types.Memory) {
		m.Tier = types.TierArchived
		m.Archived = true
		m.ArchivedAt = &expired
		m.LastAccessed = fresh
	})

	purged, err := l.RunPurge(ctx)
	if err != nil {
		t.Fatalf("RunPurge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	if _, err := store.Get(ctx, "expired"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expired memory still retrievable, err = %v", err)
	}
	for _, id := range []string{"kept", "touched"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("%s was purged early: %v", id, err)
		}
	}
}
