package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/pkg/types"
)

func newTestLifecycle(t *testing.T) (*Manager, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(store, nil, config.Default().Lifecycle, 0), store
}

// putMemory stores a memory with the given overrides applied on top of a
// live learning-memory baseline.
func putMemory(t *testing.T, store *sqlite.Store, id string, mutate func(*types.Memory)) *types.Memory {
	t.Helper()
	now := time.Now()
	m := &types.Memory{
		ID:           id,
		Type:         types.MemoryTypeLearning,
		Content:      "baseline lifecycle test memory content for " + id,
		Project:      "backend",
		Source:       "test",
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
		Tier:         types.TierEpisodic,
		Strength:     1.0,
	}
	if mutate != nil {
		mutate(m)
	}
	m.ContentHash = types.HashContent(m.Content)
	if err := store.Store(context.Background(), m); err != nil {
		t.Fatalf("store %s: %v", id, err)
	}
	return m
}

func TestImportanceFor(t *testing.T) {
	l, _ := newTestLifecycle(t)

	base := l.ImportanceFor(types.MemoryTypeError, "plain error report without sentiment")
	if base != l.cfg.BaselineImportance[types.MemoryTypeError] {
		t.Errorf("neutral importance = %v, want baseline %v", base, l.cfg.BaselineImportance[types.MemoryTypeError])
	}

	charged := l.ImportanceFor(types.MemoryTypeError, "finally figured out the root cause of this")
	if charged <= base {
		t.Errorf("emotionally charged importance %v not above baseline %v", charged, base)
	}
	if charged > 1 {
		t.Errorf("importance %v exceeds 1", charged)
	}

	// Context has the lowest baseline; the bonus must not reorder types past
	// a charged error.
	ctxCharged := l.ImportanceFor(types.MemoryTypeContext, "finally fixed it")
	if ctxCharged >= charged {
		t.Errorf("charged context %v >= charged error %v", ctxCharged, charged)
	}
}
