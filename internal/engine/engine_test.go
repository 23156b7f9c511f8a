package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/internal/retrieval"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/pkg/types"
)

func newTestEngine(t *testing.T) (*Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	mock := provider.NewMock()
	eng, err := New(config.Default(), store, mock, mock, mock)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Stop() })
	return eng, store
}

func learningReq(content string) MemoryCreate {
	return MemoryCreate{
		Type:    types.MemoryTypeLearning,
		Content: content,
		Project: "backend",
		Source:  "test",
	}
}

// Concurrent Start calls must admit exactly one; the rest see the
// already-started error.
func TestStart_ConcurrentCallsAdmitOne(t *testing.T) {
	eng, _ := newTestEngine(t)

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = eng.Start()
		}(i)
	}
	wg.Wait()

	started := 0
	for _, err := range errs {
		if err == nil {
			started++
		}
	}
	if started != 1 {
		t.Errorf("Start succeeded %d times, want exactly 1", started)
	}
}

func TestIngest_Validation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.Ingest(ctx, learningReq("too short")); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("short content error = %v, want ErrInvalidInput", err)
	}
	if _, err := eng.Ingest(ctx, learningReq("   \t\n    \t\n   \t\n      ")); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("whitespace content error = %v, want ErrInvalidInput", err)
	}

	// Error memories need their detail payload.
	req := MemoryCreate{
		Type:    types.MemoryTypeError,
		Content: "NullPointerException thrown in the profile handler",
		Project: "backend",
		Source:  "test",
	}
	if _, err := eng.Ingest(ctx, req); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("error memory without detail error = %v, want ErrInvalidInput", err)
	}
	req.Detail.Error = &types.ErrorDetail{Message: "NullPointerException"}
	if _, err := eng.Ingest(ctx, req); err != nil {
		t.Errorf("valid error memory rejected: %v", err)
	}
}

func TestIngest_DefaultsAndImportance(t *testing.T) {
	eng, _ := newTestEngine(t)

	m, err := eng.Ingest(context.Background(), learningReq("finally figured out the flaky integration test root cause"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if m.Tier != types.TierEpisodic {
		t.Errorf("tier = %s, want EPISODIC", m.Tier)
	}
	if m.Strength != 1.0 || m.RecencyScore != 1.0 {
		t.Errorf("strength=%v recency=%v, want 1.0 each", m.Strength, m.RecencyScore)
	}
	// Breakthrough language earns the emotional bonus over the baseline.
	baseline := config.Default().Lifecycle.BaselineImportance[types.MemoryTypeLearning]
	if m.ImportanceScore <= baseline {
		t.Errorf("importance = %v, want above baseline %v", m.ImportanceScore, baseline)
	}
	if m.ContentHash == "" {
		t.Error("content hash not set")
	}
}

// Re-ingesting byte-identical content creates a second record and links the
// pair; nothing is overwritten or dropped.
func TestIngest_DedupIsRelational(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	content := "Deploy pipeline requires manual approval before production rollout"
	first, err := eng.Ingest(ctx, learningReq(content))
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second, err := eng.Ingest(ctx, learningReq(content))
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("dedup reused the same id")
	}

	for _, id := range []string{first.ID, second.ID} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("memory %s not retrievable: %v", id, err)
		}
	}

	rels, err := eng.Relations(ctx, second.ID)
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	found := false
	for _, r := range rels {
		if r.Type == types.RelationSimilarTo && r.SourceID == second.ID && r.TargetID == first.ID {
			found = true
		}
	}
	if !found {
		t.Error("duplicate ingest did not link SIMILAR_TO the prior record")
	}
}

func TestRate(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	m, err := eng.Ingest(ctx, learningReq("useful note about connection pool tuning parameters"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	for _, bad := range []int{0, -1, 6} {
		if err := eng.Rate(ctx, m.ID, bad); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("Rate(%d) error = %v, want ErrInvalidInput", bad, err)
		}
	}
	if err := eng.Rate(ctx, m.ID, 4); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	got, _ := store.Get(ctx, m.ID)
	if got.Rating != 4 {
		t.Errorf("rating = %d, want 4", got.Rating)
	}
}

func TestPurge_PinnedRefuses(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	req := learningReq("critical production runbook step that must never be lost")
	req.Pinned = true
	m, err := eng.Ingest(ctx, req)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := eng.Purge(ctx, m.ID); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("purge of pinned memory error = %v, want ErrInvalidInput", err)
	}
	if err := eng.Archive(ctx, m.ID); err == nil {
		t.Error("archive of pinned memory succeeded")
	}

	if err := eng.Unpin(ctx, m.ID); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	if err := eng.Purge(ctx, m.ID); err != nil {
		t.Fatalf("Purge after unpin: %v", err)
	}
	if _, err := store.Get(ctx, m.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("purged memory still retrievable, err = %v", err)
	}
}

func TestReinforce(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	m, err := eng.Ingest(ctx, learningReq("index rebuilds must run during the maintenance window"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if _, err := eng.Reinforce(ctx, m.ID, "confirmed again during the last incident"); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	got, _ := store.Get(ctx, m.ID)
	if got.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", got.AccessCount)
	}
	if got.Context == "" {
		t.Error("reinforce context not merged")
	}

	if _, err := eng.Reinforce(ctx, "no-such-id", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Reinforce of missing id error = %v, want ErrNotFound", err)
	}
}

func TestJobs_RegisteredAndRunnable(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	statuses := eng.JobStatus()
	want := map[string]bool{
		JobDecay: true, JobQuality: true, JobTransition: true,
		JobInference: true, JobReplay: true, JobDream: true,
		JobSpacedRep: true, JobInterference: true, JobPurge: true,
	}
	if len(statuses) != len(want) {
		t.Fatalf("registered jobs = %d, want %d", len(statuses), len(want))
	}
	for _, st := range statuses {
		if !want[st.Name] {
			t.Errorf("unexpected job %q", st.Name)
		}
	}

	note, err := eng.RunJob(ctx, JobDecay)
	if err != nil {
		t.Fatalf("RunJob(decay): %v", err)
	}
	if note != "decayed 0 memories" {
		t.Errorf("note = %q", note)
	}

	if _, err := eng.RunJob(ctx, "no-such-job"); err == nil {
		t.Error("unknown job accepted")
	}
}

func TestSearch_EndToEnd(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.Ingest(ctx, learningReq("worker pool sizing depends on downstream concurrency limits")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	resp, err := eng.Search(ctx, "worker pool sizing", retrieval.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}

	// The hit was reconsolidated through the access hook.
	got, err := eng.Get(ctx, resp.Results[0].Memory.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("access count after search = %d, want 1", got.AccessCount)
	}
}
