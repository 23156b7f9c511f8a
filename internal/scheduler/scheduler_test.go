package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegister_Rules(t *testing.T) {
	s := New(time.Minute)

	noop := func(context.Context) (string, error) { return "", nil }

	if err := s.Register("decay", time.Hour, noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("decay", time.Hour, noop); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := s.Register("bad-interval", 0, noop); err == nil {
		t.Error("zero interval accepted")
	}
	if err := s.Register("nil-fn", time.Hour, nil); err == nil {
		t.Error("nil job func accepted")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Register("late", time.Hour, noop); err == nil {
		t.Error("registration after start accepted")
	}
}

func TestRunNow(t *testing.T) {
	s := New(time.Minute)
	runs := 0
	err := s.Register("quality", time.Hour, func(context.Context) (string, error) {
		runs++
		return "recomputed 5 memories", nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	note, err := s.RunNow(context.Background(), "quality")
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if note != "recomputed 5 memories" {
		t.Errorf("note = %q", note)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}

	if _, err := s.RunNow(context.Background(), "no-such-job"); err == nil {
		t.Error("unknown job accepted")
	}
}

func TestRunNow_FailureIsReported(t *testing.T) {
	s := New(time.Minute)
	boom := errors.New("store unavailable")
	if err := s.Register("decay", time.Hour, func(context.Context) (string, error) {
		return "", boom
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := s.RunNow(context.Background(), "decay"); !errors.Is(err, boom) {
		t.Errorf("RunNow error = %v, want the job's error", err)
	}

	st := s.Status()
	if len(st) != 1 || st[0].LastError == "" {
		t.Errorf("status = %+v, want last error recorded", st)
	}
	if st[0].RunCount != 1 {
		t.Errorf("run count = %d, want 1", st[0].RunCount)
	}
}

func TestExecute_MutualExclusion(t *testing.T) {
	s := New(time.Minute)
	var mu sync.Mutex
	active, maxActive := 0, 0
	if err := s.Register("slow", time.Hour, func(context.Context) (string, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return "", nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunNow(context.Background(), "slow")
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent runs = %d, want 1", maxActive)
	}
	st := s.Status()
	if st[0].RunCount != 4 {
		t.Errorf("run count = %d, want 4 (every trigger runs, serialized)", st[0].RunCount)
	}
}

func TestInvoke_PanicIsolation(t *testing.T) {
	s := New(time.Minute)
	if err := s.Register("panics", time.Hour, func(context.Context) (string, error) {
		panic("job bug")
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := s.RunNow(context.Background(), "panics")
	if err == nil {
		t.Fatal("panicking job reported no error")
	}

	// Scheduler still serves other triggers afterwards.
	if _, err := s.RunNow(context.Background(), "panics"); err == nil {
		t.Error("second trigger reported no error")
	}
	if st := s.Status(); st[0].RunCount != 2 {
		t.Errorf("run count = %d, want 2", st[0].RunCount)
	}
}

func TestJobTimeout(t *testing.T) {
	s := New(30 * time.Millisecond)
	if err := s.Register("hangs", time.Hour, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.RunNow(context.Background(), "hangs"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("RunNow error = %v, want deadline exceeded", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job run was not bounded by the max duration")
	}
}

func TestStatus_SortedByName(t *testing.T) {
	s := New(time.Minute)
	noop := func(context.Context) (string, error) { return "", nil }
	for _, name := range []string{"replay", "decay", "inference"} {
		if err := s.Register(name, time.Hour, noop); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	st := s.Status()
	want := []string{"decay", "inference", "replay"}
	if len(st) != len(want) {
		t.Fatalf("status entries = %d, want %d", len(st), len(want))
	}
	for i, name := range want {
		if st[i].Name != name {
			t.Errorf("status[%d] = %s, want %s", i, st[i].Name, name)
		}
	}
}

func TestStartStop(t *testing.T) {
	s := New(time.Minute)
	if err := s.Register("decay", time.Hour, func(context.Context) (string, error) { return "", nil }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("double start accepted")
	}
	s.Stop()
	// Stop is idempotent.
	s.Stop()
}
