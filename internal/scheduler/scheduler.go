// Package scheduler runs the background job registry: a fixed set of named
// jobs, each on its own cadence, with per-job mutual exclusion, bounded run
// duration, manual triggering, and a status surface. One job's failure
// never prevents another from running.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// JobFunc is the body of a scheduled job. It returns a short human-readable
// summary of what the run did. The context is cancelled when the job
// exceeds the scheduler's maximum run duration or the scheduler stops.
type JobFunc func(ctx context.Context) (string, error)

// JobStatus is the observable state of one registered job.
type JobStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	NextRun   time.Time     `json:"next_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	LastNote  string        `json:"last_note,omitempty"`
	RunCount  int           `json:"run_count"`
}

// job is one registry entry. runMu serializes executions of this job;
// stateMu guards the bookkeeping fields.
type job struct {
	name     string
	interval time.Duration
	fn       JobFunc

	runMu sync.Mutex

	stateMu   sync.Mutex
	running   bool
	lastRun   time.Time
	nextRun   time.Time
	lastError error
	lastNote  string
	runCount  int
}

// Scheduler hosts the job registry. Construct with New, register every job,
// then Start. The registry is fixed after Start.
type Scheduler struct {
	maxDuration time.Duration

	mu      sync.Mutex
	jobs    map[string]*job
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a stopped scheduler. maxDuration bounds each job run; values
// <= 0 default to 10 minutes.
func New(maxDuration time.Duration) *Scheduler {
	if maxDuration <= 0 {
		maxDuration = 10 * time.Minute
	}
	return &Scheduler{
		maxDuration: maxDuration,
		jobs:        make(map[string]*job),
	}
}

// Register adds a named job with its cadence. Registration is rejected
// after Start and for duplicate names.
func (s *Scheduler) Register(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: job %s: interval must be positive", name)
	}
	if fn == nil {
		return fmt.Errorf("scheduler: job %s: nil job func", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: cannot register %s after start", name)
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %s already registered", name)
	}
	s.jobs[name] = &job{name: name, interval: interval, fn: fn}
	return nil
}

// Start launches one ticker goroutine per registered job.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: already started")
	}
	s.started = true
	s.stopCh = make(chan struct{})

	now := time.Now()
	for _, j := range s.jobs {
		j.stateMu.Lock()
		j.nextRun = now.Add(j.interval)
		j.stateMu.Unlock()

		s.wg.Add(1)
		go s.loop(j)
	}
	log.Printf("scheduler: started with %d jobs", len(s.jobs))
	return nil
}

// Stop signals every job loop and waits for in-flight runs to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("scheduler: stopped")
}

// loop is the ticker goroutine for one job.
func (s *Scheduler) loop(j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.execute(context.Background(), j)
		case <-s.stopCh:
			return
		}
	}
}

// RunNow triggers a job immediately, waiting for any in-flight run of the
// same job to finish first. Returns the run's summary note.
func (s *Scheduler) RunNow(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("scheduler: unknown job %q", name)
	}

	s.execute(ctx, j)

	j.stateMu.Lock()
	defer j.stateMu.Unlock()
	return j.lastNote, j.lastError
}

// execute runs one job invocation under its exclusion lock, with panic
// isolation and the run-duration bound.
func (s *Scheduler) execute(ctx context.Context, j *job) {
	j.runMu.Lock()
	defer j.runMu.Unlock()

	now := time.Now()
	j.stateMu.Lock()
	j.running = true
	j.lastRun = now
	j.nextRun = now.Add(j.interval)
	j.stateMu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.maxDuration)
	note, err := s.invoke(runCtx, j)
	cancel()

	j.stateMu.Lock()
	j.running = false
	j.lastError = err
	j.lastNote = note
	j.runCount++
	j.stateMu.Unlock()

	if err != nil {
		log.Printf("scheduler: job %s failed: %v", j.name, err)
	}
}

// invoke calls the job body, converting panics into errors so a misbehaving
// job cannot take down the scheduler.
func (s *Scheduler) invoke(ctx context.Context, j *job) (note string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", j.name, r)
		}
	}()
	return j.fn(ctx)
}

// Status returns the state of every registered job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		j.stateMu.Lock()
		st := JobStatus{
			Name:     j.name,
			Interval: j.interval,
			Running:  j.running,
			LastRun:  j.lastRun,
			NextRun:  j.nextRun,
			LastNote: j.lastNote,
			RunCount: j.runCount,
		}
		if j.lastError != nil {
			st.LastError = j.lastError.Error()
		}
		j.stateMu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}
