package engine

import (
	"context"
	"fmt"
)

// Job names for RunJob and the status surface.
const (
	JobDecay        = "decay"
	JobQuality      = "quality"
	JobTransition   = "transition"
	JobInference    = "inference"
	JobReplay       = "replay"
	JobDream        = "dream"
	JobSpacedRep    = "spaced_repetition"
	JobInterference = "interference"
	JobPurge        = "purge"
)

// registerJobs wires the lifecycle and graph passes into the scheduler at
// their configured cadences. Each job is independent; failures are isolated
// per job by the scheduler.
func (e *Engine) registerJobs() error {
	s := e.cfg.Scheduler

	if err := e.sched.Register(JobDecay, s.DecayInterval, func(ctx context.Context) (string, error) {
		n, err := e.lifecycle.RunDecay(ctx)
		return fmt.Sprintf("decayed %d memories", n), err
	}); err != nil {
		return err
	}

	if err := e.sched.Register(JobQuality, s.QualityInterval, func(ctx context.Context) (string, error) {
		n, err := e.lifecycle.RunQualityRecompute(ctx)
		return fmt.Sprintf("recomputed quality for %d memories", n), err
	}); err != nil {
		return err
	}

	if err := e.sched.Register(JobTransition, s.TransitionInterval, func(ctx context.Context) (string, error) {
		sum, err := e.lifecycle.RunTransitions(ctx)
		if sum == nil {
			return "", err
		}
		return fmt.Sprintf("promoted %d, demoted %d, archived %d", sum.Promoted, sum.Demoted, sum.Archived), err
	}); err != nil {
		return err
	}

	if err := e.sched.Register(JobInference, s.InferenceInterval, func(ctx context.Context) (string, error) {
		n, err := e.graph.RunInference(ctx)
		return fmt.Sprintf("inferred %d relations", n), err
	}); err != nil {
		return err
	}

	if err := e.sched.Register(JobReplay, s.ReplayInterval, func(ctx context.Context) (string, error) {
		n, err := e.lifecycle.RunReplay(ctx)
		return fmt.Sprintf("replayed %d memories", n), err
	}); err != nil {
		return err
	}

	if err := e.sched.Register(JobDream, s.DreamInterval, func(ctx context.Context) (string, error) {
		n, err := e.lifecycle.RunDream(ctx)
		return fmt.Sprintf("dream pass inferred %d relations", n), err
	}); err != nil {
		return err
	}

	if err := e.sched.Register(JobSpacedRep, s.SpacedRepInterval, func(ctx context.Context) (string, error) {
		n, err := e.lifecycle.RunSpacedRepetition(ctx)
		return fmt.Sprintf("reviewed %d memories", n), err
	}); err != nil {
		return err
	}

	if err := e.sched.Register(JobInterference, s.InterferenceInterval, func(ctx context.Context) (string, error) {
		findings, err := e.lifecycle.RunInterference(ctx)
		return fmt.Sprintf("found %d interference pairs", len(findings)), err
	}); err != nil {
		return err
	}

	if err := e.sched.Register(JobPurge, s.PurgeInterval, func(ctx context.Context) (string, error) {
		n, err := e.lifecycle.RunPurge(ctx)
		return fmt.Sprintf("purged %d memories", n), err
	}); err != nil {
		return err
	}

	return nil
}
