package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/vizionai/vizion/internal/engine"
	"github.com/vizionai/vizion/internal/logging"
)

const (
	ScoresJob         = "scores"
	StoriesCleanupJob = "stories-cleanup"
)

// Recomputer is satisfied by *engine.Engine.
type Recomputer interface {
	RecomputeAll(ctx context.Context) (engine.BatchResult, error)
}

// StoryCleaner is satisfied by *store.DB.
type StoryCleaner interface {
	DeleteExpiredStories(ctx context.Context, now time.Time) (int64, error)
}

// RecomputeScores refreshes every agent's engagement score. Per-agent
// failures are logged by the engine and do not fail the job.
func RecomputeScores(r Recomputer) Job {
	return func(ctx context.Context) error {
		if _, err := r.RecomputeAll(ctx); err != nil {
			return fmt.Errorf("recompute scores: %w", err)
		}
		return nil
	}
}

// CleanupStories deletes stories past their expiry.
func CleanupStories(c StoryCleaner, log logging.Logger) Job {
	return func(ctx context.Context) error {
		n, err := c.DeleteExpiredStories(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("cleanup stories: %w", err)
		}
		if n > 0 && log != nil {
			log.WithField("deleted", n).Info("expired stories removed")
		}
		return nil
	}
}

// Schedules names the cron expressions for the built-in jobs. An empty
// expression leaves that job unscheduled.
type Schedules struct {
	Scores         string
	StoriesCleanup string
}

// Register adds the built-in jobs.
func (s *Scheduler) Register(sched Schedules, r Recomputer, c StoryCleaner) error {
	if sched.Scores != "" {
		if err := s.AddJob(ScoresJob, sched.Scores, RecomputeScores(r)); err != nil {
			return err
		}
	}
	if sched.StoriesCleanup != "" {
		if err := s.AddJob(StoriesCleanupJob, sched.StoriesCleanup, CleanupStories(c, s.log)); err != nil {
			return err
		}
	}
	return nil
}
