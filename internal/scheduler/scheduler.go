// Package scheduler runs the periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vizionai/vizion/internal/logging"
)

// JobTimeout bounds a single run.
const JobTimeout = 30 * time.Minute

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

type registered struct {
	id       cron.EntryID
	schedule string
	job      Job
}

// Scheduler wraps robfig/cron with named jobs and structured logging.
type Scheduler struct {
	cron *cron.Cron
	log  logging.Logger

	mu   sync.Mutex
	jobs map[string]registered
}

// New creates a scheduler running in UTC. Overlapping runs of the same job
// are skipped.
func New(log logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Discard()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		log:  log,
		jobs: make(map[string]registered),
	}
}

// AddJob schedules job. schedule accepts standard five-field specs and
// descriptors such as "@every 1h".
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	id, err := s.cron.AddFunc(schedule, func() { s.run(context.Background(), name, job) })
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old.id)
	}
	s.jobs[name] = registered{id: id, schedule: schedule, job: job}
	s.mu.Unlock()

	s.log.WithFields(logging.Fields{"job": name, "schedule": schedule}).Info("scheduled job")
	return nil
}

func (s *Scheduler) run(parent context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(parent, JobTimeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	fields := logging.Fields{"job": name, "duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		s.log.WithFields(fields).WithError(err).Error("job failed")
		return err
	}
	s.log.WithFields(fields).Info("job completed")
	return nil
}

// RunNow executes a registered job immediately on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, name, r.job)
}

func (s *Scheduler) Start() {
	s.log.Info("starting scheduler")
	s.cron.Start()
}

// Stop halts scheduling; the returned context is done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("stopping scheduler")
	return s.cron.Stop()
}

// JobInfo describes a scheduled job.
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	LastRun  time.Time
}

// Jobs lists registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]JobInfo, 0, len(s.jobs))
	for name, r := range s.jobs {
		e := s.cron.Entry(r.id)
		infos = append(infos, JobInfo{Name: name, Schedule: r.schedule, NextRun: e.Next, LastRun: e.Prev})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
