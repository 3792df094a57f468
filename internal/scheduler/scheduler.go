// Package scheduler runs the periodic refresh jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "lifeplan/internal/log"
)

// Job is one named periodic task.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler wraps a cron engine.
type Scheduler struct {
	cronEngine *cron.Cron
	jobs       []Job
}

// New returns a scheduler evaluating specs in loc.
func New(loc *time.Location, jobs ...Job) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cronEngine: cron.New(cron.WithLocation(loc)),
		jobs:       jobs,
	}
}

// Start registers every job and starts the engine. An invalid spec is
// returned as an error before anything runs.
func (s *Scheduler) Start() error {
	appLog.Info("starting scheduler", "jobs", len(s.jobs))
	for _, j := range s.jobs {
		j := j
		if _, err := s.cronEngine.AddFunc(j.Spec, func() { s.run(j) }); err != nil {
			return fmt.Errorf("scheduler: job %s spec %q: %w", j.Name, j.Spec, err)
		}
	}
	s.cronEngine.Start()
	appLog.Info("scheduler started")
	return nil
}

// RunNow executes every job once, synchronously.
func (s *Scheduler) RunNow() {
	for _, j := range s.jobs {
		s.run(j)
	}
}

func (s *Scheduler) run(j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	if err := j.Run(ctx); err != nil {
		appLog.Error("scheduled job failed", err, "job", j.Name)
		return
	}
	appLog.Debug("scheduled job done", "job", j.Name, "took", time.Since(started).String())
}

// Stop stops the engine and waits for running jobs.
func (s *Scheduler) Stop() {
	appLog.Info("stopping scheduler")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	appLog.Info("scheduler stopped")
}
