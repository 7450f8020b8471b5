// Package scheduler provides cron-based housekeeping for RoleBridge.
//
// Its main job is sweeping expired prompt sessions and stale interaction
// dedup rows out of the store on a schedule.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweep every ten minutes.
const DefaultSweepSchedule = "*/10 * * * *"

// sweepTimeout bounds one sweep run.
const sweepTimeout = time.Minute

// Sweeper removes expired records. store.Store implements it.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression. Runs are
// skipped while a previous one is still going. It returns an error if the
// expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(task))
	_, err := s.cron.AddJob(expr, job)
	return err
}

// AddSweep schedules sw.SweepExpired.
func (s *Scheduler) AddSweep(expr string, sw Sweeper) error {
	if err := s.AddJob(expr, func() { RunSweep(context.Background(), sw) }); err != nil {
		return err
	}
	slog.Info("Scheduler.AddSweep: sweep scheduled", "schedule", expr)
	return nil
}

// RunSweep performs one sweep and logs the outcome.
func RunSweep(ctx context.Context, sw Sweeper) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	start := time.Now()
	n, err := sw.SweepExpired(ctx)
	if err != nil {
		slog.Error("Scheduler.RunSweep: sweep failed", "error", err)
		return n, err
	}
	slog.Debug("Scheduler.RunSweep: sweep done", "removed", n, "took", time.Since(start))
	return n, nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
