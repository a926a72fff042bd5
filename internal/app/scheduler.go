/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron *cron.Cron
	jobs *Jobs
}

// SchedulerConfig carries the cron expressions and cadences for each job.
type SchedulerConfig struct {
	ExpirySweepSchedule     string
	ReconcileSweepSchedule  string
	SnapshotRefreshInterval time.Duration
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs) *Scheduler {
	cronLogger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron: c,
		jobs: jobs,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start(cfg SchedulerConfig) {
	if _, err := s.cron.AddFunc(cfg.ExpirySweepSchedule, s.jobs.ExpireLapsedEnrollments); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule expiry sweep\" schedule=%q err=%v", cfg.ExpirySweepSchedule, err)
	} else {
		log.Printf("level=info component=scheduler msg=\"scheduled expiry sweep\" schedule=%q", cfg.ExpirySweepSchedule)
	}

	if _, err := s.cron.AddFunc(cfg.ReconcileSweepSchedule, s.jobs.ReconcileQualifiedEnrollments); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule reconciliation sweep\" schedule=%q err=%v", cfg.ReconcileSweepSchedule, err)
	} else {
		log.Printf("level=info component=scheduler msg=\"scheduled reconciliation sweep\" schedule=%q", cfg.ReconcileSweepSchedule)
	}

	refreshSpec := snapshotRefreshSpec(cfg.SnapshotRefreshInterval)
	if _, err := s.cron.AddFunc(refreshSpec, s.jobs.RefreshPromotionSnapshot); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule snapshot refresh\" schedule=%q err=%v", refreshSpec, err)
	} else {
		log.Printf("level=info component=scheduler msg=\"scheduled snapshot refresh\" schedule=%q", refreshSpec)
	}

	s.cron.Start()
}

// snapshotRefreshSpec formats the snapshot refresh cadence as a cron @every
// spec, falling back to one minute for a non-positive interval.
func snapshotRefreshSpec(interval time.Duration) string {
	if interval <= 0 {
		interval = time.Minute
	}
	return fmt.Sprintf("@every %s", interval)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
