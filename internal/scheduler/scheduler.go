package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"parkreserve-backend/internal/jobs"
	"parkreserve-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner *jobs.JobRunner) *Scheduler {
	// cron only reports errors (recovered panics) through this logger
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.WithService("scheduler").Handler(), slog.LevelWarn))

	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	s.registerJobs()
	return s
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() {
	cfg := s.jobs.Config().Scheduler

	// Release lapsed payment holds
	_, err := s.cron.AddFunc(cfg.ExpireHolds, s.jobs.ExpireHolds)
	if err != nil {
		logger.Error("Failed to register ExpireHolds job", "error", err)
	}

	// Daily fraud digest
	_, err = s.cron.AddFunc(cfg.ReportFraudEvents, s.jobs.ReportFraudEvents)
	if err != nil {
		logger.Error("Failed to register ReportFraudEvents job", "error", err)
	}

	logger.Info("All cron jobs registered successfully", "count", len(s.cron.Entries()))
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// IsRunning returns true if the scheduler has jobs registered
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}

// EntryCount returns the number of registered jobs
func (s *Scheduler) EntryCount() int {
	return len(s.cron.Entries())
}
