package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parkreserve-backend/internal/app"
	"parkreserve-backend/internal/config"
	"parkreserve-backend/internal/jobs"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire-holds', 'report-fraud-events', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting reservation cronjob runner...", "log_level", cfg.Log.Level)

	if cfg.Database.Type == "memory" {
		logger.Warn("Cronjob runner is using the in-memory store; it shares no state with the server")
	}

	// Initialize Repositories
	repos, err := app.OpenRepositories(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer repos.Close()

	// Initialize Services
	services := app.NewServices(cfg, repos, app.NewPublisher(cfg), app.NewAlertService(cfg), time.Now)
	defer services.Close()

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(&jobs.Services{
		Hold:    services.Hold,
		Checkin: services.Checkin,
		Alert:   services.Alert,
		Clock:   services.Clock,
	}, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if !runJobOnce(jobRunner, *runOnce) {
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and reports whether the name was known
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) bool {
	switch jobName {
	case "expire-holds":
		jobRunner.ExpireHolds()
	case "report-fraud-events":
		jobRunner.ReportFraudEvents()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - expire-holds\n")
		fmt.Printf("  - report-fraud-events\n")
		fmt.Printf("  - all\n")
		return false
	}
	return true
}
