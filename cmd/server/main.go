package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcapi "parkreserve-backend/internal/api/grpc"
	httpapi "parkreserve-backend/internal/api/http"
	"parkreserve-backend/internal/app"
	"parkreserve-backend/internal/config"
	"parkreserve-backend/internal/jobs"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	withScheduler := flag.Bool("with-scheduler", false, "Also run the cron scheduler in this process")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting reservation server...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "http", cfg.GetServerAddress(), "grpc", cfg.GetGRPCAddress())
	logger.Info("Reservation policy", "hold_window", cfg.HoldWindow(), "pricing_rule", cfg.Reservation.PricingRule, "timezone", cfg.Reservation.Timezone)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Repositories
	repos, err := app.OpenRepositories(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer repos.Close()

	// Initialize Services
	services := app.NewServices(cfg, repos, app.NewPublisher(cfg), app.NewAlertService(cfg), time.Now)
	defer services.Close()

	// Optional in-process scheduler
	if *withScheduler {
		cronScheduler := scheduler.NewScheduler(jobs.NewJobRunner(&jobs.Services{
			Hold:    services.Hold,
			Checkin: services.Checkin,
			Alert:   services.Alert,
			Clock:   services.Clock,
		}, cfg))
		cronScheduler.Start()
		defer cronScheduler.Stop()
	}

	// Set up gRPC health server
	lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
	if err != nil {
		logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
		log.Fatalf("Failed to listen: %v", err)
	}
	grpcServer, healthServer := grpcapi.NewServer()
	go grpcapi.WatchStore(ctx, healthServer, repos, 10*time.Second)
	go func() {
		logger.Info("gRPC server listening", "address", cfg.GetGRPCAddress())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
		}
	}()

	// Set up HTTP server
	router := httpapi.NewRouter(
		httpapi.NewReservationHandler(services.Reservation, services.Checkin),
		httpapi.NewResourceHandler(services.Catalog, services.Reservation),
		repos,
	)
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "address", cfg.GetServerAddress())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("Server stopped. Goodbye!")
}
