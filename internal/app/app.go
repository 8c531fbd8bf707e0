// Package app assembles stores and services from configuration for the
// server and cronjob binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"parkreserve-backend/internal/config"
	"parkreserve-backend/internal/events"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/repository"
	"parkreserve-backend/internal/repository/memory"
	"parkreserve-backend/internal/repository/postgres"
	"parkreserve-backend/internal/security"
	"parkreserve-backend/internal/service"
	"parkreserve-backend/internal/utils"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Repositories is the selected storage backend
type Repositories struct {
	Resources    repository.ResourceRepository
	Reservations repository.ReservationRepository
	Checkins     repository.CheckinRepository

	store pinger
	db    *sql.DB
}

func (r *Repositories) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *Repositories) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// OpenRepositories connects to PostgreSQL, or builds a seeded in-memory store
// when database.type is "memory".
func OpenRepositories(ctx context.Context, cfg *config.Config) (*Repositories, error) {
	if cfg.Database.Type == "memory" {
		logger.Info("Using in-memory store", "resources", len(cfg.Catalog.Resources))
		store := memory.NewStore(cfg.Catalog.Resources)
		return &Repositories{
			Resources:    store.ResourceRepository,
			Reservations: store.ReservationRepository,
			Checkins:     store.CheckinRepository,
			store:        store,
		}, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db)
	return &Repositories{
		Resources:    store.ResourceRepository,
		Reservations: store.ReservationRepository,
		Checkins:     store.CheckinRepository,
		store:        store,
		db:           db,
	}, nil
}

// Services is the full service graph
type Services struct {
	Catalog     service.CatalogService
	Reservation service.ReservationService
	Hold        service.HoldService
	Checkin     service.CheckinService
	Alert       service.AlertService
	Publisher   events.Publisher
	Clock       service.Clock
}

func (s *Services) Close() error {
	return s.Publisher.Close()
}

func NewPublisher(cfg *config.Config) events.Publisher {
	if cfg.Events.AMQPURL == "" {
		logger.Info("No AMQP URL configured, reservation events go to the log")
		return events.NewLogPublisher()
	}
	p, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
	if err != nil {
		logger.Error("Failed to connect event publisher, falling back to log", "error", err)
		return events.NewLogPublisher()
	}
	return p
}

func NewAlertService(cfg *config.Config) service.AlertService {
	switch {
	case cfg.Alerts.SendGridAPIKey != "":
		logger.Info("Operator alerts via SendGrid", "to", cfg.Alerts.OperatorEmail)
		return service.NewSendGridAlertService(cfg.Alerts.SendGridAPIKey, cfg.Alerts.FromEmail, cfg.Alerts.FromName, cfg.Alerts.OperatorEmail)
	case cfg.SMTP.Host != "":
		logger.Info("Operator alerts via SMTP", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port, "to", cfg.Alerts.OperatorEmail)
		return service.NewSMTPAlertService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From, cfg.Alerts.OperatorEmail)
	default:
		logger.Info("No mail transport configured, operator alerts go to the log")
		return service.NewLogAlertService()
	}
}

// NewServices wires every service against repos.
func NewServices(cfg *config.Config, repos *Repositories, publisher events.Publisher, alerts service.AlertService, clock service.Clock) *Services {
	tokenIssuer := security.NewTokenIssuer(cfg.Checkin.TokenSecret, cfg.Checkin.Issuer)
	holdSvc := service.NewHoldService(repos.Reservations, publisher, clock, cfg.ReviewTimeout())

	return &Services{
		Catalog: service.NewCatalogService(repos.Resources),
		Reservation: service.NewReservationService(
			repos.Resources,
			repos.Reservations,
			holdSvc,
			tokenIssuer,
			publisher,
			clock,
			service.ReservationPolicy{
				HoldWindow:        cfg.HoldWindow(),
				PricingRule:       utils.PricingRule(cfg.Reservation.PricingRule),
				BookingCodePrefix: cfg.Reservation.BookingCodePrefix,
				Location:          cfg.Location(),
				AllowPastDates:    cfg.Reservation.AllowPastDates,
				ReviewTimeout:     cfg.ReviewTimeout(),
			},
		),
		Hold:      holdSvc,
		Checkin:   service.NewCheckinService(repos.Checkins, tokenIssuer, alerts, publisher, clock),
		Alert:     alerts,
		Publisher: publisher,
		Clock:     clock,
	}
}
