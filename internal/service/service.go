package service

import (
	"context"
	"time"

	"parkreserve-backend/internal/domain"
)

type CatalogService interface {
	ListResources(ctx context.Context, filter domain.ResourceFilter) ([]domain.Resource, error)
	GetResource(ctx context.Context, id int32) (*domain.Resource, error)
}

// CreateReservationInput is a booking request as submitted by a requester.
type CreateReservationInput struct {
	ResourceID int32
	Requester  domain.Requester
	Date       string
	StartTime  string
	EndTime    string
	GuestCount int32
	Remarks    string
}

// StatusChange is a staff request to move a reservation to a target status.
type StatusChange struct {
	Status  domain.ReservationStatus
	Actor   string
	Reason  string
	Remarks string
}

type PaymentUpdate struct {
	Status    domain.PaymentStatus
	Method    string
	Reference string
	Actor     string
}

type ReservationService interface {
	CreateReservation(ctx context.Context, in CreateReservationInput) (*domain.Reservation, error)
	GetReservation(ctx context.Context, id int32) (*domain.Reservation, error)
	GetReservationByCode(ctx context.Context, code string) (*domain.Reservation, error)
	ListReservations(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error)

	Review(ctx context.Context, id int32, actor string) (*domain.Reservation, error)
	Reject(ctx context.Context, id int32, actor, reason string) (*domain.Reservation, error)
	RecordPayment(ctx context.Context, id int32, update PaymentUpdate) (*domain.Reservation, error)
	Approve(ctx context.Context, id int32, actor string) (*domain.Reservation, error)
	Cancel(ctx context.Context, id int32, actor, reason string) (*domain.Reservation, error)
	ChangeStatus(ctx context.Context, id int32, change StatusChange) (*domain.Reservation, error)

	CheckAvailability(ctx context.Context, resourceID int32, date, start, end string) (bool, error)
	Schedule(ctx context.Context, resourceID int32, date string) ([]domain.Reservation, error)
}

type HoldService interface {
	// ExpireIfDue cancels the reservation if its payment hold has run out and
	// reports whether this call did so.
	ExpireIfDue(ctx context.Context, id int32) (bool, error)
	// Sweep expires every overdue hold and returns how many it cancelled.
	Sweep(ctx context.Context) (int, error)
}

type CheckinService interface {
	CheckIn(ctx context.Context, id int32, token, checker string) (*domain.Reservation, error)
	ListFraudEvents(ctx context.Context, since time.Time) ([]domain.FraudEvent, error)
}

type AlertService interface {
	SendFraudAlert(ctx context.Context, ev *domain.FraudEvent) error
	SendFraudDigest(ctx context.Context, events []domain.FraudEvent) error
}

// Clock returns the current time. Services take it as a dependency so that
// hold expiry can be tested deterministically.
type Clock func() time.Time
