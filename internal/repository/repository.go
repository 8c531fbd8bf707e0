package repository

import (
	"context"
	"errors"
	"time"

	"parkreserve-backend/internal/domain"
)

// ErrUnchanged may be returned by a MutateFunc to release the row lock without
// writing anything.
var ErrUnchanged = errors.New("reservation unchanged")

// ErrSerialization is returned when the store aborted a transaction because it
// could not be serialized with a concurrent one. Callers may retry.
var ErrSerialization = errors.New("serialization failure")

// PrepareFunc completes a new reservation from the resource snapshot read in
// the creating transaction. Returning an error aborts the insert.
type PrepareFunc func(res *domain.Resource, r *domain.Reservation) error

// MutateFunc applies a transition to a locked reservation row.
type MutateFunc func(r *domain.Reservation) error

type ResourceRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Resource, error)
	List(ctx context.Context, filter domain.ResourceFilter) ([]domain.Resource, error)
}

type ReservationRepository interface {
	// Create checks for overlapping slot-holding reservations and inserts r as
	// one atomic unit.
	Create(ctx context.Context, r *domain.Reservation, prepare PrepareFunc) error
	GetByID(ctx context.Context, id int32) (*domain.Reservation, error)
	GetByBookingCode(ctx context.Context, code string) (*domain.Reservation, error)
	List(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error)
	HasConflict(ctx context.Context, resourceID int32, slot domain.Slot) (bool, error)
	// Mutate locks the row, applies fn and persists the result, including a
	// newly attached check-in token.
	Mutate(ctx context.Context, id int32, fn MutateFunc) (*domain.Reservation, error)
	// ExpireHolds cancels every unpaid AWAITING_PAYMENT reservation whose
	// payment window ended before now and returns the ones it changed.
	ExpireHolds(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	// ExpireStaleRequests rejects every PENDING_REVIEW request created more
	// than timeout before now and returns the ones it changed.
	ExpireStaleRequests(ctx context.Context, now time.Time, timeout time.Duration) ([]domain.Reservation, error)
}

type CheckinRepository interface {
	GetToken(ctx context.Context, tokenID string) (*domain.CheckinToken, error)
	// Consume marks the token consumed only if it is still unconsumed and
	// checks the reservation in, in one transaction. A token that was already
	// consumed yields domain.ErrTokenAlreadyUsed together with the reservation.
	Consume(ctx context.Context, tokenID, bookingCode, checker string, now time.Time) (*domain.Reservation, error)
	RecordFraudEvent(ctx context.Context, ev *domain.FraudEvent) error
	ListFraudEvents(ctx context.Context, since time.Time) ([]domain.FraudEvent, error)
}
