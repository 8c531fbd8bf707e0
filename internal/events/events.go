// Package events exposes reservation state changes to downstream consumers.
// Delivery is best effort; a failed publish never rolls back a transition.
package events

import (
	"context"
	"time"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/logger"
)

const (
	ReservationCreated         = "reservation.created"
	ReservationReviewed        = "reservation.reviewed"
	ReservationRejected        = "reservation.rejected"
	ReservationPaymentRecorded = "reservation.payment_recorded"
	ReservationApproved        = "reservation.approved"
	ReservationCancelled       = "reservation.cancelled"
	ReservationExpired         = "reservation.expired"
	ReservationCheckedIn       = "reservation.checked_in"
	CheckinTokenReused         = "checkin.token_reused"
)

type Event struct {
	Type          string                   `json:"type"`
	ReservationID int32                    `json:"reservation_id"`
	BookingCode   string                   `json:"booking_code"`
	ResourceID    int32                    `json:"resource_id"`
	Date          string                   `json:"date"`
	StartTime     string                   `json:"start_time"`
	EndTime       string                   `json:"end_time"`
	Status        domain.ReservationStatus `json:"status"`
	PaymentStatus domain.PaymentStatus     `json:"payment_status"`
	Actor         string                   `json:"actor,omitempty"`
	Reason        string                   `json:"reason,omitempty"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

func NewEvent(eventType string, r *domain.Reservation, actor, reason string, now time.Time) Event {
	return Event{
		Type:          eventType,
		ReservationID: r.ID,
		BookingCode:   r.BookingCode,
		ResourceID:    r.ResourceID,
		Date:          r.Date,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Status:        r.Status,
		PaymentStatus: r.PaymentStatus,
		Actor:         actor,
		Reason:        reason,
		OccurredAt:    now,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogPublisher writes events to the application log. Used when no broker is
// configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	logger.InfoContext(ctx, "Reservation event",
		"type", ev.Type,
		"bookingCode", ev.BookingCode,
		"resourceID", ev.ResourceID,
		"status", ev.Status,
		"actor", ev.Actor)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
