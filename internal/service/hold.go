package service

import (
	"context"
	"time"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/events"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/repository"
)

type holdService struct {
	reservationRepo repository.ReservationRepository
	publisher       events.Publisher
	clock           Clock
	reviewTimeout   time.Duration
}

// NewHoldService expires unpaid payment holds, and pending requests older
// than reviewTimeout when it is positive.
func NewHoldService(reservationRepo repository.ReservationRepository, publisher events.Publisher, clock Clock, reviewTimeout time.Duration) HoldService {
	return &holdService{
		reservationRepo: reservationRepo,
		publisher:       publisher,
		clock:           clock,
		reviewTimeout:   reviewTimeout,
	}
}

func (s *holdService) ExpireIfDue(ctx context.Context, id int32) (bool, error) {
	now := s.clock()
	expired := false
	r, err := s.reservationRepo.Mutate(ctx, id, func(r *domain.Reservation) error {
		if !r.Lapse(now, s.reviewTimeout) {
			return repository.ErrUnchanged
		}
		r.UpdatedAt = now
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		announceExpiry(ctx, s.publisher, r, now)
	}
	return expired, nil
}

func (s *holdService) Sweep(ctx context.Context) (int, error) {
	logger.EnterMethod("holdService.Sweep")
	now := s.clock()
	expired, err := s.reservationRepo.ExpireHolds(ctx, now)
	if err != nil {
		logger.ExitMethodWithError("holdService.Sweep", err)
		return 0, err
	}
	if s.reviewTimeout > 0 {
		stale, err := s.reservationRepo.ExpireStaleRequests(ctx, now, s.reviewTimeout)
		if err != nil {
			logger.ExitMethodWithError("holdService.Sweep", err, "expired", len(expired))
			return 0, err
		}
		expired = append(expired, stale...)
	}
	for i := range expired {
		announceExpiry(ctx, s.publisher, &expired[i], now)
	}
	logger.ExitMethod("holdService.Sweep", "expired", len(expired))
	return len(expired), nil
}

// announceExpiry reports a reservation released by a lapsed hold or by a
// request that was never reviewed.
func announceExpiry(ctx context.Context, publisher events.Publisher, r *domain.Reservation, now time.Time) {
	from, eventType := domain.ReservationStatusAwaitingPayment, events.ReservationExpired
	if r.Status == domain.ReservationStatusRejected {
		from, eventType = domain.ReservationStatusPendingReview, events.ReservationRejected
	}
	reason := r.LapseReason()
	logger.Transition(ctx, r.BookingCode, string(from), string(r.Status), domain.HoldExpiryActor, "reason", reason)
	publish(ctx, publisher, events.NewEvent(eventType, r, domain.HoldExpiryActor, reason, now))
}

// publish delivers an event; failures are logged and never undo the
// transition that produced the event.
func publish(ctx context.Context, publisher events.Publisher, ev events.Event) {
	if err := publisher.Publish(ctx, ev); err != nil {
		logger.WarnContext(ctx, "Failed to publish reservation event", "type", ev.Type, "bookingCode", ev.BookingCode, "error", err)
	}
}
