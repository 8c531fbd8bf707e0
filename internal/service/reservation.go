package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/events"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/repository"
	"parkreserve-backend/internal/security"
	"parkreserve-backend/internal/utils"
)

// paymentDeskActor is recorded when a payment update names no actor.
const paymentDeskActor = "payment-desk"

// ReservationPolicy holds the configurable booking rules.
type ReservationPolicy struct {
	HoldWindow        time.Duration
	PricingRule       utils.PricingRule
	BookingCodePrefix string
	Location          *time.Location
	AllowPastDates    bool
	// ReviewTimeout rejects requests left unreviewed this long. Zero disables it.
	ReviewTimeout time.Duration
}

type reservationService struct {
	resourceRepo    repository.ResourceRepository
	reservationRepo repository.ReservationRepository
	holdSvc         HoldService
	tokenIssuer     security.TokenIssuer
	publisher       events.Publisher
	clock           Clock
	policy          ReservationPolicy
}

func NewReservationService(
	resourceRepo repository.ResourceRepository,
	reservationRepo repository.ReservationRepository,
	holdSvc HoldService,
	tokenIssuer security.TokenIssuer,
	publisher events.Publisher,
	clock Clock,
	policy ReservationPolicy,
) ReservationService {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &reservationService{
		resourceRepo:    resourceRepo,
		reservationRepo: reservationRepo,
		holdSvc:         holdSvc,
		tokenIssuer:     tokenIssuer,
		publisher:       publisher,
		clock:           clock,
		policy:          policy,
	}
}

func validateRequester(r domain.Requester) error {
	if strings.TrimSpace(r.Name) == "" {
		return domain.NewError(domain.CodeValidation, "requester name is required")
	}
	if strings.TrimSpace(r.Contact) == "" {
		return domain.NewError(domain.CodeValidation, "requester contact is required")
	}
	if !r.Category.Valid() {
		return domain.NewError(domain.CodeValidation, "unknown requester category %q", r.Category)
	}
	return nil
}

// notInPast rejects windows that start before now in the service timezone.
func (s *reservationService) notInPast(slot domain.Slot, now time.Time) error {
	if s.policy.AllowPastDates {
		return nil
	}
	day, err := time.ParseInLocation(domain.DateLayout, slot.Date, s.policy.Location)
	if err != nil {
		return domain.NewError(domain.CodeValidation, "invalid date %q", slot.Date)
	}
	start := day.Add(time.Duration(slot.StartMinute) * time.Minute)
	if start.Before(now) {
		return domain.NewError(domain.CodeValidation, "cannot book %s %s, it is in the past", slot.Date, slot.Start)
	}
	return nil
}

func (s *reservationService) CreateReservation(ctx context.Context, in CreateReservationInput) (*domain.Reservation, error) {
	logger.EnterMethod("reservationService.CreateReservation", "resourceID", in.ResourceID, "date", in.Date, "start", in.StartTime, "end", in.EndTime)

	slot, err := domain.NewSlot(in.Date, in.StartTime, in.EndTime)
	if err != nil {
		logger.ExitMethodWithError("reservationService.CreateReservation", err)
		return nil, err
	}
	if err := validateRequester(in.Requester); err != nil {
		logger.ExitMethodWithError("reservationService.CreateReservation", err)
		return nil, err
	}
	if in.GuestCount < 1 {
		err := domain.NewError(domain.CodeValidation, "guest count must be at least 1")
		logger.ExitMethodWithError("reservationService.CreateReservation", err)
		return nil, err
	}
	now := s.clock()
	if err := s.notInPast(slot, now); err != nil {
		logger.ExitMethodWithError("reservationService.CreateReservation", err)
		return nil, err
	}

	// Release lapsed holds so they do not block this request.
	if _, err := s.holdSvc.Sweep(ctx); err != nil {
		logger.ExitMethodWithError("reservationService.CreateReservation", err)
		return nil, err
	}

	rsv := &domain.Reservation{
		BookingCode:   NewBookingCode(s.policy.BookingCodePrefix, now.In(s.policy.Location)),
		ResourceID:    in.ResourceID,
		Requester:     in.Requester,
		Date:          slot.Date,
		StartTime:     slot.Start,
		EndTime:       slot.End,
		GuestCount:    in.GuestCount,
		Status:        domain.ReservationStatusPendingReview,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Remarks:       in.Remarks,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	prepare := func(res *domain.Resource, r *domain.Reservation) error {
		if !res.Active {
			return domain.NewError(domain.CodeResourceInactive, "resource %s is not accepting reservations", res.Name)
		}
		if r.GuestCount > res.Capacity {
			return domain.NewError(domain.CodeValidation, "guest count %d exceeds capacity %d of %s", r.GuestCount, res.Capacity, res.Name)
		}
		cost, err := utils.CalculateReservationCostWithBreakdown(s.policy.PricingRule, res, slot)
		if err != nil {
			return err
		}
		r.PricingRule = string(cost.Rule)
		r.TotalAmountCents = cost.TotalCents
		return nil
	}

	err = s.reservationRepo.Create(ctx, rsv, prepare)
	if errors.Is(err, repository.ErrSerialization) {
		logger.Debug("Retrying reservation insert after serialization failure", "bookingCode", rsv.BookingCode)
		err = s.reservationRepo.Create(ctx, rsv, prepare)
		if errors.Is(err, repository.ErrSerialization) {
			err = domain.NewError(domain.CodeSlotUnavailable, "resource %d is already booked on %s between %s and %s",
				in.ResourceID, slot.Date, slot.Start, slot.End)
		}
	}
	if err != nil {
		logger.ExitMethodWithError("reservationService.CreateReservation", err)
		return nil, err
	}

	logger.Transition(ctx, rsv.BookingCode, "", string(rsv.Status), rsv.Requester.Name, "resourceID", rsv.ResourceID, "amountCents", rsv.TotalAmountCents)
	publish(ctx, s.publisher, events.NewEvent(events.ReservationCreated, rsv, rsv.Requester.Name, "", now))
	logger.ExitMethod("reservationService.CreateReservation", "id", rsv.ID, "bookingCode", rsv.BookingCode)
	return rsv, nil
}

func (s *reservationService) GetReservation(ctx context.Context, id int32) (*domain.Reservation, error) {
	if _, err := s.holdSvc.ExpireIfDue(ctx, id); err != nil {
		return nil, err
	}
	return s.reservationRepo.GetByID(ctx, id)
}

func (s *reservationService) GetReservationByCode(ctx context.Context, code string) (*domain.Reservation, error) {
	rsv, err := s.reservationRepo.GetByBookingCode(ctx, code)
	if err != nil {
		return nil, err
	}
	expired, err := s.holdSvc.ExpireIfDue(ctx, rsv.ID)
	if err != nil {
		return nil, err
	}
	if expired {
		return s.reservationRepo.GetByID(ctx, rsv.ID)
	}
	return rsv, nil
}

func (s *reservationService) ListReservations(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	logger.EnterMethod("reservationService.ListReservations", "resourceID", filter.ResourceID, "date", filter.Date)
	if filter.Date != "" {
		if _, err := domain.ParseDate(filter.Date); err != nil {
			logger.ExitMethodWithError("reservationService.ListReservations", err)
			return nil, err
		}
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			err := domain.NewError(domain.CodeValidation, "unknown reservation status %q", st)
			logger.ExitMethodWithError("reservationService.ListReservations", err)
			return nil, err
		}
	}
	if _, err := s.holdSvc.Sweep(ctx); err != nil {
		logger.ExitMethodWithError("reservationService.ListReservations", err)
		return nil, err
	}
	list, err := s.reservationRepo.List(ctx, filter)
	if err != nil {
		logger.ExitMethodWithError("reservationService.ListReservations", err)
		return nil, err
	}
	logger.ExitMethod("reservationService.ListReservations", "count", len(list))
	return list, nil
}

// transition applies fn to the locked reservation. A lapsed hold is expired
// in the same lock instead, and the requested event fails as an invalid
// transition on the now cancelled reservation.
func (s *reservationService) transition(ctx context.Context, id int32, op, eventType, actor, reason, remarks string,
	fn func(r *domain.Reservation, now time.Time) error) (*domain.Reservation, error) {
	method := "reservationService." + op
	logger.EnterMethod(method, "id", id, "actor", actor)

	if strings.TrimSpace(actor) == "" {
		err := domain.NewError(domain.CodeValidation, "actor is required")
		logger.ExitMethodWithError(method, err, "id", id)
		return nil, err
	}

	now := s.clock()
	var from domain.ReservationStatus
	expired := false
	rsv, err := s.reservationRepo.Mutate(ctx, id, func(r *domain.Reservation) error {
		from = r.Status
		if r.Lapse(now, s.policy.ReviewTimeout) {
			r.UpdatedAt = now
			expired = true
			return nil
		}
		if err := fn(r, now); err != nil {
			return err
		}
		if remarks != "" {
			r.Remarks = remarks
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError(method, err, "id", id)
		return nil, err
	}
	if expired {
		announceExpiry(ctx, s.publisher, rsv, now)
		err := domain.NewError(domain.CodeInvalidTransition, "reservation %s was %s: %s",
			rsv.BookingCode, strings.ToLower(string(rsv.Status)), rsv.LapseReason())
		logger.ExitMethodWithError(method, err, "id", id)
		return nil, err
	}

	if from != rsv.Status {
		logger.Transition(ctx, rsv.BookingCode, string(from), string(rsv.Status), actor, "reason", reason)
	}
	publish(ctx, s.publisher, events.NewEvent(eventType, rsv, actor, reason, now))
	logger.ExitMethod(method, "id", id, "status", rsv.Status)
	return rsv, nil
}

func (s *reservationService) Review(ctx context.Context, id int32, actor string) (*domain.Reservation, error) {
	return s.review(ctx, id, actor, "")
}

func (s *reservationService) review(ctx context.Context, id int32, actor, remarks string) (*domain.Reservation, error) {
	return s.transition(ctx, id, "Review", events.ReservationReviewed, actor, "", remarks, func(r *domain.Reservation, now time.Time) error {
		return r.Review(actor, now, s.policy.HoldWindow)
	})
}

func (s *reservationService) Reject(ctx context.Context, id int32, actor, reason string) (*domain.Reservation, error) {
	return s.reject(ctx, id, actor, reason, "")
}

func (s *reservationService) reject(ctx context.Context, id int32, actor, reason, remarks string) (*domain.Reservation, error) {
	return s.transition(ctx, id, "Reject", events.ReservationRejected, actor, reason, remarks, func(r *domain.Reservation, now time.Time) error {
		return r.Reject(actor, reason, now)
	})
}

func (s *reservationService) RecordPayment(ctx context.Context, id int32, update PaymentUpdate) (*domain.Reservation, error) {
	if !update.Status.Valid() {
		return nil, domain.NewError(domain.CodeValidation, "unknown payment status %q", update.Status)
	}
	actor := update.Actor
	if actor == "" {
		actor = paymentDeskActor
	}
	return s.transition(ctx, id, "RecordPayment", events.ReservationPaymentRecorded, actor, "", "", func(r *domain.Reservation, now time.Time) error {
		return r.RecordPayment(update.Status, update.Method, update.Reference, now)
	})
}

func (s *reservationService) Approve(ctx context.Context, id int32, actor string) (*domain.Reservation, error) {
	return s.approve(ctx, id, actor, "")
}

func (s *reservationService) approve(ctx context.Context, id int32, actor, remarks string) (*domain.Reservation, error) {
	return s.transition(ctx, id, "Approve", events.ReservationApproved, actor, "", remarks, func(r *domain.Reservation, now time.Time) error {
		if err := r.Approve(actor, now); err != nil {
			return err
		}
		token, err := s.tokenIssuer.Issue(r, now)
		if err != nil {
			return err
		}
		r.CheckinToken = token
		return nil
	})
}

func (s *reservationService) Cancel(ctx context.Context, id int32, actor, reason string) (*domain.Reservation, error) {
	return s.cancel(ctx, id, actor, reason, "")
}

func (s *reservationService) cancel(ctx context.Context, id int32, actor, reason, remarks string) (*domain.Reservation, error) {
	return s.transition(ctx, id, "Cancel", events.ReservationCancelled, actor, reason, remarks, func(r *domain.Reservation, now time.Time) error {
		return r.Cancel(actor, reason, now)
	})
}

// ChangeStatus dispatches a requested target status to the matching event.
func (s *reservationService) ChangeStatus(ctx context.Context, id int32, change StatusChange) (*domain.Reservation, error) {
	switch change.Status {
	case domain.ReservationStatusAwaitingPayment:
		return s.review(ctx, id, change.Actor, change.Remarks)
	case domain.ReservationStatusRejected:
		return s.reject(ctx, id, change.Actor, change.Reason, change.Remarks)
	case domain.ReservationStatusApproved:
		return s.approve(ctx, id, change.Actor, change.Remarks)
	case domain.ReservationStatusCancelled:
		return s.cancel(ctx, id, change.Actor, change.Reason, change.Remarks)
	case domain.ReservationStatusCheckedIn:
		return nil, domain.NewError(domain.CodeInvalidTransition, "check-in requires a check-in token")
	case domain.ReservationStatusPendingReview:
		return nil, domain.NewError(domain.CodeInvalidTransition, "a reservation cannot return to %s", change.Status)
	default:
		return nil, domain.NewError(domain.CodeValidation, "unknown reservation status %q", change.Status)
	}
}

func (s *reservationService) CheckAvailability(ctx context.Context, resourceID int32, date, start, end string) (bool, error) {
	logger.EnterMethod("reservationService.CheckAvailability", "resourceID", resourceID, "date", date, "start", start, "end", end)
	slot, err := domain.NewSlot(date, start, end)
	if err != nil {
		logger.ExitMethodWithError("reservationService.CheckAvailability", err)
		return false, err
	}
	res, err := s.resourceRepo.GetByID(ctx, resourceID)
	if err != nil {
		logger.ExitMethodWithError("reservationService.CheckAvailability", err)
		return false, err
	}
	if !res.Active {
		logger.ExitMethod("reservationService.CheckAvailability", "available", false, "reason", "inactive")
		return false, nil
	}
	if _, err := s.holdSvc.Sweep(ctx); err != nil {
		logger.ExitMethodWithError("reservationService.CheckAvailability", err)
		return false, err
	}
	conflict, err := s.reservationRepo.HasConflict(ctx, resourceID, slot)
	if err != nil {
		logger.ExitMethodWithError("reservationService.CheckAvailability", err)
		return false, err
	}
	logger.ExitMethod("reservationService.CheckAvailability", "available", !conflict)
	return !conflict, nil
}

// Schedule lists the reservations currently holding slots on a resource for
// one day.
func (s *reservationService) Schedule(ctx context.Context, resourceID int32, date string) ([]domain.Reservation, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	if _, err := s.resourceRepo.GetByID(ctx, resourceID); err != nil {
		return nil, err
	}
	return s.ListReservations(ctx, domain.ReservationFilter{
		ResourceID: resourceID,
		Date:       date,
		Statuses:   domain.SlotHoldingStatuses,
	})
}
