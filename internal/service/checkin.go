package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/events"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/repository"
	"parkreserve-backend/internal/security"
)

type checkinService struct {
	checkinRepo repository.CheckinRepository
	tokenIssuer security.TokenIssuer
	alertSvc    AlertService
	publisher   events.Publisher
	clock       Clock
}

func NewCheckinService(
	checkinRepo repository.CheckinRepository,
	tokenIssuer security.TokenIssuer,
	alertSvc AlertService,
	publisher events.Publisher,
	clock Clock,
) CheckinService {
	return &checkinService{
		checkinRepo: checkinRepo,
		tokenIssuer: tokenIssuer,
		alertSvc:    alertSvc,
		publisher:   publisher,
		clock:       clock,
	}
}

// CheckIn consumes the presented token for reservation id. Exactly one of any
// number of concurrent calls with the same token succeeds; every other call
// fails with TOKEN_ALREADY_USED and is reported as a fraud event.
func (s *checkinService) CheckIn(ctx context.Context, id int32, token, checker string) (*domain.Reservation, error) {
	logger.EnterMethod("checkinService.CheckIn", "id", id, "checker", checker)

	if strings.TrimSpace(checker) == "" {
		err := domain.NewError(domain.CodeValidation, "checker identity is required")
		logger.ExitMethodWithError("checkinService.CheckIn", err, "id", id)
		return nil, err
	}
	claims, err := s.tokenIssuer.Verify(token)
	if err != nil {
		err = domain.NewError(domain.CodeInvalidToken, "check-in token is not valid")
		logger.ExitMethodWithError("checkinService.CheckIn", err, "id", id)
		return nil, err
	}
	if claims.Subject != strconv.Itoa(int(id)) {
		err := domain.NewError(domain.CodeInvalidToken, "check-in token does not belong to reservation %d", id)
		logger.ExitMethodWithError("checkinService.CheckIn", err, "id", id)
		return nil, err
	}

	now := s.clock()
	rsv, err := s.checkinRepo.Consume(ctx, claims.ID, claims.BookingCode, checker, now)
	if err != nil {
		if errors.Is(err, domain.ErrTokenAlreadyUsed) {
			s.reportReuse(ctx, id, claims, rsv, checker, now)
		}
		logger.ExitMethodWithError("checkinService.CheckIn", err, "id", id)
		return nil, err
	}

	logger.Transition(ctx, rsv.BookingCode, string(domain.ReservationStatusApproved), string(rsv.Status), checker, "tokenID", claims.ID)
	publish(ctx, s.publisher, events.NewEvent(events.ReservationCheckedIn, rsv, checker, "", now))
	logger.ExitMethod("checkinService.CheckIn", "id", id, "bookingCode", rsv.BookingCode)
	return rsv, nil
}

// reportReuse persists, logs, alerts and publishes a token reuse attempt.
// None of these steps can change the outcome for the caller.
func (s *checkinService) reportReuse(ctx context.Context, id int32, claims *security.CheckinClaims, rsv *domain.Reservation, checker string, now time.Time) {
	ev := &domain.FraudEvent{
		TokenID:       claims.ID,
		ReservationID: id,
		BookingCode:   claims.BookingCode,
		AttemptedBy:   checker,
		DetectedAt:    now,
	}
	tok, err := s.checkinRepo.GetToken(ctx, claims.ID)
	if err != nil {
		logger.WarnContext(ctx, "Failed to load reused check-in token", "tokenID", claims.ID, "error", err)
	} else if tok.ConsumedBy != nil {
		ev.FirstUsedBy = *tok.ConsumedBy
	}
	if err := s.checkinRepo.RecordFraudEvent(ctx, ev); err != nil {
		logger.ErrorContext(ctx, "Failed to record fraud event", "tokenID", claims.ID, "error", err)
	}

	args := []any{"tokenID", claims.ID, "bookingCode", claims.BookingCode, "attemptedBy", checker}
	if tok != nil && tok.ConsumedBy != nil {
		args = append(args, "consumedBy", *tok.ConsumedBy, "consumedAt", tok.ConsumedAt)
	}
	logger.Fraud(ctx, "Check-in token reused", args...)

	if err := s.alertSvc.SendFraudAlert(ctx, ev); err != nil {
		logger.ErrorContext(ctx, "Failed to alert operator about token reuse", "tokenID", claims.ID, "error", err)
	}

	if rsv == nil {
		rsv = &domain.Reservation{ID: id, BookingCode: claims.BookingCode, ResourceID: claims.ResourceID, Date: claims.Date}
	}
	publish(ctx, s.publisher, events.NewEvent(events.CheckinTokenReused, rsv, checker, "token already used", now))
}

func (s *checkinService) ListFraudEvents(ctx context.Context, since time.Time) ([]domain.FraudEvent, error) {
	return s.checkinRepo.ListFraudEvents(ctx, since)
}
