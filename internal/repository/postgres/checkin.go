package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/repository"
)

type checkinRepository struct {
	db *sql.DB
}

func NewCheckinRepository(db *sql.DB) repository.CheckinRepository {
	return &checkinRepository{db: db}
}

func (r *checkinRepository) GetToken(ctx context.Context, tokenID string) (*domain.CheckinToken, error) {
	t := &domain.CheckinToken{}
	query := `SELECT id, reservation_id, token, state, issued_at, consumed_at, consumed_by FROM checkin_tokens WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, tokenID).
		Scan(&t.ID, &t.ReservationID, &t.Value, &t.State, &t.IssuedAt, &t.ConsumedAt, &t.ConsumedBy)
	if err != nil {
		return nil, notFound(err, "check-in token %s not found", tokenID)
	}
	return t, nil
}

func (r *checkinRepository) Consume(ctx context.Context, tokenID, bookingCode, checker string, now time.Time) (*domain.Reservation, error) {
	logger.EnterMethod("checkinRepository.Consume", "tokenID", tokenID, "bookingCode", bookingCode, "checker", checker)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.ExitMethodWithError("checkinRepository.Consume", err)
		return nil, err
	}
	defer tx.Rollback()

	// A concurrent consumer blocks on the token row and re-evaluates the state
	// predicate once the winner commits, so exactly one caller gets a row back.
	var reservationID int32
	err = tx.QueryRowContext(ctx, `
		UPDATE checkin_tokens t
		SET state = 'CONSUMED', consumed_at = $2, consumed_by = $3
		FROM reservations r
		WHERE t.id = $1
		  AND t.state = 'UNCONSUMED'
		  AND r.id = t.reservation_id
		  AND r.booking_code = $4
		RETURNING t.reservation_id`,
		tokenID, now, checker, bookingCode).Scan(&reservationID)
	if errors.Is(err, sql.ErrNoRows) {
		rsv, classified := r.classifyRejected(ctx, tx, tokenID, bookingCode)
		logger.ExitMethodWithError("checkinRepository.Consume", classified, "tokenID", tokenID)
		return rsv, classified
	}
	if err != nil {
		err = mapError(err)
		logger.ExitMethodWithError("checkinRepository.Consume", err)
		return nil, err
	}

	rsv, err := scanReservation(tx.QueryRowContext(ctx, selectReservation+` WHERE r.id = $1 FOR UPDATE OF r`, reservationID))
	if err != nil {
		err = mapError(err)
		logger.ExitMethodWithError("checkinRepository.Consume", err)
		return nil, err
	}
	if err := rsv.CheckIn(checker, now); err != nil {
		logger.ExitMethodWithError("checkinRepository.Consume", err, "reservationID", reservationID)
		return nil, err
	}
	rsv.UpdatedAt = now
	if err := updateReservation(ctx, tx, rsv); err != nil {
		logger.ExitMethodWithError("checkinRepository.Consume", err, "reservationID", reservationID)
		return nil, err
	}
	if err := mapError(tx.Commit()); err != nil {
		logger.ExitMethodWithError("checkinRepository.Consume", err, "reservationID", reservationID)
		return nil, err
	}

	consumed := domain.TokenStateConsumed
	if rsv.CheckinToken != nil {
		rsv.CheckinToken.State = consumed
		rsv.CheckinToken.ConsumedAt = &now
		rsv.CheckinToken.ConsumedBy = &checker
	}
	logger.ExitMethod("checkinRepository.Consume", "reservationID", reservationID)
	return rsv, nil
}

// classifyRejected explains why the conditional update matched nothing.
func (r *checkinRepository) classifyRejected(ctx context.Context, tx *sql.Tx, tokenID, bookingCode string) (*domain.Reservation, error) {
	var state domain.TokenState
	var reservationID int32
	var code string
	err := tx.QueryRowContext(ctx, `
		SELECT t.state, r.id, r.booking_code
		FROM checkin_tokens t JOIN reservations r ON r.id = t.reservation_id
		WHERE t.id = $1`, tokenID).Scan(&state, &reservationID, &code)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && code != bookingCode) {
		return nil, domain.NewError(domain.CodeInvalidToken, "check-in token is not recognised")
	}
	if err != nil {
		return nil, mapError(err)
	}
	if state != domain.TokenStateConsumed {
		return nil, domain.NewError(domain.CodeInvalidToken, "check-in token is not recognised")
	}
	rsv, err := scanReservation(tx.QueryRowContext(ctx, selectReservation+` WHERE r.id = $1`, reservationID))
	if err != nil {
		return nil, mapError(err)
	}
	return rsv, domain.NewError(domain.CodeTokenAlreadyUsed, "check-in token for %s was already used", code)
}

func (r *checkinRepository) RecordFraudEvent(ctx context.Context, ev *domain.FraudEvent) error {
	query := `INSERT INTO checkin_fraud_events (token_id, reservation_id, booking_code, attempted_by, first_used_by, detected_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	return r.db.QueryRowContext(ctx, query, ev.TokenID, ev.ReservationID, ev.BookingCode, ev.AttemptedBy, ev.FirstUsedBy, ev.DetectedAt).Scan(&ev.ID)
}

func (r *checkinRepository) ListFraudEvents(ctx context.Context, since time.Time) ([]domain.FraudEvent, error) {
	query := `SELECT id, token_id, reservation_id, booking_code, attempted_by, first_used_by, detected_at
	          FROM checkin_fraud_events WHERE detected_at >= $1 ORDER BY detected_at DESC`
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.FraudEvent
	for rows.Next() {
		var ev domain.FraudEvent
		if err := rows.Scan(&ev.ID, &ev.TokenID, &ev.ReservationID, &ev.BookingCode, &ev.AttemptedBy, &ev.FirstUsedBy, &ev.DetectedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
