package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/repository"
)

const selectReservation = `
	SELECT r.id, r.booking_code, r.resource_id, r.requester_name, r.requester_contact, r.requester_category,
	       to_char(r.reservation_date, 'YYYY-MM-DD'), to_char(r.start_time, 'HH24:MI'), to_char(r.end_time, 'HH24:MI'),
	       r.guest_count, r.pricing_rule, r.total_amount_cents, r.status, r.remarks,
	       r.payment_status, r.payment_method, r.payment_reference, r.paid_at, r.payment_due_at,
	       r.checked_in_at, r.checked_in_by,
	       r.reviewed_by, r.reviewed_at, r.approved_by, r.approved_at,
	       r.rejected_by, r.rejected_at, r.rejection_reason,
	       r.cancelled_by, r.cancelled_at, r.cancel_reason,
	       r.created_at, r.updated_at,
	       t.id, t.token, t.state, t.issued_at, t.consumed_at, t.consumed_by
	FROM reservations r
	LEFT JOIN checkin_tokens t ON t.reservation_id = r.id`

// overlapCondition selects slot-holding rows for a resource and date whose
// [start_time, end_time) intersects [$3, $4).
const overlapCondition = `
	resource_id = $1
	AND reservation_date = $2::date
	AND start_time < $4::time
	AND $3::time < end_time
	AND status = ANY($5)`

type reservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

func statusArray(statuses []domain.ReservationStatus) any {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}
	return pq.Array(strs)
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	rsv := &domain.Reservation{}
	var (
		tokenID, tokenValue, tokenState sql.NullString
		tokenIssuedAt                   sql.NullTime
		tokenConsumedAt                 *time.Time
		tokenConsumedBy                 *string
	)
	err := row.Scan(
		&rsv.ID, &rsv.BookingCode, &rsv.ResourceID,
		&rsv.Requester.Name, &rsv.Requester.Contact, &rsv.Requester.Category,
		&rsv.Date, &rsv.StartTime, &rsv.EndTime,
		&rsv.GuestCount, &rsv.PricingRule, &rsv.TotalAmountCents, &rsv.Status, &rsv.Remarks,
		&rsv.PaymentStatus, &rsv.PaymentMethod, &rsv.PaymentReference, &rsv.PaidAt, &rsv.PaymentDueAt,
		&rsv.CheckedInAt, &rsv.CheckedInBy,
		&rsv.ReviewedBy, &rsv.ReviewedAt, &rsv.ApprovedBy, &rsv.ApprovedAt,
		&rsv.RejectedBy, &rsv.RejectedAt, &rsv.RejectionReason,
		&rsv.CancelledBy, &rsv.CancelledAt, &rsv.CancelReason,
		&rsv.CreatedAt, &rsv.UpdatedAt,
		&tokenID, &tokenValue, &tokenState, &tokenIssuedAt, &tokenConsumedAt, &tokenConsumedBy,
	)
	if err != nil {
		return nil, err
	}
	if tokenID.Valid {
		rsv.CheckinToken = &domain.CheckinToken{
			ID:            tokenID.String,
			ReservationID: rsv.ID,
			Value:         tokenValue.String,
			State:         domain.TokenState(tokenState.String),
			IssuedAt:      tokenIssuedAt.Time,
			ConsumedAt:    tokenConsumedAt,
			ConsumedBy:    tokenConsumedBy,
		}
	}
	return rsv, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewError(domain.CodeNotFound, format, args...)
	}
	return err
}

func (r *reservationRepository) Create(ctx context.Context, rsv *domain.Reservation, prepare repository.PrepareFunc) error {
	logger.EnterMethod("reservationRepository.Create", "resourceID", rsv.ResourceID, "date", rsv.Date, "start", rsv.StartTime, "end", rsv.EndTime)

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		logger.ExitMethodWithError("reservationRepository.Create", err)
		return err
	}
	defer tx.Rollback()

	// The resource row is read inside the transaction so the active flag,
	// capacity and rates cannot change underneath the insert.
	res, err := scanResource(tx.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1 FOR SHARE`, rsv.ResourceID))
	if err != nil {
		err = notFound(mapError(err), "resource %d not found", rsv.ResourceID)
		logger.ExitMethodWithError("reservationRepository.Create", err)
		return err
	}
	if err := prepare(res, rsv); err != nil {
		logger.ExitMethodWithError("reservationRepository.Create", err)
		return err
	}

	var conflicts int
	err = tx.QueryRowContext(ctx, `SELECT count(*) FROM reservations WHERE`+overlapCondition,
		rsv.ResourceID, rsv.Date, rsv.StartTime, rsv.EndTime, statusArray(domain.SlotHoldingStatuses)).Scan(&conflicts)
	if err != nil {
		err = mapError(err)
		logger.ExitMethodWithError("reservationRepository.Create", err)
		return err
	}
	if conflicts > 0 {
		logger.ExitMethod("reservationRepository.Create", "conflicts", conflicts)
		return domain.NewError(domain.CodeSlotUnavailable, "resource %d is already booked on %s between %s and %s",
			rsv.ResourceID, rsv.Date, rsv.StartTime, rsv.EndTime)
	}

	query := `
		INSERT INTO reservations (
			booking_code, resource_id, requester_name, requester_contact, requester_category,
			reservation_date, start_time, end_time, guest_count, pricing_rule, total_amount_cents,
			status, remarks, payment_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING id`
	err = tx.QueryRowContext(ctx, query,
		rsv.BookingCode, rsv.ResourceID, rsv.Requester.Name, rsv.Requester.Contact, rsv.Requester.Category,
		rsv.Date, rsv.StartTime, rsv.EndTime, rsv.GuestCount, rsv.PricingRule, rsv.TotalAmountCents,
		rsv.Status, rsv.Remarks, rsv.PaymentStatus, rsv.CreatedAt,
	).Scan(&rsv.ID)
	if err != nil {
		err = mapError(err)
		logger.ExitMethodWithError("reservationRepository.Create", err)
		return err
	}

	if err := mapError(tx.Commit()); err != nil {
		logger.ExitMethodWithError("reservationRepository.Create", err)
		return err
	}
	rsv.UpdatedAt = rsv.CreatedAt

	logger.ExitMethod("reservationRepository.Create", "reservationID", rsv.ID, "bookingCode", rsv.BookingCode)
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id int32) (*domain.Reservation, error) {
	rsv, err := scanReservation(r.db.QueryRowContext(ctx, selectReservation+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, notFound(err, "reservation %d not found", id)
	}
	return rsv, nil
}

func (r *reservationRepository) GetByBookingCode(ctx context.Context, code string) (*domain.Reservation, error) {
	rsv, err := scanReservation(r.db.QueryRowContext(ctx, selectReservation+` WHERE r.booking_code = $1`, code))
	if err != nil {
		return nil, notFound(err, "reservation %s not found", code)
	}
	return rsv, nil
}

func (r *reservationRepository) List(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	query := selectReservation + ` WHERE 1=1`
	var args []any
	argIdx := 1
	if filter.ResourceID != 0 {
		query += fmt.Sprintf(" AND r.resource_id = $%d", argIdx)
		args = append(args, filter.ResourceID)
		argIdx++
	}
	if filter.Date != "" {
		query += fmt.Sprintf(" AND r.reservation_date = $%d::date", argIdx)
		args = append(args, filter.Date)
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		query += fmt.Sprintf(" AND r.status = ANY($%d)", argIdx)
		args = append(args, statusArray(filter.Statuses))
	}
	query += " ORDER BY r.reservation_date, r.start_time, r.id"

	logger.DatabaseCall("reservationRepository.List", query, "resourceID", filter.ResourceID, "date", filter.Date)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		rsv, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *rsv)
	}
	return reservations, rows.Err()
}

func (r *reservationRepository) HasConflict(ctx context.Context, resourceID int32, slot domain.Slot) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM reservations WHERE` + overlapCondition + `)`
	logger.DatabaseCall("reservationRepository.HasConflict", query, "resourceID", resourceID, "date", slot.Date)
	err := r.db.QueryRowContext(ctx, query,
		resourceID, slot.Date, slot.Start, slot.End, statusArray(domain.SlotHoldingStatuses)).Scan(&exists)
	return exists, err
}

func updateReservation(ctx context.Context, q queryer, rsv *domain.Reservation) error {
	query := `
		UPDATE reservations SET
			status = $1, remarks = $2,
			payment_status = $3, payment_method = $4, payment_reference = $5, paid_at = $6, payment_due_at = $7,
			checked_in_at = $8, checked_in_by = $9,
			reviewed_by = $10, reviewed_at = $11, approved_by = $12, approved_at = $13,
			rejected_by = $14, rejected_at = $15, rejection_reason = $16,
			cancelled_by = $17, cancelled_at = $18, cancel_reason = $19,
			updated_at = $20
		WHERE id = $21`
	_, err := q.ExecContext(ctx, query,
		rsv.Status, rsv.Remarks,
		rsv.PaymentStatus, rsv.PaymentMethod, rsv.PaymentReference, rsv.PaidAt, rsv.PaymentDueAt,
		rsv.CheckedInAt, rsv.CheckedInBy,
		rsv.ReviewedBy, rsv.ReviewedAt, rsv.ApprovedBy, rsv.ApprovedAt,
		rsv.RejectedBy, rsv.RejectedAt, rsv.RejectionReason,
		rsv.CancelledBy, rsv.CancelledAt, rsv.CancelReason,
		rsv.UpdatedAt, rsv.ID,
	)
	return mapError(err)
}

func (r *reservationRepository) Mutate(ctx context.Context, id int32, fn repository.MutateFunc) (*domain.Reservation, error) {
	logger.EnterMethod("reservationRepository.Mutate", "reservationID", id)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.ExitMethodWithError("reservationRepository.Mutate", err)
		return nil, err
	}
	defer tx.Rollback()

	rsv, err := scanReservation(tx.QueryRowContext(ctx, selectReservation+` WHERE r.id = $1 FOR UPDATE OF r`, id))
	if err != nil {
		err = notFound(mapError(err), "reservation %d not found", id)
		logger.ExitMethodWithError("reservationRepository.Mutate", err)
		return nil, err
	}
	hadToken := rsv.CheckinToken != nil

	if err := fn(rsv); err != nil {
		if errors.Is(err, repository.ErrUnchanged) {
			logger.ExitMethod("reservationRepository.Mutate", "reservationID", id, "changed", false)
			return rsv, nil
		}
		logger.ExitMethodWithError("reservationRepository.Mutate", err, "reservationID", id)
		return nil, err
	}

	if err := updateReservation(ctx, tx, rsv); err != nil {
		logger.ExitMethodWithError("reservationRepository.Mutate", err, "reservationID", id)
		return nil, err
	}
	if !hadToken && rsv.CheckinToken != nil {
		t := rsv.CheckinToken
		_, err = tx.ExecContext(ctx,
			`INSERT INTO checkin_tokens (id, reservation_id, token, state, issued_at) VALUES ($1, $2, $3, $4, $5)`,
			t.ID, rsv.ID, t.Value, t.State, t.IssuedAt)
		if err != nil {
			err = mapError(err)
			logger.ExitMethodWithError("reservationRepository.Mutate", err, "reservationID", id)
			return nil, err
		}
	}

	if err := mapError(tx.Commit()); err != nil {
		logger.ExitMethodWithError("reservationRepository.Mutate", err, "reservationID", id)
		return nil, err
	}
	logger.ExitMethod("reservationRepository.Mutate", "reservationID", id, "status", rsv.Status)
	return rsv, nil
}

func (r *reservationRepository) ExpireHolds(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	query := `
		UPDATE reservations
		SET status = 'CANCELLED',
		    cancelled_by = $2,
		    cancelled_at = $1,
		    cancel_reason = $3,
		    updated_at = $1
		WHERE status = 'AWAITING_PAYMENT'
		  AND payment_status = 'UNPAID'
		  AND payment_due_at < $1
		RETURNING id, booking_code, resource_id, to_char(reservation_date, 'YYYY-MM-DD'),
		          to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), payment_due_at`

	logger.DatabaseCall("reservationRepository.ExpireHolds", query, "now", now)
	rows, err := r.db.QueryContext(ctx, query, now, domain.HoldExpiryActor, domain.HoldExpiredReason)
	if err != nil {
		logger.DatabaseResult("reservationRepository.ExpireHolds", 0, err)
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Reservation
	for rows.Next() {
		rsv := domain.Reservation{
			Status:        domain.ReservationStatusCancelled,
			PaymentStatus: domain.PaymentStatusUnpaid,
			CancelReason:  domain.HoldExpiredReason,
			CancelledAt:   &now,
			UpdatedAt:     now,
		}
		actor := domain.HoldExpiryActor
		rsv.CancelledBy = &actor
		if err := rows.Scan(&rsv.ID, &rsv.BookingCode, &rsv.ResourceID, &rsv.Date, &rsv.StartTime, &rsv.EndTime, &rsv.PaymentDueAt); err != nil {
			return nil, err
		}
		expired = append(expired, rsv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.DatabaseResult("reservationRepository.ExpireHolds", int64(len(expired)), nil)
	return expired, nil
}

func (r *reservationRepository) ExpireStaleRequests(ctx context.Context, now time.Time, timeout time.Duration) ([]domain.Reservation, error) {
	query := `
		UPDATE reservations
		SET status = 'REJECTED',
		    rejected_by = $2,
		    rejected_at = $1,
		    rejection_reason = $3,
		    updated_at = $1
		WHERE status = 'PENDING_REVIEW'
		  AND created_at < $4
		RETURNING id, booking_code, resource_id, to_char(reservation_date, 'YYYY-MM-DD'),
		          to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), created_at`

	cutoff := now.Add(-timeout)
	logger.DatabaseCall("reservationRepository.ExpireStaleRequests", query, "now", now, "cutoff", cutoff)
	rows, err := r.db.QueryContext(ctx, query, now, domain.HoldExpiryActor, domain.ReviewExpiredReason, cutoff)
	if err != nil {
		logger.DatabaseResult("reservationRepository.ExpireStaleRequests", 0, err)
		return nil, err
	}
	defer rows.Close()

	var expired []domain.Reservation
	for rows.Next() {
		rsv := domain.Reservation{
			Status:          domain.ReservationStatusRejected,
			PaymentStatus:   domain.PaymentStatusUnpaid,
			RejectionReason: domain.ReviewExpiredReason,
			RejectedAt:      &now,
			UpdatedAt:       now,
		}
		actor := domain.HoldExpiryActor
		rsv.RejectedBy = &actor
		if err := rows.Scan(&rsv.ID, &rsv.BookingCode, &rsv.ResourceID, &rsv.Date, &rsv.StartTime, &rsv.EndTime, &rsv.CreatedAt); err != nil {
			return nil, err
		}
		expired = append(expired, rsv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.DatabaseResult("reservationRepository.ExpireStaleRequests", int64(len(expired)), nil)
	return expired, nil
}
