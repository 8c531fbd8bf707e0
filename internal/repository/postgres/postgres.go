package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/repository"
)

type Store struct {
	db *sql.DB
	repository.ResourceRepository
	repository.ReservationRepository
	repository.CheckinRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                    db,
		ResourceRepository:    NewResourceRepository(db),
		ReservationRepository: NewReservationRepository(db),
		CheckinRepository:     NewCheckinRepository(db),
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SQLSTATE codes the store reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeExclusionViolation   = "23P01"
	codeUniqueViolation      = "23505"
)

// mapError turns driver errors into repository and domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", repository.ErrSerialization, pqErr.Message)
	case codeExclusionViolation:
		return domain.NewError(domain.CodeSlotUnavailable, "the requested window overlaps an existing reservation")
	case codeUniqueViolation:
		return domain.NewError(domain.CodeValidation, "duplicate value violates %s", pqErr.Constraint)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
