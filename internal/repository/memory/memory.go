// Package memory is a process-local store with the same atomicity guarantees
// as the postgres store: every operation runs under one store-wide lock. It
// backs local runs (database.type: memory) and the engine's concurrency tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/repository"
)

type state struct {
	mu           sync.Mutex
	resources    map[int32]domain.Resource
	reservations map[int32]*domain.Reservation
	codes        map[string]int32
	tokens       map[string]*domain.CheckinToken
	fraud        []domain.FraudEvent
	nextID       int32
	nextFraudID  int32
}

type Store struct {
	repository.ResourceRepository
	repository.ReservationRepository
	repository.CheckinRepository
}

func NewStore(resources []domain.Resource) *Store {
	st := &state{
		resources:    make(map[int32]domain.Resource),
		reservations: make(map[int32]*domain.Reservation),
		codes:        make(map[string]int32),
		tokens:       make(map[string]*domain.CheckinToken),
	}
	for _, r := range resources {
		st.resources[r.ID] = r
	}
	return &Store{
		ResourceRepository:    &resourceRepository{st: st},
		ReservationRepository: &reservationRepository{st: st},
		CheckinRepository:     &checkinRepository{st: st},
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func cloneReservation(r *domain.Reservation) *domain.Reservation {
	c := *r
	if r.CheckinToken != nil {
		t := *r.CheckinToken
		c.CheckinToken = &t
	}
	return &c
}

type resourceRepository struct {
	st *state
}

func (r *resourceRepository) GetByID(ctx context.Context, id int32) (*domain.Resource, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	res, ok := r.st.resources[id]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "resource %d not found", id)
	}
	return &res, nil
}

func (r *resourceRepository) List(ctx context.Context, filter domain.ResourceFilter) ([]domain.Resource, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.Resource
	for _, res := range r.st.resources {
		if filter.Matches(&res) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type reservationRepository struct {
	st *state
}

func (r *reservationRepository) conflictLocked(rsv *domain.Reservation) bool {
	for _, other := range r.st.reservations {
		if other.ID != rsv.ID && rsv.Conflicts(other) {
			return true
		}
	}
	return false
}

func (r *reservationRepository) Create(ctx context.Context, rsv *domain.Reservation, prepare repository.PrepareFunc) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	res, ok := r.st.resources[rsv.ResourceID]
	if !ok {
		return domain.NewError(domain.CodeNotFound, "resource %d not found", rsv.ResourceID)
	}
	if err := prepare(&res, rsv); err != nil {
		return err
	}
	if r.conflictLocked(rsv) {
		return domain.NewError(domain.CodeSlotUnavailable, "resource %d is already booked on %s between %s and %s",
			rsv.ResourceID, rsv.Date, rsv.StartTime, rsv.EndTime)
	}
	if _, dup := r.st.codes[rsv.BookingCode]; dup {
		return domain.NewError(domain.CodeValidation, "booking code %s already exists", rsv.BookingCode)
	}
	r.st.nextID++
	rsv.ID = r.st.nextID
	rsv.UpdatedAt = rsv.CreatedAt
	r.st.reservations[rsv.ID] = cloneReservation(rsv)
	r.st.codes[rsv.BookingCode] = rsv.ID
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id int32) (*domain.Reservation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	rsv, ok := r.st.reservations[id]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "reservation %d not found", id)
	}
	return cloneReservation(rsv), nil
}

func (r *reservationRepository) GetByBookingCode(ctx context.Context, code string) (*domain.Reservation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	id, ok := r.st.codes[code]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "reservation %s not found", code)
	}
	return cloneReservation(r.st.reservations[id]), nil
}

func (r *reservationRepository) List(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.Reservation
	for _, rsv := range r.st.reservations {
		if filter.ResourceID != 0 && rsv.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Date != "" && rsv.Date != filter.Date {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, rsv.Status) {
			continue
		}
		out = append(out, *cloneReservation(rsv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func containsStatus(set []domain.ReservationStatus, s domain.ReservationStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func (r *reservationRepository) HasConflict(ctx context.Context, resourceID int32, slot domain.Slot) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	candidate := &domain.Reservation{ResourceID: resourceID, Date: slot.Date, StartTime: slot.Start, EndTime: slot.End}
	return r.conflictLocked(candidate), nil
}

func (r *reservationRepository) Mutate(ctx context.Context, id int32, fn repository.MutateFunc) (*domain.Reservation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	stored, ok := r.st.reservations[id]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "reservation %d not found", id)
	}
	work := cloneReservation(stored)
	if err := fn(work); err != nil {
		if errors.Is(err, repository.ErrUnchanged) {
			return cloneReservation(stored), nil
		}
		return nil, err
	}
	if stored.CheckinToken == nil && work.CheckinToken != nil {
		t := *work.CheckinToken
		t.ReservationID = work.ID
		r.st.tokens[t.ID] = &t
	}
	r.st.reservations[id] = cloneReservation(work)
	return work, nil
}

func (r *reservationRepository) ExpireHolds(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var expired []domain.Reservation
	for _, rsv := range r.st.reservations {
		if rsv.ExpireHold(now) {
			rsv.UpdatedAt = now
			expired = append(expired, *cloneReservation(rsv))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

func (r *reservationRepository) ExpireStaleRequests(ctx context.Context, now time.Time, timeout time.Duration) ([]domain.Reservation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var expired []domain.Reservation
	for _, rsv := range r.st.reservations {
		if rsv.ExpireReview(now, timeout) {
			rsv.UpdatedAt = now
			expired = append(expired, *cloneReservation(rsv))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

type checkinRepository struct {
	st *state
}

func (r *checkinRepository) GetToken(ctx context.Context, tokenID string) (*domain.CheckinToken, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.tokens[tokenID]
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "check-in token %s not found", tokenID)
	}
	c := *t
	return &c, nil
}

func (r *checkinRepository) Consume(ctx context.Context, tokenID, bookingCode, checker string, now time.Time) (*domain.Reservation, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	t, ok := r.st.tokens[tokenID]
	if !ok {
		return nil, domain.NewError(domain.CodeInvalidToken, "check-in token is not recognised")
	}
	stored := r.st.reservations[t.ReservationID]
	if stored == nil || stored.BookingCode != bookingCode {
		return nil, domain.NewError(domain.CodeInvalidToken, "check-in token is not recognised")
	}
	if t.State == domain.TokenStateConsumed {
		return cloneReservation(stored), domain.NewError(domain.CodeTokenAlreadyUsed, "check-in token for %s was already used", bookingCode)
	}

	work := cloneReservation(stored)
	if err := work.CheckIn(checker, now); err != nil {
		return nil, err
	}
	work.UpdatedAt = now
	t.State = domain.TokenStateConsumed
	t.ConsumedAt = &now
	t.ConsumedBy = &checker
	tc := *t
	work.CheckinToken = &tc
	r.st.reservations[work.ID] = cloneReservation(work)
	return work, nil
}

func (r *checkinRepository) RecordFraudEvent(ctx context.Context, ev *domain.FraudEvent) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.nextFraudID++
	ev.ID = r.st.nextFraudID
	r.st.fraud = append(r.st.fraud, *ev)
	return nil
}

func (r *checkinRepository) ListFraudEvents(ctx context.Context, since time.Time) ([]domain.FraudEvent, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.FraudEvent
	for i := len(r.st.fraud) - 1; i >= 0; i-- {
		if !r.st.fraud[i].DetectedAt.Before(since) {
			out = append(out, r.st.fraud[i])
		}
	}
	return out, nil
}
