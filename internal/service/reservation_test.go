package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/events"
	"parkreserve-backend/internal/repository"
)

// approved drives a fresh request through review, payment and approval.
func approved(t *testing.T, f *fixture, in CreateReservationInput) *domain.Reservation {
	t.Helper()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, in)
	require.NoError(t, err)
	_, err = f.reservation.Review(ctx, r.ID, "clerk")
	require.NoError(t, err)
	_, err = f.reservation.RecordPayment(ctx, r.ID, PaymentUpdate{Status: domain.PaymentStatusPaid, Method: "CASH", Reference: "OR-1"})
	require.NoError(t, err)
	r, err = f.reservation.Approve(ctx, r.ID, "manager")
	require.NoError(t, err)
	return r
}

func TestCreateReservation_Success(t *testing.T) {
	f := newFixture()
	r, err := f.reservation.CreateReservation(context.Background(), booking(1, "09:00", "12:00"))
	require.NoError(t, err)

	assert.NotZero(t, r.ID)
	assert.Regexp(t, regexp.MustCompile(`^RSV-20250220090000-[A-Z2-9]{4}$`), r.BookingCode)
	assert.Equal(t, domain.ReservationStatusPendingReview, r.Status)
	assert.Equal(t, domain.PaymentStatusUnpaid, r.PaymentStatus)
	assert.Equal(t, int64(900000), r.TotalAmountCents)
	assert.Equal(t, "daily", r.PricingRule)
	assert.Equal(t, 1, f.publisher.count(events.ReservationCreated))
}

func TestCreateReservation_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateReservationInput)
		code   domain.ErrorCode
	}{
		{"end before start", func(in *CreateReservationInput) { in.StartTime, in.EndTime = "12:00", "09:00" }, domain.CodeValidation},
		{"bad date", func(in *CreateReservationInput) { in.Date = "2025-13-01" }, domain.CodeValidation},
		{"missing name", func(in *CreateReservationInput) { in.Requester.Name = " " }, domain.CodeValidation},
		{"bad category", func(in *CreateReservationInput) { in.Requester.Category = "VIP" }, domain.CodeValidation},
		{"no guests", func(in *CreateReservationInput) { in.GuestCount = 0 }, domain.CodeValidation},
		{"over capacity", func(in *CreateReservationInput) { in.GuestCount = 151 }, domain.CodeValidation},
		{"in the past", func(in *CreateReservationInput) { in.Date = "2025-02-19" }, domain.CodeValidation},
		{"unknown resource", func(in *CreateReservationInput) { in.ResourceID = 99 }, domain.CodeNotFound},
		{"inactive resource", func(in *CreateReservationInput) { in.ResourceID = 3 }, domain.CodeResourceInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := booking(1, "09:00", "12:00")
			tt.mutate(&in)
			r, err := f.reservation.CreateReservation(context.Background(), in)
			assert.Nil(t, r)
			assert.Equal(t, tt.code, domain.CodeOf(err), "got %v", err)
		})
	}
}

func TestCreateReservation_OverlapScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	approved(t, f, booking(1, "09:00", "12:00"))

	_, err := f.reservation.CreateReservation(ctx, booking(1, "11:00", "13:00"))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable))

	r, err := f.reservation.CreateReservation(ctx, booking(1, "12:00", "14:00"))
	require.NoError(t, err)
	assert.Equal(t, "12:00", r.StartTime)

	in := booking(2, "11:00", "13:00")
	in.GuestCount = 4
	_, err = f.reservation.CreateReservation(ctx, in)
	assert.NoError(t, err, "other resources are unaffected")
}

func TestCreateReservation_ConcurrentRequestsYieldOneWinner(t *testing.T) {
	f := newFixture()
	const n = 25

	var wg sync.WaitGroup
	var ok, unavailable int32
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.reservation.CreateReservation(context.Background(), booking(1, "10:00", "11:00"))
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, domain.ErrSlotUnavailable):
				atomic.AddInt32(&unavailable, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(n-1), unavailable)
}

type flakyReservationRepo struct {
	repository.ReservationRepository
	failures int32
	calls    int32
}

func (r *flakyReservationRepo) Create(ctx context.Context, rsv *domain.Reservation, prepare repository.PrepareFunc) error {
	if atomic.AddInt32(&r.calls, 1) <= r.failures {
		return repository.ErrSerialization
	}
	return r.ReservationRepository.Create(ctx, rsv, prepare)
}

func TestCreateReservation_RetriesSerializationFailureOnce(t *testing.T) {
	var flaky *flakyReservationRepo
	f := newFixtureWithRepo(func(inner repository.ReservationRepository) repository.ReservationRepository {
		flaky = &flakyReservationRepo{ReservationRepository: inner, failures: 1}
		return flaky
	})
	r, err := f.reservation.CreateReservation(context.Background(), booking(1, "09:00", "12:00"))
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, int32(2), flaky.calls)

	flaky.failures, flaky.calls = 2, 0
	_, err = f.reservation.CreateReservation(context.Background(), booking(1, "13:00", "14:00"))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable))
	assert.Equal(t, int32(2), flaky.calls)
}

func TestLifecycle_ApproveIssuesToken(t *testing.T) {
	f := newFixture()
	r := approved(t, f, booking(1, "09:00", "12:00"))

	assert.Equal(t, domain.ReservationStatusApproved, r.Status)
	require.NotNil(t, r.CheckinToken)
	assert.Equal(t, domain.TokenStateUnconsumed, r.CheckinToken.State)

	claims, err := f.issuer.Verify(r.CheckinToken.Value)
	require.NoError(t, err)
	assert.Equal(t, r.BookingCode, claims.BookingCode)
	assert.Equal(t, r.CheckinToken.ID, claims.ID)

	for _, typ := range []string{events.ReservationCreated, events.ReservationReviewed, events.ReservationPaymentRecorded, events.ReservationApproved} {
		assert.Equal(t, 1, f.publisher.count(typ), typ)
	}
}

func TestLifecycle_ApproveRequiresPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)
	_, err = f.reservation.Review(ctx, r.ID, "clerk")
	require.NoError(t, err)

	_, err = f.reservation.Approve(ctx, r.ID, "manager")
	assert.True(t, errors.Is(err, domain.ErrPaymentNotConfirmed))

	got, err := f.reservation.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusAwaitingPayment, got.Status)
	assert.Nil(t, got.CheckinToken)

	_, err = f.reservation.RecordPayment(ctx, r.ID, PaymentUpdate{Status: domain.PaymentStatusExempted, Actor: "treasurer"})
	require.NoError(t, err)
	got, err = f.reservation.Approve(ctx, r.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusApproved, got.Status)
}

func TestLifecycle_ActorRequired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)

	_, err = f.reservation.Review(ctx, r.ID, "")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.reservation.Review(ctx, 999, "clerk")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLifecycle_RejectReleasesSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)

	available, err := f.reservation.CheckAvailability(ctx, 1, "2025-03-01", "10:00", "11:00")
	require.NoError(t, err)
	assert.False(t, available, "pending requests hold their slot")

	rejected, err := f.reservation.Reject(ctx, r.ID, "clerk", "event not permitted")
	require.NoError(t, err)
	assert.Equal(t, "event not permitted", rejected.RejectionReason)

	available, err = f.reservation.CheckAvailability(ctx, 1, "2025-03-01", "10:00", "11:00")
	require.NoError(t, err)
	assert.True(t, available)

	_, err = f.reservation.Approve(ctx, r.ID, "manager")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestHoldExpiry_LazyOnRead(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)
	_, err = f.reservation.Review(ctx, r.ID, "clerk")
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	got, err := f.reservation.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusAwaitingPayment, got.Status)

	f.clock.Advance(time.Second)
	got, err = f.reservation.GetReservationByCode(ctx, r.BookingCode)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, got.Status)
	assert.Equal(t, domain.HoldExpiredReason, got.CancelReason)

	got, err = f.reservation.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, got.Status)
	assert.Equal(t, 1, f.publisher.count(events.ReservationExpired), "expiry happens exactly once")
}

func TestHoldExpiry_TransitionOnLapsedHoldFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)
	_, err = f.reservation.Review(ctx, r.ID, "clerk")
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	_, err = f.reservation.RecordPayment(ctx, r.ID, PaymentUpdate{Status: domain.PaymentStatusPaid, Method: "GCASH"})
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	got, err := f.reservation.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, got.Status)
	assert.Equal(t, domain.PaymentStatusUnpaid, got.PaymentStatus)
	assert.Equal(t, 1, f.publisher.count(events.ReservationExpired))
}

func TestHoldExpiry_ConcurrentReadersExpireOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)
	_, err = f.reservation.Review(ctx, r.ID, "clerk")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Hour)

	var wg sync.WaitGroup
	var fired int32
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if ok, err := f.holds.ExpireIfDue(ctx, r.ID); err == nil && ok {
				atomic.AddInt32(&fired, 1)
			}
		}()
		go func() {
			defer wg.Done()
			n, err := f.holds.Sweep(ctx)
			if err == nil {
				atomic.AddInt32(&fired, int32(n))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fired)
	assert.Equal(t, 1, f.publisher.count(events.ReservationExpired))
}

func TestHoldExpiry_PaidHoldSurvives(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)
	_, err = f.reservation.Review(ctx, r.ID, "clerk")
	require.NoError(t, err)
	_, err = f.reservation.RecordPayment(ctx, r.ID, PaymentUpdate{Status: domain.PaymentStatusPaid, Method: "CASH"})
	require.NoError(t, err)

	f.clock.Advance(72 * time.Hour)
	n, err := f.holds.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.reservation.Approve(ctx, r.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusApproved, got.Status)
}

func TestHoldExpiry_ReleasesSlotForNewRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)
	_, err = f.reservation.Review(ctx, r.ID, "clerk")
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour + time.Second)
	_, err = f.reservation.CreateReservation(ctx, booking(1, "10:00", "11:00"))
	require.NoError(t, err)
}

func TestChangeStatus_Dispatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)

	got, err := f.reservation.ChangeStatus(ctx, r.ID, StatusChange{Status: domain.ReservationStatusAwaitingPayment, Actor: "clerk", Remarks: "documents complete"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusAwaitingPayment, got.Status)
	assert.Equal(t, "documents complete", got.Remarks)

	_, err = f.reservation.ChangeStatus(ctx, r.ID, StatusChange{Status: domain.ReservationStatusApproved, Actor: "manager"})
	assert.True(t, errors.Is(err, domain.ErrPaymentNotConfirmed))

	_, err = f.reservation.ChangeStatus(ctx, r.ID, StatusChange{Status: domain.ReservationStatusCheckedIn, Actor: "gate"})
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = f.reservation.ChangeStatus(ctx, r.ID, StatusChange{Status: domain.ReservationStatusPendingReview, Actor: "clerk"})
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = f.reservation.ChangeStatus(ctx, r.ID, StatusChange{Status: "ARCHIVED", Actor: "clerk"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	got, err = f.reservation.ChangeStatus(ctx, r.ID, StatusChange{Status: domain.ReservationStatusCancelled, Actor: "requester", Reason: "rain"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, got.Status)
	assert.Equal(t, "rain", got.CancelReason)
}

func TestRecordPayment_DefaultsActor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)

	_, err = f.reservation.RecordPayment(ctx, r.ID, PaymentUpdate{Status: domain.PaymentStatusPaid})
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "payment is only recorded while awaiting payment")

	_, err = f.reservation.RecordPayment(ctx, r.ID, PaymentUpdate{Status: "REFUNDED"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.reservation.Review(ctx, r.ID, "clerk")
	require.NoError(t, err)
	_, err = f.reservation.RecordPayment(ctx, r.ID, PaymentUpdate{Status: domain.PaymentStatusPaid, Method: "GCASH", Reference: "GC-77"})
	require.NoError(t, err)

	f.publisher.mu.Lock()
	last := f.publisher.events[len(f.publisher.events)-1]
	f.publisher.mu.Unlock()
	assert.Equal(t, events.ReservationPaymentRecorded, last.Type)
	assert.Equal(t, paymentDeskActor, last.Actor)
}

func TestListAndSchedule(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first, err := f.reservation.CreateReservation(ctx, booking(1, "13:00", "15:00"))
	require.NoError(t, err)
	second, err := f.reservation.CreateReservation(ctx, booking(1, "08:00", "10:00"))
	require.NoError(t, err)
	_, err = f.reservation.Reject(ctx, first.ID, "clerk", "duplicate")
	require.NoError(t, err)

	all, err := f.reservation.ListReservations(ctx, domain.ReservationFilter{ResourceID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	schedule, err := f.reservation.Schedule(ctx, 1, "2025-03-01")
	require.NoError(t, err)
	require.Len(t, schedule, 1)
	assert.Equal(t, second.ID, schedule[0].ID)

	_, err = f.reservation.Schedule(ctx, 99, "2025-03-01")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = f.reservation.Schedule(ctx, 1, "March 1")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = f.reservation.ListReservations(ctx, domain.ReservationFilter{Statuses: []domain.ReservationStatus{"LOST"}})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	approved(t, f, booking(1, "09:00", "12:00"))

	tests := []struct {
		resourceID int32
		start, end string
		want       bool
	}{
		{1, "11:00", "13:00", false},
		{1, "12:00", "14:00", true},
		{1, "07:00", "09:00", true},
		{3, "09:00", "10:00", false},
	}
	for _, tt := range tests {
		got, err := f.reservation.CheckAvailability(ctx, tt.resourceID, "2025-03-01", tt.start, tt.end)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%d %s-%s", tt.resourceID, tt.start, tt.end)
	}

	_, err := f.reservation.CheckAvailability(ctx, 1, "2025-03-01", "14:00", "13:00")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = f.reservation.CheckAvailability(ctx, 42, "2025-03-01", "09:00", "10:00")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestReviewTimeout_ReleasesUnreviewedRequest(t *testing.T) {
	f := newFixtureWithReviewTimeout(48 * time.Hour)
	ctx := context.Background()
	stale, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	_, err = f.reservation.CreateReservation(ctx, booking(1, "10:00", "11:00"))
	assert.True(t, errors.Is(err, domain.ErrSlotUnavailable), "still held at the deadline")

	f.clock.Advance(time.Second)
	_, err = f.reservation.CreateReservation(ctx, booking(1, "10:00", "11:00"))
	require.NoError(t, err)

	got, err := f.reservation.GetReservation(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusRejected, got.Status)
	assert.Equal(t, domain.ReviewExpiredReason, got.RejectionReason)
	assert.Equal(t, 1, f.publisher.count(events.ReservationRejected))
}

func TestReviewTimeout_TransitionOnLapsedRequestFails(t *testing.T) {
	f := newFixtureWithReviewTimeout(48 * time.Hour)
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)

	f.clock.Advance(48*time.Hour + time.Second)
	_, err = f.reservation.Review(ctx, r.ID, "clerk")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	got, err := f.reservation.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusRejected, got.Status)
}

func TestReviewTimeout_DisabledByDefault(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.reservation.CreateReservation(ctx, booking(1, "09:00", "12:00"))
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)
	n, err := f.holds.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.reservation.Review(ctx, r.ID, "clerk")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusAwaitingPayment, got.Status)
}
