package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"parkreserve-backend/internal/domain"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func sampleReservation() *domain.Reservation {
	return &domain.Reservation{
		ID:            3,
		BookingCode:   "RSV-20250301090000-ZX9Q",
		ResourceID:    1,
		Date:          "2025-03-01",
		StartTime:     "09:00",
		EndTime:       "12:00",
		Status:        domain.ReservationStatusApproved,
		PaymentStatus: domain.PaymentStatusPaid,
	}
}

func TestNewEvent(t *testing.T) {
	now := time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC)
	ev := NewEvent(ReservationApproved, sampleReservation(), "clerk.ana", "", now)

	assert.Equal(t, ReservationApproved, ev.Type)
	assert.Equal(t, int32(3), ev.ReservationID)
	assert.Equal(t, "RSV-20250301090000-ZX9Q", ev.BookingCode)
	assert.Equal(t, domain.ReservationStatusApproved, ev.Status)
	assert.Equal(t, "clerk.ana", ev.Actor)
	assert.Equal(t, now, ev.OccurredAt)
}

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := new(mockChannel)
	p := newAMQPPublisherWithChannel(ch, "reservations")
	ev := NewEvent(ReservationCancelled, sampleReservation(), "system", domain.HoldExpiredReason, time.Now())

	ch.On("Publish", "reservations", ReservationCancelled, false, false, mock.MatchedBy(func(msg amqp.Publishing) bool {
		var decoded Event
		if err := json.Unmarshal(msg.Body, &decoded); err != nil {
			return false
		}
		return msg.ContentType == "application/json" &&
			msg.DeliveryMode == amqp.Persistent &&
			msg.MessageId != "" &&
			decoded.BookingCode == ev.BookingCode &&
			decoded.Reason == domain.HoldExpiredReason
	})).Return(nil)

	require.NoError(t, p.Publish(context.Background(), ev))
	ch.AssertExpectations(t)
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	ch := new(mockChannel)
	p := newAMQPPublisherWithChannel(ch, "reservations")
	ch.On("Publish", "reservations", ReservationCreated, false, false, mock.Anything).Return(errors.New("channel closed"))

	err := p.Publish(context.Background(), NewEvent(ReservationCreated, sampleReservation(), "", "", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestAMQPPublisher_Close(t *testing.T) {
	ch := new(mockChannel)
	ch.On("Close").Return(nil)
	p := newAMQPPublisherWithChannel(ch, "reservations")

	assert.NoError(t, p.Close())
	ch.AssertExpectations(t)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher()
	assert.NoError(t, p.Publish(context.Background(), NewEvent(ReservationCreated, sampleReservation(), "", "", time.Now())))
	assert.NoError(t, p.Close())
}
