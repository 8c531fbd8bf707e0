package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"parkreserve-backend/internal/domain"
)

type MockSendGridClient struct {
	mock.Mock
}

func (m *MockSendGridClient) Send(email *mail.SGMailV3) (*rest.Response, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rest.Response), args.Error(1)
}

func fraudEvent() *domain.FraudEvent {
	return &domain.FraudEvent{
		TokenID:       "tok-1",
		ReservationID: 7,
		BookingCode:   "RSV-20250220090000-ABCD",
		AttemptedBy:   "gate-b",
		DetectedAt:    time.Date(2025, 3, 1, 8, 55, 0, 0, time.UTC),
	}
}

func TestSendGridAlertService_SendFraudAlert(t *testing.T) {
	client := new(MockSendGridClient)
	svc := &sendGridAlertService{client: client, fromEmail: "noreply@parks.example", fromName: "Park Reservations", operatorEmail: "ops@parks.example"}

	client.On("Send", mock.MatchedBy(func(m *mail.SGMailV3) bool {
		return strings.Contains(m.Subject, "RSV-20250220090000-ABCD") &&
			m.Personalizations[0].To[0].Address == "ops@parks.example" &&
			len(m.Content) == 2
	})).Return(&rest.Response{StatusCode: 202}, nil)

	err := svc.SendFraudAlert(context.Background(), fraudEvent())
	assert.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSendGridAlertService_Errors(t *testing.T) {
	client := new(MockSendGridClient)
	svc := &sendGridAlertService{client: client, fromEmail: "noreply@parks.example", operatorEmail: "ops@parks.example"}

	client.On("Send", mock.Anything).Return(&rest.Response{StatusCode: 401, Body: "unauthorized"}, nil).Once()
	err := svc.SendFraudAlert(context.Background(), fraudEvent())
	assert.ErrorContains(t, err, "status 401")

	client.On("Send", mock.Anything).Return(nil, errors.New("dial tcp: timeout")).Once()
	err = svc.SendFraudDigest(context.Background(), []domain.FraudEvent{*fraudEvent()})
	assert.ErrorContains(t, err, "timeout")
	client.AssertExpectations(t)
}

func TestFraudMessageBodies(t *testing.T) {
	ev := fraudEvent()
	assert.Contains(t, fraudAlertBody(ev), "Presented by: gate-b")
	assert.Contains(t, fraudAlertBody(ev), "2025-03-01 08:55:00 UTC")
	assert.Contains(t, fraudAlertBody(ev), "First used by: unknown")
	ev.FirstUsedBy = "gate-a"
	assert.Contains(t, fraudAlertBody(ev), "First used by: gate-a")

	digest := fraudDigestBody([]domain.FraudEvent{*ev, *ev})
	assert.True(t, strings.HasPrefix(digest, "2 check-in token reuse attempt(s)"))
	assert.Equal(t, 2, strings.Count(digest, "tok-1"))
}

func TestLogAlertService(t *testing.T) {
	svc := NewLogAlertService()
	assert.NoError(t, svc.SendFraudAlert(context.Background(), fraudEvent()))
	assert.NoError(t, svc.SendFraudDigest(context.Background(), nil))
}
