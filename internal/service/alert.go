package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/logger"
)

func fraudAlertSubject(ev *domain.FraudEvent) string {
	return fmt.Sprintf("[FRAUD] Check-in token reused for %s", ev.BookingCode)
}

func fraudAlertBody(ev *domain.FraudEvent) string {
	firstUsedBy := ev.FirstUsedBy
	if firstUsedBy == "" {
		firstUsedBy = "unknown"
	}
	return fmt.Sprintf("A consumed check-in token was presented again.\n\n"+
		"Booking code: %s\nReservation ID: %d\nToken ID: %s\nPresented by: %s\nFirst used by: %s\nDetected at: %s\n\n"+
		"Please review the gate log for this reservation.",
		ev.BookingCode, ev.ReservationID, ev.TokenID, ev.AttemptedBy, firstUsedBy, ev.DetectedAt.Format("2006-01-02 15:04:05 MST"))
}

func fraudDigestBody(events []domain.FraudEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d check-in token reuse attempt(s) recorded:\n\n", len(events))
	for _, ev := range events {
		fmt.Fprintf(&b, "- %s  %s  token %s  presented by %s\n",
			ev.DetectedAt.Format("2006-01-02 15:04"), ev.BookingCode, ev.TokenID, ev.AttemptedBy)
	}
	return b.String()
}

// sendGridClient is the subset of *sendgrid.Client used for alerts.
type sendGridClient interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type sendGridAlertService struct {
	client        sendGridClient
	fromEmail     string
	fromName      string
	operatorEmail string
}

func NewSendGridAlertService(apiKey, fromEmail, fromName, operatorEmail string) AlertService {
	return &sendGridAlertService{
		client:        sendgrid.NewSendClient(apiKey),
		fromEmail:     fromEmail,
		fromName:      fromName,
		operatorEmail: operatorEmail,
	}
}

func (s *sendGridAlertService) send(subject, plainText string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail("Operations", s.operatorEmail)
	htmlContent := "<pre>" + html.EscapeString(plainText) + "</pre>"
	message := mail.NewSingleEmail(from, subject, recipient, plainText, htmlContent)

	response, err := s.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}

func (s *sendGridAlertService) SendFraudAlert(ctx context.Context, ev *domain.FraudEvent) error {
	err := s.send(fraudAlertSubject(ev), fraudAlertBody(ev))
	logger.ExternalServiceResult("sendgrid", "SendFraudAlert", err, "bookingCode", ev.BookingCode)
	return err
}

func (s *sendGridAlertService) SendFraudDigest(ctx context.Context, events []domain.FraudEvent) error {
	err := s.send(fmt.Sprintf("[FRAUD] Daily check-in reuse digest (%d)", len(events)), fraudDigestBody(events))
	logger.ExternalServiceResult("sendgrid", "SendFraudDigest", err, "count", len(events))
	return err
}

type smtpAlertService struct {
	host          string
	port          int
	username      string
	password      string
	from          string
	operatorEmail string
}

func NewSMTPAlertService(host string, port int, username, password, from, operatorEmail string) AlertService {
	return &smtpAlertService{
		host:          host,
		port:          port,
		username:      username,
		password:      password,
		from:          from,
		operatorEmail: operatorEmail,
	}
}

func (s *smtpAlertService) send(subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.operatorEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.host, s.port, s.username, s.password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email via gomail: %w", err)
	}
	return nil
}

func (s *smtpAlertService) SendFraudAlert(ctx context.Context, ev *domain.FraudEvent) error {
	err := s.send(fraudAlertSubject(ev), fraudAlertBody(ev))
	logger.ExternalServiceResult("smtp", "SendFraudAlert", err, "bookingCode", ev.BookingCode)
	return err
}

func (s *smtpAlertService) SendFraudDigest(ctx context.Context, events []domain.FraudEvent) error {
	err := s.send(fmt.Sprintf("[FRAUD] Daily check-in reuse digest (%d)", len(events)), fraudDigestBody(events))
	logger.ExternalServiceResult("smtp", "SendFraudDigest", err, "count", len(events))
	return err
}

// logAlertService only writes alerts to the log.
type logAlertService struct{}

func NewLogAlertService() AlertService {
	return &logAlertService{}
}

func (s *logAlertService) SendFraudAlert(ctx context.Context, ev *domain.FraudEvent) error {
	logger.Fraud(ctx, "Operator alert", "subject", fraudAlertSubject(ev), "tokenID", ev.TokenID, "attemptedBy", ev.AttemptedBy)
	return nil
}

func (s *logAlertService) SendFraudDigest(ctx context.Context, events []domain.FraudEvent) error {
	logger.WarnContext(ctx, "Fraud digest", "count", len(events))
	return nil
}
