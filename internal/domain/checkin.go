package domain

import "time"

type TokenState string

const (
	TokenStateUnconsumed TokenState = "UNCONSUMED"
	TokenStateConsumed   TokenState = "CONSUMED"
)

// CheckinToken is a single-use capability issued on approval. Consumed tokens
// are kept, never deleted.
type CheckinToken struct {
	ID            string     `json:"id"`
	ReservationID int32      `json:"reservation_id"`
	Value         string     `json:"value"`
	State         TokenState `json:"state"`
	IssuedAt      time.Time  `json:"issued_at"`
	ConsumedAt    *time.Time `json:"consumed_at,omitempty"`
	ConsumedBy    *string    `json:"consumed_by,omitempty"`
}

// FraudEvent records a rejected attempt to reuse a consumed token.
type FraudEvent struct {
	ID            int32     `json:"id"`
	TokenID       string    `json:"token_id"`
	ReservationID int32     `json:"reservation_id"`
	BookingCode   string    `json:"booking_code"`
	AttemptedBy   string    `json:"attempted_by"`
	FirstUsedBy   string    `json:"first_used_by,omitempty"`
	DetectedAt    time.Time `json:"detected_at"`
}
