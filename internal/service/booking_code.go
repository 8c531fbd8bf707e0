package service

import (
	"time"

	"github.com/google/uuid"
)

// Crockford-style alphabet without 0/O and 1/I so codes read well aloud.
const bookingCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBookingCode returns PREFIX-YYYYMMDDHHMMSS-XXXX. Codes are practically
// unique but not secret; the check-in token is the capability.
func NewBookingCode(prefix string, now time.Time) string {
	id := uuid.New()
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = bookingCodeAlphabet[int(id[i])%len(bookingCodeAlphabet)]
	}
	return prefix + "-" + now.Format("20060102150405") + "-" + string(suffix)
}
