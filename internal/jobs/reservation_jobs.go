package jobs

import (
	"context"
	"time"

	"parkreserve-backend/internal/logger"
)

// ExpireHolds cancels unpaid reservations whose payment window has ended and,
// when a review timeout is configured, rejects requests nobody reviewed in
// time. Reads and writes expire both lazily as well, so this job only keeps
// the table tidy and emits expiry events promptly.
func (jr *JobRunner) ExpireHolds() {
	jr.runWithRecovery("ExpireHolds", func() {
		ctx := context.Background()

		count, err := jr.services.Hold.Sweep(ctx)
		if err != nil {
			logger.Error("Failed to expire payment holds", "error", err)
			return
		}

		logger.Info("Expired lapsed reservations", "count", count)
	})
}

// ReportFraudEvents mails operators a digest of token reuse attempts from the
// last 24 hours.
func (jr *JobRunner) ReportFraudEvents() {
	jr.runWithRecovery("ReportFraudEvents", func() {
		ctx := context.Background()
		since := jr.services.Clock().Add(-24 * time.Hour)

		fraudEvents, err := jr.services.Checkin.ListFraudEvents(ctx, since)
		if err != nil {
			logger.Error("Failed to list fraud events", "error", err)
			return
		}
		if len(fraudEvents) == 0 {
			logger.Info("No check-in token reuse in the last 24 hours")
			return
		}

		if err := jr.services.Alert.SendFraudDigest(ctx, fraudEvents); err != nil {
			logger.Error("Failed to send fraud digest", "count", len(fraudEvents), "error", err)
			return
		}

		logger.Info("Fraud digest sent", "count", len(fraudEvents), "since", since)
	})
}
