package domain

import (
	"time"
)

type ReservationStatus string

const (
	ReservationStatusPendingReview   ReservationStatus = "PENDING_REVIEW"
	ReservationStatusAwaitingPayment ReservationStatus = "AWAITING_PAYMENT"
	ReservationStatusApproved        ReservationStatus = "APPROVED"
	ReservationStatusCheckedIn       ReservationStatus = "CHECKED_IN"
	ReservationStatusRejected        ReservationStatus = "REJECTED"
	ReservationStatusCancelled       ReservationStatus = "CANCELLED"
)

// BlockingStatuses hold a slot and take part in overlap detection.
var BlockingStatuses = []ReservationStatus{
	ReservationStatusAwaitingPayment,
	ReservationStatusApproved,
	ReservationStatusCheckedIn,
}

// SlotHoldingStatuses are checked for overlap when a new request is made. A
// request under review holds its slot too, so that at most one of several
// competing requests can ever reach a blocking status.
var SlotHoldingStatuses = []ReservationStatus{
	ReservationStatusPendingReview,
	ReservationStatusAwaitingPayment,
	ReservationStatusApproved,
	ReservationStatusCheckedIn,
}

func (s ReservationStatus) Blocking() bool {
	return containsStatus(BlockingStatuses, s)
}

func (s ReservationStatus) HoldsSlot() bool {
	return containsStatus(SlotHoldingStatuses, s)
}

func containsStatus(set []ReservationStatus, s ReservationStatus) bool {
	for _, b := range set {
		if s == b {
			return true
		}
	}
	return false
}

func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusRejected || s == ReservationStatusCancelled || s == ReservationStatusCheckedIn
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusPendingReview, ReservationStatusAwaitingPayment, ReservationStatusApproved,
		ReservationStatusCheckedIn, ReservationStatusRejected, ReservationStatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusExempted PaymentStatus = "EXEMPTED"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentStatusUnpaid || p == PaymentStatusPaid || p == PaymentStatusExempted
}

// Settled reports whether the payment allows approval.
func (p PaymentStatus) Settled() bool {
	return p == PaymentStatusPaid || p == PaymentStatusExempted
}

type RequesterCategory string

const (
	RequesterResident     RequesterCategory = "RESIDENT"
	RequesterNonResident  RequesterCategory = "NON_RESIDENT"
	RequesterOrganization RequesterCategory = "ORGANIZATION"
)

func (c RequesterCategory) Valid() bool {
	return c == RequesterResident || c == RequesterNonResident || c == RequesterOrganization
}

type Requester struct {
	Name     string            `json:"name"`
	Contact  string            `json:"contact"`
	Category RequesterCategory `json:"category"`
}

// HoldExpiredReason is recorded when an unpaid hold runs out.
const HoldExpiredReason = "payment window expired"

// HoldExpiryActor is recorded as the canceller of expired holds.
const HoldExpiryActor = "system"

// ReviewExpiredReason is recorded when a request is not reviewed in time.
const ReviewExpiredReason = "review window expired"

type Reservation struct {
	ID               int32             `json:"id"`
	BookingCode      string            `json:"booking_code"`
	ResourceID       int32             `json:"resource_id"`
	Requester        Requester         `json:"requester"`
	Date             string            `json:"date"`
	StartTime        string            `json:"start_time"`
	EndTime          string            `json:"end_time"`
	GuestCount       int32             `json:"guest_count"`
	PricingRule      string            `json:"pricing_rule"`
	TotalAmountCents int64             `json:"total_amount_cents"`
	Status           ReservationStatus `json:"status"`
	Remarks          string            `json:"remarks,omitempty"`

	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentMethod    string        `json:"payment_method,omitempty"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	PaymentDueAt     *time.Time    `json:"payment_due_at,omitempty"`

	CheckinToken *CheckinToken `json:"checkin_token,omitempty"`
	CheckedInAt  *time.Time    `json:"checked_in_at,omitempty"`
	CheckedInBy  *string       `json:"checked_in_by,omitempty"`

	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ApprovedBy      *string    `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      *string    `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CancelledBy     *string    `json:"cancelled_by,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReservationFilter struct {
	ResourceID int32
	Date       string
	Statuses   []ReservationStatus
}

func (r *Reservation) invalid(event string) error {
	return NewError(CodeInvalidTransition, "cannot %s reservation %s in status %s", event, r.BookingCode, r.Status)
}

// Review accepts a pending request and starts the payment hold.
func (r *Reservation) Review(actor string, now time.Time, hold time.Duration) error {
	if r.Status != ReservationStatusPendingReview {
		return r.invalid("review")
	}
	due := now.Add(hold)
	r.Status = ReservationStatusAwaitingPayment
	r.PaymentDueAt = &due
	r.ReviewedBy = &actor
	r.ReviewedAt = &now
	return nil
}

func (r *Reservation) Reject(actor, reason string, now time.Time) error {
	if r.Status != ReservationStatusPendingReview {
		return r.invalid("reject")
	}
	r.Status = ReservationStatusRejected
	r.RejectedBy = &actor
	r.RejectedAt = &now
	r.RejectionReason = reason
	return nil
}

// RecordPayment updates the payment fields only. Approval is still required
// to move the reservation forward.
func (r *Reservation) RecordPayment(status PaymentStatus, method, reference string, now time.Time) error {
	if r.Status != ReservationStatusAwaitingPayment {
		return r.invalid("record payment for")
	}
	if !status.Valid() {
		return NewError(CodeValidation, "unknown payment status %q", status)
	}
	r.PaymentStatus = status
	r.PaymentMethod = method
	r.PaymentReference = reference
	if status.Settled() {
		r.PaidAt = &now
	} else {
		r.PaidAt = nil
	}
	return nil
}

// Approve moves a settled reservation to APPROVED. The caller attaches the
// check-in token afterwards, within the same row lock.
func (r *Reservation) Approve(actor string, now time.Time) error {
	if r.Status != ReservationStatusAwaitingPayment {
		return r.invalid("approve")
	}
	if !r.PaymentStatus.Settled() {
		return NewError(CodePaymentNotConfirmed, "reservation %s has payment status %s", r.BookingCode, r.PaymentStatus)
	}
	r.Status = ReservationStatusApproved
	r.ApprovedBy = &actor
	r.ApprovedAt = &now
	return nil
}

func (r *Reservation) Cancel(actor, reason string, now time.Time) error {
	if r.Status != ReservationStatusAwaitingPayment && r.Status != ReservationStatusApproved {
		return r.invalid("cancel")
	}
	r.Status = ReservationStatusCancelled
	r.CancelledBy = &actor
	r.CancelledAt = &now
	r.CancelReason = reason
	return nil
}

// HoldExpired reports whether the unpaid payment window has run out.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.Status == ReservationStatusAwaitingPayment &&
		r.PaymentStatus == PaymentStatusUnpaid &&
		r.PaymentDueAt != nil &&
		now.After(*r.PaymentDueAt)
}

// ExpireHold cancels the reservation when its hold is due and reports whether
// it did. Calling it again is a no-op.
func (r *Reservation) ExpireHold(now time.Time) bool {
	if !r.HoldExpired(now) {
		return false
	}
	actor := HoldExpiryActor
	r.Status = ReservationStatusCancelled
	r.CancelledBy = &actor
	r.CancelledAt = &now
	r.CancelReason = HoldExpiredReason
	return true
}

// ReviewLapsed reports whether a pending request has waited longer than
// timeout. A zero timeout disables review expiry.
func (r *Reservation) ReviewLapsed(now time.Time, timeout time.Duration) bool {
	return timeout > 0 &&
		r.Status == ReservationStatusPendingReview &&
		now.After(r.CreatedAt.Add(timeout))
}

// ExpireReview rejects a request whose review window has run out, releasing
// its slot, and reports whether it did.
func (r *Reservation) ExpireReview(now time.Time, timeout time.Duration) bool {
	if !r.ReviewLapsed(now, timeout) {
		return false
	}
	actor := HoldExpiryActor
	r.Status = ReservationStatusRejected
	r.RejectedBy = &actor
	r.RejectedAt = &now
	r.RejectionReason = ReviewExpiredReason
	return true
}

// Lapse applies whichever time-based expiry is due.
func (r *Reservation) Lapse(now time.Time, reviewTimeout time.Duration) bool {
	return r.ExpireHold(now) || r.ExpireReview(now, reviewTimeout)
}

// LapseReason returns the recorded reason of a time-based expiry.
func (r *Reservation) LapseReason() string {
	if r.Status == ReservationStatusRejected {
		return r.RejectionReason
	}
	return r.CancelReason
}

// CheckIn records entry. Token consumption is done by the store in the same
// transaction.
func (r *Reservation) CheckIn(checker string, now time.Time) error {
	if r.Status != ReservationStatusApproved {
		return r.invalid("check in")
	}
	r.Status = ReservationStatusCheckedIn
	r.CheckedInAt = &now
	r.CheckedInBy = &checker
	return nil
}

// Conflicts reports whether o holds the same resource and date with an
// overlapping window.
func (r *Reservation) Conflicts(o *Reservation) bool {
	if r.ResourceID != o.ResourceID || r.Date != o.Date || !o.Status.HoldsSlot() {
		return false
	}
	s1, e1, err := ParseWindow(r.StartTime, r.EndTime)
	if err != nil {
		return false
	}
	s2, e2, err := ParseWindow(o.StartTime, o.EndTime)
	if err != nil {
		return false
	}
	return Overlaps(s1, e1, s2, e2)
}
