package http

import (
	"time"

	"parkreserve-backend/internal/domain"
)

type RequesterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Contact  string `json:"contact" validate:"required,max=120"`
	Category string `json:"category" validate:"required,oneof=RESIDENT NON_RESIDENT ORGANIZATION"`
}

type CreateReservationRequest struct {
	ResourceID int32            `json:"resourceId" validate:"required,gt=0"`
	Date       string           `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string           `json:"startTime" validate:"required,datetime=15:04"`
	EndTime    string           `json:"endTime" validate:"required,datetime=15:04"`
	Requester  RequesterRequest `json:"requester"`
	GuestCount int32            `json:"guestCount" validate:"required,gte=1"`
	Remarks    string           `json:"remarks" validate:"omitempty,max=500"`
}

type StatusRequest struct {
	Status  string `json:"status" validate:"required,oneof=PENDING_REVIEW AWAITING_PAYMENT APPROVED CHECKED_IN REJECTED CANCELLED"`
	Actor   string `json:"actor" validate:"required,max=120"`
	Reason  string `json:"reason" validate:"omitempty,max=500"`
	Remarks string `json:"remarks" validate:"omitempty,max=500"`
}

type PaymentRequest struct {
	PaymentStatus  string `json:"paymentStatus" validate:"required,oneof=UNPAID PAID EXEMPTED"`
	Method         string `json:"method" validate:"omitempty,max=40"`
	ProofReference string `json:"proofReference" validate:"omitempty,max=200"`
	Actor          string `json:"actor" validate:"omitempty,max=120"`
}

type CheckinRequest struct {
	Token   string `json:"token" validate:"required"`
	Checker string `json:"checker" validate:"required,max=120"`
}

type AvailabilityRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime   string `json:"endTime" validate:"required,datetime=15:04"`
}

type AvailabilityResponse struct {
	ResourceID int32  `json:"resourceId"`
	Date       string `json:"date"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Available  bool   `json:"available"`
}

type ResourceResponse struct {
	ID              int32  `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Description     string `json:"description,omitempty"`
	Location        string `json:"location,omitempty"`
	Capacity        int32  `json:"capacity"`
	HourlyRateCents int64  `json:"hourlyRateCents"`
	DailyRateCents  int64  `json:"dailyRateCents"`
	Active          bool   `json:"active"`
}

type CheckinTokenResponse struct {
	ID         string     `json:"id"`
	State      string     `json:"state"`
	IssuedAt   time.Time  `json:"issuedAt"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
	ConsumedBy *string    `json:"consumedBy,omitempty"`
}

type RequesterResponse struct {
	Name     string `json:"name"`
	Contact  string `json:"contact"`
	Category string `json:"category"`
}

type ReservationResponse struct {
	ID               int32             `json:"id"`
	BookingCode      string            `json:"bookingCode"`
	ResourceID       int32             `json:"resourceId"`
	Requester        RequesterResponse `json:"requester"`
	Date             string            `json:"date"`
	StartTime        string            `json:"startTime"`
	EndTime          string            `json:"endTime"`
	GuestCount       int32             `json:"guestCount"`
	PricingRule      string            `json:"pricingRule"`
	TotalAmountCents int64             `json:"totalAmountCents"`
	Status           string            `json:"status"`
	Remarks          string            `json:"remarks,omitempty"`

	PaymentStatus    string     `json:"paymentStatus"`
	PaymentMethod    string     `json:"paymentMethod,omitempty"`
	PaymentReference string     `json:"paymentReference,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	PaymentDueAt     *time.Time `json:"paymentDueAt,omitempty"`

	CheckinToken *CheckinTokenResponse `json:"checkinToken,omitempty"`
	CheckedInAt  *time.Time            `json:"checkedInAt,omitempty"`
	CheckedInBy  *string               `json:"checkedInBy,omitempty"`

	ReviewedBy      *string    `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	ApprovedBy      *string    `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectedBy      *string    `json:"rejectedBy,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	CancelledBy     *string    `json:"cancelledBy,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
	CancelReason    string     `json:"cancelReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ErrorResponse struct {
	Code      string `json:"code"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	Integrity bool   `json:"integrity,omitempty"`
}

func MapDomainResourceToResponse(r *domain.Resource) ResourceResponse {
	return ResourceResponse{
		ID:              r.ID,
		Name:            r.Name,
		Type:            string(r.Type),
		Description:     r.Description,
		Location:        r.Location,
		Capacity:        r.Capacity,
		HourlyRateCents: r.HourlyRateCents,
		DailyRateCents:  r.DailyRateCents,
		Active:          r.Active,
	}
}

// MapDomainReservationToResponse never includes the signed token value; it
// is only served through the QR endpoint.
func MapDomainReservationToResponse(r *domain.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID:          r.ID,
		BookingCode: r.BookingCode,
		ResourceID:  r.ResourceID,
		Requester: RequesterResponse{
			Name:     r.Requester.Name,
			Contact:  r.Requester.Contact,
			Category: string(r.Requester.Category),
		},
		Date:             r.Date,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		GuestCount:       r.GuestCount,
		PricingRule:      r.PricingRule,
		TotalAmountCents: r.TotalAmountCents,
		Status:           string(r.Status),
		Remarks:          r.Remarks,
		PaymentStatus:    string(r.PaymentStatus),
		PaymentMethod:    r.PaymentMethod,
		PaymentReference: r.PaymentReference,
		PaidAt:           r.PaidAt,
		PaymentDueAt:     r.PaymentDueAt,
		CheckedInAt:      r.CheckedInAt,
		CheckedInBy:      r.CheckedInBy,
		ReviewedBy:       r.ReviewedBy,
		ReviewedAt:       r.ReviewedAt,
		ApprovedBy:       r.ApprovedBy,
		ApprovedAt:       r.ApprovedAt,
		RejectedBy:       r.RejectedBy,
		RejectedAt:       r.RejectedAt,
		RejectionReason:  r.RejectionReason,
		CancelledBy:      r.CancelledBy,
		CancelledAt:      r.CancelledAt,
		CancelReason:     r.CancelReason,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if t := r.CheckinToken; t != nil {
		resp.CheckinToken = &CheckinTokenResponse{
			ID:         t.ID,
			State:      string(t.State),
			IssuedAt:   t.IssuedAt,
			ConsumedAt: t.ConsumedAt,
			ConsumedBy: t.ConsumedBy,
		}
	}
	return resp
}

func MapDomainReservationsToResponse(list []domain.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(list))
	for i := range list {
		out = append(out, MapDomainReservationToResponse(&list[i]))
	}
	return out
}
