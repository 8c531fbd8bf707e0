package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/service"
)

const qrSizePixels = 320

// ReservationHandler serves the reservation endpoints
type ReservationHandler struct {
	reservationSvc service.ReservationService
	checkinSvc     service.CheckinService
	validate       *validator.Validate
}

func NewReservationHandler(reservationSvc service.ReservationService, checkinSvc service.CheckinService) *ReservationHandler {
	return &ReservationHandler{
		reservationSvc: reservationSvc,
		checkinSvc:     checkinSvc,
		validate:       newValidator(),
	}
}

func pathID(r *http.Request) (int32, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 32)
	if err != nil || id <= 0 {
		return 0, domain.NewError(domain.CodeValidation, "invalid id %q", mux.Vars(r)["id"])
	}
	return int32(id), nil
}

// Create handles POST /api/v1/reservations
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rsv, err := h.reservationSvc.CreateReservation(r.Context(), service.CreateReservationInput{
		ResourceID: req.ResourceID,
		Requester: domain.Requester{
			Name:     req.Requester.Name,
			Contact:  req.Requester.Contact,
			Category: domain.RequesterCategory(req.Requester.Category),
		},
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		GuestCount: req.GuestCount,
		Remarks:    req.Remarks,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/reservations/"+strconv.Itoa(int(rsv.ID)))
	writeJSON(w, http.StatusCreated, MapDomainReservationToResponse(rsv))
}

// Get handles GET /api/v1/reservations/{id}
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rsv, err := h.reservationSvc.GetReservation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MapDomainReservationToResponse(rsv))
}

// GetByCode handles GET /api/v1/reservations/code/{code}
func (h *ReservationHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	rsv, err := h.reservationSvc.GetReservationByCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MapDomainReservationToResponse(rsv))
}

// List handles GET /api/v1/reservations?resourceId=&date=&status=
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.ReservationFilter
	if v := q.Get("resourceId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 32)
		if err != nil || id <= 0 {
			writeError(w, r, domain.NewError(domain.CodeValidation, "invalid resourceId %q", v))
			return
		}
		filter.ResourceID = int32(id)
	}
	filter.Date = q.Get("date")
	for _, raw := range q["status"] {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				filter.Statuses = append(filter.Statuses, domain.ReservationStatus(strings.ToUpper(st)))
			}
		}
	}

	list, err := h.reservationSvc.ListReservations(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MapDomainReservationsToResponse(list))
}

// UpdateStatus handles PUT /api/v1/reservations/{id}/status
func (h *ReservationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req StatusRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rsv, err := h.reservationSvc.ChangeStatus(r.Context(), id, service.StatusChange{
		Status:  domain.ReservationStatus(req.Status),
		Actor:   req.Actor,
		Reason:  req.Reason,
		Remarks: req.Remarks,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MapDomainReservationToResponse(rsv))
}

// UpdatePayment handles PUT /api/v1/reservations/{id}/payment
func (h *ReservationHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req PaymentRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rsv, err := h.reservationSvc.RecordPayment(r.Context(), id, service.PaymentUpdate{
		Status:    domain.PaymentStatus(req.PaymentStatus),
		Method:    req.Method,
		Reference: req.ProofReference,
		Actor:     req.Actor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MapDomainReservationToResponse(rsv))
}

// CheckIn handles POST /api/v1/reservations/{id}/check-in
func (h *ReservationHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CheckinRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rsv, err := h.checkinSvc.CheckIn(r.Context(), id, req.Token, req.Checker)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MapDomainReservationToResponse(rsv))
}

// QRCode handles GET /api/v1/reservations/{id}/qr. It renders the signed
// check-in token as a PNG, or as JSON with ?format=json.
func (h *ReservationHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rsv, err := h.reservationSvc.GetReservation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rsv.CheckinToken == nil {
		writeError(w, r, domain.NewError(domain.CodeNotFound, "reservation %s has no check-in token", rsv.BookingCode))
		return
	}

	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]string{
			"bookingCode": rsv.BookingCode,
			"token":       rsv.CheckinToken.Value,
		})
		return
	}

	png, err := qrcode.Encode(rsv.CheckinToken.Value, qrcode.Medium, qrSizePixels)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePNG(w, png)
}

// ListFraudEvents handles GET /api/v1/checkin/fraud-events?since=RFC3339
func (h *ReservationHandler) ListFraudEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.checkinSvc.ListFraudEvents(r.Context(), since)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.FraudEvent{}
	}
	writeJSON(w, http.StatusOK, list)
}
