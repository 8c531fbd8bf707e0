package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/service"
)

// ResourceHandler serves the catalog and availability endpoints
type ResourceHandler struct {
	catalogSvc     service.CatalogService
	reservationSvc service.ReservationService
	validate       *validator.Validate
}

func NewResourceHandler(catalogSvc service.CatalogService, reservationSvc service.ReservationService) *ResourceHandler {
	return &ResourceHandler{
		catalogSvc:     catalogSvc,
		reservationSvc: reservationSvc,
		validate:       newValidator(),
	}
}

// List handles GET /api/v1/resources?type=&activeOnly=
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ResourceFilter{Type: domain.ResourceType(strings.ToUpper(q.Get("type")))}
	if v := q.Get("activeOnly"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, domain.NewError(domain.CodeValidation, "invalid activeOnly %q", v))
			return
		}
		filter.ActiveOnly = active
	}

	resources, err := h.catalogSvc.ListResources(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ResourceResponse, 0, len(resources))
	for i := range resources {
		out = append(out, MapDomainResourceToResponse(&resources[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/resources/{id}
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.catalogSvc.GetResource(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MapDomainResourceToResponse(res))
}

// CheckAvailability handles POST /api/v1/resources/{id}/check-availability
func (h *ResourceHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req AvailabilityRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}

	available, err := h.reservationSvc.CheckAvailability(r.Context(), id, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		ResourceID: id,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Available:  available,
	})
}

// Schedule handles GET /api/v1/resources/{id}/schedule?date=
func (h *ResourceHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.reservationSvc.Schedule(r.Context(), id, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MapDomainReservationsToResponse(list))
}
