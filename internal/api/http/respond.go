package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/logger"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

// writePNG writes an uncacheable PNG body
func writePNG(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logger.Warn("Failed to write PNG response", "error", err, "bytes", len(body))
	}
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	if domain.CodeOf(err) == domain.CodeNotFound {
		return http.StatusNotFound
	}
	switch domain.CategoryOf(err) {
	case domain.CategoryValidation, domain.CategoryConflict:
		return http.StatusBadRequest
	case domain.CategoryState, domain.CategoryIntegrity:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	category := domain.CategoryOf(err)
	resp := ErrorResponse{
		Code:      string(domain.CodeOf(err)),
		Category:  string(category),
		Message:   err.Error(),
		Integrity: category == domain.CategoryIntegrity,
	}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Code = "INTERNAL"
		resp.Message = "internal server error"
	}
	writeJSON(w, status, resp)
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// Every failure comes back as a VALIDATION error.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewError(domain.CodeValidation, "malformed request body: %v", err)
	}
	if err := v.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.NewError(domain.CodeValidation, "%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return domain.NewError(domain.CodeValidation, "%s", strings.Join(msgs, "; "))
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseSince reads an optional RFC3339 lower bound. Empty means no bound.
func parseSince(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, domain.NewError(domain.CodeValidation, "invalid since %q, expected RFC3339", v)
	}
	return t, nil
}
