package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"parkreserve-backend/internal/logger"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter registers every REST endpoint on a new mux router
func NewRouter(reservations *ReservationHandler, resources *ResourceHandler, store Pinger) *mux.Router {
	router := mux.NewRouter()
	router.Use(recoverMiddleware, loggingMiddleware)

	router.HandleFunc("/healthz", healthHandler(store)).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/reservations", reservations.Create).Methods("POST")
	api.HandleFunc("/reservations", reservations.List).Methods("GET")
	api.HandleFunc("/reservations/code/{code}", reservations.GetByCode).Methods("GET")
	api.HandleFunc("/reservations/{id:[0-9]+}", reservations.Get).Methods("GET")
	api.HandleFunc("/reservations/{id:[0-9]+}/status", reservations.UpdateStatus).Methods("PUT")
	api.HandleFunc("/reservations/{id:[0-9]+}/payment", reservations.UpdatePayment).Methods("PUT")
	api.HandleFunc("/reservations/{id:[0-9]+}/check-in", reservations.CheckIn).Methods("POST")
	api.HandleFunc("/reservations/{id:[0-9]+}/qr", reservations.QRCode).Methods("GET")
	api.HandleFunc("/checkin/fraud-events", reservations.ListFraudEvents).Methods("GET")

	api.HandleFunc("/resources", resources.List).Methods("GET")
	api.HandleFunc("/resources/{id:[0-9]+}", resources.Get).Methods("GET")
	api.HandleFunc("/resources/{id:[0-9]+}/check-availability", resources.CheckAvailability).Methods("POST")
	api.HandleFunc("/resources/{id:[0-9]+}/schedule", resources.Schedule).Methods("GET")

	return router
}

func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.Warn("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("HTTP handler panicked", "method", r.Method, "path", r.URL.Path, "panic", p)
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{
					Code:     "INTERNAL",
					Category: "internal",
					Message:  "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
