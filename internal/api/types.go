package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/saraivavision/booking-api/internal/booking"
)

// Machine-readable error codes returned to clients.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeSlotUnavailable    = "SLOT_UNAVAILABLE"
	CodeRateLimit          = "RATE_LIMIT"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeAppointmentExpired = "APPOINTMENT_EXPIRED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Envelope is the uniform response wrapper.
type Envelope struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// AppointmentDTO is the client-facing appointment shape. The confirmation
// token is deliberately absent: it travels only in the notification email.
type AppointmentDTO struct {
	ID          string     `json:"id"`
	PatientName string     `json:"patient_name"`
	Date        string     `json:"appointment_date"`
	Time        string     `json:"appointment_time"`
	Notes       string     `json:"notes,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func toAppointmentDTO(a *booking.Appointment) AppointmentDTO {
	return AppointmentDTO{
		ID:          a.ID.String(),
		PatientName: a.PatientName,
		Date:        a.Date.Format(booking.DateLayout),
		Time:        a.Time,
		Notes:       a.Notes,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		ConfirmedAt: a.ConfirmedAt,
		CancelledAt: a.CancelledAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success:   true,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorDetails(w, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success:   false,
		Timestamp: time.Now().UTC(),
		Error:     &APIError{Code: code, Message: message, Details: details},
	})
}
