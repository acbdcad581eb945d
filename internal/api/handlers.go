package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/saraivavision/booking-api/internal/booking"
)

// BookingService is the orchestrator surface the handlers depend on.
type BookingService interface {
	CreateAppointment(ctx context.Context, input booking.BookingInput, clientKey string) (*booking.Appointment, error)
	TransitionAppointment(ctx context.Context, token string, action booking.Action) (*booking.Appointment, error)
	AppointmentByToken(ctx context.Context, token string) (*booking.Appointment, error)
	Availability(ctx context.Context, from time.Time, days int) (map[string][]booking.SlotAvailability, error)
}

func createAppointmentHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input booking.BookingInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationError, "could not parse JSON body")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), input, clientIP(r))
		if err != nil {
			handleBookingError(w, r, err, log)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"id":               appt.ID.String(),
			"appointment":      toAppointmentDTO(appt),
			"confirmationSent": true,
		})
	}
}

func availabilityHandler(svc BookingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var from time.Time
		days := 1

		if dateStr := r.URL.Query().Get("date"); dateStr != "" {
			parsed, err := time.ParseInLocation(booking.DateLayout, dateStr, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, CodeValidationError, "date must match format 2006-01-02")
				return
			}
			from = parsed
		} else {
			now := time.Now().In(loc)
			from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
			days = 7
			if daysStr := r.URL.Query().Get("days"); daysStr != "" {
				n, err := strconv.Atoi(daysStr)
				if err != nil || n < 1 || n > 30 {
					writeError(w, http.StatusBadRequest, CodeValidationError, "days must be an integer between 1 and 30")
					return
				}
				days = n
			}
		}

		availability, err := svc.Availability(r.Context(), from, days)
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternalError, "could not load availability")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"availability": availability})
	}
}

func confirmGetHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.AppointmentByToken(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			handleBookingError(w, r, err, log)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"appointment": toAppointmentDTO(appt)})
	}
}

type confirmRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
}

func confirmPostHandler(svc BookingService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationError, "could not parse JSON body")
			return
		}

		action := booking.Action(req.Action)
		if action != booking.ActionConfirm && action != booking.ActionCancel {
			writeError(w, http.StatusBadRequest, CodeValidationError, "action must be confirm or cancel")
			return
		}

		appt, err := svc.TransitionAppointment(r.Context(), req.Token, action)
		if err != nil {
			handleBookingError(w, r, err, log)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"appointment": toAppointmentDTO(appt)})
	}
}

// handleBookingError maps domain errors onto the API error taxonomy.
// Unexpected errors are logged with correlation context and surfaced as
// INTERNAL_ERROR without leaking internals.
func handleBookingError(w http.ResponseWriter, r *http.Request, err error, log zerolog.Logger) {
	var verr *booking.ValidationError
	var rlerr *booking.RateLimitError

	switch {
	case errors.As(err, &verr):
		writeErrorDetails(w, http.StatusBadRequest, CodeValidationError, "invalid request data", verr.Fields)
	case errors.As(err, &rlerr):
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(rlerr.ResetAt).Seconds())+1))
		writeError(w, http.StatusTooManyRequests, CodeRateLimit, "too many booking attempts, try again later")
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, CodeSlotUnavailable, "the selected time slot is no longer available")
	case errors.Is(err, booking.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, CodeInvalidToken, "confirmation token not recognized")
	case errors.Is(err, booking.ErrTokenExpired), errors.Is(err, booking.ErrAppointmentExpired):
		writeError(w, http.StatusBadRequest, CodeAppointmentExpired, "the appointment date has passed")
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrUnknownAction):
		writeError(w, http.StatusConflict, CodeInvalidTransition, "the appointment status does not allow this action")
	default:
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("unhandled booking error")
		writeError(w, http.StatusInternalServerError, CodeInternalError, "an unexpected error occurred")
	}
}
