package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Domain events emitted on appointment changes and consumed by the
// notification outbox.
const (
	EventBookingConfirmation      = "booking_confirmation"
	EventBookingReminder          = "booking_reminder"
	EventCancellationConfirmation = "cancellation_confirmation"
	EventReschedulingConfirmation = "rescheduling_confirmation"
)

// TimeLayout is the wire and storage format for slot times of day.
const TimeLayout = "15:04"

// DateLayout is the wire and storage format for appointment dates.
const DateLayout = "2006-01-02"

type Appointment struct {
	ID           uuid.UUID
	PatientName  string
	PatientEmail string
	PatientPhone string
	Date         time.Time // date only, midnight in the clinic timezone
	Time         string    // HH:MM on the slot grid
	Notes        string
	Status       Status
	Token        string // confirmation token, never logged
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	UpdatedAt    time.Time
}

// StartAt returns the appointment's slot start as an instant in loc.
func (a *Appointment) StartAt(loc *time.Location) time.Time {
	t, err := time.Parse(TimeLayout, a.Time)
	if err != nil {
		return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, loc)
	}
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

// DateElapsed reports whether the appointment's calendar date has fully
// passed in loc. Tokens and transitions are invalid once this is true.
func (a *Appointment) DateElapsed(now time.Time, loc *time.Location) bool {
	endOfDay := time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return !now.In(loc).Before(endOfDay)
}
