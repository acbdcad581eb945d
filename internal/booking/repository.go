package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already has an active appointment")
)

// Repository contains all DB interactions needed by the booking service.
type Repository interface {
	// Insert persists a new appointment. The partial unique index over
	// (appointment_date, appointment_time) is the authoritative
	// double-booking guard; a violation surfaces as ErrSlotTaken.
	Insert(ctx context.Context, appt *Appointment) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByToken(ctx context.Context, token string) (*Appointment, error)

	// UpdateStatus performs a conditional transition: the row is updated
	// only while its status still equals from. A lost race surfaces as
	// ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Appointment, error)

	// ListBookedTimes returns the HH:MM times with an active (non-cancelled)
	// appointment on date.
	ListBookedTimes(ctx context.Context, date time.Time) ([]string, error)

	// FindOverdue returns pending or confirmed appointments whose date is
	// before cutoff, for the expiry worker.
	FindOverdue(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error)
}
