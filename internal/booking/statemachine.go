package booking

import (
	"errors"
	"time"
)

type Action string

const (
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
)

var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAppointmentExpired = errors.New("appointment date has passed")
	ErrUnknownAction      = errors.New("unknown action")
)

// legalTransitions is the full transition table. Expiry is system-driven;
// confirm and cancel are patient-driven through the confirmation token.
var legalTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
	StatusConfirmed: {
		StatusCancelled: true,
		StatusExpired:   true,
	},
}

func CanTransition(from, to Status) bool {
	return legalTransitions[from][to]
}

// NextStatus resolves the target status for a patient action from the current
// status, or ErrInvalidTransition.
func NextStatus(current Status, action Action) (Status, error) {
	var target Status
	switch action {
	case ActionConfirm:
		target = StatusConfirmed
	case ActionCancel:
		target = StatusCancelled
	default:
		return "", ErrUnknownAction
	}
	if !CanTransition(current, target) {
		return "", ErrInvalidTransition
	}
	return target, nil
}

// Transition resolves a patient action against an appointment. An appointment
// whose date has elapsed cannot be confirmed or cancelled regardless of its
// stored status. The returned event is the domain event to enqueue once the
// transition is persisted.
func Transition(appt *Appointment, action Action, now time.Time, loc *time.Location) (next Status, event string, err error) {
	if appt.DateElapsed(now, loc) {
		return "", "", ErrAppointmentExpired
	}

	next, err = NextStatus(appt.Status, action)
	if err != nil {
		return "", "", err
	}

	switch next {
	case StatusConfirmed:
		event = EventBookingConfirmation
	case StatusCancelled:
		event = EventCancellationConfirmation
	}
	return next, event, nil
}
