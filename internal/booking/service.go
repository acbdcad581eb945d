package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saraivavision/booking-api/internal/ratelimit"
)

var ErrSlotUnavailable = errors.New("slot unavailable")

// RateLimitError reports a rejected booking attempt with the window reset.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return "booking rate limit exceeded"
}

// RateLimiter caps booking attempts per client key.
type RateLimiter interface {
	Check(ctx context.Context, key string) (ratelimit.Result, error)
}

// NotificationEnqueuer queues notification jobs for an appointment event.
// Implemented by the outbox repository.
type NotificationEnqueuer interface {
	Enqueue(ctx context.Context, appointmentID uuid.UUID, eventType string, scheduledAt time.Time) ([]uuid.UUID, error)
}

// reminderLead is how far ahead of the slot the reminder goes out.
const reminderLead = 24 * time.Hour

// Service orchestrates the booking flow: validation, rate limiting,
// availability, persistence, token issuance and notification enqueueing.
type Service struct {
	repo     Repository
	avail    *AvailabilityStore
	tokens   *TokenService
	limiter  RateLimiter
	outbox   NotificationEnqueuer
	schedule WorkSchedule
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(
	repo Repository,
	avail *AvailabilityStore,
	tokens *TokenService,
	limiter RateLimiter,
	outbox NotificationEnqueuer,
	schedule WorkSchedule,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		avail:    avail,
		tokens:   tokens,
		limiter:  limiter,
		outbox:   outbox,
		schedule: schedule,
		validate: NewValidator(),
		log:      log,
		now:      time.Now,
	}
}

// CreateAppointment books a slot for a patient. Either the appointment is
// fully created (row, token, queued notifications) or nothing is persisted.
func (s *Service) CreateAppointment(ctx context.Context, input BookingInput, clientKey string) (*Appointment, error) {
	date, verr := s.validateInput(input)
	if verr != nil {
		return nil, verr
	}

	res, err := s.limiter.Check(ctx, clientKey)
	if err != nil {
		// Best effort: a limiter outage must not block bookings.
		s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
	}
	if !res.Allowed {
		return nil, &RateLimitError{ResetAt: res.ResetAt}
	}

	// Optimistic fast path. The insert below is the authoritative check.
	free, err := s.avail.IsAvailable(ctx, date, input.Time)
	if err != nil {
		return nil, fmt.Errorf("availability check: %w", err)
	}
	if !free {
		return nil, ErrSlotUnavailable
	}

	token, err := s.tokens.Issue()
	if err != nil {
		return nil, fmt.Errorf("issue confirmation token: %w", err)
	}

	appt := &Appointment{
		ID:           uuid.New(),
		PatientName:  input.PatientName,
		PatientEmail: input.PatientEmail,
		PatientPhone: input.PatientPhone,
		Date:         date,
		Time:         input.Time,
		Notes:        input.Notes,
		Status:       StatusPending,
		Token:        token,
	}

	created, err := s.repo.Insert(ctx, appt)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("date", created.Date.Format(DateLayout)).
		Str("time", created.Time).
		Msg("appointment created")

	s.enqueueEvent(ctx, created.ID, EventBookingConfirmation, s.now())
	s.enqueueReminder(ctx, created)

	return created, nil
}

// TransitionAppointment applies a confirm or cancel action identified by a
// confirmation token.
func (s *Service) TransitionAppointment(ctx context.Context, token string, action Action) (*Appointment, error) {
	appt, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	next, event, err := Transition(appt, action, s.now(), s.schedule.Location)
	if err != nil {
		return nil, err
	}

	// Conditional update: if a concurrent transition won, the row no longer
	// matches the expected status and the losing request fails.
	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, next, s.now())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("status", string(updated.Status)).
		Msg("appointment transitioned")

	if event != "" {
		s.enqueueEvent(ctx, updated.ID, event, s.now())
	}

	return updated, nil
}

// AppointmentByToken resolves a confirmation token without changing state,
// for the confirmation page.
func (s *Service) AppointmentByToken(ctx context.Context, token string) (*Appointment, error) {
	return s.tokens.Validate(ctx, token)
}

// Availability returns per-day slot availability starting at from, keyed by
// date. Days without bookable slots are omitted.
func (s *Service) Availability(ctx context.Context, from time.Time, days int) (map[string][]SlotAvailability, error) {
	if days <= 0 {
		days = 1
	}
	if days > 30 {
		days = 30
	}

	result := make(map[string][]SlotAvailability)
	for i := 0; i < days; i++ {
		date := from.AddDate(0, 0, i)
		slots, err := s.avail.DayAvailability(ctx, date)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			result[date.Format(DateLayout)] = slots
		}
	}
	return result, nil
}

// ExpireOverdue terminalizes pending and confirmed appointments whose date
// has passed. Run periodically by the expiry worker.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	localNow := s.now().In(s.schedule.Location)
	cutoff := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, s.schedule.Location)

	overdue, err := s.repo.FindOverdue(ctx, cutoff, 500)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	expired := 0
	for _, appt := range overdue {
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, StatusExpired, s.now()); err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue // raced with a patient transition
			}
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("expire appointment")
			continue
		}
		expired++
	}

	return expired, nil
}

// validateInput runs shape validation plus calendar checks, reporting every
// invalid field at once.
func (s *Service) validateInput(input BookingInput) (time.Time, *ValidationError) {
	verr := &ValidationError{}
	if err := s.validate.Struct(input); err != nil {
		verr = collectFieldErrors(err)
	}

	var date time.Time
	if input.Date != "" {
		parsed, err := time.ParseInLocation(DateLayout, input.Date, s.schedule.Location)
		if err == nil {
			date = parsed
			localNow := s.now().In(s.schedule.Location)
			today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, s.schedule.Location)
			switch {
			case date.Before(today):
				verr.add("appointment_date", "must not be in the past")
			case !s.schedule.IsWorkDay(date):
				verr.add("appointment_date", "is not a working day")
			}
		}
	}

	if input.Time != "" && !s.schedule.OnGrid(input.Time) {
		verr.add("appointment_time", "is not a bookable slot time")
	}

	if len(verr.Fields) > 0 {
		return time.Time{}, verr
	}
	return date, nil
}

func (s *Service) enqueueEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, at time.Time) {
	// Notification failures never fail the booking; the outbox retries.
	if _, err := s.outbox.Enqueue(ctx, appointmentID, eventType, at); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", appointmentID.String()).
			Str("event_type", eventType).
			Msg("enqueue notification")
	}
}

func (s *Service) enqueueReminder(ctx context.Context, appt *Appointment) {
	start, err := s.schedule.SlotStart(appt.Date, appt.Time)
	if err != nil {
		return
	}
	remindAt := start.Add(-reminderLead)
	if remindAt.Before(s.now()) {
		return // booked within the lead window, no reminder
	}
	s.enqueueEvent(ctx, appt.ID, EventBookingReminder, remindAt)
}
