package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saraivavision/booking-api/internal/ratelimit"
)

var testNow = time.Date(2025, 1, 10, 12, 0, 0, 0, testLoc) // Friday noon

func newTestService(t *testing.T, repo *memRepo, limiter RateLimiter, ob *recordingOutbox) *Service {
	t.Helper()
	ws := testSchedule(t)

	avail := NewAvailabilityStore(repo, ws)
	avail.now = func() time.Time { return testNow }

	tokens := NewTokenService(repo, testLoc)
	tokens.now = func() time.Time { return testNow }

	svc := NewService(repo, avail, tokens, limiter, ob, ws, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func validInput() BookingInput {
	return BookingInput{
		PatientName:  "João Silva",
		PatientEmail: "joao.silva@example.com",
		PatientPhone: "(33) 99999-9999",
		Date:         "2025-01-15",
		Time:         "09:00",
	}
}

func TestCreateAppointmentSuccess(t *testing.T) {
	repo := newMemRepo()
	ob := &recordingOutbox{}
	svc := newTestService(t, repo, allowAll(), ob)

	appt, err := svc.CreateAppointment(context.Background(), validInput(), "203.0.113.7")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, "2025-01-15", appt.Date.Format(DateLayout))
	assert.Equal(t, "09:00", appt.Time)
	assert.NotEmpty(t, appt.Token)

	// Confirmation immediately, reminder 24h before the slot.
	require.Equal(t, []string{EventBookingConfirmation, EventBookingReminder}, ob.eventTypes())
	reminder := ob.events[1]
	assert.Equal(t, time.Date(2025, 1, 14, 9, 0, 0, 0, testLoc).Unix(), reminder.ScheduledAt.Unix())
}

func TestCreateAppointmentSkipsReminderInsideLeadWindow(t *testing.T) {
	repo := newMemRepo()
	ob := &recordingOutbox{}
	svc := newTestService(t, repo, allowAll(), ob)

	input := validInput()
	input.Date = "2025-01-10" // today; slot later this afternoon
	input.Time = "15:00"

	_, err := svc.CreateAppointment(context.Background(), input, "203.0.113.7")
	require.NoError(t, err)

	assert.Equal(t, []string{EventBookingConfirmation}, ob.eventTypes())
}

func TestCreateAppointmentListsEveryInvalidField(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, allowAll(), &recordingOutbox{})

	input := BookingInput{
		PatientName:  "Jo",
		PatientEmail: "not-an-email",
		PatientPhone: "12345",
		Date:         "15/01/2025",
		Time:         "9am",
	}

	_, err := svc.CreateAppointment(context.Background(), input, "203.0.113.7")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	fields := make(map[string]bool)
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"patient_name", "patient_email", "patient_phone", "appointment_date", "appointment_time"} {
		assert.True(t, fields[want], "expected field %s in validation error", want)
	}

	assert.Empty(t, repo.byID, "nothing may be persisted on validation failure")
}

func TestCreateAppointmentRejectsPastAndOffCalendarDates(t *testing.T) {
	svc := newTestService(t, newMemRepo(), allowAll(), &recordingOutbox{})

	tests := []struct {
		name  string
		date  string
		time  string
		field string
	}{
		{"past date", "2025-01-08", "09:00", "appointment_date"},
		{"weekend", "2025-01-18", "09:00", "appointment_date"},
		{"off grid", "2025-01-15", "09:15", "appointment_time"},
		{"after closing", "2025-01-15", "18:00", "appointment_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			input.Date = tt.date
			input.Time = tt.time

			_, err := svc.CreateAppointment(context.Background(), input, "203.0.113.7")

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestCreateAppointmentRateLimited(t *testing.T) {
	repo := newMemRepo()
	ob := &recordingOutbox{}
	limiter := &stubLimiter{result: ratelimit.Result{Allowed: false, ResetAt: testNow.Add(10 * time.Minute)}}
	svc := newTestService(t, repo, limiter, ob)

	_, err := svc.CreateAppointment(context.Background(), validInput(), "203.0.113.7")

	var rlerr *RateLimitError
	require.ErrorAs(t, err, &rlerr)
	assert.Equal(t, testNow.Add(10*time.Minute), rlerr.ResetAt)
	assert.Empty(t, repo.byID)
	assert.Empty(t, ob.events)
}

func TestCreateAppointmentLimiterOutageFailsOpen(t *testing.T) {
	repo := newMemRepo()
	limiter := &stubLimiter{
		result: ratelimit.Result{Allowed: true, Remaining: 5},
		err:    assert.AnError,
	}
	svc := newTestService(t, repo, limiter, &recordingOutbox{})

	_, err := svc.CreateAppointment(context.Background(), validInput(), "203.0.113.7")
	require.NoError(t, err)
}

func TestCreateAppointmentSlotUnavailable(t *testing.T) {
	repo := newMemRepo()
	ob := &recordingOutbox{}
	svc := newTestService(t, repo, allowAll(), ob)

	_, err := svc.CreateAppointment(context.Background(), validInput(), "203.0.113.7")
	require.NoError(t, err)

	before := len(repo.byID)
	ob.events = nil

	_, err = svc.CreateAppointment(context.Background(), validInput(), "198.51.100.9")
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	assert.Len(t, repo.byID, before, "losing request persists nothing")
	assert.Empty(t, ob.events, "losing request enqueues nothing")
}

func TestCreateAppointmentConcurrentSingleWinner(t *testing.T) {
	repo := newMemRepo()
	ob := &recordingOutbox{}
	svc := newTestService(t, repo, allowAll(), ob)

	const attempts = 20
	errs := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateAppointment(context.Background(), validInput(), fmt.Sprintf("203.0.113.%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	wins, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotUnavailable):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Exactly one request wins the slot; everyone else sees a conflict.
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)
	assert.Len(t, repo.byID, 1, "losing requests must persist nothing")
	assert.Equal(t, []string{EventBookingConfirmation, EventBookingReminder}, ob.eventTypes())
}

func TestCreateAppointmentCancelledSlotReusable(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, allowAll(), &recordingOutbox{})

	appt, err := svc.CreateAppointment(context.Background(), validInput(), "203.0.113.7")
	require.NoError(t, err)

	_, err = svc.TransitionAppointment(context.Background(), appt.Token, ActionCancel)
	require.NoError(t, err)

	again, err := svc.CreateAppointment(context.Background(), validInput(), "203.0.113.7")
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, again.ID)
}

func TestCreateAppointmentNotificationFailureDoesNotFailBooking(t *testing.T) {
	repo := newMemRepo()
	ob := &recordingOutbox{fail: assert.AnError}
	svc := newTestService(t, repo, allowAll(), ob)

	appt, err := svc.CreateAppointment(context.Background(), validInput(), "203.0.113.7")
	require.NoError(t, err)
	assert.NotNil(t, appt)
}

func TestTransitionConfirmThenConflictingActions(t *testing.T) {
	repo := newMemRepo()
	ob := &recordingOutbox{}
	svc := newTestService(t, repo, allowAll(), ob)

	appt, err := svc.CreateAppointment(context.Background(), validInput(), "203.0.113.7")
	require.NoError(t, err)
	ob.events = nil

	confirmed, err := svc.TransitionAppointment(context.Background(), appt.Token, ActionConfirm)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, []string{EventBookingConfirmation}, ob.eventTypes())

	// Second confirm fails; cancel still works; then everything is final.
	_, err = svc.TransitionAppointment(context.Background(), appt.Token, ActionConfirm)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	cancelled, err := svc.TransitionAppointment(context.Background(), appt.Token, ActionCancel)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.TransitionAppointment(context.Background(), appt.Token, ActionCancel)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionUnknownToken(t *testing.T) {
	svc := newTestService(t, newMemRepo(), allowAll(), &recordingOutbox{})

	_, err := svc.TransitionAppointment(context.Background(), "bogus", ActionConfirm)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAvailabilityExcludesBookedSlot(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, allowAll(), &recordingOutbox{})

	_, err := svc.CreateAppointment(context.Background(), validInput(), "203.0.113.7")
	require.NoError(t, err)

	from := time.Date(2025, 1, 15, 0, 0, 0, 0, testLoc)
	availability, err := svc.Availability(context.Background(), from, 1)
	require.NoError(t, err)

	day := availability["2025-01-15"]
	require.NotEmpty(t, day)

	for _, slot := range day {
		if slot.Time == "09:00" {
			assert.False(t, slot.Available, "booked slot must not show as available")
		} else {
			assert.True(t, slot.Available)
		}
	}
}

func TestAvailabilityOmitsWeekends(t *testing.T) {
	svc := newTestService(t, newMemRepo(), allowAll(), &recordingOutbox{})

	from := time.Date(2025, 1, 18, 0, 0, 0, 0, testLoc) // Saturday
	availability, err := svc.Availability(context.Background(), from, 2)
	require.NoError(t, err)

	assert.NotContains(t, availability, "2025-01-18")
	assert.NotContains(t, availability, "2025-01-19")
}

func TestExpireOverdue(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo, allowAll(), &recordingOutbox{})

	insert := func(date time.Time, timeStr string, status Status) {
		appt := &Appointment{
			ID:     uuid.New(),
			Date:   date,
			Time:   timeStr,
			Status: status,
			Token:  timeStr + date.Format(DateLayout),
		}
		_, err := repo.Insert(context.Background(), appt)
		require.NoError(t, err)
	}

	past := time.Date(2025, 1, 8, 0, 0, 0, 0, testLoc)
	future := time.Date(2025, 1, 15, 0, 0, 0, 0, testLoc)

	insert(past, "09:00", StatusPending)
	insert(past, "10:00", StatusConfirmed)
	insert(past, "11:00", StatusCancelled)
	insert(future, "09:00", StatusPending)

	n, err := svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	expired := 0
	for _, appt := range repo.byID {
		if appt.Status == StatusExpired {
			expired++
			assert.True(t, appt.Date.Before(future))
		}
	}
	assert.Equal(t, 2, expired)
}
