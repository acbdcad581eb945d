package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saraivavision/booking-api/internal/ratelimit"
)

// memRepo is an in-memory Repository that mimics the partial unique index:
// at most one non-cancelled appointment per (date, time).
type memRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*Appointment
	fail error // when set, every call fails with this error
}

func newMemRepo() *memRepo {
	return &memRepo{byID: make(map[uuid.UUID]*Appointment)}
}

func (r *memRepo) Insert(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}

	for _, existing := range r.byID {
		if existing.Status != StatusCancelled &&
			existing.Date.Equal(appt.Date) && existing.Time == appt.Time {
			return nil, ErrSlotTaken
		}
	}

	stored := *appt
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.byID[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	appt, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *appt
	return &out, nil
}

func (r *memRepo) GetByToken(ctx context.Context, token string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	for _, appt := range r.byID {
		if appt.Token == token {
			out := *appt
			return &out, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	appt, ok := r.byID[id]
	if !ok || appt.Status != from {
		return nil, ErrAppointmentNotFound
	}
	appt.Status = to
	appt.UpdatedAt = at
	switch to {
	case StatusConfirmed:
		appt.ConfirmedAt = &at
	case StatusCancelled:
		appt.CancelledAt = &at
	}
	out := *appt
	return &out, nil
}

func (r *memRepo) ListBookedTimes(ctx context.Context, date time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	var times []string
	for _, appt := range r.byID {
		if appt.Status != StatusCancelled && appt.Date.Equal(date) {
			times = append(times, appt.Time)
		}
	}
	return times, nil
}

func (r *memRepo) FindOverdue(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	var result []Appointment
	for _, appt := range r.byID {
		if (appt.Status == StatusPending || appt.Status == StatusConfirmed) &&
			appt.Date.Before(cutoff) && len(result) < limit {
			result = append(result, *appt)
		}
	}
	return result, nil
}

// stubLimiter returns a scripted rate-limit result. Safe for concurrent use.
type stubLimiter struct {
	result ratelimit.Result
	err    error
	calls  atomic.Int64
}

func allowAll() *stubLimiter {
	return &stubLimiter{result: ratelimit.Result{Allowed: true, Remaining: 4}}
}

func (l *stubLimiter) Check(ctx context.Context, key string) (ratelimit.Result, error) {
	l.calls.Add(1)
	return l.result, l.err
}

// recordingOutbox captures enqueued events.
type recordingOutbox struct {
	mu     sync.Mutex
	events []enqueuedEvent
	fail   error
}

type enqueuedEvent struct {
	AppointmentID uuid.UUID
	EventType     string
	ScheduledAt   time.Time
}

func (o *recordingOutbox) Enqueue(ctx context.Context, appointmentID uuid.UUID, eventType string, scheduledAt time.Time) ([]uuid.UUID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return nil, o.fail
	}
	o.events = append(o.events, enqueuedEvent{appointmentID, eventType, scheduledAt})
	return []uuid.UUID{uuid.New(), uuid.New()}, nil
}

func (o *recordingOutbox) eventTypes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	types := make([]string, len(o.events))
	for i, e := range o.events {
		types[i] = e.EventType
	}
	return types
}
