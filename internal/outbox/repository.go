package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("notification job not found")

// Repository contains all DB interactions for notification jobs.
type Repository interface {
	// Enqueue fans an appointment event out into one job per channel,
	// atomically, due at scheduledAt.
	Enqueue(ctx context.Context, appointmentID uuid.UUID, eventType string, scheduledAt time.Time) ([]uuid.UUID, error)

	// FindDue returns pending and retry_scheduled jobs whose scheduled_at
	// has passed, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]Job, error)

	// MarkSent records a successful provider call. No-op if the job already
	// left the deliverable states.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkRetry schedules the next attempt and records the failure.
	MarkRetry(ctx context.Context, id uuid.UUID, nextAttempt time.Time, lastError string) error

	// MarkFailed terminalizes a job after retries are exhausted.
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error

	// ReconcileDelivery applies an asynchronous provider status callback.
	// Unknown and already-terminal jobs are ignored; the bool reports
	// whether the update was applied.
	ReconcileDelivery(ctx context.Context, id uuid.UUID, status Status, at time.Time) (bool, error)
}
