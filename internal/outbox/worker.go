package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/saraivavision/booking-api/internal/booking"
)

// Sender delivers one notification over a single channel.
type Sender interface {
	Send(ctx context.Context, job Job, appt *booking.Appointment) error
}

// Worker drains due notification jobs and delivers them through the channel
// senders. Channels fail independently: an email failure never blocks the
// messaging job for the same event.
type Worker struct {
	jobs        Repository
	appts       booking.Repository
	senders     map[Channel]Sender
	maxTries    int
	backoffBase time.Duration
	batchSize   int
	log         zerolog.Logger
	now         func() time.Time
}

type WorkerConfig struct {
	MaxTries    int
	BackoffBase time.Duration
	BatchSize   int
}

func NewWorker(jobs Repository, appts booking.Repository, senders map[Channel]Sender, cfg WorkerConfig, log zerolog.Logger) *Worker {
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Worker{
		jobs:        jobs,
		appts:       appts,
		senders:     senders,
		maxTries:    cfg.MaxTries,
		backoffBase: cfg.BackoffBase,
		batchSize:   cfg.BatchSize,
		log:         log,
		now:         time.Now,
	}
}

// Run polls for due jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	w.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopping")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := w.ProcessDue(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("outbox run failed")
		return
	}
	if n > 0 {
		w.log.Info().Int("processed", n).Msg("outbox run complete")
	}
}

// ProcessDue delivers one batch of due jobs and returns how many were
// attempted.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	due, err := w.jobs.FindDue(ctx, w.now(), w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("find due jobs: %w", err)
	}

	for _, job := range due {
		w.deliver(ctx, job)
	}

	return len(due), nil
}

func (w *Worker) deliver(ctx context.Context, job Job) {
	log := w.log.With().
		Str("job_id", job.ID.String()).
		Str("channel", string(job.Channel)).
		Str("event_type", job.EventType).
		Logger()

	appt, err := w.appts.GetByID(ctx, job.AppointmentID)
	if err != nil {
		w.recordFailure(ctx, job, fmt.Sprintf("load appointment: %v", err), log)
		return
	}

	sender, ok := w.senders[job.Channel]
	if !ok {
		// No sender configured for the channel: terminal, not retryable.
		if err := w.jobs.MarkFailed(ctx, job.ID, "no sender for channel"); err != nil {
			log.Error().Err(err).Msg("mark job failed")
		}
		return
	}

	if err := sender.Send(ctx, job, appt); err != nil {
		w.recordFailure(ctx, job, err.Error(), log)
		return
	}

	if err := w.jobs.MarkSent(ctx, job.ID, w.now()); err != nil {
		log.Error().Err(err).Msg("mark job sent")
		return
	}
	log.Info().Msg("notification sent")
}

// recordFailure schedules a retry with exponential backoff, or terminalizes
// the job once attempts are exhausted.
func (w *Worker) recordFailure(ctx context.Context, job Job, cause string, log zerolog.Logger) {
	attempts := job.RetryCount + 1

	if attempts >= w.maxTries {
		if err := w.jobs.MarkFailed(ctx, job.ID, cause); err != nil {
			log.Error().Err(err).Msg("mark job failed")
			return
		}
		log.Error().Str("cause", cause).Int("attempts", attempts).Msg("notification delivery exhausted")
		return
	}

	backoff := w.backoffBase << (attempts - 1)
	next := w.now().Add(backoff)
	if err := w.jobs.MarkRetry(ctx, job.ID, next, cause); err != nil {
		log.Error().Err(err).Msg("mark job for retry")
		return
	}
	log.Warn().Str("cause", cause).Time("next_attempt", next).Msg("notification delivery failed, retry scheduled")
}
