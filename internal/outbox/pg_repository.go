package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const jobColumns = `
	id, appointment_id, channel, event_type, status, retry_count,
	last_error, scheduled_at, sent_at, delivered_at, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job

	err := row.Scan(
		&j.ID,
		&j.AppointmentID,
		&j.Channel,
		&j.EventType,
		&j.Status,
		&j.RetryCount,
		&j.LastError,
		&j.ScheduledAt,
		&j.SentAt,
		&j.DeliveredAt,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	return &j, nil
}

func (r *PgRepository) Enqueue(ctx context.Context, appointmentID uuid.UUID, eventType string, scheduledAt time.Time) ([]uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(Channels))
	for _, ch := range Channels {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO notification_jobs
				(id, appointment_id, channel, event_type, status, scheduled_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'pending', $5, now(), now())
		`, id, appointmentID, ch, eventType, scheduledAt)
		if err != nil {
			return nil, fmt.Errorf("enqueue %s job: %w", ch, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}

	return ids, nil
}

func (r *PgRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM notification_jobs
		WHERE status IN ('pending', 'retry_scheduled')
		  AND scheduled_at <= $1
		ORDER BY scheduled_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *PgRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'sent',
		    sent_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'retry_scheduled')
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark job sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *PgRepository) MarkRetry(ctx context.Context, id uuid.UUID, nextAttempt time.Time, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'retry_scheduled',
		    retry_count = retry_count + 1,
		    last_error = $3,
		    scheduled_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'retry_scheduled')
	`, id, nextAttempt, lastError)
	if err != nil {
		return fmt.Errorf("mark job for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *PgRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'failed',
		    retry_count = retry_count + 1,
		    last_error = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'retry_scheduled')
	`, id, lastError)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *PgRepository) ReconcileDelivery(ctx context.Context, id uuid.UUID, status Status, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_jobs
		SET status = $2,
		    sent_at = CASE WHEN $2 = 'sent' THEN COALESCE(sent_at, $3) ELSE sent_at END,
		    delivered_at = CASE WHEN $2 = 'delivered' THEN $3 ELSE delivered_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status NOT IN ('delivered', 'failed')
	`, id, status, at)
	if err != nil {
		return false, fmt.Errorf("reconcile delivery status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
