package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, patient_name, patient_email, patient_phone,
	appointment_date, to_char(appointment_time, 'HH24:MI'),
	COALESCE(notes, ''), status, COALESCE(token, ''),
	created_at, confirmed_at, cancelled_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var confirmedAt, cancelledAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientName,
		&a.PatientEmail,
		&a.PatientPhone,
		&a.Date,
		&a.Time,
		&a.Notes,
		&a.Status,
		&a.Token,
		&a.CreatedAt,
		&confirmedAt,
		&cancelledAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ConfirmedAt = confirmedAt
	a.CancelledAt = cancelledAt
	return &a, nil
}

func (r *PgRepository) Insert(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_name, patient_email, patient_phone,
			 appointment_date, appointment_time, notes, status, token,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::time, NULLIF($7, ''), $8, $9, now(), now())
		RETURNING `+appointmentColumns,
		appt.ID, appt.PatientName, appt.PatientEmail, appt.PatientPhone,
		appt.Date, appt.Time, appt.Notes, appt.Status, appt.Token)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation &&
			pgErr.ConstraintName == "appointments_slot_active_idx" {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetByToken(ctx context.Context, token string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE token = $1
	`, token)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    confirmed_at = CASE WHEN $2 = 'confirmed' THEN $4 ELSE confirmed_at END,
		    cancelled_at = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancelled_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from, at)

	return scanAppointment(row)
}

func (r *PgRepository) ListBookedTimes(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE appointment_date = $1
		  AND status <> 'cancelled'
		ORDER BY appointment_time
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return times, nil
}

func (r *PgRepository) FindOverdue(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed')
		  AND appointment_date < $1
		ORDER BY appointment_date
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("find overdue appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
