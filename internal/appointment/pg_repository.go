package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-booking-agent/internal/db"
	"github.com/hackgods/clinic-booking-agent/internal/textmatch"
)

// PgRepository stores appointments in Postgres. The partial unique index on
// (doctor_id, appt_date, appt_time) WHERE status = 'confirmed' makes Create
// atomic across replicas.
type PgRepository struct {
	pool db.Querier
}

var _ Repository = (*PgRepository)(nil)

func NewPgRepository(pool db.Querier) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, doctor_id, patient_name, to_char(appt_date, 'YYYY-MM-DD'), appt_time,
		protocol, status, created_at, updated_at, cancelled_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	var cancelledAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientName,
		&a.Date,
		&a.Time,
		&a.Protocol,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&cancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = AppointmentStatus(status)
	a.CancelledAt = cancelledAt
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
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

// Interface methods

func (r *PgRepository) GetConfirmedForSlot(ctx context.Context, slot Slot) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appt_date = $2::date AND appt_time = $3 AND status = 'confirmed'
	`, slot.DoctorID, slot.Date, slot.Time)
	return scanAppointment(row)
}

func (r *PgRepository) ConfirmedTimes(ctx context.Context, doctorID, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appt_time
		FROM appointments
		WHERE doctor_id = $1 AND appt_date = $2::date AND status = 'confirmed'
		ORDER BY appt_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var tm string
		if err := rows.Scan(&tm); err != nil {
			return nil, err
		}
		times = append(times, tm)
	}
	return times, rows.Err()
}

func (r *PgRepository) Create(ctx context.Context, appt Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_name, patient_key, appt_date, appt_time,
			protocol, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, now(), now())
		ON CONFLICT (doctor_id, appt_date, appt_time) WHERE status = 'confirmed' DO NOTHING
		RETURNING `+appointmentColumns,
		appt.ID, appt.DoctorID, appt.PatientName, textmatch.Fold(appt.PatientName),
		appt.Date, appt.Time, appt.Protocol, string(appt.Status))

	created, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// DO NOTHING returned no row: the slot is already confirmed.
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, protocol string, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now(),
		    cancelled_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE cancelled_at END
		WHERE protocol = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		protocol, string(to), string(from))

	return scanAppointment(row)
}

func (r *PgRepository) GetByProtocol(ctx context.Context, protocol string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE protocol = $1
	`, protocol)
	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY created_at, protocol
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListByPatient matches against patient_key, which holds the folded name.
func (r *PgRepository) ListByPatient(ctx context.Context, patientName string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_key LIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY created_at, protocol
	`, escapeLike(textmatch.Fold(patientName)))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
