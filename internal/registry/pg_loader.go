package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/clinic-booking-agent/internal/db"
)

// LoadFromPostgres reads the roster from the doctors, doctor_dates and
// doctor_times tables and returns it as an immutable MemoryRegistry snapshot.
func LoadFromPostgres(ctx context.Context, q db.Querier) (*MemoryRegistry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, name, specialty, city
		FROM doctors
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	var doctors []Doctor
	index := make(map[string]int)
	for rows.Next() {
		var d Doctor
		var specialty string
		if err := rows.Scan(&d.ID, &d.Name, &specialty, &d.City); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		d.Specialty = Specialty(specialty)
		index[d.ID] = len(doctors)
		doctors = append(doctors, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT doctor_id, available_date
		FROM doctor_dates
		ORDER BY doctor_id, available_date
	`)
	if err != nil {
		return nil, fmt.Errorf("load doctor dates: %w", err)
	}
	for rows.Next() {
		var id string
		var day time.Time
		if err := rows.Scan(&id, &day); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan doctor date: %w", err)
		}
		if i, ok := index[id]; ok {
			doctors[i].AvailableDates = append(doctors[i].AvailableDates, day.Format(DateLayout))
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load doctor dates: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT doctor_id, available_time
		FROM doctor_times
		ORDER BY doctor_id, available_time
	`)
	if err != nil {
		return nil, fmt.Errorf("load doctor times: %w", err)
	}
	for rows.Next() {
		var id, tm string
		if err := rows.Scan(&id, &tm); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan doctor time: %w", err)
		}
		if i, ok := index[id]; ok {
			doctors[i].AvailableTimes = append(doctors[i].AvailableTimes, tm)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load doctor times: %w", err)
	}

	return NewMemoryRegistry(doctors)
}

// SaveToPostgres upserts doctors and replaces their declared dates and times
// in one transaction.
func SaveToPostgres(ctx context.Context, pool db.Pool, doctors []Doctor) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, d := range doctors {
		if !d.Specialty.Valid() {
			return fmt.Errorf("doctor %s: unknown specialty %q", d.ID, d.Specialty)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, city, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, specialty = EXCLUDED.specialty,
			    city = EXCLUDED.city, updated_at = now()
		`, d.ID, d.Name, string(d.Specialty), d.City); err != nil {
			return fmt.Errorf("upsert doctor %s: %w", d.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM doctor_dates WHERE doctor_id = $1`, d.ID); err != nil {
			return fmt.Errorf("clear dates %s: %w", d.ID, err)
		}
		for _, date := range d.AvailableDates {
			if _, err := tx.Exec(ctx, `
				INSERT INTO doctor_dates (doctor_id, available_date) VALUES ($1, $2::date)
			`, d.ID, date); err != nil {
				return fmt.Errorf("insert date %s %s: %w", d.ID, date, err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM doctor_times WHERE doctor_id = $1`, d.ID); err != nil {
			return fmt.Errorf("clear times %s: %w", d.ID, err)
		}
		for _, tm := range d.AvailableTimes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO doctor_times (doctor_id, available_time) VALUES ($1, $2)
			`, d.ID, tm); err != nil {
				return fmt.Errorf("insert time %s %s: %w", d.ID, tm, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
