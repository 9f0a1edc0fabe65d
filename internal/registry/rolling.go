package registry

import (
	"context"
	"sync/atomic"
	"time"
)

// RollingRegistry serves a roster generated relative to today and rebuilds it
// on demand, so a generated roster keeps offering upcoming dates on a
// long-running process. Lookups always see one complete snapshot.
type RollingRegistry struct {
	build func(today time.Time) []Doctor
	now   func() time.Time
	cur   atomic.Pointer[MemoryRegistry]
}

var _ Registry = (*RollingRegistry)(nil)

// NewRollingRegistry builds the first snapshot from build(now()).
func NewRollingRegistry(build func(today time.Time) []Doctor, now func() time.Time) (*RollingRegistry, error) {
	r := &RollingRegistry{build: build, now: now}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh swaps in a roster built for the current day. On error the previous
// snapshot stays in place.
func (r *RollingRegistry) Refresh() error {
	next, err := NewMemoryRegistry(r.build(r.now()))
	if err != nil {
		return err
	}
	r.cur.Store(next)
	return nil
}

// Run refreshes the roster every interval until ctx is done. A failed refresh
// is reported to onError and retried on the next tick.
func (r *RollingRegistry) Run(ctx context.Context, interval time.Duration, onError func(error)) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

func (r *RollingRegistry) FindDoctors(specialty, city string) []Doctor {
	return r.cur.Load().FindDoctors(specialty, city)
}

func (r *RollingRegistry) FindDoctorsByCity(city string) []Doctor {
	return r.cur.Load().FindDoctorsByCity(city)
}

func (r *RollingRegistry) GetDoctor(id string) (*Doctor, error) {
	return r.cur.Load().GetDoctor(id)
}

func (r *RollingRegistry) ListSpecialties() []string {
	return r.cur.Load().ListSpecialties()
}

func (r *RollingRegistry) ListCities() []string {
	return r.cur.Load().ListCities()
}

func (r *RollingRegistry) Doctors() []Doctor {
	return r.cur.Load().Doctors()
}
