package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/hackgods/clinic-booking-agent/internal/textmatch"
)

// MemoryRepository keeps appointments in process memory. A single mutex
// guards both the records and the confirmed-slot index so Create's
// check-and-insert is atomic.
type MemoryRepository struct {
	mu         sync.RWMutex
	byProtocol map[string]*Appointment
	order      []string
	confirmed  map[Slot]string // slot -> protocol
	events     []EventLog // most recent eventCap entries
	eventCap   int
	lastEvent  int64
}

var _ Repository = (*MemoryRepository)(nil)

// DefaultEventCap bounds the in-memory event log.
const DefaultEventCap = 1000

func NewMemoryRepository() *MemoryRepository {
	return NewMemoryRepositoryWithEventCap(DefaultEventCap)
}

// NewMemoryRepositoryWithEventCap keeps at most eventCap events, dropping the
// oldest first. A non-positive cap disables the event log.
func NewMemoryRepositoryWithEventCap(eventCap int) *MemoryRepository {
	return &MemoryRepository{
		byProtocol: make(map[string]*Appointment),
		confirmed:  make(map[Slot]string),
		eventCap:   eventCap,
	}
}

func (r *MemoryRepository) GetConfirmedForSlot(_ context.Context, slot Slot) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	protocol, ok := r.confirmed[slot]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a := *r.byProtocol[protocol]
	return &a, nil
}

func (r *MemoryRepository) ConfirmedTimes(_ context.Context, doctorID, date string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var times []string
	for slot := range r.confirmed {
		if slot.DoctorID == doctorID && slot.Date == date {
			times = append(times, slot.Time)
		}
	}
	return times, nil
}

func (r *MemoryRepository) Create(_ context.Context, appt Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := appt.Slot()
	if appt.Status == StatusConfirmed {
		if _, taken := r.confirmed[slot]; taken {
			return nil, ErrConflict
		}
	}
	if _, dup := r.byProtocol[appt.Protocol]; dup {
		return nil, ErrConflict
	}

	stored := appt
	r.byProtocol[appt.Protocol] = &stored
	r.order = append(r.order, appt.Protocol)
	if appt.Status == StatusConfirmed {
		r.confirmed[slot] = appt.Protocol
	}

	out := stored
	return &out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, protocol string, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byProtocol[protocol]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	now := time.Now()
	a.Status = to
	a.UpdatedAt = now
	switch to {
	case StatusCancelled:
		a.CancelledAt = &now
		if r.confirmed[a.Slot()] == protocol {
			delete(r.confirmed, a.Slot())
		}
	case StatusConfirmed:
		if _, taken := r.confirmed[a.Slot()]; taken {
			a.Status = from
			return nil, ErrConflict
		}
		r.confirmed[a.Slot()] = protocol
	}

	out := *a
	return &out, nil
}

func (r *MemoryRepository) GetByProtocol(_ context.Context, protocol string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byProtocol[protocol]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (r *MemoryRepository) ListByDoctor(_ context.Context, doctorID string) ([]Appointment, error) {
	return r.filter(func(a *Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientName string) ([]Appointment, error) {
	return r.filter(func(a *Appointment) bool { return textmatch.Contains(a.PatientName, patientName) }), nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastEvent++
	ev.ID = r.lastEvent
	if r.eventCap <= 0 {
		return nil
	}
	if len(r.events) >= r.eventCap {
		n := copy(r.events, r.events[len(r.events)-r.eventCap+1:])
		r.events = r.events[:n]
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the retained event log, oldest first.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepository) filter(keep func(*Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, p := range r.order {
		if a := r.byProtocol[p]; keep(a) {
			out = append(out, *a)
		}
	}
	return out
}
