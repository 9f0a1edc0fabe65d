package appointment

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrConflict            = errors.New("slot already has a confirmed appointment")
)

// Repository owns appointment records. Create must be atomic for the slot:
// it fails with ErrConflict when a confirmed appointment already holds it,
// whatever locking the caller did beforehand.
type Repository interface {
	// For conflict checks
	GetConfirmedForSlot(ctx context.Context, slot Slot) (*Appointment, error)
	ConfirmedTimes(ctx context.Context, doctorID, date string) ([]string, error)

	// Creation and updates
	Create(ctx context.Context, appt Appointment) (*Appointment, error)
	UpdateStatus(ctx context.Context, protocol string, from, to AppointmentStatus) (*Appointment, error)

	// Lookups
	GetByProtocol(ctx context.Context, protocol string) (*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientName string) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
