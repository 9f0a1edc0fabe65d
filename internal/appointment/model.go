package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Slot is one bookable (doctor, date, time) unit.
type Slot struct {
	DoctorID string
	Date     string
	Time     string
}

// Key identifies the slot for locking.
func (s Slot) Key() string {
	return fmt.Sprintf("%s|%s|%s", s.DoctorID, s.Date, s.Time)
}

type Appointment struct {
	ID          uuid.UUID         `json:"id"`
	DoctorID    string            `json:"doctor_id"`
	PatientName string            `json:"patient_name"`
	Date        string            `json:"date"`
	Time        string            `json:"time"`
	Protocol    string            `json:"protocol"`
	Status      AppointmentStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
}

func (a Appointment) Slot() Slot {
	return Slot{DoctorID: a.DoctorID, Date: a.Date, Time: a.Time}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
