package api

import (
	"github.com/hackgods/clinic-booking-agent/internal/appointment"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
)

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type SessionContextResponse struct {
	SessionID string `json:"session_id"`
	Context   string `json:"context"`
}

type CreateAppointmentRequest struct {
	DoctorID    string `json:"doctor_id"`
	PatientName string `json:"patient_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type ClassifyProcedureRequest struct {
	Procedure string `json:"procedure"`
}

type DoctorListResponse struct {
	Count   int               `json:"count"`
	Doctors []registry.Doctor `json:"doctors"`
}

type AppointmentListResponse struct {
	Count        int                       `json:"count"`
	Appointments []appointment.Appointment `json:"appointments"`
}

type AvailabilityResponse struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type FreeTimesResponse struct {
	DoctorID  string   `json:"doctor_id"`
	Date      string   `json:"date"`
	FreeTimes []string `json:"free_times"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
