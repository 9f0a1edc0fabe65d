package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-agent/internal/agent"
	"github.com/hackgods/clinic-booking-agent/internal/appointment"
	"github.com/hackgods/clinic-booking-agent/internal/procedure"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
	"github.com/hackgods/clinic-booking-agent/internal/session"
)

type ChatService interface {
	Handle(ctx context.Context, sessionID, message string) (*agent.Reply, error)
}

type AuthorizationService interface {
	Classify(ctx context.Context, procedureName string) (*procedure.AuthorizationRequest, error)
	GetAuthorization(ctx context.Context, protocol string) (*procedure.AuthorizationRequest, error)
}

func chatHandler(chat ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if !decodeBody(w, r, &req) {
			return
		}

		reply, err := chat.Handle(r.Context(), req.SessionID, req.Message)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func sessionContextHandler(sessions session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rendered, err := sessions.RenderContext(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SessionContextResponse{SessionID: id, Context: rendered})
	}
}

func listDoctorsHandler(reg registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		docs := reg.FindDoctors(q.Get("specialty"), q.Get("city"))
		if docs == nil {
			docs = []registry.Doctor{}
		}
		writeJSON(w, http.StatusOK, DoctorListResponse{Count: len(docs), Doctors: docs})
	}
}

func getDoctorHandler(reg registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := reg.GetDoctor(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func listSpecialtiesHandler(reg registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"specialties": reg.ListSpecialties()})
	}
}

func listCitiesHandler(reg registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"cities": reg.ListCities()})
	}
}

func availabilityHandler(ledger agent.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID := chi.URLParam(r, "id")
		date, tm := r.URL.Query().Get("date"), r.URL.Query().Get("time")
		if date == "" || tm == "" {
			writeError(w, http.StatusBadRequest, "missing_parameters", "date and time are required")
			return
		}

		ok, err := ledger.IsAvailable(r.Context(), doctorID, date, tm)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, AvailabilityResponse{DoctorID: doctorID, Date: date, Time: tm, Available: ok})
	}
}

func freeTimesHandler(ledger agent.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID := chi.URLParam(r, "id")
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_parameters", "date is required")
			return
		}

		times, err := ledger.FreeTimes(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, FreeTimesResponse{DoctorID: doctorID, Date: date, FreeTimes: times})
	}
}

func createAppointmentHandler(ledger agent.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		appt, err := ledger.Book(r.Context(), req.DoctorID, req.PatientName, req.Date, req.Time)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, appt)
	}
}

func getAppointmentHandler(ledger agent.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := ledger.GetByProtocol(r.Context(), chi.URLParam(r, "protocol"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func cancelAppointmentHandler(ledger agent.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := ledger.Cancel(r.Context(), chi.URLParam(r, "protocol"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func listAppointmentsHandler(ledger agent.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			appts []appointment.Appointment
			err   error
		)
		switch {
		case q.Get("doctor_id") != "":
			appts, err = ledger.ListByDoctor(r.Context(), q.Get("doctor_id"))
		case q.Get("patient_name") != "":
			appts, err = ledger.ListByPatient(r.Context(), q.Get("patient_name"))
		default:
			writeError(w, http.StatusBadRequest, "missing_parameters", "doctor_id or patient_name is required")
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if appts == nil {
			appts = []appointment.Appointment{}
		}
		writeJSON(w, http.StatusOK, AppointmentListResponse{Count: len(appts), Appointments: appts})
	}
}

func classifyProcedureHandler(auth AuthorizationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClassifyProcedureRequest
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := auth.Classify(r.Context(), req.Procedure)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func getAuthorizationHandler(auth AuthorizationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := auth.GetAuthorization(r.Context(), chi.URLParam(r, "protocol"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP statuses. Anything unmapped is
// logged and reported as a 500 without leaking the cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrDoctorNotFound), errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, procedure.ErrNotFound):
		writeError(w, http.StatusNotFound, "authorization_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, appointment.ErrInvalidPatient):
		writeError(w, http.StatusBadRequest, "invalid_patient", err.Error())
	case errors.Is(err, agent.ErrEmptyMessage), errors.Is(err, session.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrOutOfWindow):
		writeError(w, http.StatusUnprocessableEntity, "out_of_window", err.Error())
	case errors.Is(err, procedure.ErrUnclassified):
		writeError(w, http.StatusUnprocessableEntity, "unclassified_procedure", err.Error())
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: strings.TrimSpace(details)})
}
