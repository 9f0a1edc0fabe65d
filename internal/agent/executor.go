package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-agent/internal/appointment"
	"github.com/hackgods/clinic-booking-agent/internal/observability"
	"github.com/hackgods/clinic-booking-agent/internal/procedure"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
)

// Ledger is the booking surface the tools use. *appointment.Service
// implements it.
type Ledger interface {
	IsAvailable(ctx context.Context, doctorID, date, tm string) (bool, error)
	Book(ctx context.Context, doctorID, patientName, date, tm string) (*appointment.Appointment, error)
	GetByProtocol(ctx context.Context, protocol string) (*appointment.Appointment, error)
	Cancel(ctx context.Context, protocol string) (*appointment.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]appointment.Appointment, error)
	ListByPatient(ctx context.Context, name string) ([]appointment.Appointment, error)
	FreeTimes(ctx context.Context, doctorID, date string) ([]string, error)
	Window() (first, last time.Time)
}

type Classifier interface {
	Classify(ctx context.Context, procedureName string) (*procedure.AuthorizationRequest, error)
}

// Result is what a tool returns to the model. Errors carry guidance text
// rather than failing the conversation.
type Result struct {
	Content string
	IsError bool
}

type Executor struct {
	registry   registry.Registry
	ledger     Ledger
	classifier Classifier
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

func NewExecutor(reg registry.Registry, ledger Ledger, classifier Classifier, logger zerolog.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{
		registry:   reg,
		ledger:     ledger,
		classifier: classifier,
		logger:     logger,
		metrics:    metrics,
	}
}

// Execute runs op and renders its outcome for the model.
func (e *Executor) Execute(ctx context.Context, op Operation) Result {
	payload, err := e.run(ctx, op)
	if err != nil {
		status := "rejected"
		if !isDomainError(err) {
			status = "error"
			e.logger.Error().Err(err).Str("tool", op.Tool()).Msg("tool execution failed")
		}
		e.metrics.ObserveToolCall(op.Tool(), status)
		return Result{Content: e.guidance(ctx, op, err), IsError: true}
	}

	e.metrics.ObserveToolCall(op.Tool(), "ok")
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{Content: "Erro interno ao montar a resposta da ferramenta.", IsError: true}
	}
	return Result{Content: string(data)}
}

func (e *Executor) run(ctx context.Context, op Operation) (any, error) {
	switch o := op.(type) {
	case *SearchDoctors:
		return doctorList(e.registry.FindDoctors(o.Specialty, o.City)), nil
	case *SearchDoctorsByCity:
		return doctorList(e.registry.FindDoctorsByCity(o.City)), nil
	case *CheckAvailability:
		ok, err := e.ledger.IsAvailable(ctx, o.DoctorID, o.Date, o.Time)
		if err != nil {
			return nil, err
		}
		offered := false
		if doc, err := e.registry.GetDoctor(o.DoctorID); err == nil {
			offered = doc.HasDate(o.Date) && doc.HasTime(o.Time)
		}
		return map[string]any{
			"doctor_id": o.DoctorID,
			"date":      o.Date,
			"time":      o.Time,
			"available": ok && offered,
			"offered":   offered,
		}, nil
	case *BookAppointment:
		return e.ledger.Book(ctx, o.DoctorID, o.PatientName, o.Date, o.Time)
	case *ListSpecialties:
		return map[string]any{"specialties": e.registry.ListSpecialties()}, nil
	case *ListCities:
		return map[string]any{"cities": e.registry.ListCities()}, nil
	case *ClassifyProcedure:
		req, err := e.classifier.Classify(ctx, o.Procedure)
		if err != nil {
			return nil, err
		}
		return authorizationView{AuthorizationRequest: req, TierLabel: req.Tier.Label()}, nil
	case *GetAppointment:
		return e.ledger.GetByProtocol(ctx, o.Protocol)
	case *ListAppointmentsByDoctor:
		return appointmentList(e.ledger.ListByDoctor(ctx, o.DoctorID))
	case *ListAppointmentsByPatient:
		return appointmentList(e.ledger.ListByPatient(ctx, o.PatientName))
	case *CancelAppointment:
		return e.ledger.Cancel(ctx, o.Protocol)
	case *ListFreeTimes:
		times, err := e.ledger.FreeTimes(ctx, o.DoctorID, o.Date)
		if err != nil {
			return nil, err
		}
		return map[string]any{"doctor_id": o.DoctorID, "date": o.Date, "free_times": times}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTool, op)
	}
}

type authorizationView struct {
	*procedure.AuthorizationRequest
	TierLabel string `json:"tier_label"`
}

func doctorList(docs []registry.Doctor) map[string]any {
	if docs == nil {
		docs = []registry.Doctor{}
	}
	return map[string]any{"count": len(docs), "doctors": docs}
}

func appointmentList(appts []appointment.Appointment, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []appointment.Appointment{}
	}
	return map[string]any{"count": len(appts), "appointments": appts}, nil
}

func isDomainError(err error) bool {
	for _, target := range []error{
		appointment.ErrNotFound,
		appointment.ErrInvalidSlot,
		appointment.ErrInvalidPatient,
		appointment.ErrOutOfWindow,
		appointment.ErrConflict,
		appointment.ErrAlreadyCancelled,
		procedure.ErrUnclassified,
		registry.ErrNotFound,
		ErrBadArguments,
		ErrUnknownTool,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// guidance turns a failed operation into instructions the model can act on.
func (e *Executor) guidance(ctx context.Context, op Operation, err error) string {
	switch {
	case errors.Is(err, appointment.ErrDoctorNotFound), errors.Is(err, registry.ErrNotFound):
		return "Médico não encontrado. Use search_doctors ou search_doctors_by_city para obter um ID válido."
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		return "Nenhum agendamento encontrado com esse protocolo. Peça ao paciente para conferir o número."
	case errors.Is(err, appointment.ErrConflict):
		return e.conflictGuidance(ctx, op)
	case errors.Is(err, appointment.ErrOutOfWindow):
		first, last := e.ledger.Window()
		return fmt.Sprintf("A data está fora da janela de agendamento. Só é possível agendar de %s até %s.",
			first.Format(registry.DateLayout), last.Format(registry.DateLayout))
	case errors.Is(err, appointment.ErrInvalidSlot):
		return e.slotGuidance(op)
	case errors.Is(err, appointment.ErrInvalidPatient):
		return "Informe o nome completo do paciente para continuar."
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		return "Este agendamento já está cancelado."
	case errors.Is(err, procedure.ErrUnclassified):
		return "Procedimento não reconhecido. Peça ao paciente para descrever o procedimento com outras palavras."
	case errors.Is(err, ErrBadArguments), errors.Is(err, ErrUnknownTool):
		return fmt.Sprintf("Chamada inválida: %v. Corrija os argumentos e tente novamente.", err)
	default:
		return "Erro interno ao executar a operação. Peça desculpas ao paciente e sugira tentar novamente."
	}
}

func (e *Executor) conflictGuidance(ctx context.Context, op Operation) string {
	book, ok := op.(*BookAppointment)
	if !ok {
		return "O horário já está ocupado."
	}
	free, err := e.ledger.FreeTimes(ctx, book.DoctorID, book.Date)
	if err != nil || len(free) == 0 {
		return fmt.Sprintf("O horário %s de %s já está ocupado e não há outros horários livres nesse dia. Sugira outra data.",
			book.Time, book.Date)
	}
	return fmt.Sprintf("O horário %s de %s já está ocupado. Horários livres nesse dia: %s. Ofereça um deles ao paciente.",
		book.Time, book.Date, strings.Join(free, ", "))
}

func (e *Executor) slotGuidance(op Operation) string {
	var doctorID string
	switch o := op.(type) {
	case *BookAppointment:
		doctorID = o.DoctorID
	case *ListFreeTimes:
		doctorID = o.DoctorID
	}
	doc, err := e.registry.GetDoctor(doctorID)
	if err != nil {
		return "Data ou horário inválido. Use datas AAAA-MM-DD e horários HH:MM oferecidos pelo médico."
	}
	return fmt.Sprintf("Data ou horário não oferecido por %s. Datas disponíveis: %s. Horários: %s.",
		doc.Name, strings.Join(doc.AvailableDates, ", "), strings.Join(doc.AvailableTimes, ", "))
}
