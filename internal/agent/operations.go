// Package agent composes the registry, ledger, classifier and session store
// behind a fixed set of tools offered to the language model.
package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hackgods/clinic-booking-agent/internal/llm"
)

var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrBadArguments = errors.New("invalid tool arguments")
)

const (
	ToolSearchDoctors             = "search_doctors"
	ToolSearchDoctorsByCity       = "search_doctors_by_city"
	ToolCheckAvailability         = "check_availability"
	ToolBookAppointment           = "book_appointment"
	ToolListSpecialties           = "list_specialties"
	ToolListCities                = "list_cities"
	ToolClassifyProcedure         = "classify_procedure"
	ToolGetAppointment            = "get_appointment"
	ToolListAppointmentsByDoctor  = "list_appointments_by_doctor"
	ToolListAppointmentsByPatient = "list_appointments_by_patient"
	ToolCancelAppointment         = "cancel_appointment"
	ToolListFreeTimes             = "list_free_times"
)

// Operation is one typed tool invocation. The set is closed: only the types
// in this file implement it.
type Operation interface {
	Tool() string
	validate() error
}

type SearchDoctors struct {
	Specialty string `json:"specialty"`
	City      string `json:"city,omitempty"`
}

type SearchDoctorsByCity struct {
	City string `json:"city"`
}

type CheckAvailability struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type BookAppointment struct {
	DoctorID    string `json:"doctor_id"`
	PatientName string `json:"patient_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type ListSpecialties struct{}

type ListCities struct{}

type ClassifyProcedure struct {
	Procedure string `json:"procedure"`
}

type GetAppointment struct {
	Protocol string `json:"protocol"`
}

type ListAppointmentsByDoctor struct {
	DoctorID string `json:"doctor_id"`
}

type ListAppointmentsByPatient struct {
	PatientName string `json:"patient_name"`
}

type CancelAppointment struct {
	Protocol string `json:"protocol"`
}

type ListFreeTimes struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
}

func (*SearchDoctors) Tool() string             { return ToolSearchDoctors }
func (*SearchDoctorsByCity) Tool() string       { return ToolSearchDoctorsByCity }
func (*CheckAvailability) Tool() string         { return ToolCheckAvailability }
func (*BookAppointment) Tool() string           { return ToolBookAppointment }
func (*ListSpecialties) Tool() string           { return ToolListSpecialties }
func (*ListCities) Tool() string                { return ToolListCities }
func (*ClassifyProcedure) Tool() string         { return ToolClassifyProcedure }
func (*GetAppointment) Tool() string            { return ToolGetAppointment }
func (*ListAppointmentsByDoctor) Tool() string  { return ToolListAppointmentsByDoctor }
func (*ListAppointmentsByPatient) Tool() string { return ToolListAppointmentsByPatient }
func (*CancelAppointment) Tool() string         { return ToolCancelAppointment }
func (*ListFreeTimes) Tool() string             { return ToolListFreeTimes }

func (o *SearchDoctors) validate() error {
	return required("specialty", o.Specialty)
}

func (o *SearchDoctorsByCity) validate() error {
	return required("city", o.City)
}

func (o *CheckAvailability) validate() error {
	return required("doctor_id", o.DoctorID, "date", o.Date, "time", o.Time)
}

func (o *BookAppointment) validate() error {
	return required("doctor_id", o.DoctorID, "patient_name", o.PatientName, "date", o.Date, "time", o.Time)
}

func (*ListSpecialties) validate() error { return nil }
func (*ListCities) validate() error      { return nil }

func (o *ClassifyProcedure) validate() error {
	return required("procedure", o.Procedure)
}

func (o *GetAppointment) validate() error {
	return required("protocol", o.Protocol)
}

func (o *ListAppointmentsByDoctor) validate() error {
	return required("doctor_id", o.DoctorID)
}

func (o *ListAppointmentsByPatient) validate() error {
	return required("patient_name", o.PatientName)
}

func (o *CancelAppointment) validate() error {
	return required("protocol", o.Protocol)
}

func (o *ListFreeTimes) validate() error {
	return required("doctor_id", o.DoctorID, "date", o.Date)
}

// required takes name/value pairs and reports the first blank value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", ErrBadArguments, pairs[i])
		}
	}
	return nil
}

var constructors = map[string]func() Operation{
	ToolSearchDoctors:             func() Operation { return &SearchDoctors{} },
	ToolSearchDoctorsByCity:       func() Operation { return &SearchDoctorsByCity{} },
	ToolCheckAvailability:         func() Operation { return &CheckAvailability{} },
	ToolBookAppointment:           func() Operation { return &BookAppointment{} },
	ToolListSpecialties:           func() Operation { return &ListSpecialties{} },
	ToolListCities:                func() Operation { return &ListCities{} },
	ToolClassifyProcedure:         func() Operation { return &ClassifyProcedure{} },
	ToolGetAppointment:            func() Operation { return &GetAppointment{} },
	ToolListAppointmentsByDoctor:  func() Operation { return &ListAppointmentsByDoctor{} },
	ToolListAppointmentsByPatient: func() Operation { return &ListAppointmentsByPatient{} },
	ToolCancelAppointment:         func() Operation { return &CancelAppointment{} },
	ToolListFreeTimes:             func() Operation { return &ListFreeTimes{} },
}

// Decode turns a model tool call into its typed operation.
func Decode(call llm.ToolCall) (Operation, error) {
	newOp, ok := constructors[call.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}
	op := newOp()

	args := bytes.TrimSpace(call.Arguments)
	if len(args) > 0 && !bytes.Equal(args, []byte("null")) {
		if err := json.Unmarshal(args, op); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadArguments, call.Name, err)
		}
	}
	if err := op.validate(); err != nil {
		return nil, err
	}
	return op, nil
}

func str(desc string) llm.Property {
	return llm.Property{Type: "string", Description: desc}
}

// Tools declares every operation to the language model.
func Tools() []llm.ToolSpec {
	doctorID := str("ID do médico, por exemplo doc-001")
	date := str("Data no formato AAAA-MM-DD")
	tm := str("Horário no formato HH:MM")
	protocol := str("Protocolo do agendamento, começa com AGD")

	return []llm.ToolSpec{
		{
			Name:        ToolSearchDoctors,
			Description: "Busca médicos por especialidade e, opcionalmente, cidade.",
			Properties:  map[string]llm.Property{"specialty": str("Especialidade médica"), "city": str("Cidade (opcional)")},
			Required:    []string{"specialty"},
		},
		{
			Name:        ToolSearchDoctorsByCity,
			Description: "Lista os médicos que atendem em uma cidade.",
			Properties:  map[string]llm.Property{"city": str("Cidade")},
			Required:    []string{"city"},
		},
		{
			Name:        ToolCheckAvailability,
			Description: "Verifica se um horário de um médico está livre.",
			Properties:  map[string]llm.Property{"doctor_id": doctorID, "date": date, "time": tm},
			Required:    []string{"doctor_id", "date", "time"},
		},
		{
			Name:        ToolBookAppointment,
			Description: "Agenda uma consulta e devolve o protocolo. Confirme os dados com o paciente antes.",
			Properties: map[string]llm.Property{
				"doctor_id":    doctorID,
				"patient_name": str("Nome completo do paciente"),
				"date":         date,
				"time":         tm,
			},
			Required: []string{"doctor_id", "patient_name", "date", "time"},
		},
		{
			Name:        ToolListSpecialties,
			Description: "Lista as especialidades atendidas pela clínica.",
		},
		{
			Name:        ToolListCities,
			Description: "Lista as cidades onde há médicos disponíveis.",
		},
		{
			Name:        ToolClassifyProcedure,
			Description: "Classifica um procedimento para autorização e devolve prazo e protocolo.",
			Properties:  map[string]llm.Property{"procedure": str("Nome do procedimento como descrito pelo paciente")},
			Required:    []string{"procedure"},
		},
		{
			Name:        ToolGetAppointment,
			Description: "Consulta um agendamento pelo protocolo.",
			Properties:  map[string]llm.Property{"protocol": protocol},
			Required:    []string{"protocol"},
		},
		{
			Name:        ToolListAppointmentsByDoctor,
			Description: "Lista os agendamentos de um médico.",
			Properties:  map[string]llm.Property{"doctor_id": doctorID},
			Required:    []string{"doctor_id"},
		},
		{
			Name:        ToolListAppointmentsByPatient,
			Description: "Lista os agendamentos de um paciente pelo nome.",
			Properties:  map[string]llm.Property{"patient_name": str("Nome ou parte do nome do paciente")},
			Required:    []string{"patient_name"},
		},
		{
			Name:        ToolCancelAppointment,
			Description: "Cancela um agendamento confirmado pelo protocolo.",
			Properties:  map[string]llm.Property{"protocol": protocol},
			Required:    []string{"protocol"},
		},
		{
			Name:        ToolListFreeTimes,
			Description: "Lista os horários livres de um médico em uma data.",
			Properties:  map[string]llm.Property{"doctor_id": doctorID, "date": date},
			Required:    []string{"doctor_id", "date"},
		},
	}
}
