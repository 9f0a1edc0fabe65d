package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-agent/internal/observability"
	"github.com/hackgods/clinic-booking-agent/internal/protocol"
	redisclient "github.com/hackgods/clinic-booking-agent/internal/redis"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
)

const (
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

var (
	ErrInvalidSlot      = errors.New("date or time is not offered by this doctor")
	ErrInvalidPatient   = errors.New("patient name is required")
	ErrOutOfWindow      = errors.New("date is outside the booking window")
	ErrAlreadyCancelled = errors.New("appointment is already cancelled")
)

// Service is the booking ledger. It validates requests against the registry
// and the booking window, then reserves slots through the repository.
type Service struct {
	repo      Repository
	registry  registry.Registry
	locker    Locker
	protocols *protocol.Generator
	now       func() time.Time
	loc       *time.Location
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

type Option func(*Service)

// WithClock overrides the time source used for the booking window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the clinic timezone in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithProtocolGenerator(g *protocol.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.protocols = g
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires a ledger. A nil locker falls back to a LocalSlotLocker.
func NewService(repo Repository, reg registry.Registry, locker Locker, opts ...Option) *Service {
	if repo == nil {
		panic("appointment: repository cannot be nil")
	}
	if reg == nil {
		panic("appointment: registry cannot be nil")
	}
	if locker == nil {
		locker = NewLocalSlotLocker()
	}
	s := &Service{
		repo:      repo,
		registry:  reg,
		locker:    locker,
		protocols: protocol.NewGenerator(protocol.BookingPrefix),
		now:       time.Now,
		loc:       time.UTC,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the first and last bookable dates: today through exactly one
// month from today, inclusive, in the clinic timezone. When the next month is
// shorter, the window ends on its last day.
func (s *Service) Window() (first, last time.Time) {
	now := s.now().In(s.loc)
	first = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	last = first.AddDate(0, 1, 0)
	if last.Day() != first.Day() {
		last = time.Date(first.Year(), first.Month()+2, 0, 0, 0, 0, 0, s.loc)
	}
	return first, last
}

func (s *Service) inWindow(day time.Time) bool {
	first, last := s.Window()
	return !day.Before(first) && !day.After(last)
}

// IsAvailable reports whether no confirmed appointment holds the slot.
func (s *Service) IsAvailable(ctx context.Context, doctorID, date, tm string) (bool, error) {
	if _, err := s.doctor(doctorID); err != nil {
		return false, err
	}
	_, err := s.repo.GetConfirmedForSlot(ctx, Slot{DoctorID: doctorID, Date: date, Time: tm})
	if errors.Is(err, ErrAppointmentNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return false, nil
}

// Book reserves the slot for patientName and returns the confirmed
// appointment. The window is checked before the doctor's declared
// availability, so far-future dates always fail with ErrOutOfWindow.
func (s *Service) Book(ctx context.Context, doctorID, patientName, date, tm string) (*Appointment, error) {
	appt, err := s.book(ctx, doctorID, patientName, date, tm)
	s.metrics.ObserveBooking(bookingResult(err))
	return appt, err
}

func (s *Service) book(ctx context.Context, doctorID, patientName, date, tm string) (*Appointment, error) {
	doc, err := s.doctor(doctorID)
	if err != nil {
		return nil, err
	}

	patientName = strings.TrimSpace(patientName)
	if patientName == "" {
		return nil, ErrInvalidPatient
	}

	day, err := time.ParseInLocation(registry.DateLayout, date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidSlot, date)
	}
	if !s.inWindow(day) {
		return nil, ErrOutOfWindow
	}
	if _, err := time.Parse(registry.TimeLayout, tm); err != nil {
		return nil, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidSlot, tm)
	}
	if !doc.HasDate(date) || !doc.HasTime(tm) {
		return nil, ErrInvalidSlot
	}

	slot := Slot{DoctorID: doctorID, Date: date, Time: tm}
	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slot.Key(), func(lockCtx context.Context) error {
		// Inside the critical section re-check for confirmed appointment for this slot
		existing, err := s.repo.GetConfirmedForSlot(lockCtx, slot)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check confirmed appointment: %w", err)
		}
		if existing != nil {
			return ErrConflict
		}

		now := s.now()
		appt, err := s.repo.Create(lockCtx, Appointment{
			ID:          uuid.New(),
			DoctorID:    doctorID,
			PatientName: patientName,
			Date:        date,
			Time:        tm,
			Protocol:    s.protocols.Next(),
			Status:      StatusConfirmed,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		s.logEvent(lockCtx, appt.ID, EventAppointmentConfirmed, map[string]any{
			"doctor_id": doctorID,
			"date":      date,
			"time":      tm,
			"protocol":  appt.Protocol,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: slot is currently being booked", ErrConflict)
		}
		return nil, err
	}

	s.logger.Info().
		Str("protocol", created.Protocol).
		Str("doctor_id", doctorID).
		Str("date", date).
		Str("time", tm).
		Msg("appointment confirmed")

	return created, nil
}

// GetByProtocol returns the appointment issued under protocol.
func (s *Service) GetByProtocol(ctx context.Context, protocol string) (*Appointment, error) {
	appt, err := s.repo.GetByProtocol(ctx, strings.TrimSpace(protocol))
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// Cancel moves a confirmed appointment to cancelled, freeing its slot.
func (s *Service) Cancel(ctx context.Context, protocol string) (*Appointment, error) {
	appt, err := s.GetByProtocol(ctx, protocol)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.Protocol, StatusConfirmed, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another cancellation.
			return nil, ErrAlreadyCancelled
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"protocol": updated.Protocol,
	})
	s.logger.Info().Str("protocol", updated.Protocol).Msg("appointment cancelled")

	return updated, nil
}

// ListByDoctor returns every appointment, confirmed or cancelled, of a doctor.
func (s *Service) ListByDoctor(ctx context.Context, doctorID string) ([]Appointment, error) {
	if _, err := s.doctor(doctorID); err != nil {
		return nil, err
	}
	appts, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

// ListByPatient returns appointments whose patient name contains name,
// ignoring case and accents.
func (s *Service) ListByPatient(ctx context.Context, name string) ([]Appointment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidPatient
	}
	appts, err := s.repo.ListByPatient(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// FreeTimes returns the declared times on date that hold no confirmed
// appointment, in ascending order.
func (s *Service) FreeTimes(ctx context.Context, doctorID, date string) ([]string, error) {
	doc, err := s.doctor(doctorID)
	if err != nil {
		return nil, err
	}
	if !doc.HasDate(date) {
		return nil, ErrInvalidSlot
	}

	taken, err := s.repo.ConfirmedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load confirmed times: %w", err)
	}

	free := make([]string, 0, len(doc.AvailableTimes))
	for _, tm := range doc.AvailableTimes {
		if !slices.Contains(taken, tm) {
			free = append(free, tm)
		}
	}
	return free, nil
}

func (s *Service) doctor(id string) (*registry.Doctor, error) {
	doc, err := s.registry.GetDoctor(id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return doc, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrOutOfWindow):
		return "out_of_window"
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrInvalidPatient):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
