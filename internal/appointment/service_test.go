package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-agent/internal/protocol"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
)

// 2026-10-14 is a Wednesday; doc-001 is offered on the next ten weekdays
// at every default time.
var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	reg, err := registry.NewMemoryRegistry(registry.DefaultRoster(testNow))
	require.NoError(t, err)

	repo := NewMemoryRepository()
	clock := func() time.Time { return testNow }
	svc := NewService(repo, reg, NewLocalSlotLocker(),
		WithClock(clock),
		WithLocation(time.UTC),
		WithProtocolGenerator(protocol.NewGeneratorWithClock(protocol.BookingPrefix, clock)),
	)
	return svc, repo
}

func TestBook_ConfirmsAndIssuesProtocol(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	appt, err := svc.Book(ctx, "doc-001", "Maria Oliveira", "2026-10-15", "09:00")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Regexp(t, `^AGD20261014100000-[0-9A-F]{8}-000001$`, appt.Protocol)

	ok, err := svc.IsAvailable(ctx, "doc-001", "2026-10-15", "09:00")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := svc.GetByProtocol(ctx, appt.Protocol)
	require.NoError(t, err)
	assert.Equal(t, "Maria Oliveira", got.PatientName)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentConfirmed, events[0].EventType)
}

func TestBook_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		doctor  string
		patient string
		date    string
		time    string
		wantErr error
	}{
		{"unknown doctor", "doc-999", "Ana", "2026-10-15", "09:00", ErrDoctorNotFound},
		{"blank patient", "doc-001", "   ", "2026-10-15", "09:00", ErrInvalidPatient},
		{"bad date format", "doc-001", "Ana", "15/10/2026", "09:00", ErrInvalidSlot},
		{"bad time format", "doc-001", "Ana", "2026-10-15", "9h", ErrInvalidSlot},
		{"undeclared time", "doc-001", "Ana", "2026-10-15", "12:00", ErrInvalidSlot},
		{"undeclared date in window", "doc-001", "Ana", "2026-11-14", "09:00", ErrInvalidSlot},
		{"weekend date", "doc-001", "Ana", "2026-10-17", "09:00", ErrInvalidSlot},
		{"past date", "doc-001", "Ana", "2026-10-13", "09:00", ErrOutOfWindow},
		{"beyond one month", "doc-001", "Ana", "2026-11-15", "09:00", ErrOutOfWindow},
		{"far future", "doc-001", "Ana", "2027-06-01", "09:00", ErrOutOfWindow},
		{"morning-only doctor afternoon", "doc-002", "Ana", "2026-10-15", "14:00", ErrInvalidSlot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(ctx, tt.doctor, tt.patient, tt.date, tt.time)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBook_SecondBookingConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, "doc-001", "Maria", "2026-10-15", "09:00")
	require.NoError(t, err)

	_, err = svc.Book(ctx, "doc-001", "João", "2026-10-15", "09:00")
	assert.ErrorIs(t, err, ErrConflict)

	// Other slots of the same doctor are unaffected.
	_, err = svc.Book(ctx, "doc-001", "João", "2026-10-15", "10:00")
	assert.NoError(t, err)
}

func TestBook_ConcurrentRequestsYieldOneConfirmation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	const workers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		conflicts int
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Book(ctx, "doc-001", "Paciente", "2026-10-16", "14:00")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, confirmed)
	assert.Equal(t, workers-1, conflicts)

	appts, err := repo.ListByDoctor(ctx, "doc-001")
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestCancel_FreesSlot(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	appt, err := svc.Book(ctx, "doc-001", "Maria", "2026-10-15", "09:00")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, appt.Protocol)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = svc.Cancel(ctx, appt.Protocol)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	ok, err := svc.IsAvailable(ctx, "doc-001", "2026-10-15", "09:00")
	require.NoError(t, err)
	assert.True(t, ok)

	rebooked, err := svc.Book(ctx, "doc-001", "João", "2026-10-15", "09:00")
	require.NoError(t, err)
	assert.NotEqual(t, appt.Protocol, rebooked.Protocol)

	// The cancelled record is kept for history.
	appts, err := svc.ListByDoctor(ctx, "doc-001")
	require.NoError(t, err)
	assert.Len(t, appts, 2)

	events := repo.Events()
	require.Len(t, events, 3)
	assert.Equal(t, EventAppointmentCancelled, events[1].EventType)
}

func TestCancel_UnknownProtocol(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Cancel(context.Background(), "AGD-does-not-exist")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFreeTimes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, "doc-001", "Maria", "2026-10-15", "10:00")
	require.NoError(t, err)
	_, err = svc.Book(ctx, "doc-001", "Maria", "2026-10-15", "15:00")
	require.NoError(t, err)

	free, err := svc.FreeTimes(ctx, "doc-001", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "11:00", "14:00", "16:00"}, free)

	_, err = svc.FreeTimes(ctx, "doc-001", "2026-10-18")
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = svc.FreeTimes(ctx, "doc-404", "2026-10-15")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestListByPatient_IgnoresCaseAndAccents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, "doc-001", "João da Silva", "2026-10-15", "09:00")
	require.NoError(t, err)
	_, err = svc.Book(ctx, "doc-003", "Maria Souza", "2026-10-15", "14:00")
	require.NoError(t, err)

	got, err := svc.ListByPatient(ctx, "joao")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "João da Silva", got[0].PatientName)

	_, err = svc.ListByPatient(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidPatient)
}

func TestWindow_InclusiveOneMonth(t *testing.T) {
	svc, _ := newTestService(t)

	first, last := svc.Window()
	assert.Equal(t, "2026-10-14", first.Format(registry.DateLayout))
	assert.Equal(t, "2026-11-14", last.Format(registry.DateLayout))
}

func TestWindow_ClampsToEndOfNextMonth(t *testing.T) {
	tests := []struct {
		today string
		last  string
	}{
		{"2027-01-31", "2027-02-28"},
		{"2027-01-29", "2027-02-28"},
		{"2028-01-30", "2028-02-29"},
		{"2027-03-31", "2027-04-30"},
		{"2027-08-31", "2027-09-30"},
		{"2027-12-31", "2028-01-31"},
		{"2027-02-28", "2027-03-28"},
	}
	for _, tt := range tests {
		t.Run(tt.today, func(t *testing.T) {
			today, err := time.Parse(registry.DateLayout, tt.today)
			require.NoError(t, err)
			svc := NewService(NewMemoryRepository(), nil, NewLocalSlotLocker(),
				WithClock(func() time.Time { return today.Add(10 * time.Hour) }),
				WithLocation(time.UTC),
			)

			first, last := svc.Window()
			assert.Equal(t, tt.today, first.Format(registry.DateLayout))
			assert.Equal(t, tt.last, last.Format(registry.DateLayout))
		})
	}
}

func TestBook_MonthEndRejectsOverflowDate(t *testing.T) {
	today := time.Date(2027, time.January, 31, 10, 0, 0, 0, time.UTC)
	reg, err := registry.NewMemoryRegistry([]registry.Doctor{{
		ID:             "doc-900",
		Name:           "Dra. Teste",
		Specialty:      registry.Specialties[0],
		City:           "São Paulo",
		AvailableDates: []string{"2027-02-28", "2027-03-03"},
		AvailableTimes: []string{"09:00"},
	}})
	require.NoError(t, err)
	svc := NewService(NewMemoryRepository(), reg, NewLocalSlotLocker(),
		WithClock(func() time.Time { return today }),
		WithLocation(time.UTC),
	)
	ctx := context.Background()

	_, err = svc.Book(ctx, "doc-900", "Ana Souza", "2027-03-03", "09:00")
	assert.ErrorIs(t, err, ErrOutOfWindow)

	_, err = svc.Book(ctx, "doc-900", "Ana Souza", "2027-02-28", "09:00")
	assert.NoError(t, err)
}
