package appointment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedAppt(protocol, tm string) Appointment {
	return Appointment{
		DoctorID:    "doc-1",
		PatientName: "Ana",
		Date:        "2026-10-15",
		Time:        tm,
		Protocol:    protocol,
		Status:      StatusConfirmed,
	}
}

func TestMemoryRepository_CreateRejectsTakenSlot(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, confirmedAppt("P1", "09:00"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, confirmedAppt("P2", "09:00"))
	assert.ErrorIs(t, err, ErrConflict)

	_, err = repo.Create(ctx, confirmedAppt("P1", "10:00"))
	assert.ErrorIs(t, err, ErrConflict, "duplicate protocol")
}

func TestMemoryRepository_UpdateStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, confirmedAppt("P1", "09:00"))
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, "P1", StatusCancelled, StatusConfirmed)
	assert.ErrorIs(t, err, ErrAppointmentNotFound, "from-status mismatch")

	got, err := repo.UpdateStatus(ctx, "P1", StatusConfirmed, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	_, err = repo.GetConfirmedForSlot(ctx, got.Slot())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	times, err := repo.ConfirmedTimes(ctx, "doc-1", "2026-10-15")
	require.NoError(t, err)
	assert.Empty(t, times)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, confirmedAppt("P1", "09:00"))
	require.NoError(t, err)
	created.PatientName = "mutated"

	got, err := repo.GetByProtocol(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.PatientName)
}

func TestMemoryRepository_EventLogIsBounded(t *testing.T) {
	repo := NewMemoryRepositoryWithEventCap(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.InsertEvent(ctx, EventLog{EventType: EventAppointmentConfirmed}))
	}

	events := repo.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{events[0].ID, events[1].ID, events[2].ID})
}

func TestMemoryRepository_EventLogDisabled(t *testing.T) {
	repo := NewMemoryRepositoryWithEventCap(0)

	require.NoError(t, repo.InsertEvent(context.Background(), EventLog{EventType: EventAppointmentCancelled}))
	assert.Empty(t, repo.Events())
}
