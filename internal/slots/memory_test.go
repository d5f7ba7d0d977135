package slots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

func TestMemoryAvailabilityIsolatesCopies(t *testing.T) {
	repo := NewMemoryAvailability()
	rule := morningRule()
	rule.Breaks = []scheduling.Break{{StartTime: "10:00", EndTime: "10:30"}}
	_, err := repo.Create(context.Background(), rule)
	require.NoError(t, err)

	_, err = repo.Create(context.Background(), rule)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	listed, err := repo.ListByDoctor(context.Background(), "doc-1", "clinic-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].Breaks[0].StartTime = "09:00"
	listed[0].DaysOfWeek[0] = scheduling.Sunday

	again, err := repo.ListByDoctor(context.Background(), "doc-1", "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, "10:00", again[0].Breaks[0].StartTime)
	assert.Equal(t, scheduling.Monday, again[0].DaysOfWeek[0])

	other, err := repo.ListByDoctor(context.Background(), "doc-1", "clinic-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryAppointmentsListByDay(t *testing.T) {
	repo := NewMemoryAppointments()
	for id, start := range map[string]time.Time{
		"today":     monday.Add(9 * time.Hour),
		"tomorrow":  monday.Add(33 * time.Hour),
		"yesterday": monday.Add(-time.Hour),
	} {
		_, err := repo.Create(context.Background(), scheduling.Appointment{ID: id, ClinicID: "clinic-1", DoctorID: "doc-1", StartAt: start})
		require.NoError(t, err)
	}

	got, err := repo.ListByDay(context.Background(), "clinic-1", "doc-1", monday.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "today", got[0].ID)

	_, err = repo.Get(context.Background(), "clinic-2", "today")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryWaitlistOrdersAndFilters(t *testing.T) {
	repo := NewMemoryWaitlist()
	base := monday
	entries := []scheduling.WaitlistEntry{
		{ID: "b", ClinicID: "clinic-1", CreatedAt: base},
		{ID: "a", ClinicID: "clinic-1", CreatedAt: base},
		{ID: "first", ClinicID: "clinic-1", CreatedAt: base.Add(-time.Hour), RequestedDoctorID: "doc-2"},
		{ID: "inactive", ClinicID: "clinic-1", Status: "removed"},
		{ID: "typed", ClinicID: "clinic-1", CreatedAt: base.Add(time.Hour), AppointmentType: "Filler"},
	}
	for _, e := range entries {
		_, err := repo.Create(context.Background(), e)
		require.NoError(t, err)
	}

	all, err := repo.ListActive(context.Background(), "clinic-1", WaitlistFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "a", "b", "typed"}, entryIDs(all))

	byDoctor, err := repo.ListActive(context.Background(), "clinic-1", WaitlistFilter{DoctorID: "doc-1", AppointmentType: "filler"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "typed"}, entryIDs(byDoctor))

	updated := all[1]
	updated.Status = "booked"
	updated.CreatedAt = time.Time{}
	_, err = repo.Update(context.Background(), updated)
	require.NoError(t, err)
	remaining, err := repo.ListActive(context.Background(), "clinic-1", WaitlistFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "b", "typed"}, entryIDs(remaining))
}

func entryIDs(entries []scheduling.WaitlistEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestMemoryWaitlistGet(t *testing.T) {
	repo := NewMemoryWaitlist()
	_, err := repo.Create(context.Background(), scheduling.WaitlistEntry{
		ID:            "w-1",
		ClinicID:      "clinic-1",
		Status:        scheduling.WaitlistStatusRemoved,
		PreferredDays: []scheduling.Weekday{scheduling.Monday},
	})
	require.NoError(t, err)

	e, err := repo.Get(context.Background(), "clinic-1", "w-1")
	require.NoError(t, err)
	assert.Equal(t, scheduling.WaitlistStatusRemoved, e.Status)
	e.PreferredDays[0] = scheduling.Sunday

	again, err := repo.Get(context.Background(), "clinic-1", "w-1")
	require.NoError(t, err)
	assert.Equal(t, scheduling.Monday, again.PreferredDays[0])

	_, err = repo.Get(context.Background(), "clinic-2", "w-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
