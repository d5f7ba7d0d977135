package slots

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

func TestCreateAvailabilityValidates(t *testing.T) {
	f := newFixture(t)
	rule := morningRule()
	rule.ID = ""
	rule.DaysOfWeek = []scheduling.Weekday{"Friday"}

	saved, err := f.svc.CreateAvailability(context.Background(), rule)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, []scheduling.Weekday{scheduling.Friday}, saved.DaysOfWeek)

	tests := []struct {
		name   string
		mutate func(*scheduling.AvailabilityRule)
		want   error
	}{
		{"unknown weekday", func(r *scheduling.AvailabilityRule) { r.DaysOfWeek = []scheduling.Weekday{"funday"} }, scheduling.ErrInvalidScheduleConfiguration},
		{"inverted window", func(r *scheduling.AvailabilityRule) { r.StartTime, r.EndTime = "12:00", "09:00" }, scheduling.ErrInvalidScheduleConfiguration},
		{"break outside window", func(r *scheduling.AvailabilityRule) {
			r.Breaks = []scheduling.Break{{StartTime: "08:00", EndTime: "08:30"}}
		}, scheduling.ErrInvalidScheduleConfiguration},
		{"missing doctor", func(r *scheduling.AvailabilityRule) { r.DoctorID = "" }, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := morningRule()
			r.ID = ""
			tt.mutate(&r)
			_, err := f.svc.CreateAvailability(context.Background(), r)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateAvailabilityNotFound(t *testing.T) {
	f := newFixture(t)
	rule := morningRule()
	rule.ID = "missing"
	_, err := f.svc.UpdateAvailability(context.Background(), rule)
	assert.ErrorIs(t, err, ErrNotFound)

	rule.ID = ""
	_, err = f.svc.UpdateAvailability(context.Background(), rule)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateAppointmentDefaults(t *testing.T) {
	f := newFixture(t)
	apt, err := f.svc.CreateAppointment(context.Background(), scheduling.Appointment{
		ClinicID: "clinic-1",
		DoctorID: "doc-1",
		StartAt:  at(t, "09:00"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, apt.ID)
	assert.Equal(t, "scheduled", apt.Status)

	_, err = f.svc.CreateAppointment(context.Background(), scheduling.Appointment{
		ClinicID: "clinic-1",
		DoctorID: "doc-1",
		StartAt:  at(t, "09:00"),
		EndAt:    at(t, "08:30"),
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUpdateAppointmentCancellationOpensSlot(t *testing.T) {
	f := newFixture(t)
	f.book(t, "apt-1", "09:30", "scheduled")

	cancelled := "Cancelled"
	apt, err := f.svc.UpdateAppointment(context.Background(), "clinic-1", "apt-1", AppointmentUpdate{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", apt.Status)

	opened := f.recorder.ofType(events.TypeSlotOpened)
	require.Len(t, opened, 1)
	var evt events.SlotOpenedV1
	require.NoError(t, json.Unmarshal(opened[0].env.Payload, &evt))
	assert.Equal(t, events.ReasonCancellation, evt.Reason)
	assert.Equal(t, "apt-1", evt.AppointmentID)
	assert.Equal(t, scheduling.SlotID("doc-1", "clinic-1", at(t, "09:30")), evt.SlotID)
	assert.True(t, evt.StartAt.Equal(at(t, "09:30")))

	// Cancelling again does not reopen the slot.
	_, err = f.svc.UpdateAppointment(context.Background(), "clinic-1", "apt-1", AppointmentUpdate{Status: &cancelled})
	require.NoError(t, err)
	assert.Len(t, f.recorder.ofType(events.TypeSlotOpened), 1)

	sched, err := f.svc.DaySchedule(context.Background(), DayScheduleRequest{ClinicID: "clinic-1", DoctorID: "doc-1", Date: monday})
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, sched.Slots[1].Status())
}

func TestUpdateAppointmentNoShowReason(t *testing.T) {
	f := newFixture(t)
	f.book(t, "apt-1", "10:00", "confirmed")

	status := AppointmentStatusNoShow
	_, err := f.svc.UpdateAppointment(context.Background(), "clinic-1", "apt-1", AppointmentUpdate{Status: &status})
	require.NoError(t, err)
	opened := f.recorder.ofType(events.TypeSlotOpened)
	require.Len(t, opened, 1)
	assert.Equal(t, events.ReasonNoShow, opened[0].evt.(events.SlotOpenedV1).Reason)
}

func TestUpdateAppointmentErrors(t *testing.T) {
	f := newFixture(t)
	status := "cancelled"
	_, err := f.svc.UpdateAppointment(context.Background(), "clinic-1", "missing", AppointmentUpdate{Status: &status})
	assert.ErrorIs(t, err, ErrNotFound)

	f.book(t, "apt-1", "10:00", "scheduled")
	_, err = f.svc.UpdateAppointment(context.Background(), "clinic-2", "apt-1", AppointmentUpdate{Status: &status})
	assert.ErrorIs(t, err, ErrNotFound)

	empty := " "
	_, err = f.svc.UpdateAppointment(context.Background(), "clinic-1", "apt-1", AppointmentUpdate{Status: &empty})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateWaitlistEntryNormalizes(t *testing.T) {
	f := newFixture(t)
	entry, err := f.svc.CreateWaitlistEntry(context.Background(), scheduling.WaitlistEntry{
		ClinicID:            "clinic-1",
		PatientID:           "p1",
		PreferredDays:       []scheduling.Weekday{"Monday", "wednesday"},
		PreferredTimeWindow: "Morning",
		Priority:            "HIGH",
	})
	require.NoError(t, err)
	assert.Equal(t, []scheduling.Weekday{scheduling.Monday, scheduling.Wednesday}, entry.PreferredDays)
	assert.Equal(t, scheduling.WindowMorning, entry.PreferredTimeWindow)
	assert.Equal(t, scheduling.PriorityHigh, entry.Priority)
	assert.Equal(t, scheduling.WaitlistStatusActive, entry.Status)
	assert.False(t, entry.CreatedAt.IsZero())

	defaults, err := f.svc.CreateWaitlistEntry(context.Background(), scheduling.WaitlistEntry{ClinicID: "clinic-1", PatientID: "p2"})
	require.NoError(t, err)
	assert.Equal(t, scheduling.PriorityNormal, defaults.Priority)

	_, err = f.svc.CreateWaitlistEntry(context.Background(), scheduling.WaitlistEntry{ClinicID: "clinic-1", PatientID: "p3", PreferredTimeWindow: "night"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.CreateWaitlistEntry(context.Background(), scheduling.WaitlistEntry{ClinicID: "clinic-1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	listed, err := f.svc.ListWaitlist(context.Background(), "clinic-1", WaitlistFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestUpdateWaitlistEntry(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.CreateWaitlistEntry(context.Background(), scheduling.WaitlistEntry{
		ID:        "w-1",
		ClinicID:  "clinic-1",
		PatientID: "p1",
		Priority:  scheduling.PriorityLow,
	})
	require.NoError(t, err)

	priority := "HIGH"
	window := "Afternoon"
	days := []scheduling.Weekday{"Friday"}
	updated, err := f.svc.UpdateWaitlistEntry(context.Background(), "clinic-1", "w-1", WaitlistUpdate{
		Priority:            &priority,
		PreferredTimeWindow: &window,
		PreferredDays:       &days,
	})
	require.NoError(t, err)
	assert.Equal(t, scheduling.PriorityHigh, updated.Priority)
	assert.Equal(t, scheduling.WindowAfternoon, updated.PreferredTimeWindow)
	assert.Equal(t, []scheduling.Weekday{scheduling.Friday}, updated.PreferredDays)
	assert.Equal(t, scheduling.WaitlistStatusActive, updated.Status)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	booked := " Booked "
	updated, err = f.svc.UpdateWaitlistEntry(context.Background(), "clinic-1", "w-1", WaitlistUpdate{Status: &booked})
	require.NoError(t, err)
	assert.Equal(t, scheduling.WaitlistStatusBooked, updated.Status)
	assert.Equal(t, scheduling.PriorityHigh, updated.Priority)

	listed, err := f.svc.ListWaitlist(context.Background(), "clinic-1", WaitlistFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	active := "active"
	updated, err = f.svc.UpdateWaitlistEntry(context.Background(), "clinic-1", "w-1", WaitlistUpdate{Status: &active})
	require.NoError(t, err)
	assert.True(t, updated.Active())
}

func TestUpdateWaitlistEntryErrors(t *testing.T) {
	f := newFixture(t)
	f.wait(t, scheduling.WaitlistEntry{ID: "w-1", PatientID: "p1"})

	unknown := "paused"
	_, err := f.svc.UpdateWaitlistEntry(context.Background(), "clinic-1", "w-1", WaitlistUpdate{Status: &unknown})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	urgent := "urgent"
	_, err = f.svc.UpdateWaitlistEntry(context.Background(), "clinic-1", "w-1", WaitlistUpdate{Priority: &urgent})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	badDays := []scheduling.Weekday{"someday"}
	_, err = f.svc.UpdateWaitlistEntry(context.Background(), "clinic-1", "w-1", WaitlistUpdate{PreferredDays: &badDays})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.UpdateWaitlistEntry(context.Background(), "clinic-2", "w-1", WaitlistUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.UpdateWaitlistEntry(context.Background(), "clinic-1", "", WaitlistUpdate{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDispatchSkipsBookedWaitlistEntry(t *testing.T) {
	f := newFixture(t)
	f.wait(t, scheduling.WaitlistEntry{ID: "w-1", PatientID: "p1", RequestedDoctorID: "doc-1"})
	f.wait(t, scheduling.WaitlistEntry{ID: "w-2", PatientID: "p2"})

	booked := scheduling.WaitlistStatusBooked
	_, err := f.svc.UpdateWaitlistEntry(context.Background(), "clinic-1", "w-1", WaitlistUpdate{Status: &booked})
	require.NoError(t, err)

	d := NewSlotOpenedDispatcher(f.waitlist, nil)
	res, err := d.Dispatch(context.Background(), events.SlotOpenedV1{
		EventID:  "evt-1",
		ClinicID: "clinic-1",
		DoctorID: "doc-1",
		StartAt:  at(t, "09:00"),
		EndAt:    at(t, "09:30"),
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "w-2", res.Candidates[0].Entry.ID)
}
