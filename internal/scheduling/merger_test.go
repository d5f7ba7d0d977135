package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generated(t *testing.T) []Slot {
	t.Helper()
	slots, err := Generate([]AvailabilityRule{morningRule()}, monday, GenerateOptions{})
	require.NoError(t, err)
	return slots
}

func at(hhmm string) time.Time {
	tod, err := ParseTimeOfDay(hhmm)
	if err != nil {
		panic(err)
	}
	return tod.On(monday)
}

func TestMerge_BookedSlot(t *testing.T) {
	slots := generated(t)
	appts := []Appointment{{
		ID:           "apt-1",
		DoctorID:     "doc-1",
		ClinicID:     "clinic-1",
		StartAt:      at("09:00"),
		EndAt:        at("09:30"),
		Status:       "scheduled",
		PatientID:    "pat-1",
		PatientName:  "Dana Reyes",
		PatientPhone: "+15550100",
	}}

	res := Merge(slots, appts)
	require.Len(t, res.Slots, 4)

	first := res.Slots[0]
	assert.Equal(t, StatusBooked, first.Status())
	assert.Equal(t, "apt-1", first.ID)
	occ, ok := first.Occupant()
	require.True(t, ok)
	assert.Equal(t, Occupant{AppointmentID: "apt-1", PatientID: "pat-1", PatientName: "Dana Reyes", PatientPhone: "+15550100"}, occ)

	for _, s := range res.Slots[1:] {
		assert.Equal(t, StatusEmpty, s.Status())
		_, ok := s.Occupant()
		assert.False(t, ok)
	}
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Unmatched)
}

func TestMerge_CancelledAndTolerance(t *testing.T) {
	slots := generated(t)
	appts := []Appointment{
		{ID: "apt-c", DoctorID: "doc-1", ClinicID: "clinic-1", StartAt: at("09:30").Add(30 * time.Second), Status: "Cancelled"},
		{ID: "apt-late", DoctorID: "doc-1", ClinicID: "clinic-1", StartAt: at("10:00").Add(60 * time.Second), Status: "scheduled"},
		{ID: "apt-early", DoctorID: "doc-1", ClinicID: "clinic-1", StartAt: at("10:30").Add(-59 * time.Second), Status: "no_show"},
	}

	res := Merge(slots, appts)
	assert.Equal(t, StatusEmpty, res.Slots[0].Status())
	assert.Equal(t, StatusCancelled, res.Slots[1].Status())
	assert.Equal(t, "apt-c", res.Slots[1].ID)
	// Exactly 60s is outside the tolerance.
	assert.Equal(t, StatusEmpty, res.Slots[2].Status())
	assert.Equal(t, StatusBooked, res.Slots[3].Status())

	require.Len(t, res.Unmatched, 1)
	assert.Equal(t, "apt-late", res.Unmatched[0].ID)
}

func TestMerge_OtherDoctorOrClinicDoesNotMatch(t *testing.T) {
	slots := generated(t)
	appts := []Appointment{
		{ID: "a", DoctorID: "doc-2", ClinicID: "clinic-1", StartAt: at("09:00")},
		{ID: "b", DoctorID: "doc-1", ClinicID: "clinic-2", StartAt: at("09:00")},
	}
	res := Merge(slots, appts)
	for _, s := range res.Slots {
		assert.Equal(t, StatusEmpty, s.Status())
	}
	assert.Len(t, res.Unmatched, 2)
}

func TestMerge_FirstAppointmentWinsAndConflictReported(t *testing.T) {
	slots := generated(t)
	appts := []Appointment{
		{ID: "first", DoctorID: "doc-1", ClinicID: "clinic-1", StartAt: at("10:00"), Status: "scheduled"},
		{ID: "second", DoctorID: "doc-1", ClinicID: "clinic-1", StartAt: at("10:00").Add(10 * time.Second), Status: "confirmed"},
	}

	res := Merge(slots, appts)
	assert.Equal(t, "first", res.Slots[2].ID)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, "first", c.KeptAppointmentID)
	assert.Equal(t, "second", c.DroppedAppointmentID)
	assert.Equal(t, "confirmed", c.DroppedStatus)
	assert.Equal(t, SlotID("doc-1", "clinic-1", at("10:00")), c.SlotID)
	assert.Empty(t, res.Unmatched)
}

func TestMerge_Idempotent(t *testing.T) {
	slots := generated(t)
	appts := []Appointment{
		{ID: "apt-1", DoctorID: "doc-1", ClinicID: "clinic-1", StartAt: at("09:00"), Status: "scheduled", PatientID: "p1"},
		{ID: "apt-2", DoctorID: "doc-1", ClinicID: "clinic-1", StartAt: at("10:30"), Status: "cancelled", PatientID: "p2"},
	}

	once := Merge(slots, appts)
	twice := Merge(once.Slots, appts)
	assert.Equal(t, once.Slots, twice.Slots)
	assert.Equal(t, once.Conflicts, twice.Conflicts)
	assert.Equal(t, once.Unmatched, twice.Unmatched)

	// A rebook with fewer appointments clears stale occupants.
	again := Merge(once.Slots, appts[:1])
	assert.Equal(t, StatusEmpty, again.Slots[3].Status())
	assert.Equal(t, slots[3].ID, again.Slots[3].ID)
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	slots := generated(t)
	before := append([]Slot(nil), slots...)
	appts := []Appointment{{ID: "apt-1", DoctorID: "doc-1", ClinicID: "clinic-1", StartAt: at("09:00")}}

	Merge(slots, appts)
	assert.Equal(t, before, slots)
}

func TestMerge_Empty(t *testing.T) {
	res := Merge(nil, nil)
	assert.Empty(t, res.Slots)
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Unmatched)
}
