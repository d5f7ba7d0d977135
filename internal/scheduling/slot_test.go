package scheduling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotJSON_StateVariants(t *testing.T) {
	occ := Occupant{AppointmentID: "apt-1", PatientID: "p1", PatientName: "Dana", PatientPhone: "+15550100"}
	for _, state := range []SlotState{Empty{}, Booked{occ}, Cancelled{occ}} {
		in := Slot{
			ID:              "slot-1",
			ClinicID:        "clinic-1",
			DoctorID:        "doc-1",
			StartAt:         at("09:00"),
			EndAt:           at("09:30"),
			AppointmentType: FlexibleAppointmentType,
			State:           state,
		}
		raw, err := json.Marshal(in)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.Equal(t, string(state.Status()), fields["state"])
		if state.Status() == StatusEmpty {
			assert.NotContains(t, fields, "appointment_id")
		} else {
			assert.Equal(t, "apt-1", fields["appointment_id"])
		}

		var out Slot
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.Equal(t, in.State, out.State)
		assert.True(t, in.StartAt.Equal(out.StartAt))
	}
}

func TestSlotJSON_UnknownState(t *testing.T) {
	var s Slot
	err := json.Unmarshal([]byte(`{"id":"x","state":"held"}`), &s)
	assert.Error(t, err)
}

func TestSlot_NilStateIsEmpty(t *testing.T) {
	s := Slot{}
	assert.Equal(t, StatusEmpty, s.Status())
	_, ok := s.Occupant()
	assert.False(t, ok)
}

func TestGap(t *testing.T) {
	a := Slot{StartAt: at("09:00"), EndAt: at("09:30")}
	tests := []struct {
		name  string
		start time.Time
		want  int
	}{
		{"adjacent", at("09:30"), 0},
		{"ten minutes", at("09:40"), 10},
		{"rounds half up", at("09:30").Add(90 * time.Second), 2},
		{"rounds down", at("09:30").Add(29 * time.Second), 0},
		{"overlap clamps", at("09:15"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Slot{StartAt: tt.start, EndAt: tt.start.Add(30 * time.Minute)}
			assert.Equal(t, tt.want, Gap(a, b))
		})
	}
	assert.Nil(t, Gaps([]Slot{a}))
}
