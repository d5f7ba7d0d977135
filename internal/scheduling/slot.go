package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FlexibleAppointmentType labels generated slots that are not tied to a type.
const FlexibleAppointmentType = "flexible"

// SlotStatus is the discriminator of a SlotState.
type SlotStatus string

const (
	StatusEmpty     SlotStatus = "empty"
	StatusBooked    SlotStatus = "booked"
	StatusCancelled SlotStatus = "cancelled"
)

// SlotState is one of Empty, Booked or Cancelled.
type SlotState interface {
	Status() SlotStatus
	slotState()
}

// Occupant identifies the appointment and patient attached to a slot.
type Occupant struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
	PatientPhone  string `json:"patient_phone,omitempty"`
}

// Empty is the state of a slot no appointment matched.
type Empty struct{}

// Booked is the state of a slot matched by a live appointment.
type Booked struct{ Occupant }

// Cancelled is the state of a slot matched by a cancelled appointment.
type Cancelled struct{ Occupant }

func (Empty) Status() SlotStatus     { return StatusEmpty }
func (Booked) Status() SlotStatus    { return StatusBooked }
func (Cancelled) Status() SlotStatus { return StatusCancelled }

func (Empty) slotState()     {}
func (Booked) slotState()    {}
func (Cancelled) slotState() {}

// Slot is a discrete bookable interval for one concrete date.
type Slot struct {
	ID              string
	ClinicID        string
	DoctorID        string
	StartAt         time.Time
	EndAt           time.Time
	AppointmentType string
	State           SlotState
}

// Status returns the slot's state discriminator. A nil state is Empty.
func (s Slot) Status() SlotStatus {
	if s.State == nil {
		return StatusEmpty
	}
	return s.State.Status()
}

// Occupant returns the attached appointment, if any.
func (s Slot) Occupant() (Occupant, bool) {
	switch st := s.State.(type) {
	case Booked:
		return st.Occupant, true
	case Cancelled:
		return st.Occupant, true
	default:
		return Occupant{}, false
	}
}

// Duration is EndAt minus StartAt.
func (s Slot) Duration() time.Duration {
	return s.EndAt.Sub(s.StartAt)
}

// slotNamespace scopes deterministic slot ids.
var slotNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("clinic-scheduling/slot"))

// SlotID derives the id of a generated slot from doctor, clinic and start.
// The same inputs always return the same id.
func SlotID(doctorID, clinicID string, startAt time.Time) string {
	key := fmt.Sprintf("%s|%s|%s", doctorID, clinicID, startAt.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(slotNamespace, []byte(key)).String()
}

type slotJSON struct {
	ID              string     `json:"id"`
	ClinicID        string     `json:"clinic_id"`
	DoctorID        string     `json:"doctor_id"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           time.Time  `json:"end_at"`
	AppointmentType string     `json:"appointment_type,omitempty"`
	State           SlotStatus `json:"state"`
	AppointmentID   string     `json:"appointment_id,omitempty"`
	PatientID       string     `json:"patient_id,omitempty"`
	PatientName     string     `json:"patient_name,omitempty"`
	PatientPhone    string     `json:"patient_phone,omitempty"`
}

// MarshalJSON flattens the state into a "state" discriminator plus the
// occupant fields when present.
func (s Slot) MarshalJSON() ([]byte, error) {
	out := slotJSON{
		ID:              s.ID,
		ClinicID:        s.ClinicID,
		DoctorID:        s.DoctorID,
		StartAt:         s.StartAt,
		EndAt:           s.EndAt,
		AppointmentType: s.AppointmentType,
		State:           s.Status(),
	}
	if occ, ok := s.Occupant(); ok {
		out.AppointmentID = occ.AppointmentID
		out.PatientID = occ.PatientID
		out.PatientName = occ.PatientName
		out.PatientPhone = occ.PatientPhone
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the state variant from the discriminator.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var in slotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	occ := Occupant{
		AppointmentID: in.AppointmentID,
		PatientID:     in.PatientID,
		PatientName:   in.PatientName,
		PatientPhone:  in.PatientPhone,
	}
	var state SlotState
	switch in.State {
	case "", StatusEmpty:
		state = Empty{}
	case StatusBooked:
		state = Booked{occ}
	case StatusCancelled:
		state = Cancelled{occ}
	default:
		return fmt.Errorf("scheduling: unknown slot state %q", in.State)
	}
	*s = Slot{
		ID:              in.ID,
		ClinicID:        in.ClinicID,
		DoctorID:        in.DoctorID,
		StartAt:         in.StartAt,
		EndAt:           in.EndAt,
		AppointmentType: in.AppointmentType,
		State:           state,
	}
	return nil
}
