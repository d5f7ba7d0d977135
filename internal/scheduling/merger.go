package scheduling

import "time"

// MatchTolerance is the maximum start-time drift between an appointment and
// the slot it books.
const MatchTolerance = 60 * time.Second

// Conflict records an appointment that matched a slot another appointment
// had already claimed. The kept appointment is the one earlier in input order.
type Conflict struct {
	SlotID               string    `json:"slot_id"`
	ClinicID             string    `json:"clinic_id"`
	DoctorID             string    `json:"doctor_id"`
	StartAt              time.Time `json:"start_at"`
	KeptAppointmentID    string    `json:"kept_appointment_id"`
	DroppedAppointmentID string    `json:"dropped_appointment_id"`
	DroppedStatus        string    `json:"dropped_status"`
}

// MergeResult is the outcome of overlaying appointments onto slots.
type MergeResult struct {
	Slots []Slot `json:"slots"`
	// Conflicts lists appointments dropped because their slot was taken.
	Conflicts []Conflict `json:"conflicts,omitempty"`
	// Unmatched lists appointments that fell outside every generated slot.
	// They are not represented in Slots.
	Unmatched []Appointment `json:"unmatched,omitempty"`
}

// Matches reports whether the appointment books the slot: same doctor, same
// clinic, and starts within MatchTolerance of the slot.
func Matches(a Appointment, s Slot) bool {
	if a.DoctorID != s.DoctorID || a.ClinicID != s.ClinicID {
		return false
	}
	diff := a.StartAt.Sub(s.StartAt)
	if diff < 0 {
		diff = -diff
	}
	return diff < MatchTolerance
}

// Merge overlays appointments onto slots. Each slot takes the first matching
// appointment in input order; its id becomes the appointment id and its state
// becomes Cancelled or Booked. Unmatched slots are Empty. Neither input is
// modified.
func Merge(slots []Slot, appointments []Appointment) MergeResult {
	out := make([]Slot, len(slots))
	used := make([]bool, len(appointments))

	var conflicts []Conflict
	for i, slot := range slots {
		merged := slot
		merged.State = Empty{}
		if slot.State != nil && slot.Status() != StatusEmpty {
			// A slot merged earlier keeps its current id; reset it so the
			// result only depends on the appointments passed in now.
			merged.ID = SlotID(slot.DoctorID, slot.ClinicID, slot.StartAt)
		}

		winner := -1
		for j, apt := range appointments {
			if !Matches(apt, slot) {
				continue
			}
			used[j] = true
			if winner < 0 {
				winner = j
				continue
			}
			conflicts = append(conflicts, Conflict{
				SlotID:               SlotID(slot.DoctorID, slot.ClinicID, slot.StartAt),
				ClinicID:             slot.ClinicID,
				DoctorID:             slot.DoctorID,
				StartAt:              slot.StartAt,
				KeptAppointmentID:    appointments[winner].ID,
				DroppedAppointmentID: apt.ID,
				DroppedStatus:        apt.Status,
			})
		}
		if winner >= 0 {
			merged = occupy(merged, appointments[winner])
		}
		out[i] = merged
	}

	var unmatched []Appointment
	for j, apt := range appointments {
		if !used[j] {
			unmatched = append(unmatched, apt)
		}
	}
	return MergeResult{Slots: out, Conflicts: conflicts, Unmatched: unmatched}
}

func occupy(s Slot, a Appointment) Slot {
	occ := Occupant{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		PatientName:   a.PatientName,
		PatientPhone:  a.PatientPhone,
	}
	s.ID = a.ID
	if a.Cancelled() {
		s.State = Cancelled{occ}
	} else {
		s.State = Booked{occ}
	}
	return s
}
