package events

import (
	"time"

	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

const (
	TypeSlotOpened       = "slot.opened.v1"
	TypeCandidatesRanked = "waitlist.candidates_ranked.v1"
	TypeSlotConflict     = "slot.conflict_detected.v1"
)

// Reasons a slot opens.
const (
	ReasonCancellation  = "cancellation"
	ReasonNoShow        = "no_show"
	ReasonManualRelease = "manual_release"
)

// SlotOpenedV1 announces that a booked slot became free.
type SlotOpenedV1 struct {
	EventID         string    `json:"event_id"`
	ClinicID        string    `json:"clinic_id"`
	DoctorID        string    `json:"doctor_id"`
	SlotID          string    `json:"slot_id"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	AppointmentType string    `json:"appointment_type,omitempty"`
	AppointmentID   string    `json:"appointment_id,omitempty"`
	Reason          string    `json:"reason"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (SlotOpenedV1) EventType() string { return TypeSlotOpened }

// Slot rebuilds the freed slot as an empty scheduling slot.
func (e SlotOpenedV1) Slot() scheduling.Slot {
	id := e.SlotID
	if id == "" {
		id = scheduling.SlotID(e.DoctorID, e.ClinicID, e.StartAt)
	}
	return scheduling.Slot{
		ID:              id,
		ClinicID:        e.ClinicID,
		DoctorID:        e.DoctorID,
		StartAt:         e.StartAt,
		EndAt:           e.EndAt,
		AppointmentType: e.AppointmentType,
		State:           scheduling.Empty{},
	}
}

// Candidate is one ranked waitlist entry.
type Candidate struct {
	WaitlistEntryID string                    `json:"waitlist_entry_id"`
	PatientID       string                    `json:"patient_id"`
	PatientName     string                    `json:"patient_name,omitempty"`
	PatientPhone    string                    `json:"patient_phone,omitempty"`
	Score           int                       `json:"score"`
	Breakdown       scheduling.ScoreBreakdown `json:"breakdown"`
}

// WaitlistCandidatesRankedV1 records the ranking produced for an opened slot.
type WaitlistCandidatesRankedV1 struct {
	EventID       string      `json:"event_id"`
	SourceEventID string      `json:"source_event_id,omitempty"`
	ClinicID      string      `json:"clinic_id"`
	DoctorID      string      `json:"doctor_id"`
	SlotID        string      `json:"slot_id"`
	StartAt       time.Time   `json:"start_at"`
	Reason        string      `json:"reason,omitempty"`
	Policy        string      `json:"policy"`
	Limit         int         `json:"limit"`
	EntriesSeen   int         `json:"entries_seen"`
	Candidates    []Candidate `json:"candidates"`
	RankedAt      time.Time   `json:"ranked_at"`
}

func (WaitlistCandidatesRankedV1) EventType() string { return TypeCandidatesRanked }

// SlotConflictDetectedV1 reports an appointment dropped during a merge
// because another appointment already held its slot.
type SlotConflictDetectedV1 struct {
	EventID              string    `json:"event_id"`
	ClinicID             string    `json:"clinic_id"`
	DoctorID             string    `json:"doctor_id"`
	SlotID               string    `json:"slot_id"`
	StartAt              time.Time `json:"start_at"`
	KeptAppointmentID    string    `json:"kept_appointment_id"`
	DroppedAppointmentID string    `json:"dropped_appointment_id"`
	DroppedStatus        string    `json:"dropped_status,omitempty"`
	DetectedAt           time.Time `json:"detected_at"`
}

func (SlotConflictDetectedV1) EventType() string { return TypeSlotConflict }

// ClinicAggregate is the outbox aggregate key for a clinic.
func ClinicAggregate(clinicID string) string {
	if clinicID == "" {
		return "clinic:unknown"
	}
	return "clinic:" + clinicID
}
