// Package scheduling turns a doctor's recurring weekly availability into
// bookable slots for a single date, overlays real appointments onto those
// slots, and ranks waitlisted patients against a slot that has just opened.
//
// Every function in this package is a pure function of its arguments. Inputs
// are read-only snapshots owned by the caller; nothing here performs I/O or
// keeps state between calls.
package scheduling

import (
	"strings"
	"time"
)

// Weekday is a lowercase English weekday name ("monday" ... "sunday").
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdayByTime = map[time.Weekday]Weekday{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

// WeekdayOf returns the wall-clock weekday of t in its own location.
func WeekdayOf(t time.Time) Weekday {
	return weekdayByTime[t.Weekday()]
}

// ParseWeekday normalizes and validates a weekday name.
func ParseWeekday(s string) (Weekday, error) {
	w := Weekday(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range weekdayByTime {
		if w == known {
			return w, nil
		}
	}
	return "", configErr("weekday", s, "unrecognized weekday")
}

// Break is a window inside an availability rule that is never offered.
type Break struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// AvailabilityRule is a recurring weekly template for one doctor at one clinic.
type AvailabilityRule struct {
	ID                       string         `json:"id,omitempty"`
	DoctorID                 string         `json:"doctor_id"`
	ClinicID                 string         `json:"clinic_id"`
	DaysOfWeek               []Weekday      `json:"days_of_week"`
	StartTime                string         `json:"start_time"`
	EndTime                  string         `json:"end_time"`
	SlotDuration             int            `json:"slot_duration"`
	Breaks                   []Break        `json:"breaks,omitempty"`
	AppointmentTypeDurations map[string]int `json:"appointment_type_durations,omitempty"`
}

// AppliesOn reports whether the rule lists the given weekday.
func (r AvailabilityRule) AppliesOn(day Weekday) bool {
	for _, d := range r.DaysOfWeek {
		if Weekday(strings.ToLower(string(d))) == day {
			return true
		}
	}
	return false
}

// AppointmentStatusCancelled is the only appointment status that maps a slot
// to Cancelled. Every other status books the slot.
const AppointmentStatusCancelled = "cancelled"

// Appointment is a real booking owned by the appointments collaborator.
type Appointment struct {
	ID           string    `json:"id"`
	DoctorID     string    `json:"doctor_id"`
	ClinicID     string    `json:"clinic_id"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	Status       string    `json:"status"`
	PatientID    string    `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	PatientPhone string    `json:"patient_phone"`
	Type         string    `json:"type,omitempty"`
}

// Cancelled reports whether the appointment status is cancelled.
func (a Appointment) Cancelled() bool {
	return strings.EqualFold(strings.TrimSpace(a.Status), AppointmentStatusCancelled)
}

// Priority is the ordinal tier of a waitlist entry.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank returns high=3, normal=2, low=1. Unknown values rank as normal.
func (p Priority) Rank() int {
	switch Priority(strings.ToLower(string(p))) {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// TimeWindow is a coarse partition of the day.
type TimeWindow string

const (
	WindowAny       TimeWindow = "any"
	WindowMorning   TimeWindow = "morning"
	WindowAfternoon TimeWindow = "afternoon"
	WindowEvening   TimeWindow = "evening"
	// WindowNone is the bucket for hours outside every named window.
	WindowNone TimeWindow = ""
)

// BucketOf classifies the wall-clock hour of t: morning [6,12),
// afternoon [12,18), evening [18,21). Other hours return WindowNone.
func BucketOf(t time.Time) TimeWindow {
	h := t.Hour()
	switch {
	case h >= 6 && h < 12:
		return WindowMorning
	case h >= 12 && h < 18:
		return WindowAfternoon
	case h >= 18 && h < 21:
		return WindowEvening
	default:
		return WindowNone
	}
}

// Waitlist entry statuses. Only active entries are offered slots.
const (
	WaitlistStatusActive  = "active"
	WaitlistStatusBooked  = "booked"
	WaitlistStatusRemoved = "removed"
)

// WaitlistEntry is a patient's standing request for an earlier appointment.
type WaitlistEntry struct {
	ID                  string     `json:"id"`
	ClinicID            string     `json:"clinic_id"`
	PatientID           string     `json:"patient_id"`
	PatientName         string     `json:"patient_name"`
	PatientPhone        string     `json:"patient_phone"`
	RequestedDoctorID   string     `json:"requested_doctor_id,omitempty"`
	AppointmentType     string     `json:"appointment_type,omitempty"`
	PreferredTimeWindow TimeWindow `json:"preferred_time_window,omitempty"`
	PreferredDays       []Weekday  `json:"preferred_days,omitempty"`
	Priority            Priority   `json:"priority"`
	Status              string     `json:"status,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Active reports whether the entry is still waiting. An empty status counts as active.
func (e WaitlistEntry) Active() bool {
	return e.Status == "" || strings.EqualFold(e.Status, WaitlistStatusActive)
}

func (e WaitlistEntry) prefersDay(day Weekday) bool {
	for _, d := range e.PreferredDays {
		if Weekday(strings.ToLower(string(d))) == day {
			return true
		}
	}
	return false
}
