package slots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

// AppointmentStatusNoShow frees the slot like a cancellation does.
const AppointmentStatusNoShow = "no_show"

// ListAvailability returns the doctor's rules at the clinic.
func (s *Service) ListAvailability(ctx context.Context, clinicID, doctorID string) ([]scheduling.AvailabilityRule, error) {
	rules, err := s.availability.ListByDoctor(ctx, doctorID, clinicID)
	if err != nil {
		return nil, fmt.Errorf("slots: list availability: %w", err)
	}
	if rules == nil {
		rules = []scheduling.AvailabilityRule{}
	}
	return rules, nil
}

// CreateAvailability validates and stores a new rule.
func (s *Service) CreateAvailability(ctx context.Context, rule scheduling.AvailabilityRule) (scheduling.AvailabilityRule, error) {
	if err := normalizeRule(&rule); err != nil {
		return scheduling.AvailabilityRule{}, err
	}
	saved, err := s.availability.Create(ctx, rule)
	if err != nil {
		return scheduling.AvailabilityRule{}, fmt.Errorf("slots: create availability: %w", err)
	}
	s.logger.Info("availability rule created", "clinic_id", saved.ClinicID, "doctor_id", saved.DoctorID, "rule_id", saved.ID)
	return saved, nil
}

// UpdateAvailability validates and replaces an existing rule.
func (s *Service) UpdateAvailability(ctx context.Context, rule scheduling.AvailabilityRule) (scheduling.AvailabilityRule, error) {
	if strings.TrimSpace(rule.ID) == "" {
		return scheduling.AvailabilityRule{}, fmt.Errorf("%w: rule id required", ErrInvalidRequest)
	}
	if err := normalizeRule(&rule); err != nil {
		return scheduling.AvailabilityRule{}, err
	}
	saved, err := s.availability.Update(ctx, rule)
	if err != nil {
		return scheduling.AvailabilityRule{}, fmt.Errorf("slots: update availability: %w", err)
	}
	return saved, nil
}

func normalizeRule(rule *scheduling.AvailabilityRule) error {
	if strings.TrimSpace(rule.ClinicID) == "" || strings.TrimSpace(rule.DoctorID) == "" {
		return fmt.Errorf("%w: clinic_id and doctor_id required", ErrInvalidRequest)
	}
	days := make([]scheduling.Weekday, 0, len(rule.DaysOfWeek))
	for _, d := range rule.DaysOfWeek {
		w, err := scheduling.ParseWeekday(string(d))
		if err != nil {
			return err
		}
		days = append(days, w)
	}
	rule.DaysOfWeek = days
	return scheduling.Validate(*rule)
}

// CreateAppointment stores a booking.
func (s *Service) CreateAppointment(ctx context.Context, apt scheduling.Appointment) (scheduling.Appointment, error) {
	if strings.TrimSpace(apt.ClinicID) == "" || strings.TrimSpace(apt.DoctorID) == "" {
		return scheduling.Appointment{}, fmt.Errorf("%w: clinic_id and doctor_id required", ErrInvalidRequest)
	}
	if apt.StartAt.IsZero() {
		return scheduling.Appointment{}, fmt.Errorf("%w: start_at required", ErrInvalidRequest)
	}
	if !apt.EndAt.IsZero() && !apt.EndAt.After(apt.StartAt) {
		return scheduling.Appointment{}, fmt.Errorf("%w: end_at must be after start_at", ErrInvalidRequest)
	}
	if strings.TrimSpace(apt.Status) == "" {
		apt.Status = "scheduled"
	}
	saved, err := s.appointments.Create(ctx, apt)
	if err != nil {
		return scheduling.Appointment{}, fmt.Errorf("slots: create appointment: %w", err)
	}
	return saved, nil
}

// AppointmentUpdate carries the fields a caller may change.
type AppointmentUpdate struct {
	Status *string
	// Reason labels the slot.opened event; it defaults from the status.
	Reason string
}

// UpdateAppointment applies the update. A transition into cancelled or
// no_show records a slot.opened.v1 event for the freed slot.
func (s *Service) UpdateAppointment(ctx context.Context, clinicID, appointmentID string, upd AppointmentUpdate) (scheduling.Appointment, error) {
	current, err := s.appointments.Get(ctx, clinicID, appointmentID)
	if err != nil {
		return scheduling.Appointment{}, fmt.Errorf("slots: update appointment: %w", err)
	}
	wasOpen := opensSlot(current.Status)

	next := current
	if upd.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*upd.Status))
		if status == "" {
			return scheduling.Appointment{}, fmt.Errorf("%w: status must not be empty", ErrInvalidRequest)
		}
		next.Status = status
	}
	saved, err := s.appointments.Update(ctx, next)
	if err != nil {
		return scheduling.Appointment{}, fmt.Errorf("slots: update appointment: %w", err)
	}

	if !wasOpen && opensSlot(saved.Status) {
		if err := s.recordSlotOpened(ctx, saved, upd.Reason); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

func opensSlot(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return s == scheduling.AppointmentStatusCancelled || s == AppointmentStatusNoShow
}

func (s *Service) recordSlotOpened(ctx context.Context, apt scheduling.Appointment, reason string) error {
	if reason == "" {
		reason = events.ReasonCancellation
		if strings.EqualFold(apt.Status, AppointmentStatusNoShow) {
			reason = events.ReasonNoShow
		}
	}
	evt := events.SlotOpenedV1{
		EventID:         uuid.NewString(),
		ClinicID:        apt.ClinicID,
		DoctorID:        apt.DoctorID,
		SlotID:          scheduling.SlotID(apt.DoctorID, apt.ClinicID, apt.StartAt),
		StartAt:         apt.StartAt,
		EndAt:           apt.EndAt,
		AppointmentType: apt.Type,
		AppointmentID:   apt.ID,
		Reason:          reason,
		OccurredAt:      s.now().UTC(),
	}
	s.logger.Info("slot opened",
		"clinic_id", apt.ClinicID,
		"doctor_id", apt.DoctorID,
		"appointment_id", apt.ID,
		"reason", reason,
	)
	if s.recorder == nil {
		return nil
	}
	if _, err := s.recorder.Append(ctx, events.ClinicAggregate(apt.ClinicID), evt); err != nil {
		return fmt.Errorf("slots: record slot opened: %w", err)
	}
	return nil
}

// CreateWaitlistEntry normalizes and stores a waitlist entry.
func (s *Service) CreateWaitlistEntry(ctx context.Context, entry scheduling.WaitlistEntry) (scheduling.WaitlistEntry, error) {
	if strings.TrimSpace(entry.ClinicID) == "" || strings.TrimSpace(entry.PatientID) == "" {
		return scheduling.WaitlistEntry{}, fmt.Errorf("%w: clinic_id and patient_id required", ErrInvalidRequest)
	}
	if err := normalizeWaitlistEntry(&entry); err != nil {
		return scheduling.WaitlistEntry{}, err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	saved, err := s.waitlist.Create(ctx, entry)
	if err != nil {
		return scheduling.WaitlistEntry{}, fmt.Errorf("slots: create waitlist entry: %w", err)
	}
	return saved, nil
}

// WaitlistUpdate carries the fields a caller may change. Nil fields are kept.
type WaitlistUpdate struct {
	Status              *string
	Priority            *string
	PreferredTimeWindow *string
	PreferredDays       *[]scheduling.Weekday
}

// UpdateWaitlistEntry applies the update with the same normalization as
// CreateWaitlistEntry. CreatedAt is never changed, so FIFO position survives.
func (s *Service) UpdateWaitlistEntry(ctx context.Context, clinicID, entryID string, upd WaitlistUpdate) (scheduling.WaitlistEntry, error) {
	if strings.TrimSpace(clinicID) == "" || strings.TrimSpace(entryID) == "" {
		return scheduling.WaitlistEntry{}, fmt.Errorf("%w: clinic_id and entry id required", ErrInvalidRequest)
	}
	entry, err := s.waitlist.Get(ctx, clinicID, entryID)
	if err != nil {
		return scheduling.WaitlistEntry{}, fmt.Errorf("slots: update waitlist entry: %w", err)
	}
	if upd.Status != nil {
		entry.Status = *upd.Status
	}
	if upd.Priority != nil {
		entry.Priority = scheduling.Priority(*upd.Priority)
	}
	if upd.PreferredTimeWindow != nil {
		entry.PreferredTimeWindow = scheduling.TimeWindow(*upd.PreferredTimeWindow)
	}
	if upd.PreferredDays != nil {
		entry.PreferredDays = append([]scheduling.Weekday(nil), (*upd.PreferredDays)...)
	}
	if err := normalizeWaitlistEntry(&entry); err != nil {
		return scheduling.WaitlistEntry{}, err
	}

	saved, err := s.waitlist.Update(ctx, entry)
	if err != nil {
		return scheduling.WaitlistEntry{}, fmt.Errorf("slots: update waitlist entry: %w", err)
	}
	s.logger.Info("waitlist entry updated",
		"clinic_id", saved.ClinicID,
		"entry_id", saved.ID,
		"status", saved.Status,
		"priority", string(saved.Priority),
	)
	return saved, nil
}

func normalizeWaitlistEntry(entry *scheduling.WaitlistEntry) error {
	days := make([]scheduling.Weekday, 0, len(entry.PreferredDays))
	for _, d := range entry.PreferredDays {
		w, err := scheduling.ParseWeekday(string(d))
		if err != nil {
			return fmt.Errorf("%w: preferred_days: %v", ErrInvalidRequest, err)
		}
		days = append(days, w)
	}
	entry.PreferredDays = days

	switch w := scheduling.TimeWindow(strings.ToLower(strings.TrimSpace(string(entry.PreferredTimeWindow)))); w {
	case scheduling.WindowNone, scheduling.WindowAny, scheduling.WindowMorning, scheduling.WindowAfternoon, scheduling.WindowEvening:
		entry.PreferredTimeWindow = w
	default:
		return fmt.Errorf("%w: unknown preferred_time_window %q", ErrInvalidRequest, entry.PreferredTimeWindow)
	}

	entry.Priority = scheduling.Priority(strings.ToLower(strings.TrimSpace(string(entry.Priority))))
	switch entry.Priority {
	case "":
		entry.Priority = scheduling.PriorityNormal
	case scheduling.PriorityLow, scheduling.PriorityNormal, scheduling.PriorityHigh:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, entry.Priority)
	}

	switch status := strings.ToLower(strings.TrimSpace(entry.Status)); status {
	case "":
		entry.Status = scheduling.WaitlistStatusActive
	case scheduling.WaitlistStatusActive, scheduling.WaitlistStatusBooked, scheduling.WaitlistStatusRemoved:
		entry.Status = status
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, entry.Status)
	}
	return nil
}

// ListWaitlist returns the clinic's active entries in FIFO order.
func (s *Service) ListWaitlist(ctx context.Context, clinicID string, filter WaitlistFilter) ([]scheduling.WaitlistEntry, error) {
	entries, err := s.waitlist.ListActive(ctx, clinicID, filter)
	if err != nil {
		return nil, fmt.Errorf("slots: list waitlist: %w", err)
	}
	if entries == nil {
		entries = []scheduling.WaitlistEntry{}
	}
	return entries, nil
}

// ParseDay reads a YYYY-MM-DD date in the service zone.
func (s *Service) ParseDay(value string) (time.Time, error) {
	return scheduling.ParseDate(value, s.loc)
}
