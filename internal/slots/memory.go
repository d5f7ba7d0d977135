package slots

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

// MemoryAvailability is an AvailabilityRepository held in process memory.
type MemoryAvailability struct {
	mu    sync.RWMutex
	rules map[string]scheduling.AvailabilityRule
	order []string
}

func NewMemoryAvailability() *MemoryAvailability {
	return &MemoryAvailability{rules: make(map[string]scheduling.AvailabilityRule)}
}

func (m *MemoryAvailability) ListByDoctor(_ context.Context, doctorID, clinicID string) ([]scheduling.AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scheduling.AvailabilityRule
	for _, id := range m.order {
		r := m.rules[id]
		if r.DoctorID == doctorID && r.ClinicID == clinicID {
			out = append(out, cloneRule(r))
		}
	}
	return out, nil
}

func (m *MemoryAvailability) Create(_ context.Context, rule scheduling.AvailabilityRule) (scheduling.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if _, exists := m.rules[rule.ID]; exists {
		return scheduling.AvailabilityRule{}, fmt.Errorf("%w: availability rule %s already exists", ErrInvalidRequest, rule.ID)
	}
	m.rules[rule.ID] = cloneRule(rule)
	m.order = append(m.order, rule.ID)
	return cloneRule(rule), nil
}

func (m *MemoryAvailability) Update(_ context.Context, rule scheduling.AvailabilityRule) (scheduling.AvailabilityRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rules[rule.ID]
	if !ok || existing.ClinicID != rule.ClinicID {
		return scheduling.AvailabilityRule{}, ErrNotFound
	}
	m.rules[rule.ID] = cloneRule(rule)
	return cloneRule(rule), nil
}

func cloneRule(r scheduling.AvailabilityRule) scheduling.AvailabilityRule {
	r.DaysOfWeek = append([]scheduling.Weekday(nil), r.DaysOfWeek...)
	r.Breaks = append([]scheduling.Break(nil), r.Breaks...)
	if r.AppointmentTypeDurations != nil {
		durations := make(map[string]int, len(r.AppointmentTypeDurations))
		for k, v := range r.AppointmentTypeDurations {
			durations[k] = v
		}
		r.AppointmentTypeDurations = durations
	}
	return r
}

// MemoryAppointments is an AppointmentRepository held in process memory.
type MemoryAppointments struct {
	mu    sync.RWMutex
	appts map[string]scheduling.Appointment
	order []string
}

func NewMemoryAppointments() *MemoryAppointments {
	return &MemoryAppointments{appts: make(map[string]scheduling.Appointment)}
}

// ListByDay returns appointments starting on date's calendar day in date's
// location, in insertion order.
func (m *MemoryAppointments) ListByDay(_ context.Context, clinicID, doctorID string, date time.Time) ([]scheduling.Appointment, error) {
	from, to := dayBounds(date)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scheduling.Appointment
	for _, id := range m.order {
		a := m.appts[id]
		if a.ClinicID != clinicID || a.DoctorID != doctorID {
			continue
		}
		if a.StartAt.Before(from) || !a.StartAt.Before(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *MemoryAppointments) Get(_ context.Context, clinicID, appointmentID string) (scheduling.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appts[appointmentID]
	if !ok || a.ClinicID != clinicID {
		return scheduling.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryAppointments) Create(_ context.Context, apt scheduling.Appointment) (scheduling.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if apt.ID == "" {
		apt.ID = uuid.NewString()
	}
	if _, exists := m.appts[apt.ID]; exists {
		return scheduling.Appointment{}, fmt.Errorf("%w: appointment %s already exists", ErrInvalidRequest, apt.ID)
	}
	m.appts[apt.ID] = apt
	m.order = append(m.order, apt.ID)
	return apt, nil
}

func (m *MemoryAppointments) Update(_ context.Context, apt scheduling.Appointment) (scheduling.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.appts[apt.ID]
	if !ok || existing.ClinicID != apt.ClinicID {
		return scheduling.Appointment{}, ErrNotFound
	}
	m.appts[apt.ID] = apt
	return apt, nil
}

// MemoryWaitlist is a WaitlistRepository held in process memory.
type MemoryWaitlist struct {
	mu      sync.RWMutex
	entries map[string]scheduling.WaitlistEntry
	now     func() time.Time
}

func NewMemoryWaitlist() *MemoryWaitlist {
	return &MemoryWaitlist{entries: make(map[string]scheduling.WaitlistEntry), now: time.Now}
}

// ListActive returns active entries ordered by CreatedAt, then id.
func (m *MemoryWaitlist) ListActive(_ context.Context, clinicID string, filter WaitlistFilter) ([]scheduling.WaitlistEntry, error) {
	m.mu.RLock()
	var out []scheduling.WaitlistEntry
	for _, e := range m.entries {
		if e.ClinicID != clinicID || !e.Active() {
			continue
		}
		if filter.DoctorID != "" && e.RequestedDoctorID != "" && e.RequestedDoctorID != filter.DoctorID {
			continue
		}
		if filter.AppointmentType != "" && e.AppointmentType != "" && !strings.EqualFold(e.AppointmentType, filter.AppointmentType) {
			continue
		}
		e.PreferredDays = append([]scheduling.Weekday(nil), e.PreferredDays...)
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryWaitlist) Get(_ context.Context, clinicID, entryID string) (scheduling.WaitlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryID]
	if !ok || e.ClinicID != clinicID {
		return scheduling.WaitlistEntry{}, ErrNotFound
	}
	e.PreferredDays = append([]scheduling.Weekday(nil), e.PreferredDays...)
	return e, nil
}

func (m *MemoryWaitlist) Create(_ context.Context, entry scheduling.WaitlistEntry) (scheduling.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if _, exists := m.entries[entry.ID]; exists {
		return scheduling.WaitlistEntry{}, fmt.Errorf("%w: waitlist entry %s already exists", ErrInvalidRequest, entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now().UTC()
	}
	if entry.Status == "" {
		entry.Status = scheduling.WaitlistStatusActive
	}
	m.entries[entry.ID] = entry
	return entry, nil
}

func (m *MemoryWaitlist) Update(_ context.Context, entry scheduling.WaitlistEntry) (scheduling.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.entries[entry.ID]
	if !ok || existing.ClinicID != entry.ClinicID {
		return scheduling.WaitlistEntry{}, ErrNotFound
	}
	entry.CreatedAt = existing.CreatedAt
	entry.PreferredDays = append([]scheduling.Weekday(nil), entry.PreferredDays...)
	m.entries[entry.ID] = entry
	return entry, nil
}

// dayBounds returns [midnight, next midnight) of date's calendar day.
func dayBounds(date time.Time) (time.Time, time.Time) {
	y, mo, d := date.Date()
	from := time.Date(y, mo, d, 0, 0, 0, 0, date.Location())
	return from, from.AddDate(0, 0, 1)
}
