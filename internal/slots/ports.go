// Package slots wires the scheduling engine to its collaborators: availability,
// appointment and waitlist repositories, clinic settings, the generated-slot
// cache and the event outbox.
package slots

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinic-scheduling/internal/clinic"
	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("slots: not found")
	// ErrInvalidRequest marks caller input the orchestration layer rejects.
	ErrInvalidRequest = errors.New("slots: invalid request")
)

// AvailabilityProvider supplies a doctor's recurring weekly rules.
type AvailabilityProvider interface {
	ListByDoctor(ctx context.Context, doctorID, clinicID string) ([]scheduling.AvailabilityRule, error)
}

// AppointmentProvider supplies the appointments of one doctor on one day.
type AppointmentProvider interface {
	ListByDay(ctx context.Context, clinicID, doctorID string, date time.Time) ([]scheduling.Appointment, error)
}

// WaitlistFilter narrows ListActive. Empty fields do not filter.
type WaitlistFilter struct {
	DoctorID        string
	AppointmentType string
}

// WaitlistProvider supplies the active waitlist of a clinic.
type WaitlistProvider interface {
	ListActive(ctx context.Context, clinicID string, filter WaitlistFilter) ([]scheduling.WaitlistEntry, error)
}

// AvailabilityRepository stores availability rules.
type AvailabilityRepository interface {
	AvailabilityProvider
	Create(ctx context.Context, rule scheduling.AvailabilityRule) (scheduling.AvailabilityRule, error)
	Update(ctx context.Context, rule scheduling.AvailabilityRule) (scheduling.AvailabilityRule, error)
}

// AppointmentRepository stores appointments.
type AppointmentRepository interface {
	AppointmentProvider
	Get(ctx context.Context, clinicID, appointmentID string) (scheduling.Appointment, error)
	Create(ctx context.Context, apt scheduling.Appointment) (scheduling.Appointment, error)
	Update(ctx context.Context, apt scheduling.Appointment) (scheduling.Appointment, error)
}

// WaitlistRepository stores waitlist entries.
type WaitlistRepository interface {
	WaitlistProvider
	Get(ctx context.Context, clinicID, entryID string) (scheduling.WaitlistEntry, error)
	Create(ctx context.Context, entry scheduling.WaitlistEntry) (scheduling.WaitlistEntry, error)
	Update(ctx context.Context, entry scheduling.WaitlistEntry) (scheduling.WaitlistEntry, error)
}

// SettingsProvider returns per-clinic scheduling settings.
type SettingsProvider interface {
	Get(ctx context.Context, clinicID string) (*clinic.Settings, error)
}

// EventRecorder appends domain events to the outbox.
type EventRecorder interface {
	Append(ctx context.Context, aggregate string, evt events.CanonicalEvent, opts ...events.EnvelopeOption) (events.Envelope, error)
}

var (
	_ AvailabilityRepository = (*MemoryAvailability)(nil)
	_ AvailabilityRepository = (*PGAvailabilityStore)(nil)
	_ AppointmentRepository  = (*MemoryAppointments)(nil)
	_ AppointmentRepository  = (*PGAppointmentStore)(nil)
	_ WaitlistRepository     = (*MemoryWaitlist)(nil)
	_ WaitlistRepository     = (*SQLWaitlistStore)(nil)
	_ SettingsProvider       = (*clinic.Store)(nil)
	_ SettingsProvider       = StaticSettings{}
	_ EventRecorder          = (*events.OutboxStore)(nil)
	_ EventRecorder          = (*events.DirectRecorder)(nil)
)
