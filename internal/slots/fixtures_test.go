package slots

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

// monday is 2025-12-08.
var monday = time.Date(2025, 12, 8, 0, 0, 0, 0, time.UTC)

func at(t *testing.T, hhmm string) time.Time {
	t.Helper()
	tod, err := scheduling.ParseTimeOfDay(hhmm)
	require.NoError(t, err)
	return tod.On(monday)
}

func morningRule() scheduling.AvailabilityRule {
	return scheduling.AvailabilityRule{
		ID:           "rule-1",
		DoctorID:     "doc-1",
		ClinicID:     "clinic-1",
		DaysOfWeek:   []scheduling.Weekday{scheduling.Monday, scheduling.Wednesday},
		StartTime:    "09:00",
		EndTime:      "11:00",
		SlotDuration: 30,
	}
}

type recordedEvent struct {
	aggregate string
	evt       events.CanonicalEvent
	env       events.Envelope
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakeRecorder) Append(ctx context.Context, aggregate string, evt events.CanonicalEvent, opts ...events.EnvelopeOption) (events.Envelope, error) {
	if f.err != nil {
		return events.Envelope{}, f.err
	}
	env, err := events.NewEnvelope(aggregate, "", evt, opts...)
	if err != nil {
		return events.Envelope{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{aggregate: aggregate, evt: evt, env: env})
	return env, nil
}

func (f *fakeRecorder) ofType(eventType string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, e := range f.events {
		if e.evt.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	availability *MemoryAvailability
	appointments *MemoryAppointments
	waitlist     *MemoryWaitlist
	recorder     *fakeRecorder
	svc          *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		availability: NewMemoryAvailability(),
		appointments: NewMemoryAppointments(),
		waitlist:     NewMemoryWaitlist(),
		recorder:     &fakeRecorder{},
	}
	opts = append([]Option{WithEventRecorder(f.recorder)}, opts...)
	f.svc = NewService(f.availability, f.appointments, f.waitlist, nil, opts...)
	f.svc.now = func() time.Time { return monday.Add(8 * time.Hour) }
	_, err := f.availability.Create(context.Background(), morningRule())
	require.NoError(t, err)
	return f
}

func (f *fixture) book(t *testing.T, id, hhmm, status string) scheduling.Appointment {
	t.Helper()
	start := at(t, hhmm)
	apt, err := f.appointments.Create(context.Background(), scheduling.Appointment{
		ID:          id,
		DoctorID:    "doc-1",
		ClinicID:    "clinic-1",
		StartAt:     start,
		EndAt:       start.Add(30 * time.Minute),
		Status:      status,
		PatientID:   "patient-" + id,
		PatientName: "Patient " + id,
	})
	require.NoError(t, err)
	return apt
}

func (f *fixture) wait(t *testing.T, e scheduling.WaitlistEntry) {
	t.Helper()
	if e.ClinicID == "" {
		e.ClinicID = "clinic-1"
	}
	_, err := f.waitlist.Create(context.Background(), e)
	require.NoError(t, err)
}
