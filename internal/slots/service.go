package slots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/clinic-scheduling/internal/clinic"
	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.slots")

// Service builds day schedules and waitlist suggestions from live snapshots.
type Service struct {
	availability AvailabilityRepository
	appointments AppointmentRepository
	waitlist     WaitlistRepository
	settings     SettingsProvider
	cache        *SlotCache
	recorder     EventRecorder
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
	loc          *time.Location
	now          func() time.Time
}

// Option customizes the service.
type Option func(*Service)

func WithSettings(p SettingsProvider) Option { return func(s *Service) { s.settings = p } }

func WithCache(c *SlotCache) Option { return func(s *Service) { s.cache = c } }

func WithEventRecorder(r EventRecorder) Option { return func(s *Service) { s.recorder = r } }

func WithMetrics(m *metrics.SchedulingMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithLocation sets the wall-clock zone dates and instants are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(availability AvailabilityRepository, appointments AppointmentRepository, waitlist WaitlistRepository, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		availability: availability,
		appointments: appointments,
		waitlist:     waitlist,
		logger:       logger,
		loc:          time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Location is the wall-clock zone of the service.
func (s *Service) Location() *time.Location { return s.loc }

// DayScheduleRequest selects the doctor, date and generation options.
type DayScheduleRequest struct {
	ClinicID string
	DoctorID string
	Date     time.Time
	// BufferMinutes overrides the clinic default when set.
	BufferMinutes    *int
	DurationOverride int
	AppointmentType  string
}

// DaySchedule is the merged schedule of one doctor on one date.
type DaySchedule struct {
	ClinicID  string                   `json:"clinic_id"`
	DoctorID  string                   `json:"doctor_id"`
	Date      string                   `json:"date"`
	Slots     []scheduling.Slot        `json:"slots"`
	Gaps      []int                    `json:"gaps"`
	Conflicts []scheduling.Conflict    `json:"conflicts,omitempty"`
	Unmatched []scheduling.Appointment `json:"unmatched_appointments,omitempty"`
	Cached    bool                     `json:"cached"`
}

// DaySchedule generates the doctor's slots for the date, merges the day's
// appointments onto them and annotates gaps. Merge collisions are logged,
// counted and recorded as slot.conflict_detected.v1 events.
func (s *Service) DaySchedule(ctx context.Context, req DayScheduleRequest) (sched *DaySchedule, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "slots.day_schedule")
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.ObserveSchedule(status, time.Since(start).Seconds())
		span.End()
	}()
	span.SetAttributes(
		attribute.String("clinic.clinic_id", req.ClinicID),
		attribute.String("clinic.doctor_id", req.DoctorID),
	)

	if strings.TrimSpace(req.ClinicID) == "" || strings.TrimSpace(req.DoctorID) == "" {
		return nil, fmt.Errorf("%w: clinic_id and doctor_id required", ErrInvalidRequest)
	}
	date := req.Date
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date required", ErrInvalidRequest)
	}
	y, mo, d := date.Date()
	date = time.Date(y, mo, d, 0, 0, 0, 0, s.loc)
	span.SetAttributes(attribute.String("clinic.date", date.Format(scheduling.DateLayout)))

	settings, err := s.clinicSettings(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}
	opts := scheduling.GenerateOptions{
		BufferMinutes:    settings.DefaultBufferMinutes,
		DurationOverride: req.DurationOverride,
		AppointmentType:  req.AppointmentType,
	}
	if req.BufferMinutes != nil {
		opts.BufferMinutes = *req.BufferMinutes
	}

	rules, err := s.availability.ListByDoctor(ctx, req.DoctorID, req.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("slots: day schedule: list availability: %w", err)
	}

	generated, cached, err := s.generate(ctx, req.ClinicID, req.DoctorID, date, rules, opts)
	if err != nil {
		return nil, err
	}

	appts, err := s.appointments.ListByDay(ctx, req.ClinicID, req.DoctorID, date)
	if err != nil {
		return nil, fmt.Errorf("slots: day schedule: list appointments: %w", err)
	}

	merged := scheduling.Merge(generated, appts)
	s.reportMerge(ctx, req.ClinicID, merged)

	slots := merged.Slots
	if slots == nil {
		slots = []scheduling.Slot{}
	}
	gaps := scheduling.Gaps(slots)
	if gaps == nil {
		gaps = []int{}
	}
	span.SetAttributes(attribute.Int("clinic.slot_count", len(slots)))
	return &DaySchedule{
		ClinicID:  req.ClinicID,
		DoctorID:  req.DoctorID,
		Date:      date.Format(scheduling.DateLayout),
		Slots:     slots,
		Gaps:      gaps,
		Conflicts: merged.Conflicts,
		Unmatched: merged.Unmatched,
		Cached:    cached,
	}, nil
}

func (s *Service) generate(ctx context.Context, clinicID, doctorID string, date time.Time, rules []scheduling.AvailabilityRule, opts scheduling.GenerateOptions) ([]scheduling.Slot, bool, error) {
	var key string
	if s.cache != nil {
		k, err := s.cache.Key(clinicID, doctorID, date, rules, opts)
		if err == nil {
			key = k
			cached, hit, err := s.cache.Get(ctx, key)
			if err != nil {
				s.logger.Warn("slot cache read failed", "clinic_id", clinicID, "doctor_id", doctorID, "error", err)
			}
			s.metrics.ObserveCache(hit)
			if hit {
				for i := range cached {
					cached[i].StartAt = cached[i].StartAt.In(s.loc)
					cached[i].EndAt = cached[i].EndAt.In(s.loc)
				}
				s.metrics.ObserveGenerated("cache", len(cached))
				return cached, true, nil
			}
		}
	}

	generated, err := scheduling.Generate(rules, date, opts)
	if err != nil {
		return nil, false, fmt.Errorf("slots: day schedule: %w", err)
	}
	s.metrics.ObserveGenerated("generated", len(generated))

	if key != "" {
		if err := s.cache.Set(ctx, key, generated); err != nil {
			s.logger.Warn("slot cache write failed", "clinic_id", clinicID, "doctor_id", doctorID, "error", err)
		}
	}
	return generated, false, nil
}

func (s *Service) reportMerge(ctx context.Context, clinicID string, res scheduling.MergeResult) {
	s.metrics.ObserveMerge(clinicID, len(res.Conflicts), len(res.Unmatched))
	for _, apt := range res.Unmatched {
		s.logger.Debug("appointment outside generated slots",
			"clinic_id", clinicID,
			"doctor_id", apt.DoctorID,
			"appointment_id", apt.ID,
			"start_at", apt.StartAt,
		)
	}
	for _, c := range res.Conflicts {
		s.logger.Warn("appointment collision on slot",
			"clinic_id", c.ClinicID,
			"doctor_id", c.DoctorID,
			"slot_id", c.SlotID,
			"kept_appointment_id", c.KeptAppointmentID,
			"dropped_appointment_id", c.DroppedAppointmentID,
		)
		if s.recorder == nil {
			continue
		}
		id := conflictEventID(c)
		evt := events.SlotConflictDetectedV1{
			EventID:              id.String(),
			ClinicID:             c.ClinicID,
			DoctorID:             c.DoctorID,
			SlotID:               c.SlotID,
			StartAt:              c.StartAt,
			KeptAppointmentID:    c.KeptAppointmentID,
			DroppedAppointmentID: c.DroppedAppointmentID,
			DroppedStatus:        c.DroppedStatus,
			DetectedAt:           s.now().UTC(),
		}
		if _, err := s.recorder.Append(ctx, events.ClinicAggregate(c.ClinicID), evt, events.WithEventID(id)); err != nil {
			s.logger.Error("failed to record slot conflict", "clinic_id", c.ClinicID, "slot_id", c.SlotID, "error", err)
		}
	}
}

// conflictEventID is stable per kept/dropped pair so consumers can dedupe
// repeated detections of the same collision.
func conflictEventID(c scheduling.Conflict) uuid.UUID {
	key := c.SlotID + "|" + c.KeptAppointmentID + "|" + c.DroppedAppointmentID
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))
}

// SuggestRequest asks for waitlist candidates for a slot.
type SuggestRequest struct {
	ClinicID string
	Slot     scheduling.Slot
	// Policy is "filter" or "weighted"; empty uses the clinic default.
	Policy string
	Limit  int
}

// Suggestions is the ranked candidate list for a slot.
type Suggestions struct {
	Policy     scheduling.Policy          `json:"policy"`
	Candidates []scheduling.WaitlistEntry `json:"candidates"`
	Scores     []scheduling.ScoredEntry   `json:"scores,omitempty"`
}

// SuggestForSlot ranks the clinic's active waitlist against the slot.
func (s *Service) SuggestForSlot(ctx context.Context, req SuggestRequest) (out *Suggestions, err error) {
	ctx, span := tracer.Start(ctx, "slots.suggest_for_slot")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	clinicID := req.ClinicID
	if clinicID == "" {
		clinicID = req.Slot.ClinicID
	}
	if clinicID == "" {
		return nil, fmt.Errorf("%w: clinic_id required", ErrInvalidRequest)
	}
	slot := req.Slot
	slot.ClinicID = clinicID
	if slot.StartAt.IsZero() {
		return nil, fmt.Errorf("%w: slot start_at required", ErrInvalidRequest)
	}
	slot.StartAt = slot.StartAt.In(s.loc)
	slot.EndAt = slot.EndAt.In(s.loc)

	policy := scheduling.Policy("")
	if strings.TrimSpace(req.Policy) == "" {
		settings, err := s.clinicSettings(ctx, clinicID)
		if err != nil {
			return nil, err
		}
		policy = settings.DefaultPolicy
	}
	if policy == "" {
		policy, err = scheduling.ParsePolicy(req.Policy)
		if err != nil {
			return nil, err
		}
	}
	span.SetAttributes(
		attribute.String("clinic.clinic_id", clinicID),
		attribute.String("clinic.policy", string(policy)),
	)

	entries, err := s.waitlist.ListActive(ctx, clinicID, WaitlistFilter{})
	if err != nil {
		return nil, fmt.Errorf("slots: suggest: list waitlist: %w", err)
	}

	out = &Suggestions{Policy: policy}
	if policy == scheduling.PolicyWeighted {
		out.Scores = scheduling.RankWeighted(slot, entries, req.Limit)
		for _, sc := range out.Scores {
			out.Candidates = append(out.Candidates, sc.Entry)
		}
	} else {
		out.Candidates, err = scheduling.Suggest(slot, entries, policy, req.Limit)
		if err != nil {
			return nil, err
		}
	}
	if out.Candidates == nil {
		out.Candidates = []scheduling.WaitlistEntry{}
	}
	s.metrics.ObserveCandidates(string(policy), len(out.Candidates))
	return out, nil
}

func (s *Service) clinicSettings(ctx context.Context, clinicID string) (*clinic.Settings, error) {
	if s.settings == nil {
		return clinic.DefaultSettings(clinicID, clinic.Defaults{}), nil
	}
	cfg, err := s.settings.Get(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("slots: clinic settings: %w", err)
	}
	return cfg, nil
}
