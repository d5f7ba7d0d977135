package slots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduling/internal/clinic"
	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// DispatchResult is the ranking produced for one opened slot.
type DispatchResult struct {
	Slot        scheduling.Slot          `json:"slot"`
	Policy      scheduling.Policy        `json:"policy"`
	Limit       int                      `json:"limit"`
	EntriesSeen int                      `json:"entries_seen"`
	Candidates  []scheduling.ScoredEntry `json:"candidates"`
}

// SlotOpenedDispatcher ranks the waitlist when a slot frees up. It always uses
// the weighted policy and records the ranking as an outbox event. It never
// contacts patients.
type SlotOpenedDispatcher struct {
	waitlist WaitlistProvider
	settings SettingsProvider
	recorder EventRecorder
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	loc      *time.Location
	now      func() time.Time
}

// DispatcherOption customizes the dispatcher.
type DispatcherOption func(*SlotOpenedDispatcher)

func WithDispatchSettings(p SettingsProvider) DispatcherOption {
	return func(d *SlotOpenedDispatcher) { d.settings = p }
}

func WithDispatchRecorder(r EventRecorder) DispatcherOption {
	return func(d *SlotOpenedDispatcher) { d.recorder = r }
}

func WithDispatchMetrics(m *metrics.SchedulingMetrics) DispatcherOption {
	return func(d *SlotOpenedDispatcher) { d.metrics = m }
}

func WithDispatchLocation(loc *time.Location) DispatcherOption {
	return func(d *SlotOpenedDispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

func NewSlotOpenedDispatcher(waitlist WaitlistProvider, logger *logging.Logger, opts ...DispatcherOption) *SlotOpenedDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	d := &SlotOpenedDispatcher{
		waitlist: waitlist,
		logger:   logger,
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch ranks the clinic's active waitlist against the opened slot.
func (d *SlotOpenedDispatcher) Dispatch(ctx context.Context, evt events.SlotOpenedV1) (res *DispatchResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "slots.dispatch_slot_opened",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("clinic.clinic_id", evt.ClinicID),
			attribute.String("clinic.doctor_id", evt.DoctorID),
			attribute.String("clinic.reason", evt.Reason),
		),
	)
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		d.metrics.ObserveDispatch(status, time.Since(start).Seconds())
		span.End()
	}()

	if strings.TrimSpace(evt.ClinicID) == "" || strings.TrimSpace(evt.DoctorID) == "" {
		return nil, fmt.Errorf("%w: clinic_id and doctor_id required", ErrInvalidRequest)
	}
	if evt.StartAt.IsZero() {
		return nil, fmt.Errorf("%w: start_at required", ErrInvalidRequest)
	}

	slot := evt.Slot()
	slot.StartAt = slot.StartAt.In(d.loc)
	slot.EndAt = slot.EndAt.In(d.loc)

	limit := scheduling.DefaultWeightedLimit
	if d.settings != nil {
		cfg, err := d.settings.Get(ctx, evt.ClinicID)
		if err != nil {
			return nil, fmt.Errorf("slots: dispatch: clinic settings: %w", err)
		}
		if cfg != nil && cfg.DispatchLimit > 0 {
			limit = cfg.DispatchLimit
		}
	}

	entries, err := d.waitlist.ListActive(ctx, evt.ClinicID, WaitlistFilter{})
	if err != nil {
		return nil, fmt.Errorf("slots: dispatch: list waitlist: %w", err)
	}

	ranked := scheduling.RankWeighted(slot, entries, limit)
	if ranked == nil {
		ranked = []scheduling.ScoredEntry{}
	}
	d.metrics.ObserveCandidates(string(scheduling.PolicyWeighted), len(ranked))
	span.SetAttributes(attribute.Int("clinic.candidates", len(ranked)))

	res = &DispatchResult{
		Slot:        slot,
		Policy:      scheduling.PolicyWeighted,
		Limit:       limit,
		EntriesSeen: len(entries),
		Candidates:  ranked,
	}
	d.logger.Info("slot opened dispatched",
		"clinic_id", evt.ClinicID,
		"doctor_id", evt.DoctorID,
		"slot_id", slot.ID,
		"reason", evt.Reason,
		"entries_seen", len(entries),
		"candidates", len(ranked),
	)

	if d.recorder != nil {
		if err := d.record(ctx, evt, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (d *SlotOpenedDispatcher) record(ctx context.Context, src events.SlotOpenedV1, res *DispatchResult) error {
	id := rankedEventID(src, res.Slot.ID)
	out := events.WaitlistCandidatesRankedV1{
		EventID:       id.String(),
		SourceEventID: src.EventID,
		ClinicID:      src.ClinicID,
		DoctorID:      src.DoctorID,
		SlotID:        res.Slot.ID,
		StartAt:       res.Slot.StartAt,
		Reason:        src.Reason,
		Policy:        string(res.Policy),
		Limit:         res.Limit,
		EntriesSeen:   res.EntriesSeen,
		Candidates:    make([]events.Candidate, 0, len(res.Candidates)),
		RankedAt:      d.now().UTC(),
	}
	for _, c := range res.Candidates {
		out.Candidates = append(out.Candidates, events.Candidate{
			WaitlistEntryID: c.Entry.ID,
			PatientID:       c.Entry.PatientID,
			PatientName:     c.Entry.PatientName,
			PatientPhone:    c.Entry.PatientPhone,
			Score:           c.Score,
			Breakdown:       c.Breakdown,
		})
	}
	if _, err := d.recorder.Append(ctx, events.ClinicAggregate(src.ClinicID), out, events.WithEventID(id)); err != nil {
		return fmt.Errorf("slots: dispatch: record ranking: %w", err)
	}
	return nil
}

// rankedEventID ties the ranking to its source event so a redelivered
// slot.opened produces the same outbox id. Events without an id get a fresh one.
func rankedEventID(src events.SlotOpenedV1, slotID string) uuid.UUID {
	if src.EventID == "" {
		return uuid.New()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(events.TypeCandidatesRanked+"|"+src.EventID+"|"+slotID))
}

// StaticSettings serves the same settings to every clinic.
type StaticSettings clinic.Defaults

func (s StaticSettings) Get(_ context.Context, clinicID string) (*clinic.Settings, error) {
	return clinic.DefaultSettings(clinicID, clinic.Defaults(s)), nil
}
