package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for slot and waitlist flows.
type SchedulingMetrics struct {
	slotsGenerated  *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	mergeConflicts  *prometheus.CounterVec
	unmatched       *prometheus.CounterVec
	candidates      *prometheus.HistogramVec
	scheduleLatency *prometheus.HistogramVec
	dispatchLatency *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		slotsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slots_generated_total",
			Help:      "Total slots produced by generation, by source",
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slot_cache_lookups_total",
			Help:      "Slot cache lookups by result",
		}, []string{"result"}),
		mergeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "merge_conflicts_total",
			Help:      "Appointments dropped because another appointment held the slot",
		}, []string{"clinic_id"}),
		unmatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "unmatched_appointments_total",
			Help:      "Appointments that matched no generated slot",
		}, []string{"clinic_id"}),
		candidates: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "waitlist",
			Name:      "candidates_returned",
			Help:      "Number of waitlist candidates returned per ranking",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}, []string{"policy"}),
		scheduleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "day_schedule_latency_seconds",
			Help:      "Latency of building a merged day schedule",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "waitlist",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency of slot-opened dispatch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotsGenerated, m.cacheLookups, m.mergeConflicts, m.unmatched, m.candidates, m.scheduleLatency, m.dispatchLatency)
	return m
}

// ObserveGenerated counts slots; source is "generated" or "cache".
func (m *SchedulingMetrics) ObserveGenerated(source string, count int) {
	if m == nil {
		return
	}
	m.slotsGenerated.WithLabelValues(source).Add(float64(count))
}

func (m *SchedulingMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	label := "miss"
	if hit {
		label = "hit"
	}
	m.cacheLookups.WithLabelValues(label).Inc()
}

func (m *SchedulingMetrics) ObserveMerge(clinicID string, conflicts, unmatched int) {
	if m == nil {
		return
	}
	if conflicts > 0 {
		m.mergeConflicts.WithLabelValues(clinicID).Add(float64(conflicts))
	}
	if unmatched > 0 {
		m.unmatched.WithLabelValues(clinicID).Add(float64(unmatched))
	}
}

func (m *SchedulingMetrics) ObserveCandidates(policy string, count int) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(policy).Observe(float64(count))
}

func (m *SchedulingMetrics) ObserveSchedule(status string, seconds float64) {
	if m == nil {
		return
	}
	m.scheduleLatency.WithLabelValues(status).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveDispatch(status string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchLatency.WithLabelValues(status).Observe(seconds)
}
