package scheduling

import (
	"fmt"
	"sort"
	"strings"
)

// Policy names a waitlist selection strategy.
type Policy string

const (
	// PolicyFilter filters hard on clinic, doctor, type and time window, then
	// orders by priority and registration time. Used for interactive suggestions.
	PolicyFilter Policy = "filter"
	// PolicyWeighted scores every active entry additively. Used when a slot
	// opens after a cancellation or no-show.
	PolicyWeighted Policy = "weighted"
)

const (
	// FilterLimit caps the filter policy's result.
	FilterLimit = 2
	// DefaultWeightedLimit is used when the weighted policy gets no limit.
	DefaultWeightedLimit = 5
)

// Weighted policy signals.
const (
	ScoreDoctor   = 10
	ScoreType     = 5
	ScoreWindow   = 5
	ScoreDay      = 3
	ScorePriority = 3
)

// Strategy ranks waitlist entries against an open slot.
type Strategy interface {
	Name() Policy
	Rank(slot Slot, entries []WaitlistEntry, limit int) []WaitlistEntry
}

type filterStrategy struct{}

type weightedStrategy struct{}

var strategies = map[Policy]Strategy{
	PolicyFilter:   filterStrategy{},
	PolicyWeighted: weightedStrategy{},
}

// ParsePolicy normalizes a policy name. Empty selects the filter policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PolicyFilter, nil
	}
	if _, ok := strategies[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
	return p, nil
}

// StrategyFor returns the strategy registered under the policy name.
func StrategyFor(p Policy) (Strategy, error) {
	s, ok := strategies[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, string(p))
	}
	return s, nil
}

// Suggest ranks entries for the slot under the named policy. A limit <= 0
// selects the policy default. The entries slice is not modified.
func Suggest(slot Slot, entries []WaitlistEntry, policy Policy, limit int) ([]WaitlistEntry, error) {
	s, err := StrategyFor(policy)
	if err != nil {
		return nil, err
	}
	return s.Rank(slot, entries, limit), nil
}

func (filterStrategy) Name() Policy { return PolicyFilter }

// Rank keeps entries of the slot's clinic whose doctor, type and time window
// are unset or compatible, sorts by priority desc then CreatedAt asc, and
// returns at most FilterLimit. A limit in 1..FilterLimit narrows the result.
func (filterStrategy) Rank(slot Slot, entries []WaitlistEntry, limit int) []WaitlistEntry {
	bucket := BucketOf(slot.StartAt)
	var kept []WaitlistEntry
	for _, e := range entries {
		if e.ClinicID != slot.ClinicID {
			continue
		}
		if slot.DoctorID != "" && e.RequestedDoctorID != "" && e.RequestedDoctorID != slot.DoctorID {
			continue
		}
		if slot.AppointmentType != "" && e.AppointmentType != "" && e.AppointmentType != slot.AppointmentType {
			continue
		}
		if !windowAccepts(e.PreferredTimeWindow, bucket) {
			continue
		}
		kept = append(kept, e)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		ri, rj := kept[i].Priority.Rank(), kept[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return kept[i].CreatedAt.Before(kept[j].CreatedAt)
	})

	n := FilterLimit
	if limit > 0 && limit < n {
		n = limit
	}
	if len(kept) > n {
		kept = kept[:n]
	}
	return kept
}

// windowAccepts treats unset and "any" as accepting every bucket. A named
// window must equal the bucket, so hours outside all buckets match nothing.
func windowAccepts(pref TimeWindow, bucket TimeWindow) bool {
	p := TimeWindow(strings.ToLower(string(pref)))
	if p == "" || p == WindowAny {
		return true
	}
	return bucket != WindowNone && p == bucket
}

// ScoreBreakdown is the per-signal contribution to a weighted score.
type ScoreBreakdown struct {
	Doctor   int `json:"doctor"`
	Type     int `json:"type"`
	Window   int `json:"window"`
	Day      int `json:"day"`
	Priority int `json:"priority"`
}

// Total sums the signals.
func (b ScoreBreakdown) Total() int {
	return b.Doctor + b.Type + b.Window + b.Day + b.Priority
}

// ScoredEntry pairs a waitlist entry with its weighted score.
type ScoredEntry struct {
	Entry     WaitlistEntry  `json:"entry"`
	Score     int            `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// ScoreEntry computes the weighted score of e against slot. Unset or "any"
// preferences earn nothing.
func ScoreEntry(slot Slot, e WaitlistEntry) ScoreBreakdown {
	var b ScoreBreakdown
	if e.RequestedDoctorID != "" && e.RequestedDoctorID == slot.DoctorID {
		b.Doctor = ScoreDoctor
	}
	if typesOverlap(slot.AppointmentType, e.AppointmentType) {
		b.Type = ScoreType
	}
	if bucket := BucketOf(slot.StartAt); bucket != WindowNone &&
		TimeWindow(strings.ToLower(string(e.PreferredTimeWindow))) == bucket {
		b.Window = ScoreWindow
	}
	if e.prefersDay(WeekdayOf(slot.StartAt)) {
		b.Day = ScoreDay
	}
	if strings.EqualFold(string(e.Priority), string(PriorityHigh)) {
		b.Priority = ScorePriority
	}
	return b
}

func typesOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// RankWeighted scores the active entries of the slot's clinic, sorts them by
// score descending keeping input order on ties, and returns the top limit.
// A limit <= 0 means DefaultWeightedLimit.
func RankWeighted(slot Slot, entries []WaitlistEntry, limit int) []ScoredEntry {
	if limit <= 0 {
		limit = DefaultWeightedLimit
	}
	var scored []ScoredEntry
	for _, e := range entries {
		if e.ClinicID != slot.ClinicID || !e.Active() {
			continue
		}
		b := ScoreEntry(slot, e)
		scored = append(scored, ScoredEntry{Entry: e, Score: b.Total(), Breakdown: b})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func (weightedStrategy) Name() Policy { return PolicyWeighted }

func (weightedStrategy) Rank(slot Slot, entries []WaitlistEntry, limit int) []WaitlistEntry {
	scored := RankWeighted(slot, entries, limit)
	if len(scored) == 0 {
		return nil
	}
	out := make([]WaitlistEntry, len(scored))
	for i, s := range scored {
		out[i] = s.Entry
	}
	return out
}
