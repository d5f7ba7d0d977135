package scheduling

import (
	"sort"
	"strconv"
	"time"
)

// GenerateOptions tunes a generation call. The zero value uses each rule's
// own slot duration with no buffer.
type GenerateOptions struct {
	// BufferMinutes is idle time inserted after every slot.
	BufferMinutes int
	// DurationOverride, when positive, replaces every rule's duration.
	DurationOverride int
	// AppointmentType selects a per-type duration from the rule and labels
	// the emitted slots. Empty means "flexible".
	AppointmentType string
}

type interval struct {
	start, end time.Time
}

// compiledRule is an AvailabilityRule whose times were parsed and validated.
type compiledRule struct {
	rule        AvailabilityRule
	windowStart TimeOfDay
	windowEnd   TimeOfDay
	breaks      [][2]TimeOfDay
}

// Validate checks a rule without generating anything.
func Validate(rule AvailabilityRule) error {
	_, err := compile(rule)
	return err
}

func compile(rule AvailabilityRule) (compiledRule, error) {
	c := compiledRule{rule: rule}
	wrap := func(err error) error {
		if ce, ok := err.(*ConfigError); ok {
			ce.RuleID = rule.ID
			return ce
		}
		return err
	}
	for _, d := range rule.DaysOfWeek {
		if _, err := ParseWeekday(string(d)); err != nil {
			return c, wrap(err)
		}
	}
	start, err := ParseTimeOfDay(rule.StartTime)
	if err != nil {
		return c, wrap(err)
	}
	end, err := ParseTimeOfDay(rule.EndTime)
	if err != nil {
		return c, wrap(err)
	}
	if start >= end {
		return c, wrap(configErr("window", rule.StartTime+"-"+rule.EndTime, "start must be before end"))
	}
	if rule.SlotDuration <= 0 {
		return c, wrap(configErr("slot_duration", strconv.Itoa(rule.SlotDuration), "must be positive"))
	}
	for typ, mins := range rule.AppointmentTypeDurations {
		if mins <= 0 {
			return c, wrap(configErr("appointment_type_durations", typ, "must be positive"))
		}
	}
	for _, b := range rule.Breaks {
		bs, err := ParseTimeOfDay(b.StartTime)
		if err != nil {
			return c, wrap(err)
		}
		be, err := ParseTimeOfDay(b.EndTime)
		if err != nil {
			return c, wrap(err)
		}
		if bs >= be {
			return c, wrap(configErr("break", b.StartTime+"-"+b.EndTime, "start must be before end"))
		}
		if bs < start || be > end {
			return c, wrap(configErr("break", b.StartTime+"-"+b.EndTime, "outside availability window"))
		}
		c.breaks = append(c.breaks, [2]TimeOfDay{bs, be})
	}
	c.windowStart, c.windowEnd = start, end
	return c, nil
}

func (c compiledRule) duration(opts GenerateOptions) time.Duration {
	if opts.DurationOverride > 0 {
		return time.Duration(opts.DurationOverride) * time.Minute
	}
	if opts.AppointmentType != "" {
		if mins, ok := c.rule.AppointmentTypeDurations[opts.AppointmentType]; ok {
			return time.Duration(mins) * time.Minute
		}
	}
	return time.Duration(c.rule.SlotDuration) * time.Minute
}

// Generate expands every rule that applies on date's weekday into empty
// slots, sorted ascending by start. Rules for other weekdays contribute
// nothing. Malformed rules fail the whole call with a *ConfigError.
//
// The walk advances one duration+buffer step at a time whether or not the
// candidate overlapped a break, so slots after a break keep the phase of the
// window start instead of restarting at the break end.
func Generate(rules []AvailabilityRule, date time.Time, opts GenerateOptions) ([]Slot, error) {
	if opts.BufferMinutes < 0 {
		return nil, configErr("buffer", strconv.Itoa(opts.BufferMinutes), "must not be negative")
	}
	if opts.DurationOverride < 0 {
		return nil, configErr("duration", strconv.Itoa(opts.DurationOverride), "must not be negative")
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		c, err := compile(r)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}

	day := WeekdayOf(date)
	slotType := opts.AppointmentType
	if slotType == "" {
		slotType = FlexibleAppointmentType
	}
	buffer := time.Duration(opts.BufferMinutes) * time.Minute

	var slots []Slot
	for _, c := range compiled {
		if !c.rule.AppliesOn(day) {
			continue
		}
		windowStart := c.windowStart.On(date)
		windowEnd := c.windowEnd.On(date)
		breaks := make([]interval, len(c.breaks))
		for i, b := range c.breaks {
			breaks[i] = interval{start: b[0].On(date), end: b[1].On(date)}
		}

		duration := c.duration(opts)
		step := duration + buffer
		for current := windowStart; !current.Add(duration).After(windowEnd); current = current.Add(step) {
			end := current.Add(duration)
			if overlapsAny(current, end, breaks) {
				continue
			}
			slots = append(slots, Slot{
				ID:              SlotID(c.rule.DoctorID, c.rule.ClinicID, current),
				ClinicID:        c.rule.ClinicID,
				DoctorID:        c.rule.DoctorID,
				StartAt:         current,
				EndAt:           end,
				AppointmentType: slotType,
				State:           Empty{},
			})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].StartAt.Before(slots[j].StartAt)
	})
	return slots, nil
}

// overlapsAny uses half-open intervals: touching a break edge is not overlap.
func overlapsAny(start, end time.Time, breaks []interval) bool {
	for _, b := range breaks {
		if start.Before(b.end) && end.After(b.start) {
			return true
		}
	}
	return false
}
