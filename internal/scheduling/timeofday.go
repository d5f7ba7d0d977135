package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date format accepted at the boundary.
const DateLayout = time.DateOnly

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" in 24-hour form. "24:00" is accepted as the
// end of the day so a window can close at midnight.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	raw := strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, configErr("time", s, "expected HH:MM")
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, configErr("time", s, "hour is not a number")
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, configErr("time", s, "minute is not a number")
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, configErr("time", s, "out of range")
	}
	return TimeOfDay(h*60 + m), nil
}

// String formats the value back to HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On anchors the time of day to the calendar date of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	y, mo, day := d.Date()
	return time.Date(y, mo, day, int(t)/60, int(t)%60, 0, 0, d.Location())
}

// ParseDate parses a YYYY-MM-DD calendar date in loc. A nil loc means UTC.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, configErr("date", s, "expected YYYY-MM-DD")
	}
	return d, nil
}

// ParseInstant parses an ISO-8601 instant. Values without an offset are read
// as wall-clock time in loc.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw := strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, configErr("instant", s, "expected ISO-8601 instant")
}
