package scheduling

import (
	"math"
	"time"
)

// Gap returns the idle minutes between a and the slot b that follows it,
// rounded to the nearest minute. Overlapping or touching slots return 0.
func Gap(a, b Slot) int {
	diff := b.StartAt.Sub(a.EndAt)
	if diff <= 0 {
		return 0
	}
	return int(math.Round(float64(diff) / float64(time.Minute)))
}

// Gaps returns Gap for every adjacent pair of a start-sorted slot list.
// The result has len(slots)-1 entries, or none for fewer than two slots.
func Gaps(slots []Slot) []int {
	if len(slots) < 2 {
		return nil
	}
	out := make([]int, len(slots)-1)
	for i := 1; i < len(slots); i++ {
		out[i-1] = Gap(slots[i-1], slots[i])
	}
	return out
}
