package availability

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// SlotEnd is the end of a booking that starts at start and lasts duration.
func SlotEnd(start time.Time, duration time.Duration) time.Time {
	return start.Add(duration)
}

// Valid reports whether the interval has positive length.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Overlaps reports whether two half-open ranges intersect: [a,b) and [c,d) overlap iff
// a < d && c < b. Ranges that merely touch do not overlap.
func Overlaps(x, y Interval) bool {
	return x.Start.Before(y.End) && y.Start.Before(x.End)
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(candidate, b) {
			return true
		}
	}
	return false
}
