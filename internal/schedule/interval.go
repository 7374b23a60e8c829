package schedule

import "time"

// Interval is a half-open [Start, End) range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// On builds the interval [date+start, date+end).
func On(date time.Time, start, end Clock) Interval {
	return Interval{Start: start.On(date), End: end.On(date)}
}

// Overlaps reports whether a and b share any instant. Touching endpoints do
// not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// OverlapsAny reports whether iv overlaps any of busy.
func OverlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
