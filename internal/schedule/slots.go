package schedule

import "time"

// SlotStep is the fixed increment between candidate start times.
const SlotStep = 30

// GenerateSlots returns the candidate start times on date for a service of
// durationMinutes. Candidates are emitted rule by rule, then in time order
// within each rule. Rules that overlap yield duplicate candidates; use Dedupe
// when presenting them.
//
// The result does not account for reservations or external busy time.
func GenerateSlots(rules []Rule, date time.Time, durationMinutes int) []Clock {
	if durationMinutes <= 0 {
		return nil
	}
	var out []Clock
	for _, r := range ForDay(rules, date) {
		for c := r.Start; c.Add(durationMinutes) <= r.End; c = c.Add(SlotStep) {
			out = append(out, c)
		}
	}
	return out
}

// Dedupe drops repeated start times, keeping the first occurrence.
func Dedupe(slots []Clock) []Clock {
	seen := make(map[Clock]struct{}, len(slots))
	out := make([]Clock, 0, len(slots))
	for _, s := range slots {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Strings renders slots as HH:MM.
func Strings(slots []Clock) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}
