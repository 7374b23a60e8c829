package schedule

import (
	"fmt"
	"time"
)

// Rule is one weekly recurring availability range for a provider. A provider
// may hold several rules for the same weekday (split shifts).
type Rule struct {
	ID         int64        `json:"id"`
	ProviderID string       `json:"provider_id"`
	DayOfWeek  time.Weekday `json:"day_of_week"`
	Start      Clock        `json:"start_time"`
	End        Clock        `json:"end_time"`
}

func (r Rule) Validate() error {
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return fmt.Errorf("day_of_week must be between 0 and 6, got %d", r.DayOfWeek)
	}
	if !r.Start.Valid() || !r.End.Valid() {
		return fmt.Errorf("times must fall within a single day")
	}
	if r.Start >= r.End {
		return fmt.Errorf("end_time must be after start_time (%s-%s)", r.Start, r.End)
	}
	return nil
}

// ForDay returns the rules matching date's weekday, keeping their order.
func ForDay(rules []Rule, date time.Time) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.DayOfWeek == date.Weekday() {
			out = append(out, r)
		}
	}
	return out
}
