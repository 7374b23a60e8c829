package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// Clock is a time of day in whole minutes since midnight.
type Clock int

const minutesPerDay = 24 * 60

// ParseClock reads "HH:MM" or the Postgres rendering "HH:MM:SS". Seconds are
// dropped after validation. "24:00" is accepted as the end of the day.
func ParseClock(s string) (Clock, error) {
	layout := "15:04"
	switch len(s) {
	case 5:
	case 8:
		layout = "15:04:05"
	default:
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	if s == "24:00" || s == "24:00:00" {
		return minutesPerDay, nil
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// MustClock is ParseClock for literals known to be valid.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time of day must be a HH:MM string")
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Add returns c shifted by the given number of minutes. The result may run
// past midnight; callers check it against a rule end or Valid.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

// Valid reports whether c falls inside a single day, inclusive of 24:00 as an
// end boundary.
func (c Clock) Valid() bool {
	return c >= 0 && c <= minutesPerDay
}

// On anchors c to the calendar day of date in date's location.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, date.Location()).Add(time.Duration(c) * time.Minute)
}

// Day truncates t to midnight in UTC, which is the single service timezone.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay reads a YYYY-MM-DD calendar day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
