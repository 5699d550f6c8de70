package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var dayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// DayName is the working-hours key for a weekday.
func DayName(d time.Weekday) string {
	return dayNames[d]
}

// ParseDayName is the inverse of DayName; matching is case-insensitive.
func ParseDayName(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range dayNames {
		if n == s {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

type DayHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Bounds returns the day's opening and closing minute.
func (d DayHours) Bounds() (start, end int, err error) {
	if start, err = ParseClock(d.Start); err != nil {
		return 0, 0, err
	}
	if end, err = ParseClock(d.End); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// WeeklyHours is indexed by time.Weekday (Sunday = 0). Being an array it copies by value.
type WeeklyHours [7]DayHours

func (w WeeklyHours) Day(d time.Weekday) DayHours {
	return w[d]
}

func (w WeeklyHours) Validate() error {
	for i, d := range w {
		if !d.Enabled {
			continue
		}
		start, end, err := d.Bounds()
		if err != nil {
			return fmt.Errorf("%s: %w", dayNames[i], err)
		}
		if start >= end {
			return fmt.Errorf("%s: start %s must be before end %s", dayNames[i], d.Start, d.End)
		}
	}
	return nil
}

// MarshalJSON renders the week keyed by lowercase day name.
func (w WeeklyHours) MarshalJSON() ([]byte, error) {
	out := make(map[string]DayHours, len(w))
	for i, d := range w {
		out[dayNames[i]] = d
	}
	return json.Marshal(out)
}

// UnmarshalJSON merges the named days into w; days not present keep their current value.
func (w *WeeklyHours) UnmarshalJSON(b []byte) error {
	var in map[string]DayHours
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	for name, d := range in {
		wd, ok := ParseDayName(name)
		if !ok {
			return fmt.Errorf("unknown day %q", name)
		}
		w[wd] = d
	}
	return nil
}

var defaultHours = WeeklyHours{
	time.Sunday:    {Enabled: false, Start: "08:00", End: "17:00"},
	time.Monday:    {Enabled: true, Start: "08:00", End: "17:00"},
	time.Tuesday:   {Enabled: true, Start: "08:00", End: "17:00"},
	time.Wednesday: {Enabled: true, Start: "08:00", End: "17:00"},
	time.Thursday:  {Enabled: true, Start: "08:00", End: "17:00"},
	time.Friday:    {Enabled: true, Start: "08:00", End: "17:00"},
	time.Saturday:  {Enabled: false, Start: "08:00", End: "17:00"},
}

// DefaultHours returns Mon-Fri 08:00-17:00 with the weekend closed.
func DefaultHours() WeeklyHours {
	return defaultHours
}
