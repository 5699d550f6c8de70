package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/schedule"
)

type Reason string

const (
	ReasonNone       Reason = ""
	ReasonBooked     Reason = "booked"
	ReasonPastCutoff Reason = "past_cutoff"
)

// MarshalJSON encodes an empty reason as null.
func (r Reason) MarshalJSON() ([]byte, error) {
	if r == ReasonNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

type Slot struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
	Reason    Reason `json:"reason"`
}

type DayAvailability struct {
	Date           string `json:"date"`
	DayName        string `json:"day_name"`
	Slots          []Slot `json:"slots"`
	Available      bool   `json:"available"`
	AvailableCount int    `json:"available_count"`
}

// Find returns the slot starting at start ("HH:MM"). Times off the grid are not snapped.
func (d DayAvailability) Find(start string) (Slot, bool) {
	for _, s := range d.Slots {
		if s.Start == start {
			return s, true
		}
	}
	return Slot{}, false
}

type Request struct {
	// StartDate and EndDate are inclusive; only their calendar date in Location is used.
	StartDate time.Time
	EndDate   time.Time
	Location  *time.Location

	Hours         schedule.WeeklyHours
	SlotMinutes   int
	BufferMinutes int
	LeadTime      time.Duration
	Bookings      []model.ConfirmedBooking
	Now           time.Time
}

var ErrInvalidRequest = errors.New("invalid availability request")

// maxDays bounds a single generation run. Longer ranges are rejected rather than truncated.
const maxDays = 366

// Generate lays a fixed grid of SlotMinutes-long slots over each working day in the range
// and marks every slot available, booked or past the lead-time cutoff.
func Generate(req Request) ([]DayAvailability, error) {
	if req.SlotMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive", ErrInvalidRequest)
	}
	if req.BufferMinutes < 0 || req.LeadTime < 0 {
		return nil, fmt.Errorf("%w: buffer and lead time must not be negative", ErrInvalidRequest)
	}
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	first := schedule.StartOfDay(req.StartDate, loc)
	last := schedule.StartOfDay(req.EndDate, loc)
	cutoff := req.Now.Add(req.LeadTime)
	if limit := time.Date(first.Year(), first.Month(), first.Day()+maxDays, 0, 0, 0, 0, loc); !last.Before(limit) {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidRequest, maxDays)
	}

	var days []DayAvailability
	for i := 0; ; i++ {
		day := time.Date(first.Year(), first.Month(), first.Day()+i, 0, 0, 0, 0, loc)
		if day.After(last) {
			break
		}
		d, err := generateDay(day, req, cutoff)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

type interval struct {
	start, end int
}

func generateDay(day time.Time, req Request, cutoff time.Time) (DayAvailability, error) {
	out := DayAvailability{
		Date:    day.Format(schedule.DateLayout),
		DayName: schedule.DayName(day.Weekday()),
		Slots:   []Slot{},
	}
	hours := req.Hours.Day(day.Weekday())
	if !hours.Enabled {
		return out, nil
	}
	dayStart, dayEnd, err := hours.Bounds()
	if err != nil {
		return DayAvailability{}, fmt.Errorf("%w: %s hours: %v", ErrInvalidRequest, out.DayName, err)
	}

	blocked := blockedIntervals(day, req)
	for start := dayStart; start+req.SlotMinutes <= dayEnd; start += req.SlotMinutes {
		end := start + req.SlotMinutes
		slot := Slot{Start: schedule.FormatClock(start), End: schedule.FormatClock(end)}
		switch {
		case overlapsAny(start, end, blocked):
			slot.Reason = ReasonBooked
		case schedule.At(day, start).Before(cutoff):
			slot.Reason = ReasonPastCutoff
		default:
			slot.Available = true
			out.AvailableCount++
		}
		out.Slots = append(out.Slots, slot)
	}
	out.Available = out.AvailableCount > 0
	return out, nil
}

// blockedIntervals returns same-day bookings widened by the buffer on both sides,
// in minutes since local midnight.
func blockedIntervals(day time.Time, req Request) []interval {
	var out []interval
	for _, b := range req.Bookings {
		local := b.Start().In(day.Location())
		if !schedule.SameDate(local, day) {
			continue
		}
		mins := b.Minutes()
		if mins <= 0 {
			mins = req.SlotMinutes
		}
		start := local.Hour()*60 + local.Minute()
		out = append(out, interval{
			start: start - req.BufferMinutes,
			end:   start + mins + req.BufferMinutes,
		})
	}
	return out
}

func overlapsAny(start, end int, blocked []interval) bool {
	for _, b := range blocked {
		// Half-open intervals: [start,end) overlaps [b.start,b.end) iff start < b.end && b.start < end.
		if start < b.end && b.start < end {
			return true
		}
	}
	return false
}
