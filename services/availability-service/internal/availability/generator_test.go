package availability

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/schedule"
)

// 2026-03-09 is a Monday.
var monday = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func booking(t *testing.T, at time.Time, minutes int) model.ConfirmedBooking {
	t.Helper()
	b, ok := model.Job{Status: model.StatusScheduled, ScheduledAt: at, EstimatedMinutes: minutes}.Confirmed()
	if !ok {
		t.Fatalf("job at %s not confirmed", at)
	}
	return b
}

func baseRequest() Request {
	return Request{
		StartDate:     monday,
		EndDate:       monday,
		Location:      time.UTC,
		Hours:         schedule.DefaultHours(),
		SlotMinutes:   60,
		BufferMinutes: 30,
		LeadTime:      24 * time.Hour,
		Now:           monday.AddDate(0, 0, -2), // preceding Saturday
	}
}

func mustGenerate(t *testing.T, req Request) []DayAvailability {
	t.Helper()
	days, err := Generate(req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return days
}

func TestGenerate_GridBoundary(t *testing.T) {
	days := mustGenerate(t, baseRequest())
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	slots := days[0].Slots
	if len(slots) != 9 {
		t.Fatalf("expected 9 slots, got %d", len(slots))
	}
	if slots[0].Start != "08:00" || slots[8].Start != "16:00" || slots[8].End != "17:00" {
		t.Fatalf("unexpected grid edges: %+v .. %+v", slots[0], slots[8])
	}
}

func TestGenerate_NoOverlapAndContiguous(t *testing.T) {
	for _, slotMinutes := range []int{15, 30, 45, 60, 90, 120} {
		req := baseRequest()
		req.SlotMinutes = slotMinutes
		day := mustGenerate(t, req)[0]
		for i := 1; i < len(day.Slots); i++ {
			prevEnd, _ := schedule.ParseClock(day.Slots[i-1].End)
			prevStart, _ := schedule.ParseClock(day.Slots[i-1].Start)
			start, _ := schedule.ParseClock(day.Slots[i].Start)
			if prevEnd != start || start-prevStart != slotMinutes {
				t.Fatalf("slot=%d: slots %d and %d not contiguous: %+v %+v", slotMinutes, i-1, i, day.Slots[i-1], day.Slots[i])
			}
		}
		last, _ := schedule.ParseClock(day.Slots[len(day.Slots)-1].End)
		if last > 17*60 {
			t.Fatalf("slot=%d: last slot ends past day end: %s", slotMinutes, day.Slots[len(day.Slots)-1].End)
		}
	}
}

func TestGenerate_TrailingPartialSlotDropped(t *testing.T) {
	req := baseRequest()
	req.SlotMinutes = 120
	day := mustGenerate(t, req)[0]
	// 08-10, 10-12, 12-14, 14-16; 16-18 would overrun 17:00.
	if len(day.Slots) != 4 || day.Slots[3].End != "16:00" {
		t.Fatalf("unexpected slots: %+v", day.Slots)
	}
}

func TestGenerate_DisabledDayIsEmpty(t *testing.T) {
	req := baseRequest()
	req.StartDate = monday.AddDate(0, 0, -2) // Saturday
	req.EndDate = monday
	req.Now = monday.AddDate(0, 0, -7)
	days := mustGenerate(t, req)
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	for _, d := range days[:2] {
		if d.Available || d.AvailableCount != 0 || len(d.Slots) != 0 || d.Slots == nil {
			t.Fatalf("%s should be closed with an empty slot list: %+v", d.DayName, d)
		}
	}
	if days[0].DayName != "saturday" || days[1].DayName != "sunday" || days[2].DayName != "monday" {
		t.Fatalf("unexpected day names: %s %s %s", days[0].DayName, days[1].DayName, days[2].DayName)
	}
	if !days[2].Available || days[2].AvailableCount != 9 {
		t.Fatalf("monday should be open: %+v", days[2])
	}
}

func TestGenerate_DisabledDayIgnoresMalformedHours(t *testing.T) {
	req := baseRequest()
	req.Hours[time.Monday] = schedule.DayHours{Enabled: false, Start: "nope"}
	day := mustGenerate(t, req)[0]
	if len(day.Slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(day.Slots))
	}

	req.Hours[time.Monday].Enabled = true
	if _, err := Generate(req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for malformed enabled day, got %v", err)
	}
}

func TestGenerate_BufferSymmetry(t *testing.T) {
	req := baseRequest()
	req.SlotMinutes = 30
	req.Bookings = []model.ConfirmedBooking{booking(t, monday.Add(10*time.Hour), 60)}
	day := mustGenerate(t, req)[0]

	want := map[string]Reason{
		"09:00": ReasonNone,   // ends exactly at 09:30
		"09:30": ReasonBooked, // inside [09:30, 11:30)
		"10:00": ReasonBooked,
		"10:30": ReasonBooked,
		"11:00": ReasonBooked,
		"11:30": ReasonNone, // starts exactly at 11:30
	}
	for start, reason := range want {
		s, ok := day.Find(start)
		if !ok {
			t.Fatalf("slot %s missing", start)
		}
		if s.Reason != reason || s.Available != (reason == ReasonNone) {
			t.Fatalf("slot %s: got available=%v reason=%q, want reason %q", start, s.Available, s.Reason, reason)
		}
	}
}

func TestGenerate_MissingDurationUsesSlotLength(t *testing.T) {
	req := baseRequest()
	req.BufferMinutes = 0
	req.Bookings = []model.ConfirmedBooking{booking(t, monday.Add(10*time.Hour), 0)}
	day := mustGenerate(t, req)[0]
	if s, _ := day.Find("10:00"); s.Available {
		t.Fatal("10:00 should be booked")
	}
	if s, _ := day.Find("11:00"); !s.Available {
		t.Fatal("11:00 should be free when the booking defaults to one slot")
	}
}

func TestGenerate_BookingsOnOtherDaysIgnored(t *testing.T) {
	req := baseRequest()
	req.Bookings = []model.ConfirmedBooking{booking(t, monday.AddDate(0, 0, 1).Add(10*time.Hour), 60)}
	day := mustGenerate(t, req)[0]
	if day.AvailableCount != 9 {
		t.Fatalf("tuesday booking should not affect monday, got %d available", day.AvailableCount)
	}
}

func TestGenerate_CutoffAndBookedPriority(t *testing.T) {
	req := baseRequest()
	req.Now = monday.Add(-24*time.Hour + 13*time.Hour) // Sunday 13:00, cutoff Monday 13:00
	req.Bookings = []model.ConfirmedBooking{booking(t, monday.Add(9*time.Hour), 60)}
	day := mustGenerate(t, req)[0]

	for _, s := range day.Slots {
		start, _ := schedule.ParseClock(s.Start)
		inBlock := start < 10*60+30 && start+60 > 8*60+30
		beforeCutoff := start < 13*60
		switch {
		case inBlock:
			if s.Reason != ReasonBooked {
				t.Fatalf("slot %s: booked must win over cutoff, got %q", s.Start, s.Reason)
			}
		case beforeCutoff:
			if s.Reason != ReasonPastCutoff || s.Available {
				t.Fatalf("slot %s: expected past_cutoff, got %+v", s.Start, s)
			}
		default:
			if !s.Available || s.Reason != ReasonNone {
				t.Fatalf("slot %s: expected available, got %+v", s.Start, s)
			}
		}
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	req := baseRequest()
	req.EndDate = monday.AddDate(0, 0, 6)
	req.Bookings = []model.ConfirmedBooking{booking(t, monday.Add(13*time.Hour), 45)}
	a := mustGenerate(t, req)
	b := mustGenerate(t, req)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("generator output differs between identical calls")
	}
}

func TestGenerate_ScenarioA(t *testing.T) {
	day := mustGenerate(t, baseRequest())[0]
	if !day.Available || day.AvailableCount != 9 {
		t.Fatalf("expected all 9 slots available, got %d", day.AvailableCount)
	}
}

func TestGenerate_ScenarioB(t *testing.T) {
	req := baseRequest()
	req.Bookings = []model.ConfirmedBooking{booking(t, monday.Add(10*time.Hour), 60)}
	day := mustGenerate(t, req)[0]
	if day.AvailableCount != 7 {
		t.Fatalf("expected 7 of 9 available, got %d", day.AvailableCount)
	}
	var booked []string
	for _, s := range day.Slots {
		if s.Reason == ReasonBooked {
			booked = append(booked, s.Start+"-"+s.End)
		}
	}
	// Blocked interval [09:30, 11:30) touches 09:00-10:00, 10:00-11:00 and 11:00-12:00.
	if strings.Join(booked, ",") != "09:00-10:00,10:00-11:00,11:00-12:00" {
		t.Fatalf("unexpected booked slots: %v", booked)
	}
	if day.AvailableCount != 9-len(booked) {
		t.Fatalf("rollup mismatch: %d available, %d booked", day.AvailableCount, len(booked))
	}
}

func TestGenerate_NoBufferBlocksOnlyBookedSlot(t *testing.T) {
	req := baseRequest()
	req.Bookings = []model.ConfirmedBooking{booking(t, monday.Add(10*time.Hour), 60)}
	req.BufferMinutes = 0
	day := mustGenerate(t, req)[0]
	if day.AvailableCount != 8 {
		t.Fatalf("without buffer only 10:00 is booked, got %d available", day.AvailableCount)
	}
}

func TestGenerate_ScenarioC(t *testing.T) {
	now := monday.Add(9 * time.Hour) // today 09:00
	req := baseRequest()
	req.Now = now
	req.LeadTime = 48 * time.Hour
	req.StartDate = monday.AddDate(0, 0, 1)
	req.EndDate = monday.AddDate(0, 0, 4)
	days := mustGenerate(t, req)

	tomorrow := days[0]
	if tomorrow.Available {
		t.Fatalf("tomorrow should be entirely past cutoff: %+v", tomorrow)
	}
	for _, s := range tomorrow.Slots {
		if s.Reason != ReasonPastCutoff {
			t.Fatalf("tomorrow %s: expected past_cutoff, got %q", s.Start, s.Reason)
		}
	}

	var firstDay, firstSlot string
	for _, d := range days {
		for _, s := range d.Slots {
			if s.Available {
				firstDay, firstSlot = d.Date, s.Start
				break
			}
		}
		if firstDay != "" {
			break
		}
	}
	if want := monday.AddDate(0, 0, 2).Format(schedule.DateLayout); firstDay != want || firstSlot != "09:00" {
		t.Fatalf("first available = %s %s, want %s 09:00", firstDay, firstSlot, want)
	}
}

func TestGenerate_LocalTimeAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2026-11-01 is the Sunday clocks fall back.
	day := time.Date(2026, 11, 1, 0, 0, 0, 0, loc)
	hours := schedule.DefaultHours()
	hours[time.Sunday] = schedule.DayHours{Enabled: true, Start: "08:00", End: "12:00"}

	bookedAt := time.Date(2026, 11, 1, 15, 0, 0, 0, time.UTC) // 10:00 EST
	days := mustGenerate(t, Request{
		StartDate:   day,
		EndDate:     day,
		Location:    loc,
		Hours:       hours,
		SlotMinutes: 60,
		Bookings:    []model.ConfirmedBooking{booking(t, bookedAt, 60)},
		Now:         time.Date(2026, 10, 1, 0, 0, 0, 0, loc),
	})
	if s, _ := days[0].Find("10:00"); s.Reason != ReasonBooked {
		t.Fatalf("expected 10:00 local to be booked, got %+v", s)
	}
	if days[0].AvailableCount != 3 {
		t.Fatalf("expected 3 available, got %d", days[0].AvailableCount)
	}
}

func TestGenerate_InvalidInputs(t *testing.T) {
	req := baseRequest()
	req.SlotMinutes = 0
	if _, err := Generate(req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	req = baseRequest()
	req.EndDate = monday.AddDate(0, 0, -1)
	days, err := Generate(req)
	if err != nil || len(days) != 0 {
		t.Fatalf("reversed range should be empty, got %d days err=%v", len(days), err)
	}
}

func TestGenerate_RangeLimit(t *testing.T) {
	req := baseRequest()
	req.EndDate = monday.AddDate(0, 0, 365)
	if days := mustGenerate(t, req); len(days) != 366 {
		t.Fatalf("expected 366 days, got %d", len(days))
	}

	req.EndDate = monday.AddDate(0, 0, 366)
	days, err := Generate(req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for a 367-day range, got %d days err=%v", len(days), err)
	}
}

func TestSlotJSONReasonNull(t *testing.T) {
	raw, err := json.Marshal([]Slot{
		{Start: "08:00", End: "09:00", Available: true},
		{Start: "09:00", End: "10:00", Reason: ReasonBooked},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"start":"08:00","end":"09:00","available":true,"reason":null},{"start":"09:00","end":"10:00","available":false,"reason":"booked"}]`
	if string(raw) != want {
		t.Fatalf("got %s", raw)
	}
}
