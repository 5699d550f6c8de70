package storage

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/schedule"
)

func TestWorkingHoursRowRoundTrip(t *testing.T) {
	h := schedule.DefaultHours()
	h[time.Saturday] = schedule.DayHours{Enabled: true, Start: "09:30", End: "13:00"}
	h[time.Sunday] = schedule.DayHours{Enabled: false}

	rows, err := rowsFromHours(h)
	if err != nil {
		t.Fatalf("rowsFromHours: %v", err)
	}
	if len(rows) != 7 || rows[6].StartMinute != 570 || rows[6].EndMinute != 780 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Enabled || rows[0].StartMinute != 480 {
		t.Fatalf("closed sunday should store the default window: %+v", rows[0])
	}

	back := hoursFromRows(rows)
	if back[time.Saturday] != h[time.Saturday] || back[time.Monday] != h[time.Monday] {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestRowsFromHoursRejectsMalformedOpenDay(t *testing.T) {
	h := schedule.DefaultHours()
	h[time.Monday].Start = "8am"
	if _, err := rowsFromHours(h); err == nil {
		t.Fatal("expected error for malformed open day")
	}
}

func TestHoursFromRowsSkipsUnknownWeekday(t *testing.T) {
	got := hoursFromRows([]hoursRow{{Weekday: 9, Enabled: true, StartMinute: 0, EndMinute: 60}})
	if len(got) != 0 {
		t.Fatalf("expected unknown weekday to be dropped, got %v", got)
	}
	if hoursFromRows(nil) != nil {
		t.Fatal("no rows should yield nil")
	}
}
