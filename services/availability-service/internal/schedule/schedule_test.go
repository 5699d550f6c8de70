package schedule

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"08:30", 510, false},
		{"17:00", 1020, false},
		{"24:00", 1440, false},
		{"24:01", 0, true},
		{"8:00", 0, true},
		{"12:60", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseClock(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if !tc.wantErr && got != tc.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if FormatClock(510) != "08:30" || FormatClock(1440) != "24:00" {
		t.Fatalf("FormatClock mismatch: %s %s", FormatClock(510), FormatClock(1440))
	}
}

func TestDefaultPolicyIsIsolatedPerCall(t *testing.T) {
	a := DefaultPolicy()
	a.Enabled = true
	a.AllowedServices = append(a.AllowedServices, "plumbing")
	a.ServiceDurations = map[string]int{"plumbing": 90}

	b := DefaultPolicy()
	if b.Enabled || len(b.AllowedServices) != 0 || len(b.ServiceDurations) != 0 {
		t.Fatalf("default policy leaked mutation: %+v", b)
	}
	if b.LeadTimeHours != 24 || b.MaxAdvanceDays != 30 || b.SlotDurationMinutes != 60 || b.BufferMinutes != 30 {
		t.Fatalf("unexpected defaults: %+v", b)
	}
	if !b.RequirePhone || !b.RequireAddress {
		t.Fatalf("required fields should default on: %+v", b)
	}
}

func TestCloneDeepCopies(t *testing.T) {
	p := DefaultPolicy()
	p.ServiceDurations = map[string]int{"hvac": 120}
	p.AllowedServices = []string{"hvac"}

	c := p.Clone()
	c.ServiceDurations["hvac"] = 30
	c.AllowedServices[0] = "roofing"
	if p.ServiceDurations["hvac"] != 120 || p.AllowedServices[0] != "hvac" {
		t.Fatalf("clone shares state with original: %+v", p)
	}
}

func TestDefaultHours(t *testing.T) {
	h := DefaultHours()
	h[time.Saturday].Enabled = true
	if DefaultHours()[time.Saturday].Enabled {
		t.Fatal("default hours leaked mutation")
	}
	for _, d := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		day := DefaultHours().Day(d)
		if !day.Enabled || day.Start != "08:00" || day.End != "17:00" {
			t.Fatalf("%s: unexpected default %+v", DayName(d), day)
		}
	}
	if DefaultHours().Day(time.Sunday).Enabled {
		t.Fatal("sunday should be closed by default")
	}
}

func TestPolicyValidate(t *testing.T) {
	p := DefaultPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	bad := []func(*Policy){
		func(p *Policy) { p.LeadTimeHours = -1 },
		func(p *Policy) { p.MaxAdvanceDays = -1 },
		func(p *Policy) { p.MaxAdvanceDays = MaxAdvanceDaysLimit + 1 },
		func(p *Policy) { p.SlotDurationMinutes = 0 },
		func(p *Policy) { p.BufferMinutes = -5 },
		func(p *Policy) { p.ServiceDurations = map[string]int{"x": 0} },
		func(p *Policy) { p.Customization.BrandColor = "red" },
	}
	edge := DefaultPolicy()
	edge.MaxAdvanceDays = MaxAdvanceDaysLimit
	if err := edge.Validate(); err != nil {
		t.Fatalf("max_advance_days at the limit should validate: %v", err)
	}
	for i, mutate := range bad {
		p := DefaultPolicy()
		mutate(&p)
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestDurationForAndAllows(t *testing.T) {
	p := DefaultPolicy()
	p.ServiceDurations = map[string]int{"install": 120}
	if p.DurationFor("install") != 120 || p.DurationFor("repair") != 60 || p.DurationFor("") != 60 {
		t.Fatal("unexpected duration resolution")
	}
	if !p.Allows("anything") {
		t.Fatal("empty allow-list should allow all")
	}
	p.AllowedServices = []string{"install"}
	if !p.Allows("install") || p.Allows("repair") {
		t.Fatal("allow-list not honoured")
	}
}

func TestWeeklyHoursValidate(t *testing.T) {
	h := DefaultHours()
	h[time.Monday] = DayHours{Enabled: true, Start: "17:00", End: "08:00"}
	if err := h.Validate(); err == nil {
		t.Fatal("expected start after end to fail")
	}

	h = DefaultHours()
	h[time.Sunday] = DayHours{Enabled: false, Start: "garbage", End: ""}
	if err := h.Validate(); err != nil {
		t.Fatalf("disabled day must not be validated: %v", err)
	}
}

func TestWeeklyHoursJSON(t *testing.T) {
	raw, err := json.Marshal(DefaultHours())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]DayHours
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if len(m) != 7 || !m["monday"].Enabled || m["sunday"].Enabled {
		t.Fatalf("unexpected encoding: %s", raw)
	}

	h := DefaultHours()
	if err := json.Unmarshal([]byte(`{"Saturday":{"enabled":true,"start":"09:00","end":"12:00"}}`), &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !h[time.Saturday].Enabled || h[time.Saturday].End != "12:00" || !h[time.Monday].Enabled {
		t.Fatalf("partial update not merged: %+v", h)
	}
	if err := json.Unmarshal([]byte(`{"funday":{}}`), &h); err == nil {
		t.Fatal("expected unknown day error")
	}
}

func TestAtAndSameDate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	day, err := ParseDate("2026-03-09", loc)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	got := At(day, 9*60+30)
	if got.Hour() != 9 || got.Minute() != 30 || got.Location() != loc {
		t.Fatalf("unexpected instant %s", got)
	}
	if !SameDate(got, day) || SameDate(got, day.AddDate(0, 0, 1)) {
		t.Fatal("SameDate mismatch")
	}
	if _, err := ParseDate("03/09/2026", loc); err == nil {
		t.Fatal("expected invalid date error")
	}
}
