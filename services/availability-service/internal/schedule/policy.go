package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type Customization struct {
	BrandColor  string `json:"brand_color,omitempty"`
	ButtonLabel string `json:"button_label,omitempty"`
}

// Policy is a contractor's online booking configuration.
type Policy struct {
	Enabled             bool           `json:"enabled"`
	LeadTimeHours       int            `json:"lead_time_hours"`
	MaxAdvanceDays      int            `json:"max_advance_days"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	BufferMinutes       int            `json:"buffer_minutes"`
	ServiceDurations    map[string]int `json:"service_durations,omitempty"`
	AllowedServices     []string       `json:"allowed_services"`
	RequirePhone        bool           `json:"require_phone"`
	RequireAddress      bool           `json:"require_address"`
	Customization       Customization  `json:"customization"`
}

var defaultPolicy = Policy{
	Enabled:             false,
	LeadTimeHours:       24,
	MaxAdvanceDays:      30,
	SlotDurationMinutes: 60,
	BufferMinutes:       30,
	RequirePhone:        true,
	RequireAddress:      true,
	Customization:       Customization{BrandColor: "#2563eb", ButtonLabel: "Book now"},
}

// DefaultPolicy returns a fresh copy of the default policy; callers may mutate it freely.
func DefaultPolicy() Policy {
	return defaultPolicy.Clone()
}

// Clone deep-copies the policy so the result shares no maps or slices with p.
func (p Policy) Clone() Policy {
	out := p
	if p.ServiceDurations != nil {
		out.ServiceDurations = make(map[string]int, len(p.ServiceDurations))
		for k, v := range p.ServiceDurations {
			out.ServiceDurations[k] = v
		}
	}
	if p.AllowedServices != nil {
		out.AllowedServices = append([]string(nil), p.AllowedServices...)
	}
	return out
}

// MaxAdvanceDaysLimit keeps the booking window within a single availability run.
const MaxAdvanceDaysLimit = 365

var brandColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func (p Policy) Validate() error {
	var errs []error
	if p.LeadTimeHours < 0 {
		errs = append(errs, errors.New("lead_time_hours must be >= 0"))
	}
	if p.MaxAdvanceDays < 0 || p.MaxAdvanceDays > MaxAdvanceDaysLimit {
		errs = append(errs, fmt.Errorf("max_advance_days must be between 0 and %d", MaxAdvanceDaysLimit))
	}
	if p.SlotDurationMinutes <= 0 || p.SlotDurationMinutes > minutesPerDay {
		errs = append(errs, errors.New("slot_duration_minutes must be between 1 and 1440"))
	}
	if p.BufferMinutes < 0 {
		errs = append(errs, errors.New("buffer_minutes must be >= 0"))
	}
	for svc, mins := range p.ServiceDurations {
		if strings.TrimSpace(svc) == "" || mins <= 0 || mins > minutesPerDay {
			errs = append(errs, fmt.Errorf("service_durations[%q] must be between 1 and 1440", svc))
		}
	}
	if c := p.Customization.BrandColor; c != "" && !brandColorRe.MatchString(c) {
		errs = append(errs, fmt.Errorf("brand_color %q must be #RRGGBB", c))
	}
	return errors.Join(errs...)
}

// DurationFor resolves the slot length for serviceType, falling back to the default slot duration.
func (p Policy) DurationFor(serviceType string) int {
	if mins, ok := p.ServiceDurations[serviceType]; ok && mins > 0 {
		return mins
	}
	return p.SlotDurationMinutes
}

// Allows reports whether serviceType may be booked online. An empty allow-list permits everything.
func (p Policy) Allows(serviceType string) bool {
	if len(p.AllowedServices) == 0 {
		return true
	}
	for _, s := range p.AllowedServices {
		if s == serviceType {
			return true
		}
	}
	return false
}

type ServiceType struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}
