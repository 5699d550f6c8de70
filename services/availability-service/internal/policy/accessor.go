package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/schedule"
)

var (
	// ErrContractorNotFound marks Settings that were filled from defaults because the
	// contractor has no record.
	ErrContractorNotFound = errors.New("contractor not found")
	// ErrSettingsUnavailable marks Settings that were filled from defaults because the
	// store could not be read.
	ErrSettingsUnavailable = errors.New("booking settings unavailable")
)

// Stored is what the store knows about a contractor. Nil or zero fields fall back to defaults.
type Stored struct {
	Timezone string
	Policy   *schedule.Policy
	Hours    map[time.Weekday]schedule.DayHours
	Services []schedule.ServiceType
}

type Store interface {
	LoadSettings(ctx context.Context, contractorID string) (Stored, error)
}

// Settings is a fully-populated view of a contractor's booking configuration.
type Settings struct {
	ContractorID string                 `json:"contractor_id"`
	Timezone     string                 `json:"timezone"`
	Policy       schedule.Policy        `json:"policy"`
	Hours        schedule.WeeklyHours   `json:"working_hours"`
	Services     []schedule.ServiceType `json:"service_types"`

	// EffectiveDurations is derived from the service catalogue and the policy overrides.
	// It is read-only; Policy.ServiceDurations holds only what the contractor stored.
	EffectiveDurations map[string]int `json:"effective_service_durations"`

	Location *time.Location `json:"-"`
	// Err is non-nil when the settings are defaults standing in for a missing or unreadable record.
	Err error `json:"-"`
}

type Accessor struct {
	store    Store
	logger   *slog.Logger
	fallback *time.Location
	timeout  time.Duration
}

func NewAccessor(store Store, logger *slog.Logger, fallbackZone string) (*Accessor, error) {
	loc, err := time.LoadLocation(fallbackZone)
	if err != nil {
		return nil, fmt.Errorf("fallback timezone: %w", err)
	}
	return &Accessor{store: store, logger: logger, fallback: loc, timeout: 3 * time.Second}, nil
}

// Settings never fails: a missing contractor or a store error yields defaults with Err set.
func (a *Accessor) Settings(ctx context.Context, contractorID string) Settings {
	out := Settings{
		ContractorID: contractorID,
		Timezone:     a.fallback.String(),
		Policy:       schedule.DefaultPolicy(),
		Hours:        schedule.DefaultHours(),
		Services:     []schedule.ServiceType{},
		Location:     a.fallback,

		EffectiveDurations: map[string]int{},
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	stored, err := a.store.LoadSettings(ctx, contractorID)
	if err != nil {
		if errors.Is(err, ErrContractorNotFound) {
			out.Err = ErrContractorNotFound
			return out
		}
		a.logger.Error("booking settings read failed; using defaults", "contractor_id", contractorID, "err", err)
		out.Err = fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
		return out
	}

	if stored.Timezone != "" {
		if loc, err := time.LoadLocation(stored.Timezone); err == nil {
			out.Timezone, out.Location = stored.Timezone, loc
		} else {
			a.logger.Warn("unknown contractor timezone; using fallback", "contractor_id", contractorID, "timezone", stored.Timezone)
		}
	}
	if stored.Policy != nil {
		out.Policy = normalize(stored.Policy.Clone())
	}
	for wd, day := range stored.Hours {
		if wd < time.Sunday || wd > time.Saturday {
			continue
		}
		if day.Enabled {
			if start, end, err := day.Bounds(); err != nil || start >= end {
				a.logger.Warn("malformed working hours; closing day", "contractor_id", contractorID, "day", schedule.DayName(wd))
				day.Enabled = false
			}
		}
		out.Hours[wd] = day
	}
	if len(stored.Services) > 0 {
		out.Services = append(out.Services, stored.Services...)
	}
	out.EffectiveDurations = mergeServiceDurations(out.Policy.ServiceDurations, out.Services)
	return out
}

// DurationFor returns the slot length for serviceType, preferring the catalogue and overrides.
func (s Settings) DurationFor(serviceType string) int {
	if mins, ok := s.EffectiveDurations[serviceType]; ok && mins > 0 {
		return mins
	}
	return s.Policy.DurationFor(serviceType)
}

// normalize replaces out-of-range values with their defaults.
func normalize(p schedule.Policy) schedule.Policy {
	def := schedule.DefaultPolicy()
	if p.LeadTimeHours < 0 {
		p.LeadTimeHours = def.LeadTimeHours
	}
	if p.MaxAdvanceDays < 0 {
		p.MaxAdvanceDays = def.MaxAdvanceDays
	}
	if p.MaxAdvanceDays > schedule.MaxAdvanceDaysLimit {
		p.MaxAdvanceDays = schedule.MaxAdvanceDaysLimit
	}
	if p.SlotDurationMinutes <= 0 {
		p.SlotDurationMinutes = def.SlotDurationMinutes
	}
	if p.BufferMinutes < 0 {
		p.BufferMinutes = def.BufferMinutes
	}
	if p.Customization.BrandColor == "" {
		p.Customization.BrandColor = def.Customization.BrandColor
	}
	if p.Customization.ButtonLabel == "" {
		p.Customization.ButtonLabel = def.Customization.ButtonLabel
	}
	return p
}

// mergeServiceDurations fills in service type lengths that the policy does not override.
func mergeServiceDurations(overrides map[string]int, services []schedule.ServiceType) map[string]int {
	out := make(map[string]int, len(overrides)+len(services))
	for _, svc := range services {
		if svc.ID != "" && svc.DurationMinutes > 0 {
			out[svc.ID] = svc.DurationMinutes
		}
	}
	for id, mins := range overrides {
		if mins > 0 {
			out[id] = mins
		}
	}
	return out
}
