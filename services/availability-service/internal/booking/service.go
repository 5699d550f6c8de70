package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/homeservices/libs/otel"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/policy"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/schedule"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type SettingsSource interface {
	Settings(ctx context.Context, contractorID string) policy.Settings
}

type JobReader interface {
	// ListBlockingJobs returns jobs in a blocking status scheduled within [from, to).
	ListBlockingJobs(ctx context.Context, contractorID string, from, to time.Time) ([]model.Job, error)
}

type Store interface {
	JobReader
	// InBookingTx runs fn in a transaction that is serialized with every other booking
	// transaction for the same contractor.
	InBookingTx(ctx context.Context, contractorID string, fn func(Tx) error) error
}

type Service struct {
	settings SettingsSource
	store    Store
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	timeout  time.Duration
}

func NewService(settings SettingsSource, store Store, logger *slog.Logger) *Service {
	return &Service{
		settings: settings,
		store:    store,
		logger:   logger,
		tracer:   otelx.Tracer("availability"),
		now:      time.Now,
		timeout:  3 * time.Second,
	}
}

// load fetches settings and turns the soft-fail markers and the enabled switch into errors.
func (s *Service) load(ctx context.Context, contractorID string) (policy.Settings, error) {
	st := s.settings.Settings(ctx, contractorID)
	if st.Err != nil {
		if errors.Is(st.Err, policy.ErrContractorNotFound) {
			return st, fmt.Errorf("%w: %w", ErrNotAvailable, st.Err)
		}
		return st, fmt.Errorf("%w: %w", ErrUnavailable, st.Err)
	}
	if !st.Policy.Enabled {
		return st, ErrBookingDisabled
	}
	return st, nil
}

// window returns the first and last bookable calendar days for the current time.
func (s *Service) window(st policy.Settings) (today, last time.Time) {
	today = schedule.StartOfDay(s.now(), st.Location)
	return today, today.AddDate(0, 0, st.Policy.MaxAdvanceDays)
}

func (s *Service) request(st policy.Settings, from, to time.Time, slotMinutes int, jobs []model.Job) availability.Request {
	return availability.Request{
		StartDate:     from,
		EndDate:       to,
		Location:      st.Location,
		Hours:         st.Hours,
		SlotMinutes:   slotMinutes,
		BufferMinutes: st.Policy.BufferMinutes,
		LeadTime:      time.Duration(st.Policy.LeadTimeHours) * time.Hour,
		Bookings:      model.ConfirmedBookings(jobs),
		Now:           s.now(),
	}
}

// generate reads the blocking jobs for [from, to] and runs the slot generator over them.
func (s *Service) generate(ctx context.Context, st policy.Settings, from, to time.Time, slotMinutes int) ([]availability.DayAvailability, error) {
	ctx, span := s.tracer.Start(ctx, "availability.generate", trace.WithAttributes(
		attribute.String("contractor.id", st.ContractorID),
		attribute.String("range.from", from.Format(schedule.DateLayout)),
		attribute.String("range.to", to.Format(schedule.DateLayout)),
		attribute.Int("slot.minutes", slotMinutes),
	))
	defer span.End()

	readCtx, cancel := context.WithTimeout(ctx, s.timeout)
	jobs, err := s.store.ListBlockingJobs(readCtx, st.ContractorID, from, to.AddDate(0, 0, 1))
	cancel()
	if err != nil {
		s.logger.Error("blocking jobs read failed", "contractor_id", st.ContractorID, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "jobs read")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	span.SetAttributes(attribute.Int("jobs.blocking", len(jobs)))

	days, err := availability.Generate(s.request(st, from, to, slotMinutes, jobs))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return days, nil
}

// AvailableSlots returns the slot grid for every day in [startDate, endDate], clamped to the
// contractor's booking window. An empty endDate means a single day.
func (s *Service) AvailableSlots(ctx context.Context, contractorID, startDate, endDate, serviceType string) (map[string]availability.DayAvailability, error) {
	st, err := s.load(ctx, contractorID)
	if err != nil {
		return nil, err
	}
	if serviceType != "" && !st.Policy.Allows(serviceType) {
		return nil, ErrServiceNotAllowed
	}
	from, err := schedule.ParseDate(startDate, st.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date: %v", ErrInvalidInput, err)
	}
	to := from
	if endDate != "" {
		if to, err = schedule.ParseDate(endDate, st.Location); err != nil {
			return nil, fmt.Errorf("%w: end_date: %v", ErrInvalidInput, err)
		}
	}

	today, last := s.window(st)
	if from.Before(today) {
		from = today
	}
	if to.After(last) {
		to = last
	}
	out := make(map[string]availability.DayAvailability)
	if from.After(to) {
		return out, nil
	}

	days, err := s.generate(ctx, st, from, to, st.DurationFor(serviceType))
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		out[d.Date] = d
	}
	return out, nil
}

type SlotStatus struct {
	Available bool                `json:"available"`
	Reason    availability.Reason `json:"reason"`
}

// CheckSlot reports whether the slot starting at clock ("HH:MM") on date is bookable.
// durationMinutes of zero uses the policy default. A time off the grid yields ErrSlotNotFound
// and a date outside the booking window ErrOutsideWindow, matching what Book would reject.
func (s *Service) CheckSlot(ctx context.Context, contractorID, date, clock string, durationMinutes int) (SlotStatus, error) {
	st, err := s.load(ctx, contractorID)
	if err != nil {
		return SlotStatus{}, err
	}
	day, err := schedule.ParseDate(date, st.Location)
	if err != nil {
		return SlotStatus{}, fmt.Errorf("%w: date: %v", ErrInvalidInput, err)
	}
	if _, err := schedule.ParseClock(clock); err != nil {
		return SlotStatus{}, fmt.Errorf("%w: time: %v", ErrInvalidInput, err)
	}
	if durationMinutes < 0 {
		return SlotStatus{}, fmt.Errorf("%w: duration must not be negative", ErrInvalidInput)
	}
	if durationMinutes == 0 {
		durationMinutes = st.Policy.SlotDurationMinutes
	}
	if today, last := s.window(st); day.Before(today) || day.After(last) {
		return SlotStatus{}, ErrOutsideWindow
	}

	days, err := s.generate(ctx, st, day, day, durationMinutes)
	if err != nil {
		return SlotStatus{}, err
	}
	slot, ok := days[0].Find(clock)
	if !ok {
		return SlotStatus{}, ErrSlotNotFound
	}
	return SlotStatus{Available: slot.Available, Reason: slot.Reason}, nil
}

type DateSummary struct {
	Date           string `json:"date"`
	DayName        string `json:"day_name"`
	AvailableCount int    `json:"available_count"`
}

// NextAvailableDates returns up to count days, earliest first, that still have an open slot
// between the lead-time cutoff and the end of the booking window.
func (s *Service) NextAvailableDates(ctx context.Context, contractorID string, count int) ([]DateSummary, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidInput)
	}
	st, err := s.load(ctx, contractorID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	from := schedule.StartOfDay(now.Add(time.Duration(st.Policy.LeadTimeHours)*time.Hour), st.Location)
	_, last := s.window(st)

	out := make([]DateSummary, 0, count)
	if from.After(last) {
		return out, nil
	}
	days, err := s.generate(ctx, st, from, last, st.Policy.SlotDurationMinutes)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		if !d.Available {
			continue
		}
		out = append(out, DateSummary{Date: d.Date, DayName: d.DayName, AvailableCount: d.AvailableCount})
		if len(out) == count {
			break
		}
	}
	return out, nil
}
