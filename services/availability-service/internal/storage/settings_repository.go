package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/homeservices/libs/db"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/policy"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/schedule"
)

var ErrDuplicateServiceType = errors.New("duplicate service type id")

type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

type hoursRow struct {
	Weekday     int
	Enabled     bool
	StartMinute int
	EndMinute   int
}

// LoadSettings reads everything the policy accessor needs in one round trip.
func (r *SettingsRepository) LoadSettings(ctx context.Context, contractorID string) (policy.Stored, error) {
	batch := &pgx.Batch{}
	batch.Queue(`SELECT timezone FROM contractors WHERE id = $1`, contractorID)
	batch.Queue(`
		SELECT enabled, lead_time_hours, max_advance_days, slot_duration_minutes, buffer_minutes,
			service_durations, allowed_services, require_phone, require_address, brand_color, button_label
		FROM booking_settings
		WHERE contractor_id = $1
	`, contractorID)
	batch.Queue(`
		SELECT weekday, enabled, start_minute, end_minute
		FROM working_hours
		WHERE contractor_id = $1
	`, contractorID)
	batch.Queue(`
		SELECT id, name, duration_minutes
		FROM service_types
		WHERE contractor_id = $1
		ORDER BY name, id
	`, contractorID)

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	var out policy.Stored
	if err := br.QueryRow().Scan(&out.Timezone); err != nil {
		if db.IsNotFound(err) {
			return policy.Stored{}, policy.ErrContractorNotFound
		}
		return policy.Stored{}, fmt.Errorf("load contractor: %w", err)
	}

	var p schedule.Policy
	err := br.QueryRow().Scan(
		&p.Enabled,
		&p.LeadTimeHours,
		&p.MaxAdvanceDays,
		&p.SlotDurationMinutes,
		&p.BufferMinutes,
		&p.ServiceDurations,
		&p.AllowedServices,
		&p.RequirePhone,
		&p.RequireAddress,
		&p.Customization.BrandColor,
		&p.Customization.ButtonLabel,
	)
	switch {
	case err == nil:
		out.Policy = &p
	case !db.IsNotFound(err):
		return policy.Stored{}, fmt.Errorf("load booking settings: %w", err)
	}

	rows, err := br.Query()
	if err != nil {
		return policy.Stored{}, fmt.Errorf("load working hours: %w", err)
	}
	var hours []hoursRow
	for rows.Next() {
		var h hoursRow
		if err := rows.Scan(&h.Weekday, &h.Enabled, &h.StartMinute, &h.EndMinute); err != nil {
			rows.Close()
			return policy.Stored{}, err
		}
		hours = append(hours, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return policy.Stored{}, err
	}
	out.Hours = hoursFromRows(hours)

	rows, err = br.Query()
	if err != nil {
		return policy.Stored{}, fmt.Errorf("load service types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var svc schedule.ServiceType
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.DurationMinutes); err != nil {
			return policy.Stored{}, err
		}
		out.Services = append(out.Services, svc)
	}
	if err := rows.Err(); err != nil {
		return policy.Stored{}, err
	}
	return out, nil
}

func hoursFromRows(rows []hoursRow) map[time.Weekday]schedule.DayHours {
	if len(rows) == 0 {
		return nil
	}
	out := make(map[time.Weekday]schedule.DayHours, len(rows))
	for _, h := range rows {
		if h.Weekday < 0 || h.Weekday > 6 {
			continue
		}
		out[time.Weekday(h.Weekday)] = schedule.DayHours{
			Enabled: h.Enabled,
			Start:   schedule.FormatClock(h.StartMinute),
			End:     schedule.FormatClock(h.EndMinute),
		}
	}
	return out
}

func rowsFromHours(h schedule.WeeklyHours) ([]hoursRow, error) {
	out := make([]hoursRow, 0, len(h))
	for i, d := range h {
		row := hoursRow{Weekday: i, Enabled: d.Enabled}
		start, end, err := d.Bounds()
		switch {
		case err == nil:
			row.StartMinute, row.EndMinute = start, end
		case d.Enabled:
			return nil, fmt.Errorf("%s: %w", schedule.DayName(time.Weekday(i)), err)
		default:
			// Closed days may carry blank times; store the default window.
			def := schedule.DefaultHours().Day(time.Weekday(i))
			row.StartMinute, _ = schedule.ParseClock(def.Start)
			row.EndMinute, _ = schedule.ParseClock(def.End)
		}
		out = append(out, row)
	}
	return out, nil
}

func ensureContractor(ctx context.Context, tx pgx.Tx, contractorID, timezone string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO contractors (id, timezone)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET timezone = COALESCE(NULLIF(EXCLUDED.timezone, ''), contractors.timezone),
			updated_at = now()
	`, contractorID, timezone)
	return err
}

// SaveSettings upserts the contractor's policy. An empty timezone keeps the stored one.
func (r *SettingsRepository) SaveSettings(ctx context.Context, contractorID, timezone string, p schedule.Policy) error {
	durations := p.ServiceDurations
	if durations == nil {
		durations = map[string]int{}
	}
	allowed := p.AllowedServices
	if allowed == nil {
		allowed = []string{}
	}
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := ensureContractor(ctx, tx, contractorID, timezone); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO booking_settings
				(contractor_id, enabled, lead_time_hours, max_advance_days, slot_duration_minutes, buffer_minutes,
				 service_durations, allowed_services, require_phone, require_address, brand_color, button_label)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (contractor_id) DO UPDATE
			SET enabled = EXCLUDED.enabled,
				lead_time_hours = EXCLUDED.lead_time_hours,
				max_advance_days = EXCLUDED.max_advance_days,
				slot_duration_minutes = EXCLUDED.slot_duration_minutes,
				buffer_minutes = EXCLUDED.buffer_minutes,
				service_durations = EXCLUDED.service_durations,
				allowed_services = EXCLUDED.allowed_services,
				require_phone = EXCLUDED.require_phone,
				require_address = EXCLUDED.require_address,
				brand_color = EXCLUDED.brand_color,
				button_label = EXCLUDED.button_label,
				updated_at = now()
		`, contractorID, p.Enabled, p.LeadTimeHours, p.MaxAdvanceDays, p.SlotDurationMinutes, p.BufferMinutes,
			durations, allowed, p.RequirePhone, p.RequireAddress, p.Customization.BrandColor, p.Customization.ButtonLabel)
		return err
	})
}

func (r *SettingsRepository) SaveWorkingHours(ctx context.Context, contractorID string, h schedule.WeeklyHours) error {
	rows, err := rowsFromHours(h)
	if err != nil {
		return err
	}
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := ensureContractor(ctx, tx, contractorID, ""); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, row := range rows {
			batch.Queue(`
				INSERT INTO working_hours (contractor_id, weekday, enabled, start_minute, end_minute)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (contractor_id, weekday) DO UPDATE
				SET enabled = EXCLUDED.enabled,
					start_minute = EXCLUDED.start_minute,
					end_minute = EXCLUDED.end_minute,
					updated_at = now()
			`, contractorID, row.Weekday, row.Enabled, row.StartMinute, row.EndMinute)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ReplaceServiceTypes swaps the contractor's service catalogue. Entries without an id get one.
func (r *SettingsRepository) ReplaceServiceTypes(ctx context.Context, contractorID string, services []schedule.ServiceType) ([]schedule.ServiceType, error) {
	out := make([]schedule.ServiceType, 0, len(services))
	for _, svc := range services {
		svc.ID = strings.TrimSpace(svc.ID)
		if svc.ID == "" {
			svc.ID = uuid.NewString()
		}
		out = append(out, svc)
	}
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := ensureContractor(ctx, tx, contractorID, ""); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM service_types WHERE contractor_id = $1`, contractorID); err != nil {
			return err
		}
		for _, svc := range out {
			if _, err := tx.Exec(ctx, `
				INSERT INTO service_types (contractor_id, id, name, duration_minutes)
				VALUES ($1, $2, $3, $4)
			`, contractorID, svc.ID, svc.Name, svc.DurationMinutes); err != nil {
				if db.HasCode(err, db.CodeUniqueViolation) {
					return fmt.Errorf("%w %q", ErrDuplicateServiceType, svc.ID)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
