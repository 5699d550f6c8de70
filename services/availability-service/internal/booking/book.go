package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/schedule"
)

// Tx is the storage surface available inside a booking transaction.
type Tx interface {
	ListBlockingJobs(ctx context.Context, contractorID string, from, to time.Time) ([]model.Job, error)
	InsertJob(ctx context.Context, job *model.Job) error
	LockIdempotencyKey(ctx context.Context, contractorID, key string) (IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, contractorID, key, jobID string, statusCode int, response []byte) error
	InsertOutbox(ctx context.Context, evt outbox.Event) error
}

type IdempotencyRecord struct {
	ContractorID    string
	IdempotencyKey  string
	JobID           string
	StatusCode      int
	ResponsePayload []byte
}

type Request struct {
	ContractorID    string `json:"contractor_id"`
	ServiceType     string `json:"service_type"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
	CustomerAddress string `json:"customer_address"`
	Notes           string `json:"notes"`
}

type Confirmation struct {
	JobID        string    `json:"job_id"`
	ContractorID string    `json:"contractor_id"`
	ServiceType  string    `json:"service_type,omitempty"`
	Date         string    `json:"date"`
	Start        string    `json:"start"`
	End          string    `json:"end"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Status       string    `json:"status"`
}

type jobBookedEvent struct {
	JobID                    string    `json:"job_id"`
	ContractorID             string    `json:"contractor_id"`
	ServiceType              string    `json:"service_type"`
	ScheduledAt              time.Time `json:"scheduled_at"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes"`
	CustomerName             string    `json:"customer_name"`
	CustomerEmail            string    `json:"customer_email,omitempty"`
	CustomerPhone            string    `json:"customer_phone,omitempty"`
	CustomerAddress          string    `json:"customer_address,omitempty"`
	Notes                    string    `json:"notes,omitempty"`
	Source                   string    `json:"source"`
}

func (r *Request) normalize() {
	r.ContractorID = strings.TrimSpace(r.ContractorID)
	r.ServiceType = strings.TrimSpace(r.ServiceType)
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.CustomerAddress = strings.TrimSpace(r.CustomerAddress)
	r.Notes = strings.TrimSpace(r.Notes)
}

// Book creates a job for the requested slot. The slot is re-checked against the calendar
// inside a per-contractor serialized transaction, so concurrent requests for the same slot
// cannot both succeed. With a non-empty idempotencyKey a repeated call returns the first
// confirmation and replayed=true.
func (s *Service) Book(ctx context.Context, req Request, idempotencyKey string) (conf Confirmation, replayed bool, err error) {
	req.normalize()
	st, err := s.load(ctx, req.ContractorID)
	if err != nil {
		return Confirmation{}, false, err
	}
	if err := validateCustomer(req, st.Policy.RequirePhone, st.Policy.RequireAddress); err != nil {
		return Confirmation{}, false, err
	}
	if !st.Policy.Allows(req.ServiceType) {
		return Confirmation{}, false, ErrServiceNotAllowed
	}
	day, err := schedule.ParseDate(req.Date, st.Location)
	if err != nil {
		return Confirmation{}, false, fmt.Errorf("%w: date: %v", ErrInvalidInput, err)
	}
	startMin, err := schedule.ParseClock(req.Time)
	if err != nil {
		return Confirmation{}, false, fmt.Errorf("%w: time: %v", ErrInvalidInput, err)
	}
	if today, last := s.window(st); day.Before(today) || day.After(last) {
		return Confirmation{}, false, ErrOutsideWindow
	}
	minutes := st.DurationFor(req.ServiceType)

	ctx, span := s.tracer.Start(ctx, "availability.book")
	defer span.End()

	err = s.store.InBookingTx(ctx, req.ContractorID, func(tx Tx) error {
		if idempotencyKey != "" {
			rec, exists, err := tx.LockIdempotencyKey(ctx, req.ContractorID, idempotencyKey)
			if err != nil {
				return fmt.Errorf("lock idempotency key: %w", err)
			}
			if exists && rec.JobID != "" && len(rec.ResponsePayload) > 0 {
				if err := json.Unmarshal(rec.ResponsePayload, &conf); err != nil {
					return fmt.Errorf("decode stored response: %w", err)
				}
				replayed = true
				return nil
			}
		}

		jobs, err := tx.ListBlockingJobs(ctx, req.ContractorID, day, day.AddDate(0, 0, 1))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		days, err := availability.Generate(s.request(st, day, day, minutes, jobs))
		if err != nil {
			return err
		}
		slot, ok := days[0].Find(req.Time)
		if !ok {
			return ErrSlotNotFound
		}
		switch slot.Reason {
		case availability.ReasonBooked:
			return ErrSlotTaken
		case availability.ReasonPastCutoff:
			return ErrPastCutoff
		}

		job := model.Job{
			ContractorID:     req.ContractorID,
			ServiceType:      req.ServiceType,
			CustomerName:     req.CustomerName,
			CustomerEmail:    req.CustomerEmail,
			CustomerPhone:    req.CustomerPhone,
			CustomerAddress:  req.CustomerAddress,
			Notes:            req.Notes,
			ScheduledAt:      schedule.At(day, startMin),
			EstimatedMinutes: minutes,
			Status:           model.StatusScheduled,
			Source:           "widget",
		}
		if err := tx.InsertJob(ctx, &job); err != nil {
			if errors.Is(err, model.ErrJobOverlap) {
				return ErrSlotTaken
			}
			return fmt.Errorf("insert job: %w", err)
		}

		payload, err := json.Marshal(jobBookedEvent{
			JobID:                    job.ID,
			ContractorID:             job.ContractorID,
			ServiceType:              job.ServiceType,
			ScheduledAt:              job.ScheduledAt.UTC(),
			EstimatedDurationMinutes: job.EstimatedMinutes,
			CustomerName:             job.CustomerName,
			CustomerEmail:            job.CustomerEmail,
			CustomerPhone:            job.CustomerPhone,
			CustomerAddress:          job.CustomerAddress,
			Notes:                    job.Notes,
			Source:                   job.Source,
		})
		if err != nil {
			return fmt.Errorf("build event payload: %w", err)
		}
		if err := tx.InsertOutbox(ctx, outbox.Event{
			AggregateType: "job",
			AggregateID:   job.ID,
			EventType:     outbox.EventJobBooked,
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("write outbox event: %w", err)
		}

		conf = Confirmation{
			JobID:        job.ID,
			ContractorID: job.ContractorID,
			ServiceType:  job.ServiceType,
			Date:         days[0].Date,
			Start:        slot.Start,
			End:          slot.End,
			ScheduledAt:  job.ScheduledAt,
			Status:       string(job.Status),
		}
		if idempotencyKey != "" {
			body, err := json.Marshal(conf)
			if err != nil {
				return fmt.Errorf("build response: %w", err)
			}
			if err := tx.FinalizeIdempotency(ctx, req.ContractorID, idempotencyKey, job.ID, http.StatusCreated, body); err != nil {
				return fmt.Errorf("finalize idempotency key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Confirmation{}, false, err
	}
	if !replayed {
		s.logger.Info("job booked", "contractor_id", conf.ContractorID, "job_id", conf.JobID, "date", conf.Date, "start", conf.Start)
	}
	return conf, replayed, nil
}

// ValidationError names the request fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func validateCustomer(req Request, requirePhone, requireAddress bool) error {
	var missing []string
	if req.CustomerName == "" {
		missing = append(missing, "customer_name")
	}
	if req.Date == "" {
		missing = append(missing, "date")
	}
	if req.Time == "" {
		missing = append(missing, "time")
	}
	if requirePhone && req.CustomerPhone == "" {
		missing = append(missing, "customer_phone")
	}
	if requireAddress && req.CustomerAddress == "" {
		missing = append(missing, "customer_address")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}
