package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const TopicJobStatusChanged = "jobs.job.status_changed.v1"

// JobEvent is the job snapshot published by the jobs subsystem whenever a job is created,
// rescheduled or changes status.
type JobEvent struct {
	JobID                    string    `json:"job_id"`
	ContractorID             string    `json:"contractor_id"`
	ServiceType              string    `json:"service_type"`
	Status                   string    `json:"status"`
	ScheduledAt              time.Time `json:"scheduled_at"`
	EstimatedDurationMinutes int       `json:"estimated_duration_minutes"`
	OccurredAt               time.Time `json:"occurred_at"`
}

type JobStore interface {
	// ApplyJob upserts the projection unless a newer update was already applied.
	ApplyJob(ctx context.Context, job model.Job) (bool, error)
}

// JobStatusHandler keeps the local calendar projection in step with the jobs subsystem.
// Malformed events are logged and dropped; store failures are returned for retry.
func JobStatusHandler(logger *slog.Logger, store JobStore) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt JobEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid job event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		evt.JobID = strings.TrimSpace(evt.JobID)
		evt.ContractorID = strings.TrimSpace(evt.ContractorID)
		status := model.JobStatus(strings.ToLower(strings.TrimSpace(evt.Status)))
		if evt.JobID == "" || evt.ContractorID == "" || !status.Valid() || evt.ScheduledAt.IsZero() {
			logger.Error("missing required job event fields", "topic", msg.Topic, "job_id", evt.JobID, "status", evt.Status)
			return nil
		}
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = msg.Time
		}
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = time.Now().UTC()
		}

		applied, err := store.ApplyJob(ctx, model.Job{
			ID:               evt.JobID,
			ContractorID:     evt.ContractorID,
			ServiceType:      evt.ServiceType,
			Status:           status,
			ScheduledAt:      evt.ScheduledAt,
			EstimatedMinutes: evt.EstimatedDurationMinutes,
			Source:           "jobs",
			StatusUpdatedAt:  evt.OccurredAt,
		})
		if err != nil {
			return err
		}
		if !applied {
			logger.Info("stale job event skipped", "job_id", evt.JobID, "status", status)
		}
		return nil
	}
}
