package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/homeservices/libs/db"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/outbox"
)

type JobRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewJobRepository(pool *db.Pool, outboxRepo *outbox.Repository) *JobRepository {
	return &JobRepository{pool: pool, outbox: outboxRepo}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *JobRepository) ListBlockingJobs(ctx context.Context, contractorID string, from, to time.Time) ([]model.Job, error) {
	return listBlockingJobs(ctx, r.pool, contractorID, from, to)
}

func listBlockingJobs(ctx context.Context, q querier, contractorID string, from, to time.Time) ([]model.Job, error) {
	rows, err := q.Query(ctx, `
		SELECT id, contractor_id, service_type, scheduled_at, estimated_minutes, status
		FROM jobs
		WHERE contractor_id = $1
			AND status = ANY($2)
			AND scheduled_at >= $3
			AND scheduled_at < $4
		ORDER BY scheduled_at ASC
	`, contractorID, model.BlockingStatuses(), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var job model.Job
		var status string
		if err := rows.Scan(&job.ID, &job.ContractorID, &job.ServiceType, &job.ScheduledAt, &job.EstimatedMinutes, &status); err != nil {
			return nil, err
		}
		job.Status = model.JobStatus(status)
		jobs = append(jobs, job)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

// ApplyJob upserts a job snapshot from the jobs subsystem. Snapshots older than the stored
// status are ignored and reported as not applied.
func (r *JobRepository) ApplyJob(ctx context.Context, job model.Job) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (id, contractor_id, service_type, scheduled_at, estimated_minutes, status, source, status_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET contractor_id = EXCLUDED.contractor_id,
			service_type = COALESCE(NULLIF(EXCLUDED.service_type, ''), jobs.service_type),
			scheduled_at = EXCLUDED.scheduled_at,
			estimated_minutes = CASE WHEN EXCLUDED.estimated_minutes > 0 THEN EXCLUDED.estimated_minutes ELSE jobs.estimated_minutes END,
			status = EXCLUDED.status,
			status_updated_at = EXCLUDED.status_updated_at,
			updated_at = now()
		WHERE jobs.status_updated_at <= EXCLUDED.status_updated_at
	`, job.ID, job.ContractorID, job.ServiceType, job.ScheduledAt, job.EstimatedMinutes, string(job.Status), job.Source, job.StatusUpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InBookingTx runs fn in a transaction holding the contractor's calendar advisory lock.
func (r *JobRepository) InBookingTx(ctx context.Context, contractorID string, fn func(booking.Tx) error) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := db.AdvisoryXactLock(ctx, tx, "calendar:"+contractorID); err != nil {
			return err
		}
		return fn(&bookingTx{tx: tx, outbox: r.outbox})
	})
}

type bookingTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (b *bookingTx) ListBlockingJobs(ctx context.Context, contractorID string, from, to time.Time) ([]model.Job, error) {
	return listBlockingJobs(ctx, b.tx, contractorID, from, to)
}

func (b *bookingTx) InsertJob(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	err := b.tx.QueryRow(ctx, `
		INSERT INTO jobs
			(id, contractor_id, service_type, customer_name, customer_email, customer_phone, customer_address,
			 notes, scheduled_at, estimated_minutes, status, source, status_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		RETURNING created_at, status_updated_at
	`, job.ID, job.ContractorID, job.ServiceType, job.CustomerName, job.CustomerEmail, job.CustomerPhone, job.CustomerAddress,
		job.Notes, job.ScheduledAt, job.EstimatedMinutes, string(job.Status), job.Source).Scan(&job.CreatedAt, &job.StatusUpdatedAt)
	if db.HasCode(err, db.CodeUniqueViolation) {
		return model.ErrJobOverlap
	}
	return err
}

func (b *bookingTx) InsertOutbox(ctx context.Context, evt outbox.Event) error {
	return b.outbox.Insert(ctx, b.tx, evt)
}

func (b *bookingTx) LockIdempotencyKey(ctx context.Context, contractorID, key string) (booking.IdempotencyRecord, bool, error) {
	rec, err := b.selectIdempotencyForUpdate(ctx, contractorID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return booking.IdempotencyRecord{}, false, err
	}

	_, err = b.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (contractor_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (contractor_id, idempotency_key) DO NOTHING
	`, contractorID, key)
	if err != nil {
		return booking.IdempotencyRecord{}, false, err
	}

	rec, err = b.selectIdempotencyForUpdate(ctx, contractorID, key)
	if err != nil {
		return booking.IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (b *bookingTx) FinalizeIdempotency(ctx context.Context, contractorID, key, jobID string, statusCode int, response []byte) error {
	_, err := b.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET job_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE contractor_id = $1 AND idempotency_key = $2
	`, contractorID, key, jobID, statusCode, response)
	return err
}

func (b *bookingTx) selectIdempotencyForUpdate(ctx context.Context, contractorID, key string) (booking.IdempotencyRecord, error) {
	var rec booking.IdempotencyRecord
	var responseText string
	err := b.tx.QueryRow(ctx, `
		SELECT contractor_id,
			idempotency_key,
			COALESCE(job_id, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE contractor_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, contractorID, key).Scan(
		&rec.ContractorID,
		&rec.IdempotencyKey,
		&rec.JobID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return booking.IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
