// Package jobs manages asynchronous upload-processing jobs: the Postgres
// queue, the worker pool that drains it, and the processor that turns an
// uploaded audio object into a published interaction.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eq-labs/interactions-gateway/pkg/services"
)

// Job status values.
const (
	StatusAwaitingUpload = "awaiting_upload"
	StatusQueued         = "queued"
	StatusProcessing     = "processing"
	StatusSucceeded      = "succeeded"
	StatusFailed         = "failed"
)

// Machine-readable failure codes surfaced in the status endpoint.
const (
	ErrCodeObjectMissing       = "OBJECT_MISSING"
	ErrCodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	ErrCodeTranscriptionFailed = "TRANSCRIPTION_FAILED"
	ErrCodeEmptyTranscript     = "EMPTY_TRANSCRIPT"
	ErrCodeProcessingTimeout   = "PROCESSING_TIMEOUT"
	ErrCodeInternal            = "INTERNAL"
)

// maxErrorMessageLength caps stored failure messages.
const maxErrorMessageLength = 500

// ErrNoJobsAvailable is returned by Claim when the queue is empty.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job type values.
const (
	JobTypeAudioTranscription = "audio_transcription"
	JobTypeTextProcessing     = "text_processing"
)

// Job is one row of the upload job queue. InteractionID is assigned at
// creation and never changes; it is the id every downstream record for the
// upload carries.
type Job struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	UserID        string
	PgUserID      *string
	UserName      *string
	AccountID     *string
	Filename      string
	FileKey       string
	ContentType   string
	SizeBytes     *int64
	JobType       string
	Metadata      []byte
	Status        string
	ErrorCode     *string
	ErrorMessage  *string
	ResultSummary *string
	InteractionID uuid.UUID
	TraceID       string
	ClaimedBy     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

const jobColumns = `id, tenant_id, user_id, pg_user_id, user_name, account_id,
	filename, file_key, content_type, size_bytes, job_type, metadata_json,
	status, error_code, error_message, result_summary, interaction_id, trace_id,
	claimed_by, created_at, updated_at, started_at, completed_at`

// Store is the Postgres-backed job queue.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("jobs: pool is required")
	}
	return &Store{pool: pool}
}

// CreateParams describes a new job created at upload initialization.
// ID and InteractionID are optional; zero values get fresh UUIDs. Callers
// that embed the job id in the object key pass it explicitly.
type CreateParams struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	UserID        string
	PgUserID      *string
	UserName      *string
	AccountID     *string
	Filename      string
	FileKey       string
	ContentType   string
	SizeBytes     *int64
	JobType       string
	Metadata      []byte
	InteractionID uuid.UUID
	TraceID       string
}

// Create inserts a job in awaiting_upload state and returns it. The
// interaction id is fixed here so /upload/init can hand it to the caller
// before any processing happens.
func (s *Store) Create(ctx context.Context, params CreateParams) (*Job, error) {
	if params.ID == uuid.Nil {
		params.ID = uuid.New()
	}
	if params.InteractionID == uuid.Nil {
		params.InteractionID = uuid.New()
	}
	if params.JobType == "" {
		params.JobType = JobTypeAudioTranscription
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO upload_jobs
			(id, tenant_id, user_id, pg_user_id, user_name, account_id,
			 filename, file_key, content_type, size_bytes, job_type, metadata_json,
			 interaction_id, trace_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+jobColumns,
		params.ID, params.TenantID, params.UserID, params.PgUserID, params.UserName,
		params.AccountID, params.Filename, params.FileKey, params.ContentType,
		params.SizeBytes, params.JobType, params.Metadata, params.InteractionID,
		params.TraceID)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("jobs: create: %w", err)
	}
	return job, nil
}

// GetForTenant fetches a job scoped to a tenant. A job belonging to another
// tenant is indistinguishable from a missing one.
func (s *Store) GetForTenant(ctx context.Context, tenantID, jobID uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM upload_jobs WHERE id = $1 AND tenant_id = $2`,
		jobID, tenantID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: get: %w", err)
	}
	return job, nil
}

// GetByFileKey fetches a job by its object key, scoped to a tenant.
func (s *Store) GetByFileKey(ctx context.Context, tenantID uuid.UUID, fileKey string) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM upload_jobs WHERE tenant_id = $1 AND file_key = $2`,
		tenantID, fileKey)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: get by file key: %w", err)
	}
	return job, nil
}

// Enqueue transitions a job to queued after its object upload is confirmed.
// Idempotent: queued, processing, and succeeded jobs are returned unchanged;
// a failed job is reset to queued for reprocessing.
func (s *Store) Enqueue(ctx context.Context, tenantID, jobID uuid.UUID) (*Job, error) {
	job, err := s.GetForTenant(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case StatusQueued, StatusProcessing, StatusSucceeded:
		return job, nil
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE upload_jobs
		SET status = $3, error_code = NULL, error_message = NULL,
		    claimed_by = NULL, started_at = NULL, completed_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+jobColumns,
		jobID, tenantID, StatusQueued)
	job, err = scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("jobs: enqueue: %w", err)
	}
	return job, nil
}

// Claim atomically takes the oldest queued job for a worker. FOR UPDATE SKIP
// LOCKED keeps concurrent workers from claiming the same row.
func (s *Store) Claim(ctx context.Context, claimedBy string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE upload_jobs
		SET status = $2, claimed_by = $1, started_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM upload_jobs
			WHERE status = $3
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		claimedBy, StatusProcessing, StatusQueued)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoJobsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: claim: %w", err)
	}
	return job, nil
}

// MarkSucceeded records a terminal success. Only a processing job can
// transition; a job the reaper already failed stays failed.
func (s *Store) MarkSucceeded(ctx context.Context, jobID uuid.UUID, resultSummary string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE upload_jobs
		SET status = $2, result_summary = $3,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4`,
		jobID, StatusSucceeded, resultSummary, StatusProcessing)
	if err != nil {
		return fmt.Errorf("jobs: mark succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		slog.Warn("Job already terminal, success not recorded", "job_id", jobID)
	}
	return nil
}

// MarkFailed records a terminal failure with a machine-readable code.
// Messages are trimmed to a storable length. Same guard as MarkSucceeded.
func (s *Store) MarkFailed(ctx context.Context, jobID uuid.UUID, code, message string) error {
	if len(message) > maxErrorMessageLength {
		message = message[:maxErrorMessageLength]
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE upload_jobs
		SET status = $2, error_code = $3, error_message = $4,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $5`,
		jobID, StatusFailed, code, message, StatusProcessing)
	if err != nil {
		return fmt.Errorf("jobs: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		slog.Warn("Job already terminal, failure not recorded", "job_id", jobID, "error_code", code)
	}
	return nil
}

// RecoverStuck fails processing jobs whose worker has gone quiet past the
// threshold. Idempotent; every pod runs it independently.
func (s *Store) RecoverStuck(ctx context.Context, threshold time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE upload_jobs
		SET status = $1, error_code = $2,
		    error_message = 'Processing exceeded ' || $3 || ' without completing',
		    completed_at = now(), updated_at = now()
		WHERE status = $4 AND started_at < now() - $5::interval`,
		StatusFailed, ErrCodeProcessingTimeout, threshold.String(), StatusProcessing,
		fmt.Sprintf("%f seconds", threshold.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("jobs: recover stuck: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueueDepth counts jobs waiting for a worker.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM upload_jobs WHERE status = $1`, StatusQueued).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("jobs: queue depth: %w", err)
	}
	return depth, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	err := row.Scan(
		&job.ID, &job.TenantID, &job.UserID, &job.PgUserID, &job.UserName,
		&job.AccountID, &job.Filename, &job.FileKey, &job.ContentType,
		&job.SizeBytes, &job.JobType, &job.Metadata, &job.Status, &job.ErrorCode,
		&job.ErrorMessage, &job.ResultSummary, &job.InteractionID, &job.TraceID,
		&job.ClaimedBy, &job.CreatedAt, &job.UpdatedAt, &job.StartedAt,
		&job.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
