package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eq-labs/interactions-gateway/pkg/models"
	"github.com/eq-labs/interactions-gateway/pkg/pipeline"
	"github.com/eq-labs/interactions-gateway/pkg/transcribe"
)

// objectStore is the subset of the storage layer the processor needs.
type objectStore interface {
	ObjectExists(ctx context.Context, fileKey string) (bool, error)
	PresignGet(ctx context.Context, fileKey string) (string, error)
}

// transcriber runs prerecorded speech-to-text on a fetchable URL.
type transcriber interface {
	TranscribeURL(ctx context.Context, audioURL string) (transcribe.Result, error)
}

// meetingCleaner produces the cleaned transcript for a finished recording.
type meetingCleaner interface {
	Clean(ctx context.Context, rawTranscript string) string
}

// forkRunner is the post-processing fork entry point.
type forkRunner interface {
	Run(ctx context.Context, in pipeline.Input)
}

// ExecutionResult is the terminal outcome of processing one job.
type ExecutionResult struct {
	InteractionID uuid.UUID
	Summary       string

	// ErrCode and Err are set on failure; Summary and InteractionID on success.
	ErrCode string
	Err     error
}

// Failed reports whether the result is a failure.
func (r ExecutionResult) Failed() bool { return r.Err != nil }

func failure(code string, err error) ExecutionResult {
	return ExecutionResult{ErrCode: code, Err: err}
}

// Processor turns one claimed upload job into a published interaction:
// presign, transcribe, clean, fan out.
type Processor struct {
	objects     objectStore
	transcriber transcriber
	cleaner     meetingCleaner
	fork        forkRunner
}

// NewProcessor creates a Processor.
func NewProcessor(objects objectStore, tr transcriber, cl meetingCleaner, fork forkRunner) *Processor {
	if objects == nil || tr == nil || cl == nil || fork == nil {
		panic("jobs: all processor dependencies are required")
	}
	return &Processor{objects: objects, transcriber: tr, cleaner: cl, fork: fork}
}

// Process executes a claimed job end to end. It never touches job status;
// the worker owns the terminal transition.
func (p *Processor) Process(ctx context.Context, job *Job) ExecutionResult {
	exists, err := p.objects.ObjectExists(ctx, job.FileKey)
	if err != nil {
		return failure(ErrCodeStorageUnavailable, fmt.Errorf("check object: %w", err))
	}
	if !exists {
		return failure(ErrCodeObjectMissing, fmt.Errorf("object %s not found", job.FileKey))
	}

	audioURL, err := p.objects.PresignGet(ctx, job.FileKey)
	if err != nil {
		return failure(ErrCodeStorageUnavailable, fmt.Errorf("presign download: %w", err))
	}

	result, err := p.transcriber.TranscribeURL(ctx, audioURL)
	if err != nil {
		return failure(ErrCodeTranscriptionFailed, fmt.Errorf("transcribe: %w", err))
	}
	rawTranscript := result.Transcript
	if strings.TrimSpace(rawTranscript) == "" {
		return failure(ErrCodeEmptyTranscript, fmt.Errorf("transcription of %s produced no text", job.Filename))
	}

	cleaned := p.cleaner.Clean(ctx, rawTranscript)

	extras := map[string]any{
		"job_id":           job.ID.String(),
		"filename":         job.Filename,
		"file_key":         job.FileKey,
		"duration_seconds": result.DurationSeconds,
	}
	if job.PgUserID != nil {
		extras["pg_user_id"] = *job.PgUserID
	}
	if job.UserName != nil {
		extras["user_name"] = *job.UserName
	}

	env := models.EnvelopeV1{
		SchemaVersion:   models.SchemaVersionV1,
		TenantID:        job.TenantID,
		UserID:          job.UserID,
		AccountID:       job.AccountID,
		InteractionType: models.InteractionTypeTranscript,
		Content:         models.Content{Text: cleaned, Format: models.ContentFormatDiarized},
		Timestamp:       time.Now().UTC(),
		Source:          models.SourceUpload,
		Extras:          extras,
		InteractionID:   job.InteractionID,
		TraceID:         job.TraceID,
	}

	p.fork.Run(ctx, pipeline.Input{
		Envelope:           env,
		RawTranscript:      rawTranscript,
		EmitBatchCompleted: true,
	})

	return ExecutionResult{
		InteractionID: env.InteractionID,
		Summary:       fmt.Sprintf("Transcribed %d chars, cleaned to %d chars", len(rawTranscript), len(cleaned)),
	}
}
