package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/eq-labs/interactions-gateway/pkg/auth"
	"github.com/eq-labs/interactions-gateway/pkg/cleaner"
	"github.com/eq-labs/interactions-gateway/pkg/jobs"
	"github.com/eq-labs/interactions-gateway/pkg/pipeline"
	"github.com/eq-labs/interactions-gateway/pkg/services"
	"github.com/eq-labs/interactions-gateway/pkg/transcribe"
)

type fakeObjects struct {
	putURL    string
	putErr    error
	exists    bool
	existsErr error

	presignedKey  string
	presignedMIME string
}

func (f *fakeObjects) PresignPut(_ context.Context, fileKey, contentType string) (string, time.Time, error) {
	if f.putErr != nil {
		return "", time.Time{}, f.putErr
	}
	f.presignedKey = fileKey
	f.presignedMIME = contentType
	return f.putURL, time.Now().Add(5 * time.Minute), nil
}

func (f *fakeObjects) ObjectExists(context.Context, string) (bool, error) {
	return f.exists, f.existsErr
}

type fakeJobStore struct {
	jobs map[uuid.UUID]*jobs.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*jobs.Job)}
}

func (f *fakeJobStore) Create(_ context.Context, params jobs.CreateParams) (*jobs.Job, error) {
	if params.ID == uuid.Nil {
		params.ID = uuid.New()
	}
	if params.InteractionID == uuid.Nil {
		params.InteractionID = uuid.New()
	}
	if params.JobType == "" {
		params.JobType = jobs.JobTypeAudioTranscription
	}
	job := &jobs.Job{
		ID:            params.ID,
		TenantID:      params.TenantID,
		UserID:        params.UserID,
		PgUserID:      params.PgUserID,
		UserName:      params.UserName,
		AccountID:     params.AccountID,
		Filename:      params.Filename,
		FileKey:       params.FileKey,
		ContentType:   params.ContentType,
		SizeBytes:     params.SizeBytes,
		JobType:       params.JobType,
		Metadata:      params.Metadata,
		Status:        jobs.StatusAwaitingUpload,
		InteractionID: params.InteractionID,
		TraceID:       params.TraceID,
		CreatedAt:     time.Now().UTC(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobStore) GetForTenant(_ context.Context, tenantID, jobID uuid.UUID) (*jobs.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.TenantID != tenantID {
		return nil, services.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobStore) GetByFileKey(_ context.Context, tenantID uuid.UUID, fileKey string) (*jobs.Job, error) {
	for _, job := range f.jobs {
		if job.TenantID == tenantID && job.FileKey == fileKey {
			return job, nil
		}
	}
	return nil, services.ErrNotFound
}

func (f *fakeJobStore) Enqueue(_ context.Context, tenantID, jobID uuid.UUID) (*jobs.Job, error) {
	job, err := f.GetForTenant(context.Background(), tenantID, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case jobs.StatusQueued, jobs.StatusProcessing, jobs.StatusSucceeded:
		return job, nil
	}
	job.Status = jobs.StatusQueued
	job.ErrorCode = nil
	job.ErrorMessage = nil
	return job, nil
}

func (f *fakeJobStore) QueueDepth(context.Context) (int, error) {
	var depth int
	for _, job := range f.jobs {
		if job.Status == jobs.StatusQueued {
			depth++
		}
	}
	return depth, nil
}

type fakeTranscriber struct {
	result transcribe.Result
	err    error

	gotMIME string
	gotLen  int
}

func (f *fakeTranscriber) TranscribeBytes(_ context.Context, audio []byte, mimeType string) (transcribe.Result, error) {
	f.gotMIME = mimeType
	f.gotLen = len(audio)
	return f.result, f.err
}

type fakeCleaner struct {
	meeting cleaner.MeetingOutput
}

func (fakeCleaner) Clean(_ context.Context, raw string) string {
	return "cleaned: " + raw
}

func (f fakeCleaner) CleanMeeting(context.Context, string, string) cleaner.MeetingOutput {
	return f.meeting
}

type fakeFork struct {
	inputs []pipeline.Input
}

func (f *fakeFork) Run(_ context.Context, in pipeline.Input) {
	f.inputs = append(f.inputs, in)
}

func (f *fakeFork) Dispatch(ctx context.Context, in pipeline.Input) {
	f.Run(ctx, in)
}

var errStorageDown = errors.New("storage down")

func testIdentitySet(c *echo.Context, rc *auth.RequestContext) {
	auth.SetContext(c, rc)
}

func testIdentity(c *echo.Context) *auth.RequestContext {
	rc := &auth.RequestContext{
		TenantID:      uuid.New(),
		UserID:        "user-1",
		InteractionID: uuid.New(),
		TraceID:       "trace-1",
		Method:        "jwt",
	}
	auth.SetContext(c, rc)
	return rc
}
