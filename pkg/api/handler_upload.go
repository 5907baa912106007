package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/eq-labs/interactions-gateway/pkg/auth"
	"github.com/eq-labs/interactions-gateway/pkg/jobs"
	"github.com/eq-labs/interactions-gateway/pkg/services"
	"github.com/eq-labs/interactions-gateway/pkg/storage"
	"github.com/eq-labs/interactions-gateway/pkg/transcribe"
)

const maxUploadFilenameLength = 255

// initUploadHandler handles POST /v1/upload/init.
// Creates a job row and returns a presigned PUT URL for the client to upload
// the audio object directly.
func (s *Server) initUploadHandler(c *echo.Context) error {
	rc, ok := auth.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	var req InitUploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validateUploadFilename(req.Filename); err != nil {
		return mapServiceError(err)
	}

	extMIME := transcribe.MIMEFromFilename(req.Filename)
	if extMIME == "" {
		return mapServiceError(services.NewValidationError("filename", "unsupported audio format"))
	}
	contentType := transcribe.NormalizeAudioMIME(req.ContentType)
	if contentType == "" {
		contentType = extMIME
	}

	jobID := uuid.New()
	fileKey := storage.FileKey(rc.TenantID, jobID, req.Filename)

	uploadURL, expiresAt, err := s.objects.PresignPut(c.Request().Context(), fileKey, contentType)
	if err != nil {
		return mapServiceError(err)
	}

	var metadata []byte
	if len(req.Metadata) > 0 {
		metadata, err = json.Marshal(req.Metadata)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "metadata is not serializable")
		}
	}

	job, err := s.jobStore.Create(c.Request().Context(), jobs.CreateParams{
		ID:            jobID,
		TenantID:      rc.TenantID,
		UserID:        rc.UserID,
		PgUserID:      optional(rc.PgUserID),
		UserName:      optional(rc.UserName),
		AccountID:     optional(rc.AccountID),
		Filename:      req.Filename,
		FileKey:       fileKey,
		ContentType:   contentType,
		SizeBytes:     req.SizeBytes,
		JobType:       jobs.JobTypeAudioTranscription,
		Metadata:      metadata,
		InteractionID: rc.InteractionID,
		TraceID:       rc.TraceID,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &InitUploadResponse{
		JobID:             job.ID.String(),
		InteractionID:     job.InteractionID.String(),
		FileKey:           fileKey,
		UploadURL:         uploadURL,
		ExpiresAt:         expiresAt,
		SignedContentType: contentType,
	})
}

// validateUploadFilename rejects blank, oversized, and path-traversing
// filenames before they reach key construction.
func validateUploadFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return services.NewValidationError("filename", "filename is required")
	}
	if len(filename) > maxUploadFilenameLength {
		return services.NewValidationError("filename", "filename too long")
	}
	if strings.ContainsAny(filename, `/\`) {
		return services.NewValidationError("filename", "filename must not contain path separators")
	}
	return nil
}

// completeUploadHandler handles POST /v1/upload/complete.
// Confirms the object landed and queues the job for processing. Idempotent
// for jobs already queued, processing, or succeeded.
func (s *Server) completeUploadHandler(c *echo.Context) error {
	rc, ok := auth.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	var req CompleteUploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.FileKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file_key is required")
	}
	// A key outside the tenant's prefix is indistinguishable from a missing one.
	if !storage.KeyBelongsToTenant(req.FileKey, rc.TenantID) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}

	job, err := s.jobStore.GetByFileKey(c.Request().Context(), rc.TenantID, req.FileKey)
	if err != nil {
		return mapServiceError(err)
	}

	exists, err := s.objects.ObjectExists(c.Request().Context(), req.FileKey)
	if err != nil {
		return mapServiceError(err)
	}
	if !exists {
		return echo.NewHTTPError(http.StatusBadRequest, "uploaded object not found in storage")
	}

	job, err = s.jobStore.Enqueue(c.Request().Context(), rc.TenantID, job.ID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &CompleteUploadResponse{
		JobID:         job.ID.String(),
		Status:        job.Status,
		InteractionID: job.InteractionID.String(),
	})
}

// uploadStatusHandler handles GET /v1/upload/status/:job_id.
func (s *Server) uploadStatusHandler(c *echo.Context) error {
	rc, ok := auth.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "job_id must be a valid UUID")
	}

	job, err := s.jobStore.GetForTenant(c.Request().Context(), rc.TenantID, jobID)
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &UploadStatusResponse{
		JobID:         job.ID.String(),
		Status:        job.Status,
		InteractionID: job.InteractionID.String(),
		ResultSummary: job.ResultSummary,
		ErrorCode:     job.ErrorCode,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	})
}

// optional maps an empty string to a NULL-able column value.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// identityExtras folds the caller's optional identity fields into an
// envelope's extras map.
func identityExtras(rc *auth.RequestContext, extras map[string]any) map[string]any {
	if rc.PgUserID != "" {
		extras["pg_user_id"] = rc.PgUserID
	}
	if rc.UserName != "" {
		extras["user_name"] = rc.UserName
	}
	return extras
}
