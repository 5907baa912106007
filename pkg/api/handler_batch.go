package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/eq-labs/interactions-gateway/pkg/auth"
	"github.com/eq-labs/interactions-gateway/pkg/models"
	"github.com/eq-labs/interactions-gateway/pkg/pipeline"
	"github.com/eq-labs/interactions-gateway/pkg/transcribe"
)

// allowedAudioExtensions are the upload formats accepted before reading
// the body.
var allowedAudioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".flac": true,
	".m4a": true, ".webm": true, ".mp4": true,
}

// processBatchHandler handles POST /v1/batch/process.
// Transcribes one uploaded audio file synchronously, cleans it, and fans the
// interaction out. The request blocks until the cleaned transcript is ready.
func (s *Server) processBatchHandler(c *echo.Context) error {
	rc, ok := auth.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedAudioExtensions[ext] {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("unsupported audio format %q", ext))
	}
	if fileHeader.Size > s.cfg.Upload.MaxSyncUploadBytes {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("file exceeds maximum size of %d bytes", s.cfg.Upload.MaxSyncUploadBytes))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(io.LimitReader(file, s.cfg.Upload.MaxSyncUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	if int64(len(audio)) > s.cfg.Upload.MaxSyncUploadBytes {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("file exceeds maximum size of %d bytes", s.cfg.Upload.MaxSyncUploadBytes))
	}

	mimeType := transcribe.NormalizeAudioMIME(fileHeader.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = transcribe.MIMEFromFilename(fileHeader.Filename)
	}

	result, err := s.transcriber.TranscribeBytes(c.Request().Context(), audio, mimeType)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "transcription failed")
	}
	rawTranscript := result.Transcript
	if strings.TrimSpace(rawTranscript) == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "transcription produced no text")
	}

	cleaned := s.cleaner.Clean(c.Request().Context(), rawTranscript)

	extras := identityExtras(rc, map[string]any{
		"filename":         fileHeader.Filename,
		"duration_seconds": result.DurationSeconds,
	})

	env := models.EnvelopeV1{
		SchemaVersion:   models.SchemaVersionV1,
		TenantID:        rc.TenantID,
		UserID:          rc.UserID,
		AccountID:       optional(rc.AccountID),
		InteractionType: models.InteractionTypeBatchUpload,
		Content:         models.Content{Text: cleaned, Format: models.ContentFormatDiarized},
		Timestamp:       time.Now().UTC(),
		Source:          models.SourceUpload,
		Extras:          extras,
		InteractionID:   rc.InteractionID,
		TraceID:         rc.TraceID,
	}

	s.fork.Dispatch(c.Request().Context(), pipeline.Input{
		Envelope:           env,
		RawTranscript:      rawTranscript,
		EmitBatchCompleted: true,
	})

	return c.JSON(http.StatusOK, &BatchProcessResponse{
		RawTranscript:     rawTranscript,
		CleanedTranscript: cleaned,
		InteractionID:     env.InteractionID.String(),
		TraceID:           rc.TraceID,
	})
}
