// Package api exposes the gateway's HTTP surface: synchronous text and batch
// ingestion, the async upload lifecycle, the live-listening WebSocket, and
// operational endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/eq-labs/interactions-gateway/pkg/auth"
	"github.com/eq-labs/interactions-gateway/pkg/cleaner"
	"github.com/eq-labs/interactions-gateway/pkg/config"
	"github.com/eq-labs/interactions-gateway/pkg/database"
	"github.com/eq-labs/interactions-gateway/pkg/events"
	"github.com/eq-labs/interactions-gateway/pkg/jobs"
	"github.com/eq-labs/interactions-gateway/pkg/pipeline"
	"github.com/eq-labs/interactions-gateway/pkg/transcribe"
)

// objectStore is the storage surface the upload endpoints need.
type objectStore interface {
	PresignPut(ctx context.Context, fileKey, contentType string) (string, time.Time, error)
	ObjectExists(ctx context.Context, fileKey string) (bool, error)
}

// jobStore is the queue surface the upload endpoints need.
type jobStore interface {
	Create(ctx context.Context, params jobs.CreateParams) (*jobs.Job, error)
	GetForTenant(ctx context.Context, tenantID, jobID uuid.UUID) (*jobs.Job, error)
	GetByFileKey(ctx context.Context, tenantID uuid.UUID, fileKey string) (*jobs.Job, error)
	Enqueue(ctx context.Context, tenantID, jobID uuid.UUID) (*jobs.Job, error)
	QueueDepth(ctx context.Context) (int, error)
}

// transcriber runs prerecorded speech-to-text on an uploaded body.
type transcriber interface {
	TranscribeBytes(ctx context.Context, audio []byte, mimeType string) (transcribe.Result, error)
}

// liveTranscriber opens streaming speech-to-text sessions.
type liveTranscriber interface {
	StartLive(ctx context.Context, cfg transcribe.LiveConfig) (*transcribe.LiveSession, error)
}

// textCleaner is the transcript cleaning surface.
type textCleaner interface {
	Clean(ctx context.Context, rawTranscript string) string
	CleanMeeting(ctx context.Context, rawTranscript, sessionID string) cleaner.MeetingOutput
}

// sessionBuffer stores live-session segments between frames.
type sessionBuffer interface {
	Append(ctx context.Context, sessionID, text string) error
	FinalTranscript(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// segmentPublisher streams per-segment telemetry during live sessions.
type segmentPublisher interface {
	PublishTranscriptSegment(ctx context.Context, payload events.TranscriptSegmentPayload) error
}

// forkRunner is the post-processing fork entry point.
type forkRunner interface {
	Run(ctx context.Context, in pipeline.Input)
	Dispatch(ctx context.Context, in pipeline.Input)
}

// Server is the gateway HTTP server.
type Server struct {
	cfg         *config.Config
	db          *database.Client
	authmw      *auth.Middleware
	objects     objectStore
	jobStore    jobStore
	transcriber transcriber
	live        liveTranscriber
	cleaner     textCleaner
	sessions    sessionBuffer
	telemetry   segmentPublisher
	fork        forkRunner

	echo *echo.Echo
	http *http.Server
}

// NewServer wires the HTTP surface. The live transcriber, session buffer, and
// telemetry publisher may be nil when live listening is not configured; the
// WebSocket endpoint then reports unavailable.
func NewServer(
	cfg *config.Config,
	db *database.Client,
	authmw *auth.Middleware,
	objects objectStore,
	jobStore jobStore,
	tr transcriber,
	live liveTranscriber,
	cl textCleaner,
	sessions sessionBuffer,
	telemetry segmentPublisher,
	fork forkRunner,
) *Server {
	if cfg == nil || db == nil || authmw == nil || objects == nil || jobStore == nil ||
		tr == nil || cl == nil || fork == nil {
		panic("api: missing required server dependency")
	}
	s := &Server{
		cfg:         cfg,
		db:          db,
		authmw:      authmw,
		objects:     objects,
		jobStore:    jobStore,
		transcriber: tr,
		live:        live,
		cleaner:     cl,
		sessions:    sessions,
		telemetry:   telemetry,
		fork:        fork,
	}

	e := echo.New()
	e.HTTPErrorHandler = httpErrorHandler
	e.Use(securityHeaders())
	s.registerRoutes(e)
	s.echo = e
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/", s.indexHandler)
	e.GET("/health", s.healthHandler)

	v1 := e.Group("/v1", s.authmw.Resolve)
	v1.POST("/text/clean", s.cleanTextHandler)
	v1.POST("/batch/process", s.processBatchHandler)
	v1.POST("/upload/init", s.initUploadHandler)
	v1.POST("/upload/complete", s.completeUploadHandler)
	v1.GET("/upload/status/:job_id", s.uploadStatusHandler)

	// Auth for /listen happens inside the handler so failures close the
	// socket with a WebSocket status instead of an HTTP error.
	e.GET("/listen", s.listenHandler)
}

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
