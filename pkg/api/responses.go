package api

import "time"

// CleanTextResponse is the body returned by POST /v1/text/clean.
type CleanTextResponse struct {
	RawText       string `json:"raw_text"`
	CleanedText   string `json:"cleaned_text"`
	InteractionID string `json:"interaction_id"`
	TraceID       string `json:"trace_id"`
}

// BatchProcessResponse is the body returned by POST /v1/batch/process.
type BatchProcessResponse struct {
	RawTranscript     string `json:"raw_transcript"`
	CleanedTranscript string `json:"cleaned_transcript"`
	InteractionID     string `json:"interaction_id"`
	TraceID           string `json:"trace_id"`
}

// InitUploadResponse is the body returned by POST /v1/upload/init.
type InitUploadResponse struct {
	JobID             string    `json:"job_id"`
	InteractionID     string    `json:"interaction_id"`
	FileKey           string    `json:"file_key"`
	UploadURL         string    `json:"upload_url"`
	ExpiresAt         time.Time `json:"expires_at"`
	SignedContentType string    `json:"signed_content_type"`
}

// CompleteUploadResponse is the body returned by POST /v1/upload/complete.
type CompleteUploadResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	InteractionID string `json:"interaction_id"`
}

// UploadStatusResponse is the body returned by GET /v1/upload/status/:job_id.
type UploadStatusResponse struct {
	JobID         string     `json:"job_id"`
	Status        string     `json:"status"`
	InteractionID string     `json:"interaction_id"`
	ResultSummary *string    `json:"result_summary"`
	ErrorCode     *string    `json:"error_code"`
	ErrorMessage  *string    `json:"error_message"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// HealthCheck is one component's health entry.
type HealthCheck struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	QueueDepth *int   `json:"queue_depth,omitempty"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
}
