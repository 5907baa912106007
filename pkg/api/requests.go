package api

// CleanTextRequest is the body of POST /v1/text/clean. Caller identity comes
// from the token, not the body.
type CleanTextRequest struct {
	Text     string         `json:"text"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// InitUploadRequest is the body of POST /v1/upload/init.
type InitUploadRequest struct {
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	SizeBytes   *int64         `json:"size_bytes"`
	Metadata    map[string]any `json:"metadata"`
}

// CompleteUploadRequest is the body of POST /v1/upload/complete.
type CompleteUploadRequest struct {
	FileKey   string `json:"file_key"`
	SizeBytes *int64 `json:"size_bytes"`
}
