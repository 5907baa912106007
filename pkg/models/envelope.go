// Package models defines the shared data types exchanged between the
// ingestion endpoints, the processing pipeline, and the publishers.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SchemaVersionV1 is the current event schema version.
const SchemaVersionV1 = "v1"

// Interaction types carried in EnvelopeV1.InteractionType.
const (
	InteractionTypeTranscript  = "transcript"
	InteractionTypeNote        = "note"
	InteractionTypeMeeting     = "meeting"
	InteractionTypeBatchUpload = "batch_upload"
	InteractionTypeDocument    = "document"
)

// Content formats carried in Content.Format.
const (
	ContentFormatPlain    = "plain"
	ContentFormatMarkdown = "markdown"
	ContentFormatDiarized = "diarized"
)

// Event sources carried in EnvelopeV1.Source.
const (
	SourceWebMic    = "web-mic"
	SourceUpload    = "upload"
	SourceAPI       = "api"
	SourceWebsocket = "websocket"
	SourceImport    = "import"
)

// Content is the nested content payload of an envelope.
type Content struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

// EnvelopeV1 is the standardized event envelope published for every completed
// interaction. The strict core (identity, content, timestamp, source) is always
// present; Extras is an open map that must survive unknown keys.
type EnvelopeV1 struct {
	SchemaVersion   string         `json:"schema_version"`
	TenantID        uuid.UUID      `json:"tenant_id"`
	UserID          string         `json:"user_id"`
	InteractionType string         `json:"interaction_type"`
	Content         Content        `json:"content"`
	Timestamp       time.Time      `json:"timestamp"`
	Source          string         `json:"source"`
	Extras          map[string]any `json:"extras"`
	InteractionID   uuid.UUID      `json:"interaction_id"`
	TraceID         string         `json:"trace_id"`
	AccountID       *string        `json:"account_id,omitempty"`
}

// envelopeJSON is the wire form of EnvelopeV1. Timestamps serialize as RFC3339
// UTC with a Z suffix; UUIDs serialize as canonical hyphenated lowercase.
type envelopeJSON struct {
	SchemaVersion   string         `json:"schema_version"`
	TenantID        string         `json:"tenant_id"`
	UserID          string         `json:"user_id"`
	InteractionType string         `json:"interaction_type"`
	Content         Content        `json:"content"`
	Timestamp       string         `json:"timestamp"`
	Source          string         `json:"source"`
	Extras          map[string]any `json:"extras"`
	InteractionID   string         `json:"interaction_id"`
	TraceID         string         `json:"trace_id"`
	AccountID       *string        `json:"account_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e EnvelopeV1) MarshalJSON() ([]byte, error) {
	extras := e.Extras
	if extras == nil {
		extras = map[string]any{}
	}
	return json.Marshal(envelopeJSON{
		SchemaVersion:   e.SchemaVersion,
		TenantID:        e.TenantID.String(),
		UserID:          e.UserID,
		InteractionType: e.InteractionType,
		Content:         e.Content,
		Timestamp:       e.Timestamp.UTC().Format(time.RFC3339Nano),
		Source:          e.Source,
		Extras:          extras,
		InteractionID:   e.InteractionID.String(),
		TraceID:         e.TraceID,
		AccountID:       e.AccountID,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *EnvelopeV1) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tenantID, err := uuid.Parse(raw.TenantID)
	if err != nil {
		return err
	}
	interactionID, err := uuid.Parse(raw.InteractionID)
	if err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return err
	}
	*e = EnvelopeV1{
		SchemaVersion:   raw.SchemaVersion,
		TenantID:        tenantID,
		UserID:          raw.UserID,
		InteractionType: raw.InteractionType,
		Content:         raw.Content,
		Timestamp:       ts.UTC(),
		Source:          raw.Source,
		Extras:          raw.Extras,
		InteractionID:   interactionID,
		TraceID:         raw.TraceID,
		AccountID:       raw.AccountID,
	}
	return nil
}

// KinesisRecord wraps an envelope for stream publishing. Routing fields are
// mirrored at the top level so consumers can route without parsing the
// full envelope.
type KinesisRecord struct {
	Envelope      EnvelopeV1 `json:"envelope"`
	TraceID       string     `json:"trace_id"`
	TenantID      string     `json:"tenant_id"`
	SchemaVersion string     `json:"schema_version"`
}

// WrapForKinesis builds the stream record for an envelope.
func WrapForKinesis(env EnvelopeV1) KinesisRecord {
	return KinesisRecord{
		Envelope:      env,
		TraceID:       env.TraceID,
		TenantID:      env.TenantID.String(),
		SchemaVersion: env.SchemaVersion,
	}
}
