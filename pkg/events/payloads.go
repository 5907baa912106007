package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/google/uuid"

	"github.com/eq-labs/interactions-gateway/pkg/models"
)

// TranscriptSegmentPayload is the lightweight per-segment telemetry record
// emitted to Kinesis while a live session is running. The full envelope is
// published only at session close.
type TranscriptSegmentPayload struct {
	EventType string    `json:"event_type"`
	SessionID string    `json:"session_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Seq       int       `json:"seq"`
	Text      string    `json:"text"`
	Speaker   *int      `json:"speaker,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishTranscriptSegment streams a finalized live segment to Kinesis.
// Best-effort: failures are returned for the caller to log, never fatal to
// the session.
func (p *Publisher) PublishTranscriptSegment(ctx context.Context, payload TranscriptSegmentPayload) error {
	if !p.cfg.KinesisEnabled {
		return nil
	}
	payload.EventType = "transcript.segment"
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transcript segment: %w", err)
	}
	partitionKey := payload.TenantID.String()
	_, err = p.kinesis.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   &p.cfg.KinesisStream,
		Data:         data,
		PartitionKey: &partitionKey,
	})
	return err
}

// BatchCompletedEvent is the EventBridge detail emitted when a batch request
// finishes processing. Kept alongside the envelope publish for consumers that
// predate the envelope schema.
type BatchCompletedEvent struct {
	Version       string                  `json:"version"`
	InteractionID uuid.UUID               `json:"interaction_id"`
	TenantID      uuid.UUID               `json:"tenant_id"`
	UserID        string                  `json:"user_id"`
	AccountID     *string                 `json:"account_id"`
	Timestamp     time.Time               `json:"timestamp"`
	Status        string                  `json:"status"`
	Data          BatchCompletedEventData `json:"data"`
}

// BatchCompletedEventData carries both transcript forms.
type BatchCompletedEventData struct {
	CleanedTranscript string `json:"cleaned_transcript"`
	RawTranscript     string `json:"raw_transcript"`
}

// NewBatchCompletedEvent builds a completed-status event with the current
// timestamp.
func NewBatchCompletedEvent(env models.EnvelopeV1, rawTranscript, cleanedTranscript string) BatchCompletedEvent {
	return BatchCompletedEvent{
		Version:       "1.0",
		InteractionID: env.InteractionID,
		TenantID:      env.TenantID,
		UserID:        env.UserID,
		AccountID:     env.AccountID,
		Timestamp:     time.Now().UTC(),
		Status:        "completed",
		Data: BatchCompletedEventData{
			CleanedTranscript: cleanedTranscript,
			RawTranscript:     rawTranscript,
		},
	}
}

// PublishBatchCompleted publishes a BatchProcessingCompleted event to
// EventBridge. Unlike envelope fan-out this returns the error: callers decide
// whether the failure matters.
func (p *Publisher) PublishBatchCompleted(ctx context.Context, event BatchCompletedEvent) (*string, error) {
	if !p.cfg.EventBridgeEnabled {
		return nil, nil
	}
	detail, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal batch completed event: %w", err)
	}
	return p.putEvent(ctx, "BatchProcessingCompleted", string(detail))
}
