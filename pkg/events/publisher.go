// Package events publishes completed interactions downstream.
//
// The publisher implements a fan-out: every envelope goes to Kinesis for
// real-time streaming consumers and to EventBridge for queue-based
// processors. Envelope publishing is best-effort; the originating request
// succeeds regardless of delivery failures, which are logged.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"

	"github.com/eq-labs/interactions-gateway/pkg/config"
	"github.com/eq-labs/interactions-gateway/pkg/models"
)

type kinesisAPI interface {
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

type eventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// PublishResult reports per-destination outcomes of an envelope fan-out.
// A nil field means the destination failed or was disabled.
type PublishResult struct {
	KinesisSequence *string
	EventBridgeID   *string
}

// Publisher fans envelopes out to Kinesis and EventBridge.
type Publisher struct {
	kinesis     kinesisAPI
	eventBridge eventBridgeAPI
	cfg         config.EventsConfig
}

// New creates a Publisher using the ambient AWS credential chain.
func New(ctx context.Context, cfg config.EventsConfig) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("events: load AWS config: %w", err)
	}
	slog.Info("Event publisher initialized",
		"region", cfg.Region,
		"stream", cfg.KinesisStream,
		"bus", cfg.EventBusName,
		"source", cfg.EventSource)
	return &Publisher{
		kinesis:     kinesis.NewFromConfig(awsCfg),
		eventBridge: eventbridge.NewFromConfig(awsCfg),
		cfg:         cfg,
	}, nil
}

// NewFromClients wires explicit clients. Used by tests.
func NewFromClients(k kinesisAPI, eb eventBridgeAPI, cfg config.EventsConfig) *Publisher {
	return &Publisher{kinesis: k, eventBridge: eb, cfg: cfg}
}

// PublishEnvelope fans an envelope out to all enabled destinations.
// Kinesis is attempted first, EventBridge second; a failure on one never
// prevents the other. Failures are logged, never returned.
func (p *Publisher) PublishEnvelope(ctx context.Context, env models.EnvelopeV1) PublishResult {
	var result PublishResult

	if p.cfg.KinesisEnabled {
		seq, err := p.publishToKinesis(ctx, env)
		if err != nil {
			slog.Error("Kinesis publish failed",
				"interaction_id", env.InteractionID,
				"tenant_id", env.TenantID,
				"error", err)
		} else {
			result.KinesisSequence = seq
		}
	}

	if p.cfg.EventBridgeEnabled {
		eventID, err := p.publishToEventBridge(ctx, env)
		if err != nil {
			slog.Error("EventBridge publish failed",
				"interaction_id", env.InteractionID,
				"tenant_id", env.TenantID,
				"error", err)
		} else {
			result.EventBridgeID = eventID
		}
	}

	switch {
	case result.KinesisSequence != nil || result.EventBridgeID != nil:
		slog.Info("Envelope published",
			"interaction_id", env.InteractionID,
			"tenant_id", env.TenantID,
			"kinesis", result.KinesisSequence != nil,
			"eventbridge", result.EventBridgeID != nil)
	case p.cfg.KinesisEnabled || p.cfg.EventBridgeEnabled:
		slog.Warn("All enabled publish destinations failed",
			"interaction_id", env.InteractionID,
			"tenant_id", env.TenantID)
	default:
		slog.Info("All publishing disabled via configuration",
			"interaction_id", env.InteractionID,
			"tenant_id", env.TenantID)
	}

	return result
}

// publishToKinesis writes the wrapped envelope using tenant_id as the
// partition key, so events for one tenant stay ordered.
func (p *Publisher) publishToKinesis(ctx context.Context, env models.EnvelopeV1) (*string, error) {
	data, err := json.Marshal(models.WrapForKinesis(env))
	if err != nil {
		return nil, fmt.Errorf("marshal kinesis record: %w", err)
	}
	partitionKey := env.TenantID.String()
	out, err := p.kinesis.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   &p.cfg.KinesisStream,
		Data:         data,
		PartitionKey: &partitionKey,
	})
	if err != nil {
		return nil, err
	}
	return out.SequenceNumber, nil
}

func (p *Publisher) publishToEventBridge(ctx context.Context, env models.EnvelopeV1) (*string, error) {
	detail, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	detailType := "EnvelopeV1." + env.InteractionType
	return p.putEvent(ctx, detailType, string(detail))
}

// putEvent sends a single EventBridge entry and surfaces partial failures
// that PutEvents reports per-entry rather than as an API error.
func (p *Publisher) putEvent(ctx context.Context, detailType, detail string) (*string, error) {
	detailCopy := detail
	out, err := p.eventBridge.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			Source:       &p.cfg.EventSource,
			DetailType:   &detailType,
			Detail:       &detailCopy,
			EventBusName: &p.cfg.EventBusName,
		}},
	})
	if err != nil {
		return nil, err
	}
	if out.FailedEntryCount > 0 {
		entry := out.Entries[0]
		code, msg := "Unknown", "unknown error"
		if entry.ErrorCode != nil {
			code = *entry.ErrorCode
		}
		if entry.ErrorMessage != nil {
			msg = *entry.ErrorMessage
		}
		return nil, fmt.Errorf("put_events entry failed: %s: %s", code, msg)
	}
	return out.Entries[0].EventId, nil
}
