// Package pipeline runs the post-processing fork shared by every ingestion
// path: one lane publishes the envelope downstream, the other extracts and
// persists intelligence. The lanes are independent; neither blocks or fails
// the other.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eq-labs/interactions-gateway/pkg/events"
	"github.com/eq-labs/interactions-gateway/pkg/intelligence"
	"github.com/eq-labs/interactions-gateway/pkg/models"
)

// publisher is the downstream fan-out surface the fork needs.
type publisher interface {
	PublishEnvelope(ctx context.Context, env models.EnvelopeV1) events.PublishResult
	PublishBatchCompleted(ctx context.Context, event events.BatchCompletedEvent) (*string, error)
}

// analyzer runs extraction and persistence for one transcript.
type analyzer interface {
	ProcessTranscript(ctx context.Context, cleanedTranscript string, meta intelligence.PersistMeta) *models.InteractionAnalysis
}

// Fork fans a completed interaction out to publishing and intelligence.
type Fork struct {
	publisher publisher
	analyzer  analyzer
}

// NewFork creates a Fork. The analyzer may be nil when intelligence is not
// configured; the publishing lane still runs.
func NewFork(pub publisher, an analyzer) *Fork {
	if pub == nil {
		panic("pipeline: publisher is required")
	}
	return &Fork{publisher: pub, analyzer: an}
}

// Input is one completed interaction entering the fork.
type Input struct {
	Envelope models.EnvelopeV1

	// RawTranscript is the pre-cleaning transcript. Only used when
	// EmitBatchCompleted is set.
	RawTranscript string

	// EmitBatchCompleted additionally publishes a BatchProcessingCompleted
	// event after the envelope fan-out. Set by the batch and upload paths.
	EmitBatchCompleted bool

	// PersonaCode selects the extraction persona. Empty means the default.
	PersonaCode string
}

// Run executes both lanes and waits for them. The context is detached from
// request cancellation so an aborted client does not lose the interaction.
func (f *Fork) Run(ctx context.Context, in Input) {
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.publish(ctx, in)
	}()

	if f.analyzer != nil && in.Envelope.Content.Text != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.analyze(ctx, in)
		}()
	}
	wg.Wait()
}

// Dispatch runs the fork in the background and returns immediately.
func (f *Fork) Dispatch(ctx context.Context, in Input) {
	go f.Run(ctx, in)
}

func (f *Fork) publish(ctx context.Context, in Input) {
	result := f.publisher.PublishEnvelope(ctx, in.Envelope)
	slog.Debug("Envelope fan-out finished",
		"interaction_id", in.Envelope.InteractionID,
		"kinesis", result.KinesisSequence != nil,
		"eventbridge", result.EventBridgeID != nil)

	if !in.EmitBatchCompleted {
		return
	}
	event := events.NewBatchCompletedEvent(in.Envelope, in.RawTranscript, in.Envelope.Content.Text)
	if _, err := f.publisher.PublishBatchCompleted(ctx, event); err != nil {
		slog.Error("Batch completion event publish failed",
			"interaction_id", in.Envelope.InteractionID,
			"error", err)
	}
}

func (f *Fork) analyze(ctx context.Context, in Input) {
	meta := intelligence.PersistMeta{
		InteractionID:   in.Envelope.InteractionID,
		TenantID:        in.Envelope.TenantID,
		TraceID:         in.Envelope.TraceID,
		InteractionType: in.Envelope.InteractionType,
		AccountID:       in.Envelope.AccountID,
		Timestamp:       in.Envelope.Timestamp,
		PersonaCode:     in.PersonaCode,
	}
	f.analyzer.ProcessTranscript(ctx, in.Envelope.Content.Text, meta)
}
