package intelligence

import (
	"context"
	"log/slog"

	"github.com/eq-labs/interactions-gateway/pkg/models"
)

// Service ties extraction and persistence together. It is the unit the
// post-processing fork invokes.
type Service struct {
	extractor *Extractor
	persister *Persister
}

// NewService creates a Service.
func NewService(extractor *Extractor, persister *Persister) *Service {
	if extractor == nil {
		panic("intelligence: extractor is required")
	}
	if persister == nil {
		panic("intelligence: persister is required")
	}
	return &Service{extractor: extractor, persister: persister}
}

// ProcessTranscript extracts intelligence from a cleaned transcript and
// persists it. Returns the analysis on success, nil on any failure; failures
// are logged and never propagate to the originating request.
func (s *Service) ProcessTranscript(ctx context.Context, cleanedTranscript string, meta PersistMeta) *models.InteractionAnalysis {
	slog.Info("Processing transcript intelligence",
		"interaction_id", meta.InteractionID,
		"tenant_id", meta.TenantID,
		"trace_id", meta.TraceID)

	analysis := s.extractor.Extract(ctx, cleanedTranscript)
	if analysis == nil {
		slog.Warn("Extraction returned no analysis", "interaction_id", meta.InteractionID)
		return nil
	}

	if meta.Source == "" {
		meta.Source = "openai:" + s.extractor.Model()
	}
	if err := s.persister.Persist(ctx, analysis, meta); err != nil {
		slog.Error("Intelligence persistence failed",
			"interaction_id", meta.InteractionID,
			"tenant_id", meta.TenantID,
			"error", err)
		return nil
	}

	slog.Info("Intelligence processing complete",
		"interaction_id", meta.InteractionID,
		"action_items", len(analysis.ActionItems),
		"decisions", len(analysis.Decisions),
		"risks", len(analysis.Risks))
	return analysis
}
