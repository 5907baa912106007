// Package intelligence extracts structured insights from cleaned transcripts
// and persists them to Postgres. It is the second lane of the post-processing
// fork and must never fail the originating request: every public entry point
// degrades to a logged no-op on error.
package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/eq-labs/interactions-gateway/pkg/config"
	"github.com/eq-labs/interactions-gateway/pkg/models"
)

// extractMaxAttempts bounds schema-validation retries on model output.
const extractMaxAttempts = 3

// ExtractorOption is a functional option for the Extractor.
type ExtractorOption func(*Extractor)

// WithBaseURL overrides the OpenAI API base URL. Used by tests.
func WithBaseURL(base string) ExtractorOption {
	return func(e *Extractor) { e.baseURL = base }
}

// Extractor runs schema-constrained intelligence extraction.
type Extractor struct {
	client  oai.Client
	model   string
	baseURL string
}

// NewExtractor creates an Extractor. The API key is required.
func NewExtractor(cfg config.LLMConfig, opts ...ExtractorOption) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("intelligence: OPENAI_API_KEY is required")
	}
	e := &Extractor{model: cfg.Model}
	if e.model == "" {
		e.model = "gpt-4o"
	}
	for _, o := range opts {
		o(e)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if e.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(e.baseURL))
	}
	e.client = oai.NewClient(reqOpts...)
	slog.Info("Intelligence extractor initialized", "model", e.model)
	return e, nil
}

// Model returns the configured model name, used for provenance columns.
func (e *Extractor) Model() string { return e.model }

// Extract analyzes a cleaned transcript. Returns nil on any failure;
// extraction is best-effort and callers treat nil as "no intelligence".
func (e *Extractor) Extract(ctx context.Context, cleanedTranscript string) *models.InteractionAnalysis {
	var lastErr error
	for attempt := 1; attempt <= extractMaxAttempts; attempt++ {
		analysis, err := e.extractOnce(ctx, cleanedTranscript)
		if err == nil {
			return analysis
		}
		lastErr = err
		slog.Warn("Intelligence extraction attempt failed",
			"attempt", attempt, "max_attempts", extractMaxAttempts, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	slog.Error("Intelligence extraction failed", "error", lastErr)
	return nil
}

func (e *Extractor) extractOnce(ctx context.Context, cleanedTranscript string) (*models.InteractionAnalysis, error) {
	resp, err := e.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(extractionSystemPrompt),
			oai.UserMessage("Analyze this transcript:\n\n" + cleanedTranscript),
		},
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "interaction_analysis",
					Schema: analysisSchema,
					Strict: oai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty choices in response")
	}
	var analysis models.InteractionAnalysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return nil, fmt.Errorf("parse structured output: %w", err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// analysisSchema is the strict JSON schema the model output must satisfy.
var analysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summaries": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":     map[string]any{"type": "string"},
				"headline":  map[string]any{"type": "string"},
				"brief":     map[string]any{"type": "string"},
				"detailed":  map[string]any{"type": "string"},
				"spotlight": map[string]any{"type": "string"},
			},
			"required":             []string{"title", "headline", "brief", "detailed", "spotlight"},
			"additionalProperties": false,
		},
		"action_items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{"type": "string"},
					"owner":       map[string]any{"type": []string{"string", "null"}},
					"due_date":    map[string]any{"type": []string{"string", "null"}},
				},
				"required":             []string{"description", "owner", "due_date"},
				"additionalProperties": false,
			},
		},
		"decisions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"decision":  map[string]any{"type": "string"},
					"rationale": map[string]any{"type": []string{"string", "null"}},
				},
				"required":             []string{"decision", "rationale"},
				"additionalProperties": false,
			},
		},
		"risks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"risk":       map[string]any{"type": "string"},
					"severity":   map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
					"mitigation": map[string]any{"type": []string{"string", "null"}},
				},
				"required":             []string{"risk", "severity", "mitigation"},
				"additionalProperties": false,
			},
		},
		"key_takeaways": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"product_feedback": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required":             []string{"text"},
				"additionalProperties": false,
			},
		},
		"market_intelligence": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required":             []string{"text"},
				"additionalProperties": false,
			},
		},
	},
	"required": []string{
		"summaries", "action_items", "decisions", "risks",
		"key_takeaways", "product_feedback", "market_intelligence",
	},
	"additionalProperties": false,
}

// extractionSystemPrompt is the GTM analyst extraction prompt.
const extractionSystemPrompt = `You are an expert Go-To-Market (GTM) analyst reviewing customer interaction transcripts.

Your role is to extract actionable intelligence that helps GTM teams:
- Identify sales opportunities and deal risks
- Track customer commitments and action items
- Capture competitive intelligence and market signals
- Surface product feedback for roadmap prioritization

**Extraction Guidelines:**

1. **Summaries**: Write from a GTM leader's perspective, focusing on business impact
   - title: 5-10 word title capturing the essence
   - headline: 1-2 sentence headline for quick scanning
   - brief: 2-3 paragraph executive summary
   - detailed: Comprehensive summary with all key points
   - spotlight: The single most important takeaway

2. **Action Items**: Capture commitments, follow-ups, and next steps with owners when mentioned

3. **Decisions**: Document any agreements, approvals, or strategic choices made

4. **Risks**: Identify deal risks, relationship concerns, or competitive threats with severity levels

5. **Key Takeaways**: Highlight insights valuable for account strategy

6. **Product Feedback**: Note feature requests, pain points, bugs, or UX issues mentioned

7. **Market Intelligence**: Capture competitor mentions, market trends, or industry themes

Be thorough but precise. Only extract information explicitly present in the transcript.
Do not invent or assume information not stated.`
