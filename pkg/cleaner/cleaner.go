// Package cleaner polishes raw diarized transcripts with an LLM.
//
// The cleaning philosophy is editor-not-author: remove fillers, fix grammar
// and punctuation, and never add words the speaker did not say. Speaker
// labels are preserved verbatim so downstream extraction keeps attribution.
package cleaner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/eq-labs/interactions-gateway/pkg/config"
)

const (
	// chunkTimeout bounds a single chunk-cleaning call.
	chunkTimeout = 60 * time.Second

	chunkTemperature   = 0.5
	meetingTemperature = 0.3
)

// Option is a functional option for the Cleaner.
type Option func(*Cleaner)

// WithBaseURL overrides the OpenAI API base URL. Used by tests.
func WithBaseURL(base string) Option {
	return func(c *Cleaner) { c.baseURL = base }
}

// Cleaner cleans transcripts via OpenAI structured outputs.
type Cleaner struct {
	client  oai.Client
	model   string
	baseURL string
}

// New creates a Cleaner. The API key is required.
func New(cfg config.LLMConfig, opts ...Option) (*Cleaner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("cleaner: OPENAI_API_KEY is required")
	}
	c := &Cleaner{model: cfg.Model}
	if c.model == "" {
		c.model = "gpt-4o"
	}
	for _, o := range opts {
		o(c)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if c.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.baseURL))
	}
	c.client = oai.NewClient(reqOpts...)
	slog.Info("Cleaner initialized", "model", c.model)
	return c, nil
}

// cleanedChunk is the structured output of a single chunk-cleaning call.
type cleanedChunk struct {
	CleanedText string `json:"cleaned_text"`
}

var cleanedChunkSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"cleaned_text": map[string]any{"type": "string"},
	},
	"required":             []string{"cleaned_text"},
	"additionalProperties": false,
}

// Clean cleans a diarized transcript chunk by chunk. Failures degrade
// gracefully: a chunk that cannot be cleaned is carried through unmodified,
// and the result is never empty when the input is not.
func (c *Cleaner) Clean(ctx context.Context, rawTranscript string) string {
	lines := strings.Split(strings.TrimSpace(rawTranscript), "\n")
	chunks := SplitLongTurns(lines, DefaultMaxChunkWords)
	if len(chunks) == 0 {
		return ""
	}
	slog.Info("Cleaning transcript", "chunks", len(chunks))

	cleaned := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		text, err := c.cleanChunk(ctx, chunk)
		if err != nil {
			slog.Error("Chunk cleaning failed, keeping original",
				"chunk", i+1, "total", len(chunks), "error", err)
			text = chunk
		}
		cleaned = append(cleaned, text)
	}
	return strings.Join(cleaned, "\n")
}

func (c *Cleaner) cleanChunk(ctx context.Context, chunk string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(chunkSystemPrompt),
			oai.UserMessage(chunk),
		},
		Temperature: param.NewOpt(chunkTemperature),
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "cleaned_chunk",
					Schema: cleanedChunkSchema,
					Strict: oai.Bool(true),
				},
			},
		},
	}, option.WithRequestTimeout(chunkTimeout))
	if err != nil {
		return "", fmt.Errorf("cleaner: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("cleaner: empty choices in response")
	}
	var out cleanedChunk
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return "", fmt.Errorf("cleaner: parse structured output: %w", err)
	}
	return out.CleanedText, nil
}

// MeetingOutput is the structured result of whole-meeting cleaning: a short
// summary, extracted action items, and the polished transcript.
type MeetingOutput struct {
	Summary           string   `json:"summary"`
	ActionItems       []string `json:"action_items"`
	CleanedTranscript string   `json:"cleaned_transcript"`
}

var meetingOutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary": map[string]any{"type": "string"},
		"action_items": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"cleaned_transcript": map[string]any{"type": "string"},
	},
	"required":             []string{"summary", "action_items", "cleaned_transcript"},
	"additionalProperties": false,
}

// CleanMeeting cleans and structures a whole transcript in one call. On
// failure the raw transcript is returned with the error noted in the summary,
// so live sessions always close with a usable result.
func (c *Cleaner) CleanMeeting(ctx context.Context, rawTranscript, sessionID string) MeetingOutput {
	if strings.TrimSpace(rawTranscript) == "" {
		slog.Warn("Empty transcript for meeting cleaning", "session_id", sessionID)
		return MeetingOutput{Summary: "No content to summarize.", ActionItems: []string{}}
	}

	slog.Info("Cleaning meeting transcript", "session_id", sessionID, "length", len(rawTranscript))
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(meetingSystemPrompt),
			oai.UserMessage("Please clean and structure this transcript:\n\n" + rawTranscript),
		},
		Temperature: param.NewOpt(meetingTemperature),
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "meeting_output",
					Schema: meetingOutputSchema,
					Strict: oai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		slog.Error("Meeting cleaning failed, returning raw transcript",
			"session_id", sessionID, "error", err)
		return MeetingOutput{
			Summary:           fmt.Sprintf("Error processing transcript: %v", err),
			ActionItems:       []string{},
			CleanedTranscript: rawTranscript,
		}
	}

	var out MeetingOutput
	if len(resp.Choices) == 0 ||
		json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out) != nil {
		slog.Error("Meeting cleaning returned unparsable output", "session_id", sessionID)
		return MeetingOutput{
			Summary:           "Error processing transcript: unparsable model output",
			ActionItems:       []string{},
			CleanedTranscript: rawTranscript,
		}
	}
	if out.ActionItems == nil {
		out.ActionItems = []string{}
	}
	slog.Info("Meeting transcript cleaned",
		"session_id", sessionID,
		"action_items", len(out.ActionItems),
		"cleaned_length", len(out.CleanedTranscript))
	return out
}
