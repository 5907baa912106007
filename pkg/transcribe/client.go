// Package transcribe adapts the Deepgram speech-to-text API: prerecorded
// transcription for uploaded audio and a streaming session for live capture.
//
// Both paths produce diarized transcripts in the SPEAKER_<n>: line format the
// cleaning prompts expect.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultBaseURL   = "https://api.deepgram.com/v1/listen"
	defaultStreamURL = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	// prerecordedTimeout bounds a single transcription call. Large files can
	// take a while; Deepgram holds the connection until done.
	prerecordedTimeout = 120 * time.Second
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithHTTPClient replaces the HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the REST endpoint. Used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithStreamURL overrides the streaming endpoint. Used by tests.
func WithStreamURL(stream string) Option {
	return func(c *Client) { c.streamURL = stream }
}

// Client calls the Deepgram API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	streamURL  string
	httpClient *http.Client
}

// New creates a Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("transcribe: apiKey must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		streamURL:  defaultStreamURL,
		httpClient: &http.Client{Timeout: prerecordedTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Result is a prerecorded transcription with response metadata, kept so
// empty-transcript issues can be diagnosed from logs alone.
type Result struct {
	Transcript      string
	DurationSeconds float64
	Channels        int
	Words           int
}

// TranscribeBytes transcribes an in-memory audio buffer.
func (c *Client) TranscribeBytes(ctx context.Context, audio []byte, mimeType string) (Result, error) {
	slog.Info("Starting transcription", "source", "buffer", "mime_type", mimeType, "size_bytes", len(audio))
	return c.prerecorded(ctx, bytes.NewReader(audio), mimeType, "buffer")
}

// TranscribeURL transcribes audio that Deepgram fetches directly, typically
// from a presigned S3 URL. More efficient than buffering large files through
// this process.
func (c *Client) TranscribeURL(ctx context.Context, audioURL string) (Result, error) {
	slog.Info("Starting transcription", "source", "url")
	body, err := json.Marshal(map[string]string{"url": audioURL})
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: marshal url source: %w", err)
	}
	return c.prerecorded(ctx, bytes.NewReader(body), "application/json", "url")
}

func (c *Client) prerecorded(ctx context.Context, body io.Reader, contentType, sourceLabel string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.prerecordedURL(), body)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("transcribe: deepgram returned %d: %s", resp.StatusCode, detail)
	}

	var parsed prerecordedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("transcribe: decode response: %w", err)
	}

	result := Result{
		Transcript:      FormatDiarized(parsed.words()),
		DurationSeconds: parsed.Metadata.Duration,
		Channels:        len(parsed.Results.Channels),
		Words:           len(parsed.words()),
	}
	slog.Info("Transcription response",
		"source", sourceLabel,
		"duration_seconds", result.DurationSeconds,
		"channels", result.Channels,
		"words", result.Words)
	return result, nil
}

func (c *Client) prerecordedURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}
	q := u.Query()
	q.Set("model", c.model)
	q.Set("smart_format", "true")
	q.Set("diarize", "true")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// prerecordedResponse is the subset of the Deepgram prerecorded response the
// gateway consumes.
type prerecordedResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Words      []Word `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (r *prerecordedResponse) words() []Word {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return nil
	}
	return r.Results.Channels[0].Alternatives[0].Words
}

// Word is a single recognized word with optional speaker attribution.
type Word struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Speaker        *int    `json:"speaker"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
}
