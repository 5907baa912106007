package cleaner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eq-labs/interactions-gateway/pkg/config"
)

// chatStub answers OpenAI chat-completion requests with canned structured
// output built by respond.
func chatStub(t *testing.T, respond func(userContent string) (string, int)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		user := ""
		for _, m := range req.Messages {
			if m.Role == "user" {
				user = m.Content
			}
		}
		content, status := respond(user)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		body := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
}

func newTestCleaner(t *testing.T, baseURL string) *Cleaner {
	t.Helper()
	c, err := New(config.LLMConfig{APIKey: "sk-test", Model: "gpt-4o"}, WithBaseURL(baseURL))
	require.NoError(t, err)
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.LLMConfig{})
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	t.Run("cleans each turn", func(t *testing.T) {
		srv := chatStub(t, func(user string) (string, int) {
			out, _ := json.Marshal(map[string]string{"cleaned_text": strings.ReplaceAll(user, "um, ", "")})
			return string(out), http.StatusOK
		})
		defer srv.Close()

		c := newTestCleaner(t, srv.URL)
		got := c.Clean(context.Background(), "SPEAKER_0: um, hello there\nSPEAKER_1: um, hi")
		assert.Equal(t, "SPEAKER_0: hello there\nSPEAKER_1: hi", got)
	})

	t.Run("failed chunk keeps original text", func(t *testing.T) {
		srv := chatStub(t, func(user string) (string, int) {
			// Fail every attempt (including client retries) for the first chunk.
			if strings.Contains(user, "first turn") {
				return "", http.StatusInternalServerError
			}
			out, _ := json.Marshal(map[string]string{"cleaned_text": "cleaned"})
			return string(out), http.StatusOK
		})
		defer srv.Close()

		c := newTestCleaner(t, srv.URL)
		got := c.Clean(context.Background(), "SPEAKER_0: first turn\nSPEAKER_1: second turn")
		assert.Equal(t, "SPEAKER_0: first turn\ncleaned", got)
	})

	t.Run("empty input yields empty output without calls", func(t *testing.T) {
		srv := chatStub(t, func(string) (string, int) {
			t.Fatal("unexpected API call")
			return "", 0
		})
		defer srv.Close()

		c := newTestCleaner(t, srv.URL)
		assert.Empty(t, c.Clean(context.Background(), "   \n  "))
	})
}

func TestCleanMeeting(t *testing.T) {
	t.Run("structured output parsed", func(t *testing.T) {
		srv := chatStub(t, func(string) (string, int) {
			out, _ := json.Marshal(MeetingOutput{
				Summary:           "Quick sync about launch.",
				ActionItems:       []string{"Ship the beta"},
				CleanedTranscript: "We are launching next week.",
			})
			return string(out), http.StatusOK
		})
		defer srv.Close()

		c := newTestCleaner(t, srv.URL)
		out := c.CleanMeeting(context.Background(), "we are like launching next week", "sess-1")
		assert.Equal(t, "Quick sync about launch.", out.Summary)
		assert.Equal(t, []string{"Ship the beta"}, out.ActionItems)
		assert.Equal(t, "We are launching next week.", out.CleanedTranscript)
	})

	t.Run("empty transcript short-circuits", func(t *testing.T) {
		srv := chatStub(t, func(string) (string, int) {
			t.Fatal("unexpected API call")
			return "", 0
		})
		defer srv.Close()

		c := newTestCleaner(t, srv.URL)
		out := c.CleanMeeting(context.Background(), "  ", "sess-1")
		assert.Equal(t, "No content to summarize.", out.Summary)
		assert.Empty(t, out.CleanedTranscript)
	})

	t.Run("API failure returns raw transcript", func(t *testing.T) {
		srv := chatStub(t, func(string) (string, int) {
			return "", http.StatusInternalServerError
		})
		defer srv.Close()

		c := newTestCleaner(t, srv.URL)
		raw := "SPEAKER_0: keep me"
		out := c.CleanMeeting(context.Background(), raw, "sess-1")
		assert.Equal(t, raw, out.CleanedTranscript)
		assert.True(t, strings.HasPrefix(out.Summary, "Error processing transcript:"), out.Summary)
	})

	t.Run("unparsable output returns raw transcript", func(t *testing.T) {
		srv := chatStub(t, func(string) (string, int) {
			return "not json at all", http.StatusOK
		})
		defer srv.Close()

		c := newTestCleaner(t, srv.URL)
		raw := "SPEAKER_0: keep me"
		out := c.CleanMeeting(context.Background(), raw, "sess-1")
		assert.Equal(t, raw, out.CleanedTranscript)
	})
}
