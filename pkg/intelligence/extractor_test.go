package intelligence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eq-labs/interactions-gateway/pkg/config"
	"github.com/eq-labs/interactions-gateway/pkg/models"
)

func validAnalysis() models.InteractionAnalysis {
	owner := "Dana"
	return models.InteractionAnalysis{
		Summaries: models.Summaries{
			Title:     "Quarterly renewal call with Acme",
			Headline:  "Acme will renew if SSO ships by Q4.",
			Brief:     "Renewal discussion went well overall.",
			Detailed:  "The customer walked through their rollout plans in detail.",
			Spotlight: "SSO is the renewal blocker.",
		},
		ActionItems: []models.ActionItem{{Description: "Send SSO timeline", Owner: &owner}},
		Risks:       []models.Risk{{Risk: "Competitor eval in progress", Severity: models.RiskSeverityHigh}},
		KeyTakeaways: []string{
			"Champion is moving to a new org in January",
		},
	}
}

func extractorStub(t *testing.T, respond func(call int) (string, int)) *httptest.Server {
	t.Helper()
	calls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		content, status := respond(calls)
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

func newTestExtractor(t *testing.T, baseURL string) *Extractor {
	t.Helper()
	e, err := NewExtractor(config.LLMConfig{APIKey: "sk-test", Model: "gpt-4o"}, WithBaseURL(baseURL))
	require.NoError(t, err)
	return e
}

func TestNewExtractorRequiresAPIKey(t *testing.T) {
	_, err := NewExtractor(config.LLMConfig{})
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	t.Run("valid output parsed", func(t *testing.T) {
		srv := extractorStub(t, func(int) (string, int) {
			out, _ := json.Marshal(validAnalysis())
			return string(out), http.StatusOK
		})
		defer srv.Close()

		analysis := newTestExtractor(t, srv.URL).Extract(context.Background(), "SPEAKER_0: renewal talk")
		require.NotNil(t, analysis)
		assert.Equal(t, "Quarterly renewal call with Acme", analysis.Summaries.Title)
		assert.Len(t, analysis.ActionItems, 1)
		assert.Equal(t, 3, analysis.InsightCount())
	})

	t.Run("invalid output retried then accepted", func(t *testing.T) {
		srv := extractorStub(t, func(call int) (string, int) {
			if call == 1 {
				// Missing summaries fails validation.
				return `{"summaries":{"title":"","headline":"","brief":"","detailed":"","spotlight":""},"action_items":[],"decisions":[],"risks":[],"key_takeaways":[],"product_feedback":[],"market_intelligence":[]}`, http.StatusOK
			}
			out, _ := json.Marshal(validAnalysis())
			return string(out), http.StatusOK
		})
		defer srv.Close()

		analysis := newTestExtractor(t, srv.URL).Extract(context.Background(), "transcript")
		require.NotNil(t, analysis)
	})

	t.Run("persistent failure returns nil", func(t *testing.T) {
		srv := extractorStub(t, func(int) (string, int) {
			return "", http.StatusInternalServerError
		})
		defer srv.Close()

		assert.Nil(t, newTestExtractor(t, srv.URL).Extract(context.Background(), "transcript"))
	})

	t.Run("unknown severity rejected", func(t *testing.T) {
		srv := extractorStub(t, func(int) (string, int) {
			a := validAnalysis()
			a.Risks[0].Severity = "catastrophic"
			out, _ := json.Marshal(a)
			return string(out), http.StatusOK
		})
		defer srv.Close()

		assert.Nil(t, newTestExtractor(t, srv.URL).Extract(context.Background(), "transcript"))
	})
}

func TestContentHash(t *testing.T) {
	// sha256("action_item:Send SSO timeline")
	assert.Equal(t,
		ContentHash("action_item", "Send SSO timeline"),
		ContentHash("action_item", "Send SSO timeline"))
	assert.NotEqual(t,
		ContentHash("action_item", "Send SSO timeline"),
		ContentHash("key_takeaway", "Send SSO timeline"))
	assert.Len(t, ContentHash("risk", "anything"), 64)
}
