package intelligence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eq-labs/interactions-gateway/pkg/intelligence"
	"github.com/eq-labs/interactions-gateway/pkg/models"
	"github.com/eq-labs/interactions-gateway/test/util"
)

func fullAnalysis() *models.InteractionAnalysis {
	owner := "Dana"
	due := "2026-09-15"
	rationale := "Engineering capacity frees up next sprint"
	mitigation := "Schedule exec alignment call"
	return &models.InteractionAnalysis{
		Summaries: models.Summaries{
			Title:     "Acme renewal and SSO roadmap",
			Headline:  "Acme commits to renewal pending SSO delivery.",
			Brief:     "The call covered renewal terms and the SSO gap.",
			Detailed:  "A longer discussion of rollout plans, security review timelines, and procurement steps.",
			Spotlight: "SSO delivery is the renewal gate.",
		},
		ActionItems: []models.ActionItem{
			{Description: "Send SSO delivery timeline", Owner: &owner, DueDate: &due},
			{Description: "Loop in security team"},
		},
		Decisions: []models.Decision{
			{Decision: "Prioritize SSO for Q4", Rationale: &rationale},
		},
		Risks: []models.Risk{
			{Risk: "Competitor running a parallel eval", Severity: models.RiskSeverityHigh, Mitigation: &mitigation},
		},
		KeyTakeaways:       []string{"Champion changes role in January"},
		ProductFeedback:    []models.ProductFeedback{{Text: "Export flow is confusing"}},
		MarketIntelligence: []models.MarketIntelligence{{Text: "Industry consolidating around SOC2 requirements"}},
	}
}

func TestPersist(t *testing.T) {
	client := util.SetupTestDatabase(t)
	ctx := context.Background()
	persister := intelligence.NewPersister(client.Pool())

	t.Run("writes summaries and insights in one transaction", func(t *testing.T) {
		analysis := fullAnalysis()
		accountID := uuid.NewString()
		meta := intelligence.PersistMeta{
			InteractionID:   uuid.New(),
			TenantID:        uuid.New(),
			TraceID:         "trace-abc",
			InteractionType: "meeting",
			AccountID:       &accountID,
			Timestamp:       time.Now().UTC(),
			Source:          "openai:gpt-4o",
		}
		require.NoError(t, persister.Persist(ctx, analysis, meta))

		var summaryCount int
		err := client.Pool().QueryRow(ctx,
			`SELECT COUNT(*) FROM interaction_summary_entries WHERE interaction_id = $1 AND tenant_id = $2`,
			meta.InteractionID, meta.TenantID).Scan(&summaryCount)
		require.NoError(t, err)
		assert.Equal(t, 5, summaryCount)

		var level, content, profileType, source string
		var wordCount int
		err = client.Pool().QueryRow(ctx,
			`SELECT level, content, word_count, profile_type::text, source
			 FROM interaction_summary_entries
			 WHERE interaction_id = $1 AND level = 'headline'`,
			meta.InteractionID).Scan(&level, &content, &wordCount, &profileType, &source)
		require.NoError(t, err)
		assert.Equal(t, "Acme commits to renewal pending SSO delivery.", content)
		assert.Equal(t, 7, wordCount)
		assert.Equal(t, "rich", profileType)
		assert.Equal(t, "openai:gpt-4o", source)

		var insightCount int
		err = client.Pool().QueryRow(ctx,
			`SELECT COUNT(*) FROM interaction_insights WHERE interaction_id = $1`,
			meta.InteractionID).Scan(&insightCount)
		require.NoError(t, err)
		assert.Equal(t, analysis.InsightCount(), insightCount)

		var decision, hash string
		err = client.Pool().QueryRow(ctx,
			`SELECT decision, content_hash FROM interaction_insights
			 WHERE interaction_id = $1 AND insight_type = 'decision_made'`,
			meta.InteractionID).Scan(&decision, &hash)
		require.NoError(t, err)
		assert.Equal(t, "Prioritize SSO for Q4", decision)
		assert.Equal(t, intelligence.ContentHash("decision_made", "Prioritize SSO for Q4"), hash)

		var owner string
		var dueDate time.Time
		err = client.Pool().QueryRow(ctx,
			`SELECT owner, due_date FROM interaction_insights
			 WHERE interaction_id = $1 AND insight_type = 'action_item' AND owner IS NOT NULL`,
			meta.InteractionID).Scan(&owner, &dueDate)
		require.NoError(t, err)
		assert.Equal(t, "Dana", owner)
		assert.Equal(t, "2026-09-15", dueDate.Format("2006-01-02"))

		var risk, severity string
		err = client.Pool().QueryRow(ctx,
			`SELECT risk, severity::text FROM interaction_insights
			 WHERE interaction_id = $1 AND insight_type = 'risk'`,
			meta.InteractionID).Scan(&risk, &severity)
		require.NoError(t, err)
		assert.Equal(t, "high", severity)

		var takeaway string
		err = client.Pool().QueryRow(ctx,
			`SELECT content FROM interaction_insights
			 WHERE interaction_id = $1 AND insight_type = 'key_takeaway'`,
			meta.InteractionID).Scan(&takeaway)
		require.NoError(t, err)
		assert.Equal(t, "Champion changes role in January", takeaway)
	})

	t.Run("unknown persona aborts without inserting", func(t *testing.T) {
		meta := intelligence.PersistMeta{
			InteractionID:   uuid.New(),
			TenantID:        uuid.New(),
			InteractionType: "meeting",
			PersonaCode:     "nope",
		}
		err := persister.Persist(ctx, fullAnalysis(), meta)
		require.ErrorIs(t, err, intelligence.ErrPersonaUnknown)

		var count int
		require.NoError(t, client.Pool().QueryRow(ctx,
			`SELECT COUNT(*) FROM interaction_summary_entries WHERE interaction_id = $1`,
			meta.InteractionID).Scan(&count))
		assert.Zero(t, count)
	})

	t.Run("non-uuid account id stored as null", func(t *testing.T) {
		bogus := "not-a-uuid"
		meta := intelligence.PersistMeta{
			InteractionID:   uuid.New(),
			TenantID:        uuid.New(),
			InteractionType: "meeting",
			AccountID:       &bogus,
		}
		require.NoError(t, persister.Persist(ctx, fullAnalysis(), meta))

		var nullAccounts int
		require.NoError(t, client.Pool().QueryRow(ctx,
			`SELECT COUNT(*) FROM interaction_summary_entries
			 WHERE interaction_id = $1 AND account_id IS NULL`,
			meta.InteractionID).Scan(&nullAccounts))
		assert.Equal(t, 5, nullAccounts)
	})
}
