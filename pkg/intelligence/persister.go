package intelligence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eq-labs/interactions-gateway/pkg/models"
)

// ErrPersonaUnknown is returned when the requested persona code has no row.
// Nothing is inserted in that case.
var ErrPersonaUnknown = errors.New("persona not found")

// DefaultPersonaCode is the extraction persona used when callers do not
// specify one.
const DefaultPersonaCode = "gtm"

// PersistMeta carries the identity and provenance attached to every
// persisted row.
type PersistMeta struct {
	InteractionID   uuid.UUID
	TenantID        uuid.UUID
	TraceID         string
	InteractionType string
	AccountID       *string
	Timestamp       time.Time
	PersonaCode     string

	// Source records the model that produced the analysis, e.g. "openai:gpt-4o".
	Source string
}

// Persister writes extracted intelligence to Postgres.
type Persister struct {
	pool *pgxpool.Pool
}

// NewPersister creates a Persister.
func NewPersister(pool *pgxpool.Pool) *Persister {
	if pool == nil {
		panic("intelligence: pool is required")
	}
	return &Persister{pool: pool}
}

// ContentHash builds the dedupe hash for an insight:
// sha256 hex of "<insight_type>:<content>".
func ContentHash(insightType, content string) string {
	sum := sha256.Sum256([]byte(insightType + ":" + content))
	return hex.EncodeToString(sum[:])
}

// Persist writes exactly five summary rows and one row per insight in a
// single transaction. The persona is resolved first; an unknown persona
// aborts before any insert.
func (p *Persister) Persist(ctx context.Context, analysis *models.InteractionAnalysis, meta PersistMeta) error {
	personaCode := meta.PersonaCode
	if personaCode == "" {
		personaCode = DefaultPersonaCode
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("intelligence: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var personaID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM personas WHERE code = $1`, personaCode).Scan(&personaID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("intelligence: %w: %q", ErrPersonaUnknown, personaCode)
	}
	if err != nil {
		return fmt.Errorf("intelligence: look up persona: %w", err)
	}

	accountID := parseAccountID(meta.AccountID)
	timestamp := meta.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	summaryLevels := []struct {
		level string
		text  string
	}{
		{"title", analysis.Summaries.Title},
		{"headline", analysis.Summaries.Headline},
		{"brief", analysis.Summaries.Brief},
		{"detailed", analysis.Summaries.Detailed},
		{"spotlight", analysis.Summaries.Spotlight},
	}
	for _, s := range summaryLevels {
		_, err := tx.Exec(ctx, `
			INSERT INTO interaction_summary_entries
				(tenant_id, interaction_id, persona_id, level, content, word_count,
				 profile_type, source, trace_id, interaction_type, account_id, interaction_timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, 'rich', $7, $8, $9, $10, $11)`,
			meta.TenantID, meta.InteractionID, personaID, s.level, s.text, wordCount(s.text),
			meta.Source, meta.TraceID, meta.InteractionType, accountID, timestamp)
		if err != nil {
			return fmt.Errorf("intelligence: insert summary %s: %w", s.level, err)
		}
	}

	insertInsight := func(insightType string, cols map[string]any, hashContent string) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO interaction_insights
				(tenant_id, interaction_id, persona_id, insight_type,
				 description, owner, due_date, decision, rationale,
				 risk, severity, mitigation, content, content_hash,
				 trace_id, interaction_type, account_id, interaction_timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			meta.TenantID, meta.InteractionID, personaID, insightType,
			cols["description"], cols["owner"], cols["due_date"], cols["decision"], cols["rationale"],
			cols["risk"], cols["severity"], cols["mitigation"], cols["content"],
			ContentHash(insightType, hashContent),
			meta.TraceID, meta.InteractionType, accountID, timestamp)
		if err != nil {
			return fmt.Errorf("intelligence: insert %s insight: %w", insightType, err)
		}
		return nil
	}

	for _, item := range analysis.ActionItems {
		cols := map[string]any{"description": item.Description, "owner": item.Owner}
		if item.DueDate != nil {
			if due, err := time.Parse("2006-01-02", *item.DueDate); err == nil {
				cols["due_date"] = due
			}
		}
		if err := insertInsight("action_item", cols, item.Description); err != nil {
			return err
		}
	}
	for _, item := range analysis.Decisions {
		cols := map[string]any{"decision": item.Decision, "rationale": item.Rationale}
		if err := insertInsight("decision_made", cols, item.Decision); err != nil {
			return err
		}
	}
	for _, item := range analysis.Risks {
		cols := map[string]any{"risk": item.Risk, "severity": string(item.Severity), "mitigation": item.Mitigation}
		if err := insertInsight("risk", cols, item.Risk); err != nil {
			return err
		}
	}
	for _, text := range analysis.KeyTakeaways {
		if err := insertInsight("key_takeaway", map[string]any{"content": text}, text); err != nil {
			return err
		}
	}
	for _, item := range analysis.ProductFeedback {
		if err := insertInsight("product_feedback", map[string]any{"content": item.Text}, item.Text); err != nil {
			return err
		}
	}
	for _, item := range analysis.MarketIntelligence {
		if err := insertInsight("market_intelligence", map[string]any{"content": item.Text}, item.Text); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("intelligence: commit: %w", err)
	}

	slog.Info("Persisted intelligence",
		"interaction_id", meta.InteractionID,
		"tenant_id", meta.TenantID,
		"summaries", len(summaryLevels),
		"insights", analysis.InsightCount())
	return nil
}

func parseAccountID(raw *string) *uuid.UUID {
	if raw == nil {
		return nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil
	}
	return &id
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
