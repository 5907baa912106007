package models

import "fmt"

// RiskSeverity is the severity level attached to an extracted risk.
type RiskSeverity string

// Risk severity values.
const (
	RiskSeverityLow    RiskSeverity = "low"
	RiskSeverityMedium RiskSeverity = "medium"
	RiskSeverityHigh   RiskSeverity = "high"
)

// Valid reports whether the severity is one of the known values.
func (s RiskSeverity) Valid() bool {
	switch s {
	case RiskSeverityLow, RiskSeverityMedium, RiskSeverityHigh:
		return true
	}
	return false
}

// Summaries holds the five-level summary set produced by extraction.
type Summaries struct {
	Title     string `json:"title"`
	Headline  string `json:"headline"`
	Brief     string `json:"brief"`
	Detailed  string `json:"detailed"`
	Spotlight string `json:"spotlight"`
}

// ActionItem is an actionable task extracted from a transcript.
type ActionItem struct {
	Description string  `json:"description"`
	Owner       *string `json:"owner,omitempty"`
	// DueDate is an ISO date (YYYY-MM-DD) when the model supplies one.
	DueDate *string `json:"due_date,omitempty"`
}

// Decision is an agreement or strategic choice captured from a transcript.
type Decision struct {
	Decision  string  `json:"decision"`
	Rationale *string `json:"rationale,omitempty"`
}

// Risk is a concern identified in a transcript with an assessed severity.
type Risk struct {
	Risk       string       `json:"risk"`
	Severity   RiskSeverity `json:"severity"`
	Mitigation *string      `json:"mitigation,omitempty"`
}

// ProductFeedback is a feature request, pain point, or bug mention.
type ProductFeedback struct {
	Text string `json:"text"`
}

// MarketIntelligence is a competitor mention or market trend observation.
type MarketIntelligence struct {
	Text string `json:"text"`
}

// InteractionAnalysis is the complete structured extraction output: five
// summaries plus categorized insight lists. It is decomposed into rows by
// the intelligence persister and never stored directly.
type InteractionAnalysis struct {
	Summaries          Summaries            `json:"summaries"`
	ActionItems        []ActionItem         `json:"action_items"`
	Decisions          []Decision           `json:"decisions"`
	Risks              []Risk               `json:"risks"`
	KeyTakeaways       []string             `json:"key_takeaways"`
	ProductFeedback    []ProductFeedback    `json:"product_feedback"`
	MarketIntelligence []MarketIntelligence `json:"market_intelligence"`
}

// Validate checks structural requirements the JSON schema cannot fully
// express: non-empty summaries and known enum symbols.
func (a *InteractionAnalysis) Validate() error {
	if a.Summaries.Title == "" || a.Summaries.Headline == "" ||
		a.Summaries.Brief == "" || a.Summaries.Detailed == "" ||
		a.Summaries.Spotlight == "" {
		return fmt.Errorf("analysis: all five summary levels are required")
	}
	for i, r := range a.Risks {
		if !r.Severity.Valid() {
			return fmt.Errorf("analysis: risks[%d] has unknown severity %q", i, r.Severity)
		}
	}
	return nil
}

// InsightCount returns the total number of insight rows this analysis
// decomposes into.
func (a *InteractionAnalysis) InsightCount() int {
	return len(a.ActionItems) + len(a.Decisions) + len(a.Risks) +
		len(a.KeyTakeaways) + len(a.ProductFeedback) + len(a.MarketIntelligence)
}
