package phases

import (
	"encoding/json"
	"fmt"

	"github.com/pandora-run/pandora/pkg/models"
)

// QueryAnalyzer classifies the raw query into an intent, topic, and keyword
// set.
type QueryAnalyzer struct {
	Query         string
	RecentTopics  []string
}

func (QueryAnalyzer) Name() models.PhaseName { return models.PhaseQueryAnalyzer }

func (QueryAnalyzer) RequiredSections() []models.Section { return nil }

func (q QueryAnalyzer) BuildPrompt(models.TurnID, map[models.Section]string) (string, string) {
	system := "You are the query analyzer stage of a turn pipeline. " +
		"Classify the user's query and respond with ONLY a JSON object of the " +
		`shape {"intent":"informational|commerce|mixed|conversational|code|clarify",` +
		`"topic":"...","keywords":["..."]}. No prose, no markdown.`
	user := fmt.Sprintf("Query: %s\n", q.Query)
	if len(q.RecentTopics) > 0 {
		user += fmt.Sprintf("Recent turn topics: %v\n", q.RecentTopics)
	}
	return system, user
}

func (QueryAnalyzer) Parse(raw string) (models.QueryAnalysis, error) {
	var wire struct {
		Intent   string   `json:"intent"`
		Topic    string   `json:"topic"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &wire); err != nil {
		return models.QueryAnalysis{}, fmt.Errorf("query_analyzer: parse response: %w", err)
	}
	intent := models.Intent(wire.Intent)
	switch intent {
	case models.IntentInformational, models.IntentCommerce, models.IntentMixed,
		models.IntentConversational, models.IntentCode, models.IntentClarify:
	default:
		return models.QueryAnalysis{}, fmt.Errorf("query_analyzer: unknown intent %q", wire.Intent)
	}
	return models.QueryAnalysis{Intent: intent, Topic: wire.Topic, Keywords: wire.Keywords}, nil
}

func (QueryAnalyzer) Format(r models.QueryAnalysis) string {
	return fmt.Sprintf("\nintent: %s\ntopic: %s\nkeywords: %v\n", r.Intent, r.Topic, r.Keywords)
}

func (QueryAnalyzer) Confidence(models.QueryAnalysis) *float64 { return nil }
