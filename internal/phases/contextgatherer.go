package phases

import (
	"encoding/json"
	"fmt"

	"github.com/pandora-run/pandora/pkg/models"
)

// ContextDigest is the Context Gatherer's §2 subsection output: a condensed
// recall summary plus the prior-turn citations it drew from. Everything
// downstream treats the digest as opaque text.
type ContextDigest struct {
	Digest    string
	Citations []string
}

// ContextGatherer reads recall indexes and produces a context digest for
// the Planner. RecentTopics/PriorCitations are
// fetched by the caller from the recall index before Run, keeping this
// phase's prompt construction synchronous like every other phase.
type ContextGatherer struct {
	Query          string
	Analysis       models.QueryAnalysis
	RecentTopics   []string
	PriorCitations []string
}

func (ContextGatherer) Name() models.PhaseName { return models.PhaseContextGatherer }

func (ContextGatherer) RequiredSections() []models.Section {
	return []models.Section{models.SectionContext}
}

func (c ContextGatherer) BuildPrompt(_ models.TurnID, sections map[models.Section]string) (string, string) {
	system := "You are the context gatherer stage of a turn pipeline. Produce a " +
		"short digest of relevant prior context for the planner, and list which " +
		`prior-turn citations (if any) are worth carrying forward. Respond with ` +
		`ONLY a JSON object {"digest":"...","citations":["..."]}.`
	user := fmt.Sprintf("Query: %s\nIntent: %s\nTopic: %s\nRecent topics: %v\nCandidate citations: %v\n\nExisting context.md:\n%s\n",
		c.Query, c.Analysis.Intent, c.Analysis.Topic, c.RecentTopics, c.PriorCitations, sections[models.SectionContext])
	return system, user
}

func (ContextGatherer) Parse(raw string) (ContextDigest, error) {
	var wire struct {
		Digest    string   `json:"digest"`
		Citations []string `json:"citations"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &wire); err != nil {
		return ContextDigest{}, fmt.Errorf("context_gatherer: parse response: %w", err)
	}
	return ContextDigest{Digest: wire.Digest, Citations: wire.Citations}, nil
}

func (ContextGatherer) Format(r ContextDigest) string {
	return fmt.Sprintf("\ndigest: %s\ncitations: %v\n", r.Digest, r.Citations)
}

func (ContextGatherer) Confidence(ContextDigest) *float64 { return nil }
