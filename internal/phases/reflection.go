package phases

import (
	"encoding/json"
	"fmt"

	"github.com/pandora-run/pandora/pkg/models"
)

// Reflection decides whether the pipeline has enough information to proceed
// or must clarify with the user. A CLARIFY decision
// short-circuits the pipeline straight to Synthesis.
type Reflection struct {
	Query    string
	Analysis models.QueryAnalysis
}

func (Reflection) Name() models.PhaseName { return models.PhaseReflection }

func (Reflection) RequiredSections() []models.Section {
	return []models.Section{models.SectionContext}
}

func (r Reflection) BuildPrompt(_ models.TurnID, _ map[models.Section]string) (string, string) {
	system := "You are the reflection stage of a turn pipeline. Decide whether " +
		"the query can be answered as-is or needs clarification first. Respond " +
		`with ONLY a JSON object {"proceed":true|false,"clarifying_question":"..."}. ` +
		`clarifying_question is required when proceed is false, empty otherwise.`
	user := fmt.Sprintf("Query: %s\nIntent: %s\nTopic: %s\n", r.Query, r.Analysis.Intent, r.Analysis.Topic)
	return system, user
}

func (Reflection) Parse(raw string) (models.ReflectionDecision, error) {
	var wire struct {
		Proceed            bool   `json:"proceed"`
		ClarifyingQuestion string `json:"clarifying_question"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &wire); err != nil {
		return models.ReflectionDecision{}, fmt.Errorf("reflection: parse response: %w", err)
	}
	if !wire.Proceed && wire.ClarifyingQuestion == "" {
		return models.ReflectionDecision{}, fmt.Errorf("reflection: clarify decision missing clarifying_question")
	}
	return models.ReflectionDecision{Proceed: wire.Proceed, ClarifyingQuestion: wire.ClarifyingQuestion}, nil
}

func (Reflection) Format(r models.ReflectionDecision) string {
	if r.Proceed {
		return "\nproceed: true\n"
	}
	return fmt.Sprintf("\nproceed: false\nclarifying_question: %s\n", r.ClarifyingQuestion)
}

func (Reflection) Confidence(models.ReflectionDecision) *float64 { return nil }
