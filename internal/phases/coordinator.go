package phases

import (
	"encoding/json"
	"fmt"

	"github.com/pandora-run/pandora/pkg/models"
)

// CoordinatorResult is the §5 Coordination subsection output: the evidence ledger after
// a secondary verification pass, with some claims upgraded to
// pdp_verified.
type CoordinatorResult struct {
	Ledger []models.EvidenceClaim
}

// Coordinator runs a secondary verification pass over the Executor's
// evidence ledger, upgrading verification status for claims it can confirm
// (e.g. vendor PDP checks for commerce plans). Non-commerce plans skip it
// entirely. It runs as an LLM-only re-check against the already-gathered
// evidence rather than re-entering the Tool Router, which keeps it within
// the Spec[T] skeleton instead of duplicating Executor's tool-dispatch loop.
type Coordinator struct {
	Plan   models.Plan
	Ledger []models.EvidenceClaim
}

func (Coordinator) Name() models.PhaseName { return models.PhaseCoordinator }

func (Coordinator) RequiredSections() []models.Section {
	return []models.Section{models.SectionContext}
}

func (c Coordinator) BuildPrompt(_ models.TurnID, _ map[models.Section]string) (string, string) {
	system := "You are the coordinator stage of a turn pipeline, running a " +
		"second verification pass over an evidence ledger. For commerce plans, " +
		"treat a claim as pdp_verified only if the evidence is specific and " +
		"consistent across sources; otherwise leave it phase1_only. Respond " +
		`with ONLY a JSON object {"claims":[{"claim":"...","url":"...",` +
		`"source_type":"...","confidence":0.0,"quote":"...",` +
		`"verification":"phase1_only|pdp_verified"}]}.`
	b, _ := json.Marshal(c.Ledger)
	user := fmt.Sprintf("Plan goal: %s\nPattern: %s\nCurrent ledger:\n%s\n", c.Plan.Goal, c.Plan.Pattern, string(b))
	return system, user
}

func (Coordinator) Parse(raw string) (CoordinatorResult, error) {
	var wire struct {
		Claims []models.EvidenceClaim `json:"claims"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &wire); err != nil {
		return CoordinatorResult{}, fmt.Errorf("coordinator: parse response: %w", err)
	}
	return CoordinatorResult{Ledger: wire.Claims}, nil
}

func (Coordinator) Format(r CoordinatorResult) string {
	return formatLedger(r.Ledger)
}

func (Coordinator) Confidence(r CoordinatorResult) *float64 {
	if len(r.Ledger) == 0 {
		return nil
	}
	avg := averageConfidence(r.Ledger)
	return &avg
}
