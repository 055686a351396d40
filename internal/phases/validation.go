package phases

import (
	"encoding/json"
	"fmt"

	"github.com/pandora-run/pandora/pkg/models"
)

// ValidationResult is the §7 Validation subsection output.
type ValidationResult struct {
	Decision models.ValidationDecision
	Reason   string
}

// Validation checks the synthesized response against the query and evidence
// ledger and decides whether to approve it, send it back to Synthesis once
// with a reason (REVISE), or fail the turn outright (RETRY). The Pipeline
// Scheduler never retries a phase automatically; RETRY is returned to
// the caller as a structured phase_failed error instead.
type Validation struct {
	Query    string
	Response string
}

func (Validation) Name() models.PhaseName { return models.PhaseValidation }

func (Validation) RequiredSections() []models.Section {
	return []models.Section{models.SectionContext}
}

func (v Validation) BuildPrompt(_ models.TurnID, sections map[models.Section]string) (string, string) {
	system := "You are the validation stage of a turn pipeline. Check the " +
		"synthesized response against the query and the evidence ledger in " +
		"context.md: does it answer the query, and does every citation trace " +
		"back to a real entry in the ledger? Respond with ONLY a JSON object " +
		`{"decision":"approve|revise|retry","reason":"..."}. reason is required ` +
		"unless decision is approve. Use revise for a fixable gap (e.g. an " +
		"unattributed claim, a missed part of the query) and retry only when " +
		"the turn cannot be salvaged by rewriting the response alone (e.g. the " +
		"evidence ledger itself is empty or contradictory)."
	user := fmt.Sprintf("Query: %s\n\nSynthesized response:\n%s\n\ncontext.md so far:\n%s\n",
		v.Query, v.Response, sections[models.SectionContext])
	return system, user
}

func (Validation) Parse(raw string) (ValidationResult, error) {
	var wire struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &wire); err != nil {
		return ValidationResult{}, fmt.Errorf("validation: parse response: %w", err)
	}
	decision := models.ValidationDecision(wire.Decision)
	switch decision {
	case models.ValidationApprove:
	case models.ValidationRevise, models.ValidationRetry:
		if wire.Reason == "" {
			return ValidationResult{}, fmt.Errorf("validation: %s decision missing reason", decision)
		}
	default:
		return ValidationResult{}, fmt.Errorf("validation: unknown decision %q", wire.Decision)
	}
	return ValidationResult{Decision: decision, Reason: wire.Reason}, nil
}

func (Validation) Format(r ValidationResult) string {
	if r.Decision == models.ValidationApprove {
		return "\ndecision: approve\n"
	}
	return fmt.Sprintf("\ndecision: %s\nreason: %s\n", r.Decision, r.Reason)
}

func (Validation) Confidence(ValidationResult) *float64 { return nil }
