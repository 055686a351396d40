package phases

import (
	"fmt"

	"github.com/pandora-run/pandora/pkg/models"
)

// SynthesisResult is the §6 Synthesis subsection output.
type SynthesisResult struct {
	Text string
}

// Synthesis produces the final user-facing response from context.md §0-§5.
// It must attribute phase1-only claims to their source and must not
// fabricate citations.
//
// The CLARIFY fast path (Reflection returned CLARIFY) never reaches
// this type: the Pipeline Scheduler emits a fixed clarifying template
// directly via ClarifyingResponse, skipping the LLM call entirely, since a
// clarifying question has nothing to synthesize from.
type Synthesis struct {
	Query  string
	Ledger []models.EvidenceClaim

	// Reason is set when the Pipeline Scheduler reruns Synthesis once after
	// a Validation REVISE decision: the prior response's gap,
	// folded into the prompt so the rewrite actually addresses it.
	Reason string
}

func (Synthesis) Name() models.PhaseName { return models.PhaseSynthesis }

func (Synthesis) RequiredSections() []models.Section {
	return []models.Section{models.SectionContext}
}

func (s Synthesis) BuildPrompt(_ models.TurnID, sections map[models.Section]string) (string, string) {
	system := "You are the synthesis stage of a turn pipeline. Write the final " +
		"answer to the user's query from the accumulated context below. Every " +
		"claim drawn from the evidence ledger that is marked phase1_only must " +
		"be attributed to its source (e.g. \"according to <source>\"); " +
		"pdp_verified claims may be stated directly. Never cite a source that " +
		"is not present in the evidence ledger or context.md. Respond with " +
		"ONLY the final answer text: no JSON, no preamble, no meta-commentary " +
		"about these instructions."
	user := fmt.Sprintf("Query: %s\n\ncontext.md so far:\n%s\n", s.Query, sections[models.SectionContext])
	if s.Reason != "" {
		user += fmt.Sprintf("\nThe previous draft was sent back for revision: %s\nRewrite the answer to address this.\n", s.Reason)
	}
	return system, user
}

// Parse is the identity transform: Synthesis's output is free text, not a
// structured wire format, so there is nothing to retry-on-parse-failure for
// (the phase skeleton's retry path is effectively unreachable here).
func (Synthesis) Parse(raw string) (SynthesisResult, error) {
	return SynthesisResult{Text: raw}, nil
}

func (Synthesis) Format(r SynthesisResult) string {
	return fmt.Sprintf("\n%s\n", r.Text)
}

func (Synthesis) Confidence(SynthesisResult) *float64 { return nil }

// ClarifyingTemplate is the fixed text the fast path emits in place of an
// LLM call.
const ClarifyingTemplate = "I need a bit more information before I can answer: %s"

// ClarifyingResponse renders the fixed clarifying template for the fast
// path. It is not a Spec[T] phase: the scheduler calls it directly instead
// of routing through Run, since there is no LLM call or retry semantics
// involved.
func ClarifyingResponse(question string) SynthesisResult {
	return SynthesisResult{Text: fmt.Sprintf(ClarifyingTemplate, question)}
}
