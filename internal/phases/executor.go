package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pandora-run/pandora/internal/intervention"
	"github.com/pandora-run/pandora/internal/llm"
	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/internal/toolrouter"
	"github.com/pandora-run/pandora/pkg/models"
)

// ExecutorResult is the §4 Execution subsection output: the evidence ledger
// the Synthesis phase cites from.
type ExecutorResult struct {
	Ledger []models.EvidenceClaim
}

// ExecutorConfig bounds one Executor run: it stops once the quality
// coverage target is met or max_candidates is reached.
type ExecutorConfig struct {
	MaxCandidates  int     // default 5
	QualityTarget  float64 // minimum average confidence to stop early, default 0.7
}

func (c ExecutorConfig) sanitized() ExecutorConfig {
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 5
	}
	if c.QualityTarget <= 0 {
		c.QualityTarget = 0.7
	}
	return c
}

// toolPlanCall is one step the LLM asks the Executor to dispatch.
type toolPlanCall struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type toolPlanResponse struct {
	Calls []toolPlanCall `json:"calls"`
	Done  bool           `json:"done"`
}

type claimExtraction struct {
	Claims []models.EvidenceClaim `json:"claims"`
}

// RunExecutor drives the Executor/Research Orchestrator. Unlike the other
// seven phases it does not fit the Spec[T] skeleton: it calls the LLM
// repeatedly to choose tool calls, dispatches each through the Tool Router
//, and may suspend on an Intervention Broker request when a
// candidate hits a blocker.
func RunExecutor(
	ctx context.Context,
	deps Deps,
	router *toolrouter.Router,
	interventions *intervention.Broker,
	turnID models.TurnID,
	traceID, profile string,
	mode models.Mode,
	plan models.Plan,
	cfg ExecutorConfig,
) (ExecutorResult, error) {
	cfg = cfg.sanitized()
	start := time.Now()
	name := models.PhaseExecutor

	if err := deps.Hub.Emit(traceID, models.Event{
		Type:   models.EventTypePhaseStarted,
		Phase:  string(name),
		Status: models.EventActive,
	}); err != nil {
		return ExecutorResult{}, perrors.NewPhase("executor.run", perrors.KindInternal, string(name), err)
	}
	_ = deps.Hub.Emit(traceID, models.Event{Type: models.EventTypeResearchStarted, Phase: string(name)})

	var ledger []models.EvidenceClaim
	role := models.RoleForPhase(name)

	for round := 0; len(ledger) < cfg.MaxCandidates; round++ {
		calls, done, err := planNextCalls(ctx, deps, role, plan, ledger)
		if err != nil {
			_ = deps.Hub.Emit(traceID, models.Event{Type: models.EventTypePhaseComplete, Phase: string(name), Status: models.EventError, Reasoning: err.Error()})
			return ExecutorResult{}, perrors.NewPhase("executor.run", perrors.KindPhaseFailed, string(name), err)
		}
		if done || len(calls) == 0 {
			break
		}

		for _, c := range calls {
			if len(ledger) >= cfg.MaxCandidates {
				break
			}
			claim, ok := dispatchCandidate(ctx, deps, router, interventions, traceID, profile, mode, c)
			if ok {
				ledger = append(ledger, claim...)
				_ = deps.Hub.Emit(traceID, models.Event{Type: models.EventTypeCandidateAccepted, Phase: string(name)})
			} else {
				_ = deps.Hub.Emit(traceID, models.Event{Type: models.EventTypeCandidateRejected, Phase: string(name)})
			}
		}

		if averageConfidence(ledger) >= cfg.QualityTarget {
			break
		}
	}

	result := ExecutorResult{Ledger: ledger}
	text := formatLedger(ledger)
	if text != "" {
		if err := deps.Store.AppendSection(turnID, models.SectionContext, text); err != nil {
			return result, perrors.NewPhase("executor.run", perrors.KindInternal, string(name), err)
		}
	}

	_ = deps.Hub.Emit(traceID, models.Event{Type: models.EventTypeResearchComplete, Phase: string(name)})
	_ = deps.Hub.Emit(traceID, models.Event{
		Type:       models.EventTypePhaseComplete,
		Phase:      string(name),
		Status:     models.EventCompleted,
		DurationMS: time.Since(start).Milliseconds(),
	})
	return result, nil
}

func planNextCalls(ctx context.Context, deps Deps, role models.Role, plan models.Plan, ledger []models.EvidenceClaim) ([]toolPlanCall, bool, error) {
	system := "You are the executor stage of a turn pipeline. Choose the next " +
		"batch of tool calls to run (search, fetch, or other registered tools), " +
		`or report done when the evidence ledger is sufficient. Respond with ONLY ` +
		`a JSON object {"calls":[{"name":"...","input":{...}}],"done":true|false}.`
	user := fmt.Sprintf("Goal: %s\nApproach: %s\nLikely tools: %v\nEvidence so far: %d claims\n",
		plan.Goal, plan.Approach, plan.LikelyTools, len(ledger))

	text, _, err := deps.LLM.Call(ctx, role, system, []llm.CompletionMessage{{Role: "user", Content: user}})
	if err != nil {
		return nil, false, err
	}
	var wire toolPlanResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &wire); err != nil {
		return nil, false, fmt.Errorf("executor: parse plan response: %w", err)
	}
	return wire.Calls, wire.Done, nil
}

// dispatchCandidate runs one tool call, handling the blocker-detection and
// Intervention suspension path, then extracts evidence claims from a
// successful result. ok is false when the candidate was rejected.
func dispatchCandidate(
	ctx context.Context,
	deps Deps,
	router *toolrouter.Router,
	interventions *intervention.Broker,
	traceID, profile string,
	mode models.Mode,
	call toolPlanCall,
) ([]models.EvidenceClaim, bool) {
	tc := models.ToolCall{ID: traceID + ":" + call.Name, Name: call.Name, Input: call.Input}
	result := router.Execute(ctx, profile, mode, traceID, tc)

	if result.Status == models.ToolStatusToolFailed {
		if blocker, isBlocker := classifyBlocker(result.Detail); isBlocker {
			_ = deps.Hub.Emit(traceID, models.Event{Type: models.EventTypeBlockerDetected, Phase: string(models.PhaseExecutor)})
			id := interventions.Request(traceID, candidateURL(call.Input), blocker, "", "")
			_ = deps.Hub.Emit(traceID, models.Event{Type: models.EventTypeInterventionNeeded, Phase: string(models.PhaseExecutor)})
			resolution, err := interventions.AwaitResolution(ctx, id, 0)
			_ = deps.Hub.Emit(traceID, models.Event{Type: models.EventTypeInterventionResolved, Phase: string(models.PhaseExecutor)})
			if err != nil || resolution != models.ResolutionOK {
				return nil, false
			}
			result = router.Execute(ctx, profile, mode, traceID, tc)
		}
	}

	if result.Status != models.ToolStatusOK {
		return nil, false
	}

	claims, err := extractClaims(ctx, deps, candidateURL(call.Input), result.Content)
	if err != nil || len(claims) == 0 {
		return nil, false
	}
	return claims, true
}

func extractClaims(ctx context.Context, deps Deps, url, content string) ([]models.EvidenceClaim, error) {
	system := "Extract factual claims supported by the given source text. " +
		`Respond with ONLY a JSON object {"claims":[{"claim":"...","source_type":"...",` +
		`"confidence":0.0,"quote":"..."}]}. confidence is between 0 and 1.`
	user := fmt.Sprintf("Source URL: %s\nSource text:\n%s\n", url, truncate(content, 4000))

	text, _, err := deps.LLM.Call(ctx, models.RoleMind, system, []llm.CompletionMessage{{Role: "user", Content: user}})
	if err != nil {
		return nil, err
	}
	var wire claimExtraction
	if err := json.Unmarshal([]byte(extractJSON(text)), &wire); err != nil {
		return nil, fmt.Errorf("executor: parse claim extraction: %w", err)
	}
	for i := range wire.Claims {
		wire.Claims[i].URL = url
		wire.Claims[i].Verification = models.VerificationPhase1Only
	}
	return wire.Claims, nil
}

func classifyBlocker(detail string) (models.BlockerType, bool) {
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "recaptcha"):
		return models.BlockerCaptchaRecaptcha, true
	case strings.Contains(lower, "hcaptcha"):
		return models.BlockerCaptchaHCaptcha, true
	case strings.Contains(lower, "cloudflare"):
		return models.BlockerCaptchaCloudflare, true
	case strings.Contains(lower, "captcha"):
		return models.BlockerCaptchaGeneric, true
	case strings.Contains(lower, "sign in") || strings.Contains(lower, "log in") || strings.Contains(lower, "login"):
		return models.BlockerLoginRequired, true
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return models.BlockerRateLimit, true
	case strings.Contains(lower, "bot detect") || strings.Contains(lower, "are you a robot"):
		return models.BlockerBotDetection, true
	default:
		return "", false
	}
}

func candidateURL(input json.RawMessage) string {
	var wire struct {
		URL string `json:"url"`
	}
	_ = json.Unmarshal(input, &wire)
	return wire.URL
}

func averageConfidence(ledger []models.EvidenceClaim) float64 {
	if len(ledger) == 0 {
		return 0
	}
	var sum float64
	for _, c := range ledger {
		sum += c.Confidence
	}
	return sum / float64(len(ledger))
}

func formatLedger(ledger []models.EvidenceClaim) string {
	if len(ledger) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, c := range ledger {
		fmt.Fprintf(&b, "- claim: %s | url: %s | source_type: %s | confidence: %.2f | verification: %s\n",
			c.Claim, c.URL, c.SourceType, c.Confidence, c.Verification)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
