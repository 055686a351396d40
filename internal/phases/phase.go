// Package phases implements the eight Phase Runners: Query Analyzer,
// Reflection, Context Gatherer, Planner, Executor, Coordinator, Synthesis,
// and Validation. Every phase but the Executor/Coordinator tool-calling pair
// shares one fixed algorithm skeleton:
//
//	emit(active) -> read required sections -> build prompt -> call LLM ->
//	parse -> on parse failure, one retry with a stricter instruction ->
//	on second failure, emit(error) and fail the phase -> on success, append
//	the subsection and emit(completed, confidence, duration).
//
// Each phase emits events and persists its subsection to the turn store
// before the scheduler advances. The Executor is the only phase that runs
// tools, and it dispatches them through the Tool Router rather than
// provider-native function calling.
package phases

import (
	"context"
	"regexp"
	"strings"
	"time"

	ctxwindow "github.com/pandora-run/pandora/internal/context"
	"github.com/pandora-run/pandora/internal/llm"
	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/internal/tracehub"
	"github.com/pandora-run/pandora/internal/turndoc"
	"github.com/pandora-run/pandora/pkg/models"
)

// Deps bundles the shared resources every phase runs against.
type Deps struct {
	Store *turndoc.Store
	Hub   *tracehub.Hub
	LLM   *llm.Manager
}

// Spec is implemented by each concrete phase. T is the phase's structured
// output: the value downstream phases and the Pipeline Scheduler read
// back to decide routing (e.g. Reflection's Proceed, Planner's Route).
type Spec[T any] interface {
	// Name identifies the phase for events and timeouts.
	Name() models.PhaseName

	// RequiredSections lists the Turn Document sections this phase reads
	// before building its prompt.
	RequiredSections() []models.Section

	// BuildPrompt returns the system and user prompt for the LLM call.
	// sections holds the current contents of every section named by
	// RequiredSections, keyed by section.
	BuildPrompt(turnID models.TurnID, sections map[models.Section]string) (system, user string)

	// Parse turns the LLM's raw text into T, or returns an error to trigger
	// the one-retry-with-stricter-instruction path.
	Parse(raw string) (T, error)

	// Format renders T as the markdown appended to context.md's subsection.
	Format(result T) string

	// Confidence extracts an optional confidence score for the completed
	// event; phases with no natural confidence value return nil.
	Confidence(result T) *float64
}

// strictSuffix is appended to the system prompt on the single parse-failure
// retry.
const strictSuffix = "\n\nYour previous response could not be parsed. " +
	"Respond with EXACTLY the requested format and nothing else: no prose, " +
	"no markdown code fences, no commentary before or after."

// Run drives one phase through the shared algorithm skeleton and returns its
// structured result.
func Run[T any](ctx context.Context, deps Deps, spec Spec[T], turnID models.TurnID, traceID, profile string) (T, error) {
	var zero T
	name := spec.Name()
	start := time.Now()

	if err := deps.Hub.Emit(traceID, models.Event{
		Type:   models.EventTypePhaseStarted,
		Phase:  string(name),
		Status: models.EventActive,
	}); err != nil {
		return zero, perrors.NewPhase("phase.run", perrors.KindInternal, string(name), err)
	}

	sections, err := readSections(deps.Store, turnID, spec.RequiredSections())
	if err != nil {
		return zero, perrors.NewPhase("phase.run", perrors.KindInternal, string(name), err)
	}

	system, user := spec.BuildPrompt(turnID, sections)
	role := models.RoleForPhase(name)

	fail := func(err error) (T, error) {
		_ = deps.Hub.Emit(traceID, models.Event{
			Type:      models.EventTypePhaseComplete,
			Phase:     string(name),
			Status:    models.EventError,
			Reasoning: err.Error(),
		})
		kind := perrors.KindPhaseFailed
		// A cancelled turn must surface as cancelled, not phase_failed.
		if ctx.Err() != nil || perrors.KindOf(err) == perrors.KindCancelled {
			kind = perrors.KindCancelled
		}
		return zero, perrors.NewPhase("phase.run", kind, string(name), err)
	}

	// The stricter-instruction retry applies to parse failures only; a
	// transport-level error fails the phase outright.
	text, _, err := deps.LLM.Call(ctx, role, system, []llm.CompletionMessage{{Role: "user", Content: user}})
	if err != nil {
		return fail(err)
	}
	result, parseErr := spec.Parse(text)
	if parseErr != nil {
		text, _, err = deps.LLM.Call(ctx, role, system+strictSuffix, []llm.CompletionMessage{{Role: "user", Content: user}})
		if err != nil {
			return fail(err)
		}
		result, parseErr = spec.Parse(text)
		if parseErr != nil {
			return fail(parseErr)
		}
	}

	section := spec.Format(result)
	if section != "" {
		if err := deps.Store.AppendSection(turnID, models.SectionContext, section); err != nil {
			return zero, perrors.NewPhase("phase.run", perrors.KindInternal, string(name), err)
		}
	}

	_ = deps.Hub.Emit(traceID, models.Event{
		Type:       models.EventTypePhaseComplete,
		Phase:      string(name),
		Status:     models.EventCompleted,
		Confidence: spec.Confidence(result),
		DurationMS: time.Since(start).Milliseconds(),
	})

	return result, nil
}

// maxSectionTokens bounds how much of one Turn Document section is fed into
// a phase prompt. A long research turn can accumulate far more context.md
// than a single completion window holds; the tail is the most recent and
// most relevant part, so the head is dropped.
const maxSectionTokens = 24000

func readSections(store *turndoc.Store, turnID models.TurnID, sections []models.Section) (map[models.Section]string, error) {
	out := make(map[models.Section]string, len(sections))
	for _, sec := range sections {
		text, err := store.ReadSection(turnID, sec)
		if err != nil {
			return nil, err
		}
		out[sec] = tailWithinTokens(text, maxSectionTokens)
	}
	return out, nil
}

// tailWithinTokens returns the suffix of text that fits the token budget.
func tailWithinTokens(text string, budget int) string {
	if ctxwindow.EstimateTokens(text) <= budget {
		return text
	}
	keep := budget * 4 // EstimateTokens is chars/4 shaped
	if keep >= len(text) {
		return text
	}
	return text[len(text)-keep:]
}

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON strips a surrounding markdown code fence if present, so a
// phase's Parse can json.Unmarshal even when the model ignores the
// no-fences instruction.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := jsonFence.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return raw
}
