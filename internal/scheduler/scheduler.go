// Package scheduler implements the Pipeline Scheduler: it drives the
// turn state machine exactly once per trace, ties the Turn Document Store,
// Trace Hub, Tool Router, Phase Runners, and Intervention Broker together,
// and enforces phase ordering, budgets, and cancellation propagation.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pandora-run/pandora/internal/config"
	"github.com/pandora-run/pandora/internal/infra"
	"github.com/pandora-run/pandora/internal/intervention"
	"github.com/pandora-run/pandora/internal/llm"
	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/internal/phases"
	"github.com/pandora-run/pandora/internal/toolrouter"
	"github.com/pandora-run/pandora/internal/tracehub"
	"github.com/pandora-run/pandora/internal/turndoc"
	"github.com/pandora-run/pandora/pkg/models"
)

// Index supplies the best-effort recall context the Context Gatherer reads
// before its LLM call. The vector store and relational index backing it
// live behind collaborators, so this is the narrow interface
// the scheduler consumes from whatever implements the recall side-store.
type Index interface {
	RecentTopics(ctx context.Context, profile string, n int) ([]string, error)
	PriorCitations(ctx context.Context, profile, topic string, n int) ([]string, error)
}

// NopIndex always returns empty recall context; used when no index is wired.
type NopIndex struct{}

func (NopIndex) RecentTopics(context.Context, string, int) ([]string, error) { return nil, nil }
func (NopIndex) PriorCitations(context.Context, string, string, int) ([]string, error) {
	return nil, nil
}

// Deps bundles every component the Scheduler composes.
type Deps struct {
	Store         *turndoc.Store
	Hub           *tracehub.Hub
	LLM           *llm.Manager
	Router        *toolrouter.Router
	Interventions *intervention.Broker
	Index         Index
	Metrics       RunRecorder
	Config        config.SchedulerConfig
}

// RunRecorder observes turn and phase lifecycle for the metrics endpoint;
// *observability.Metrics satisfies it.
type RunRecorder interface {
	TurnStarted()
	TurnFinished()
	RecordPhaseRun(phase, outcome string, durationSeconds float64)
}

func (d Deps) phaseDeps() phases.Deps {
	return phases.Deps{Store: d.Store, Hub: d.Hub, LLM: d.LLM}
}

// Scheduler is the Pipeline Scheduler.
type Scheduler struct {
	deps Deps
	sem  *infra.Semaphore
}

// New builds a Scheduler bounded by deps.Config.MaxConcurrentTurns: one
// process hosts at most that many concurrent turn pipelines.
func New(deps Deps) *Scheduler {
	if deps.Index == nil {
		deps.Index = NopIndex{}
	}
	max := deps.Config.MaxConcurrentTurns
	if max <= 0 {
		max = 32
	}
	return &Scheduler{deps: deps, sem: infra.NewSemaphore(int64(max))}
}

// CreateTrace allocates a trace for a new turn attempt. Callers that do not
// go through the Job Registry use this directly for the synchronous
// request path.
func (s *Scheduler) CreateTrace(profile string) string {
	return s.deps.Hub.CreateTrace(profile)
}

// Cancel marks traceID cancelled and skips any pending Intervention for it
// It does not by itself stop an in-flight RunTurn; that
// requires cancelling the context RunTurn was given, which the caller (the
// Job Registry, keyed by job_id) owns.
func (s *Scheduler) Cancel(traceID, reason string) {
	_ = s.deps.Hub.Cancel(traceID, reason)
	s.deps.Interventions.SkipAllForTrace(traceID)
}

// RunTurn drives one turn's full eight-phase pipeline against a
// previously-allocated traceID, honoring the fast path, phase budgets, and
// cancellation. It is the Job Registry's RunFunc body for async
// turns, and is called directly (in a goroutine racing a soft deadline) by
// the Streaming Gateway for the synchronous path.
func (s *Scheduler) RunTurn(ctx context.Context, traceID, profile string, mode models.Mode, query string) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", perrors.New("scheduler.run_turn", perrors.KindCancelled, err)
	}
	defer s.sem.Release(1)

	if s.deps.Metrics != nil {
		s.deps.Metrics.TurnStarted()
		defer s.deps.Metrics.TurnFinished()
	}

	turnID, _, err := s.deps.Store.OpenTurn(ctx, profile)
	if err != nil {
		return "", perrors.New("scheduler.run_turn", perrors.KindInternal, err)
	}

	text, runErr := s.run(ctx, turnID, traceID, profile, mode, query)
	if runErr != nil {
		kind := perrors.KindOf(runErr)
		phase := phaseOf(runErr)
		_ = s.deps.Store.CloseTurnFailed(turnID, string(kind), phase, runErr)

		message := humanReadableError(kind, runErr)
		_ = s.deps.Hub.SetResponse(traceID, message)
		status := models.TraceStatusError
		if kind == perrors.KindCancelled {
			status = models.TraceStatusCancelled
		}
		_ = s.deps.Hub.Complete(traceID, status, models.Event{
			Type:      models.EventTypeComplete,
			Status:    models.EventError,
			Reasoning: runErr.Error(),
		})
		return "", runErr
	}

	_ = s.deps.Hub.SetResponse(traceID, text) // must precede the terminal event.
	_ = s.deps.Store.CloseTurn(turnID)
	_ = s.deps.Hub.Complete(traceID, models.TraceStatusComplete, models.Event{
		Type:   models.EventTypeComplete,
		Status: models.EventCompleted,
	})
	return text, nil
}

func (s *Scheduler) run(ctx context.Context, turnID models.TurnID, traceID, profile string, mode models.Mode, query string) (string, error) {
	pd := s.deps.phaseDeps()

	analysis, err := runPhase(ctx, s, traceID, models.PhaseQueryAnalyzer, func(ctx context.Context) (models.QueryAnalysis, error) {
		return phases.Run(ctx, pd, phases.QueryAnalyzer{Query: query, RecentTopics: s.recentTopics(ctx, profile)}, turnID, traceID, profile)
	})
	if err != nil {
		return "", err
	}

	reflection, err := runPhase(ctx, s, traceID, models.PhaseReflection, func(ctx context.Context) (models.ReflectionDecision, error) {
		return phases.Run(ctx, pd, phases.Reflection{Query: query, Analysis: analysis}, turnID, traceID, profile)
	})
	if err != nil {
		return "", err
	}

	if !reflection.Proceed {
		// Fast path: jump straight to a fixed clarifying template,
		// skipping Context Gatherer through Validation entirely.
		return s.appendClarifying(turnID, reflection.ClarifyingQuestion)
	}

	digest, err := runPhase(ctx, s, traceID, models.PhaseContextGatherer, func(ctx context.Context) (phases.ContextDigest, error) {
		return phases.Run(ctx, pd, phases.ContextGatherer{
			Query:          query,
			Analysis:       analysis,
			RecentTopics:   s.recentTopics(ctx, profile),
			PriorCitations: s.priorCitations(ctx, profile, analysis.Topic),
		}, turnID, traceID, profile)
	})
	if err != nil {
		return "", err
	}

	plan, err := runPhase(ctx, s, traceID, models.PhasePlanner, func(ctx context.Context) (models.Plan, error) {
		return phases.Run(ctx, pd, phases.Planner{Query: query, Digest: digest}, turnID, traceID, profile)
	})
	if err != nil {
		return "", err
	}

	if plan.Route == models.RouteClarify {
		return s.appendClarifying(turnID, plan.Goal)
	}

	var ledger []models.EvidenceClaim
	if plan.Route == models.RouteExecutor {
		execResult, err := runPhase(ctx, s, traceID, models.PhaseExecutor, func(ctx context.Context) (phases.ExecutorResult, error) {
			return phases.RunExecutor(ctx, pd, s.deps.Router, s.deps.Interventions, turnID, traceID, profile, mode, plan, phases.ExecutorConfig{})
		})
		if err != nil {
			return "", err
		}
		ledger = execResult.Ledger

		if analysis.Intent == models.IntentCommerce {
			// The Coordinator's secondary verification pass runs for
			// commerce plans only; non-commerce plans skip it.
			coordResult, err := runPhase(ctx, s, traceID, models.PhaseCoordinator, func(ctx context.Context) (phases.CoordinatorResult, error) {
				return phases.Run(ctx, pd, phases.Coordinator{Plan: plan, Ledger: ledger}, turnID, traceID, profile)
			})
			if err != nil {
				return "", err
			}
			ledger = coordResult.Ledger
		}
	}

	synthesis, err := runPhase(ctx, s, traceID, models.PhaseSynthesis, func(ctx context.Context) (phases.SynthesisResult, error) {
		return phases.Run(ctx, pd, phases.Synthesis{Query: query, Ledger: ledger}, turnID, traceID, profile)
	})
	if err != nil {
		return "", err
	}

	validation, err := runPhase(ctx, s, traceID, models.PhaseValidation, func(ctx context.Context) (phases.ValidationResult, error) {
		return phases.Run(ctx, pd, phases.Validation{Query: query, Response: synthesis.Text}, turnID, traceID, profile)
	})
	if err != nil {
		return "", err
	}

	switch validation.Decision {
	case models.ValidationApprove:
		return synthesis.Text, nil
	case models.ValidationRevise:
		// REVISE reruns Synthesis once with the reason; the state machine
		// has no second Validation step after this.
		revised, err := runPhase(ctx, s, traceID, models.PhaseSynthesis, func(ctx context.Context) (phases.SynthesisResult, error) {
			return phases.Run(ctx, pd, phases.Synthesis{Query: query, Ledger: ledger, Reason: validation.Reason}, turnID, traceID, profile)
		})
		if err != nil {
			return "", err
		}
		return revised.Text, nil
	default: // models.ValidationRetry
		return "", perrors.NewPhase("scheduler.run", perrors.KindPhaseFailed, string(models.PhaseValidation), fmt.Errorf("%s", validation.Reason))
	}
}

func (s *Scheduler) appendClarifying(turnID models.TurnID, question string) (string, error) {
	result := phases.ClarifyingResponse(question)
	if err := s.deps.Store.AppendSection(turnID, models.SectionContext, phases.Synthesis{}.Format(result)); err != nil {
		return "", perrors.NewPhase("scheduler.run", perrors.KindInternal, string(models.PhaseSynthesis), err)
	}
	return result.Text, nil
}

func (s *Scheduler) recentTopics(ctx context.Context, profile string) []string {
	topics, err := s.deps.Index.RecentTopics(ctx, profile, 5)
	if err != nil {
		return nil
	}
	return topics
}

func (s *Scheduler) priorCitations(ctx context.Context, profile, topic string) []string {
	citations, err := s.deps.Index.PriorCitations(ctx, profile, topic, 5)
	if err != nil {
		return nil
	}
	return citations
}

// runPhase runs fn under phase's configured timeout budget.
// Exceeding the budget emits one warning event rather than
// killing the phase: only the parent ctx being cancelled can make fn
// return early, and only because fn itself observes ctx.Done() internally
// (every blocking call in the phase runners already does).
//
// The two observed-once channels (timerC, ctxDone) are nilled out after
// firing so the select loop blocks instead of spinning: a closed channel
// (which is what ctx.Done() becomes on cancellation) is always immediately
// selectable, so leaving it in the case set would busy-loop until fn returns.
func runPhase[T any](ctx context.Context, s *Scheduler, traceID string, phase models.PhaseName, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	budget := s.deps.Config.PhaseTimeout(string(phase))
	timer := time.NewTimer(budget)
	defer timer.Stop()

	timerC := timer.C
	ctxDone := ctx.Done()
	warned := false

	for {
		select {
		case r := <-done:
			if s.deps.Metrics != nil {
				outcome := "completed"
				if r.err != nil {
					outcome = "error"
				}
				s.deps.Metrics.RecordPhaseRun(string(phase), outcome, time.Since(start).Seconds())
			}
			return r.v, r.err
		case <-timerC:
			timerC = nil
			if !warned {
				warned = true
				_ = s.deps.Hub.Emit(traceID, models.Event{
					Type:      models.EventTypeProgress,
					Phase:     string(phase),
					Status:    models.EventActive,
					Reasoning: fmt.Sprintf("%s exceeded its %s budget; continuing", phase, budget),
				})
			}
		case <-ctxDone:
			ctxDone = nil
		}
	}
}

func phaseOf(err error) string {
	if e, ok := asPhaseError(err); ok {
		return e.Phase
	}
	return ""
}

func asPhaseError(err error) (*perrors.Error, bool) {
	type causer interface{ Unwrap() error }
	for err != nil {
		if pe, ok := err.(*perrors.Error); ok {
			return pe, true
		}
		c, ok := err.(causer)
		if !ok {
			return nil, false
		}
		err = c.Unwrap()
	}
	return nil, false
}

func humanReadableError(kind perrors.Kind, err error) string {
	switch kind {
	case perrors.KindCancelled:
		return "This turn was cancelled before it could finish."
	case perrors.KindTimeout:
		return "This turn timed out before it could finish."
	case perrors.KindPolicyDenied:
		return "This turn was blocked by the active policy: " + err.Error()
	case perrors.KindPhaseFailed:
		return "This turn could not be completed: " + err.Error()
	default:
		return "An internal error prevented this turn from completing."
	}
}
