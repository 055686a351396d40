// Diagnostic event emission: a lightweight, opt-in firehose of engine
// internals (turn states, phase attempts, LLM usage, queue depth) for
// debugging tools that want more than the metrics endpoint exposes.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// DiagnosticTurnState represents the coarse state of a turn.
type DiagnosticTurnState string

const (
	TurnStateIdle       DiagnosticTurnState = "idle"
	TurnStateProcessing DiagnosticTurnState = "processing"
	TurnStateWaiting    DiagnosticTurnState = "waiting"
)

// DiagnosticEventType identifies the type of diagnostic event.
type DiagnosticEventType string

const (
	EventTypeModelUsage          DiagnosticEventType = "model.usage"
	EventTypeTurnState           DiagnosticEventType = "turn.state"
	EventTypeTurnStuck           DiagnosticEventType = "turn.stuck"
	EventTypePhaseAttempt        DiagnosticEventType = "phase.attempt"
	EventTypeQueueDepth          DiagnosticEventType = "queue.depth"
	EventTypeDiagnosticHeartbeat DiagnosticEventType = "diagnostic.heartbeat"
)

// DiagnosticEvent is the base event structure.
type DiagnosticEvent struct {
	Type DiagnosticEventType `json:"type"`
	Seq  int64               `json:"seq"`
	Ts   int64               `json:"ts"`
}

// ModelUsageEvent tracks token usage per LLM call.
type ModelUsageEvent struct {
	DiagnosticEvent
	TraceID  string       `json:"trace_id,omitempty"`
	Provider string       `json:"provider"`
	Model    string       `json:"model"`
	Usage    UsageDetails `json:"usage"`
}

// UsageDetails carries token counts for one model call.
type UsageDetails struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// TurnStateEvent tracks turn state changes.
type TurnStateEvent struct {
	DiagnosticEvent
	TraceID   string              `json:"trace_id,omitempty"`
	TurnID    string              `json:"turn_id,omitempty"`
	PrevState DiagnosticTurnState `json:"prev_state,omitempty"`
	State     DiagnosticTurnState `json:"state"`
}

// TurnStuckEvent marks a turn that has not progressed past its budget.
type TurnStuckEvent struct {
	DiagnosticEvent
	TraceID    string              `json:"trace_id,omitempty"`
	Phase      string              `json:"phase,omitempty"`
	State      DiagnosticTurnState `json:"state"`
	StuckForMS int64               `json:"stuck_for_ms"`
}

// PhaseAttemptEvent tracks phase runs, including the parse-failure retry.
type PhaseAttemptEvent struct {
	DiagnosticEvent
	TraceID string `json:"trace_id,omitempty"`
	Phase   string `json:"phase"`
	Attempt int    `json:"attempt"`
}

// QueueDepthEvent tracks pending work counts.
type QueueDepthEvent struct {
	DiagnosticEvent
	ActiveTurns          int `json:"active_turns"`
	QueuedJobs           int `json:"queued_jobs"`
	PendingInterventions int `json:"pending_interventions"`
}

// DiagnosticHeartbeatEvent is the periodic liveness event.
type DiagnosticHeartbeatEvent struct {
	DiagnosticEvent
	Active  int `json:"active"`
	Waiting int `json:"waiting"`
	Queued  int `json:"queued"`
}

// DiagnosticEventPayload is a union type for all diagnostic events.
type DiagnosticEventPayload interface {
	EventType() DiagnosticEventType
	Sequence() int64
	Timestamp() int64
}

func (e *DiagnosticEvent) EventType() DiagnosticEventType { return e.Type }
func (e *DiagnosticEvent) Sequence() int64                { return e.Seq }
func (e *DiagnosticEvent) Timestamp() int64               { return e.Ts }

// DiagnosticListener receives diagnostic events.
type DiagnosticListener func(event DiagnosticEventPayload)

// DiagnosticEmitter manages diagnostic event emission.
type DiagnosticEmitter struct {
	mu        sync.RWMutex
	seq       int64
	enabled   bool
	listeners []DiagnosticListener
}

var globalEmitter = &DiagnosticEmitter{}

// SetDiagnosticsEnabled enables or disables diagnostic events.
func SetDiagnosticsEnabled(enabled bool) {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.enabled = enabled
}

// IsDiagnosticsEnabled returns whether diagnostics are enabled.
func IsDiagnosticsEnabled() bool {
	globalEmitter.mu.RLock()
	defer globalEmitter.mu.RUnlock()
	return globalEmitter.enabled
}

// OnDiagnosticEvent registers a listener and returns an unsubscribe func.
func OnDiagnosticEvent(listener DiagnosticListener) func() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.listeners = append(globalEmitter.listeners, listener)

	idx := len(globalEmitter.listeners) - 1
	return func() {
		globalEmitter.mu.Lock()
		defer globalEmitter.mu.Unlock()
		if idx < len(globalEmitter.listeners) {
			globalEmitter.listeners[idx] = nil
		}
	}
}

func nextSeq() int64 {
	return atomic.AddInt64(&globalEmitter.seq, 1)
}

func emit(event DiagnosticEventPayload) {
	globalEmitter.mu.RLock()
	if !globalEmitter.enabled {
		globalEmitter.mu.RUnlock()
		return
	}
	listeners := make([]DiagnosticListener, len(globalEmitter.listeners))
	copy(listeners, globalEmitter.listeners)
	globalEmitter.mu.RUnlock()

	for _, listener := range listeners {
		if listener == nil {
			continue
		}
		func() {
			defer func() {
				_ = recover() // a broken listener must not take the engine down
			}()
			listener(event)
		}()
	}
}

// EmitModelUsage emits a model usage event.
func EmitModelUsage(e *ModelUsageEvent) {
	e.Type = EventTypeModelUsage
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnState emits a turn state event.
func EmitTurnState(e *TurnStateEvent) {
	e.Type = EventTypeTurnState
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnStuck emits a turn stuck event.
func EmitTurnStuck(e *TurnStuckEvent) {
	e.Type = EventTypeTurnStuck
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitPhaseAttempt emits a phase attempt event.
func EmitPhaseAttempt(e *PhaseAttemptEvent) {
	e.Type = EventTypePhaseAttempt
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitQueueDepth emits a queue depth event.
func EmitQueueDepth(e *QueueDepthEvent) {
	e.Type = EventTypeQueueDepth
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDiagnosticHeartbeat emits a diagnostic heartbeat event.
func EmitDiagnosticHeartbeat(e *DiagnosticHeartbeatEvent) {
	e.Type = EventTypeDiagnosticHeartbeat
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// ResetDiagnosticsForTest resets diagnostic state for testing.
func ResetDiagnosticsForTest() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	atomic.StoreInt64(&globalEmitter.seq, 0)
	globalEmitter.listeners = nil
}
