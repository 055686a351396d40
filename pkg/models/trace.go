package models

import "time"

// TraceStatus is the lifecycle status of a Trace Hub record.
type TraceStatus string

const (
	TraceStatusPending  TraceStatus = "pending"
	TraceStatusRunning  TraceStatus = "running"
	TraceStatusComplete TraceStatus = "complete"
	TraceStatusCancelled TraceStatus = "cancelled"
	TraceStatusError    TraceStatus = "error"
)

// IsTerminal reports whether further events will never be appended.
func (s TraceStatus) IsTerminal() bool {
	switch s {
	case TraceStatusComplete, TraceStatusCancelled, TraceStatusError:
		return true
	default:
		return false
	}
}

// EventStatus is the per-event status enum.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
	EventError     EventStatus = "error"
)

// EventType enumerates the SSE/WS wire event names.
type EventType string

const (
	EventTypePing                EventType = "ping"
	EventTypeThinking            EventType = "thinking"
	EventTypeComplete            EventType = "complete"
	EventTypeResearchStarted     EventType = "research_started"
	EventTypeStrategySelected    EventType = "strategy_selected"
	EventTypeSearchStarted       EventType = "search_started"
	EventTypeCandidateChecking   EventType = "candidate_checking"
	EventTypeFetchComplete       EventType = "fetch_complete"
	EventTypeBlockerDetected     EventType = "blocker_detected"
	EventTypeInterventionNeeded  EventType = "intervention_needed"
	EventTypeInterventionResolved EventType = "intervention_resolved"
	EventTypeCandidateAccepted   EventType = "candidate_accepted"
	EventTypeCandidateRejected   EventType = "candidate_rejected"
	EventTypeProgress            EventType = "progress"
	EventTypePhaseStarted        EventType = "phase_started"
	EventTypePhaseComplete       EventType = "phase_complete"
	EventTypeSearchComplete      EventType = "search_complete"
	EventTypeResearchComplete    EventType = "research_complete"
)

// Event is one totally-ordered (by Seq) progress record for a trace.
type Event struct {
	Seq        uint64                 `json:"seq"`
	Type       EventType              `json:"type"`
	Phase      string                 `json:"phase,omitempty"`
	Status     EventStatus            `json:"status,omitempty"`
	Reasoning  string                 `json:"reasoning,omitempty"`
	Confidence *float64               `json:"confidence,omitempty"`
	DurationMS int64                  `json:"duration_ms,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Time       time.Time              `json:"time"`
}

// Trace is the Trace Hub's per-attempt record.
type Trace struct {
	TraceID     string
	Profile     string
	TurnID      TurnID
	CreatedAt   time.Time
	LastEventAt time.Time
	Phase       string
	Status      TraceStatus
	Events      []Event
	Response    *string
}
