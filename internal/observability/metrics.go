package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide Prometheus registry for the engine: phase
// runs, tool dispatches, LLM calls, and the live gauges an operator watches
// to size max_concurrent_turns.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer func() {
//	    metrics.RecordPhaseRun("planner", "completed", time.Since(start).Seconds())
//	}()
type Metrics struct {
	// PhaseRuns counts Phase Runner completions by phase and outcome
	// (completed|error).
	PhaseRuns *prometheus.CounterVec

	// PhaseRunDuration measures one Run[T] call, phase started to
	// completed/error.
	PhaseRunDuration *prometheus.HistogramVec

	// LLMRequestDuration measures one Manager.Call, provider+model labeled.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM calls by provider, model, and status.
	LLMRequestCounter *prometheus.CounterVec

	// ToolExecutionCounter counts Tool Router dispatches by tool name and
	// result status (ok|error|blocked).
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures one Router.Execute call.
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks perrors.Kind occurrences by component.
	ErrorCounter *prometheus.CounterVec

	// ActiveTurns is the number of turns currently held by the Scheduler's
	// semaphore (max_concurrent_turns).
	ActiveTurns prometheus.Gauge

	// ActiveJobs is the number of non-terminal jobs in the Job Registry.
	ActiveJobs prometheus.Gauge

	// PendingInterventions is the number of unresolved Interventions.
	PendingInterventions prometheus.Gauge

	// HTTPRequestDuration measures the Streaming Gateway's request latency.
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts gateway requests by method, path, status.
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus collectors with the
// default registry; promhttp.Handler() at /metrics serves them as-is.
func NewMetrics() *Metrics {
	return &Metrics{
		PhaseRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pandora_phase_runs_total",
				Help: "Total Phase Runner completions by phase and outcome",
			},
			[]string{"phase", "outcome"},
		),

		PhaseRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pandora_phase_run_duration_seconds",
				Help:    "Duration of one Phase Runner execution",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pandora_llm_request_duration_seconds",
				Help:    "Duration of LLM provider calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pandora_llm_requests_total",
				Help: "Total LLM provider calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pandora_tool_executions_total",
				Help: "Total Tool Router dispatches by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pandora_tool_execution_duration_seconds",
				Help:    "Duration of Tool Router dispatches",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pandora_errors_total",
				Help: "Total errors by component and perrors.Kind",
			},
			[]string{"component", "kind"},
		),

		ActiveTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pandora_active_turns",
				Help: "Turns currently held by the Scheduler's concurrency semaphore",
			},
		),

		ActiveJobs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pandora_active_jobs",
				Help: "Non-terminal jobs in the Job Registry",
			},
		),

		PendingInterventions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pandora_pending_interventions",
				Help: "Unresolved Interventions in the Intervention Broker",
			},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pandora_http_request_duration_seconds",
				Help:    "Duration of Streaming Gateway HTTP requests",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pandora_http_requests_total",
				Help: "Total Streaming Gateway HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// RecordPhaseRun records one Phase Runner completion.
func (m *Metrics) RecordPhaseRun(phase, outcome string, durationSeconds float64) {
	m.PhaseRuns.WithLabelValues(phase, outcome).Inc()
	m.PhaseRunDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordLLMRequest records one LLM provider call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordToolExecution records one Tool Router dispatch.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a component and error kind.
func (m *Metrics) RecordError(component, kind string) {
	m.ErrorCounter.WithLabelValues(component, kind).Inc()
}

// RecordHTTPRequest records one gateway HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// TurnStarted increments the active-turn gauge.
func (m *Metrics) TurnStarted() { m.ActiveTurns.Inc() }

// TurnFinished decrements the active-turn gauge.
func (m *Metrics) TurnFinished() { m.ActiveTurns.Dec() }

// SetActiveJobs sets the active-job gauge.
func (m *Metrics) SetActiveJobs(n float64) { m.ActiveJobs.Set(n) }

// SetPendingInterventions sets the pending-intervention gauge.
func (m *Metrics) SetPendingInterventions(n float64) { m.PendingInterventions.Set(n) }
