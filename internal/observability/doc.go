// Package observability provides metrics, structured logging, distributed
// tracing, and an event timeline for the turn orchestration engine.
//
// # Overview
//
// The package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// plus an in-memory event timeline for replaying a single pipeline run.
//
// # Metrics
//
// Metrics are implemented with the Prometheus client libraries and track
// phase runs, LLM request latency, tool execution, error rates, HTTP
// traffic, and the active turn/job/intervention gauges:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	// ... run a phase ...
//	metrics.RecordPhaseRun("synthesis", "completed", time.Since(start).Seconds())
//
//	// ... make an LLM request ...
//	metrics.RecordLLMRequest("anthropic", model, "success", elapsed.Seconds())
//
//	// ... execute a tool ...
//	metrics.RecordToolExecution("web_search", "success", elapsed.Seconds())
//
// # Logging
//
// Logging is built on Go's slog with automatic correlation-ID extraction
// from context and redaction of API keys, passwords, and tokens:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	ctx = observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddTurnID(ctx, turnID)
//	ctx = observability.AddProfile(ctx, profile)
//
//	logger.Info(ctx, "phase completed",
//	    "phase", "executor",
//	    "duration_ms", elapsed.Milliseconds(),
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry with an OTLP gRPC exporter. When
// no endpoint is configured, a no-op tracer is returned so call sites never
// need to branch:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:  "pandora",
//	    Endpoint:     "localhost:4317",
//	    SamplingRate: 0.1,
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TracePhaseRun(ctx, "executor", "mind", traceID)
//	defer span.End()
//
// # Event timeline
//
// EventRecorder captures run, phase, tool, LLM, and intervention events into
// an EventStore, correlated by the IDs carried in context. BuildTimeline and
// FormatTimeline turn a run's events into a human-readable debugging view.
//
// # Context propagation
//
// All components share one set of context keys (request, turn, profile,
// mode, run, tool call, job, phase, intervention), so a single ctx threads
// correlation through logs, spans, and timeline events alike.
//
// # Redaction
//
// The logging component automatically redacts API keys (Anthropic, OpenAI,
// generic), passwords and secrets, JWT and bearer tokens, and any custom
// patterns supplied via LogConfig.RedactPatterns. Sensitive map keys
// (password, secret, api_key, token, auth, private_key) are redacted by
// name as well.
package observability
