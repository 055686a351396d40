package config

import "time"

// SchedulerConfig configures the Pipeline Scheduler and the shared
// resources it bounds.
type SchedulerConfig struct {
	// MaxConcurrentTurns bounds how many schedulers one process hosts.
	MaxConcurrentTurns int `yaml:"max_concurrent_turns"`

	// BrowserPoolSize bounds concurrent browser sessions used by research
	// candidates (default 2).
	BrowserPoolSize int `yaml:"browser_pool_size"`

	// PhaseTimeouts maps each of the eight phase names to its budget.
	// Missing keys fall back to DefaultPhaseTimeout (30s) or, for "executor",
	// DefaultExecutorTimeout (30m).
	PhaseTimeouts map[string]time.Duration `yaml:"phase_timeouts"`
}

// DefaultPhaseTimeout is the non-research phase budget.
const DefaultPhaseTimeout = 30 * time.Second

// DefaultExecutorTimeout is the Executor/Coordinator research phase budget.
const DefaultExecutorTimeout = 30 * time.Minute

// PhaseTimeout returns the configured budget for phase, falling back to the
// built-in defaults when unset.
func (c SchedulerConfig) PhaseTimeout(phase string) time.Duration {
	if d, ok := c.PhaseTimeouts[phase]; ok && d > 0 {
		return d
	}
	if phase == "executor" || phase == "coordinator" {
		return DefaultExecutorTimeout
	}
	return DefaultPhaseTimeout
}

// TraceConfig configures the Trace Hub, Job Registry, and Intervention/
// Permission brokers' retention windows.
type TraceConfig struct {
	// TraceTTL is trace_ttl_seconds (default 600s).
	TraceTTL time.Duration `yaml:"trace_ttl_seconds"`

	// JobSweepInterval is job_sweep_interval_seconds.
	JobSweepInterval time.Duration `yaml:"job_sweep_interval_seconds"`

	// InterventionTTL is intervention_ttl_seconds (default 900s).
	InterventionTTL time.Duration `yaml:"intervention_ttl_seconds"`

	// PermissionTTL is permission_ttl_seconds (default 600s).
	PermissionTTL time.Duration `yaml:"permission_ttl_seconds"`

	// SoftDeadline is the client-configurable soft deadline (default 10s)
	// after which POST /v1/chat/completions switches from synchronous to
	// asynchronous response delivery.
	SoftDeadline time.Duration `yaml:"soft_deadline"`
}
