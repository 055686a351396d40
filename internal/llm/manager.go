package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/pandora-run/pandora/internal/infra"
	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/pkg/models"
)

// Manager is the shared, bounded-concurrency LLM endpoint every Phase Runner
// calls through; a semaphore caps simultaneous calls. It owns the provider
// fallback chain, the per-provider circuit breakers, and the default call
// timeout (120s).
type Manager struct {
	providers   map[string]Provider
	defaultName string
	fallback    []string
	sem         *infra.Semaphore
	callTimeout time.Duration
	recorder    CallRecorder
	breakers    map[string]*infra.CircuitBreaker
}

// CallRecorder observes completed LLM calls; *observability.Metrics
// satisfies it.
type CallRecorder interface {
	RecordLLMRequest(provider, model, status string, durationSeconds float64)
}

// NewManager builds a Manager. concurrency is llm_concurrency (default 4).
func NewManager(providers map[string]Provider, defaultName string, fallback []string, concurrency int64, callTimeout time.Duration) *Manager {
	if concurrency <= 0 {
		concurrency = 4
	}
	if callTimeout <= 0 {
		callTimeout = 120 * time.Second
	}
	breakers := make(map[string]*infra.CircuitBreaker, len(providers))
	for name := range providers {
		breakers[name] = infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
			Name:             "llm:" + name,
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
		})
	}
	return &Manager{
		providers:   providers,
		defaultName: defaultName,
		fallback:    fallback,
		sem:         infra.NewSemaphore(concurrency),
		callTimeout: callTimeout,
		breakers:    breakers,
	}
}

// Call issues one request at the given role's temperature, acquiring a
// concurrency permit and bounding the call to callTimeout. It tries the
// default provider first, then the fallback_chain in order, but only for
// transport-level errors; a format/parse failure is the caller's (phase's)
// responsibility to retry once.
func (m *Manager) Call(ctx context.Context, role models.Role, system string, messages []CompletionMessage) (text string, providerUsed string, err error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return "", "", perrors.New("llm.call", perrors.KindCancelled, err)
	}
	defer m.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	start := time.Now()
	record := func(provider, status string) {
		if m.recorder != nil {
			m.recorder.RecordLLMRequest(provider, "default", status, time.Since(start).Seconds())
		}
	}

	req := &CompletionRequest{
		System:      system,
		Messages:    messages,
		Temperature: role.Temperature(),
	}

	names := append([]string{m.defaultName}, m.fallback...)
	var lastErr error
	for _, name := range names {
		provider, ok := m.providers[name]
		if !ok {
			continue
		}
		// A provider that keeps failing trips its breaker and is skipped
		// until the breaker half-opens, so the fallback chain takes over
		// immediately instead of timing out on every call.
		text, callErr := infra.ExecuteWithResult(m.breakers[name], callCtx, func(ctx context.Context) (string, error) {
			chunks, err := provider.Complete(ctx, req)
			if err != nil {
				return "", err
			}
			text, _, _, err := Collect(chunks)
			return text, err
		})
		if callErr != nil {
			lastErr = callErr
			continue
		}
		record(provider.Name(), "success")
		return text, provider.Name(), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no llm provider configured")
	}
	record(m.defaultName, "error")
	return "", "", perrors.New("llm.call", perrors.KindInternal, lastErr)
}

// SetRecorder attaches a call recorder; safe to call only before first use.
func (m *Manager) SetRecorder(r CallRecorder) { m.recorder = r }
