package phases

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pandora-run/pandora/internal/agent"
	"github.com/pandora-run/pandora/internal/intervention"
	"github.com/pandora-run/pandora/internal/policy"
	"github.com/pandora-run/pandora/internal/toolrouter"
	"github.com/pandora-run/pandora/pkg/models"
)

// fetchStub plays the web_fetch tool: its replies are scripted the same way
// the provider's are, so a test can serve a blocker page first and the real
// content after the intervention resolves.
type fetchStub struct {
	replies []agent.ToolResult
	calls   atomic.Int32
}

func (f *fetchStub) Name() string        { return "web_fetch" }
func (f *fetchStub) Description() string { return "fetch a page" }
func (f *fetchStub) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`)
}

func (f *fetchStub) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	n := int(f.calls.Add(1)) - 1
	if n >= len(f.replies) {
		n = len(f.replies) - 1
	}
	r := f.replies[n]
	return &r, nil
}

func newExecutorRouter(tool agent.Tool) *toolrouter.Router {
	registry := toolrouter.NewRegistry(tool)
	engine := policy.New(nil)
	return toolrouter.New(registry, engine, toolrouter.NewPermissionBroker(time.Second))
}

func TestRunExecutorBuildsLedger(t *testing.T) {
	env := newTestEnv(t,
		// Round 1: plan one fetch.
		`{"calls":[{"name":"web_fetch","input":{"url":"https://example.com/p"}}],"done":false}`,
		// Claim extraction for the fetched content.
		`{"claims":[{"claim":"price is $99","source_type":"retailer","confidence":0.9,"quote":"$99.00"}]}`,
		// Round 2: done.
		`{"calls":[],"done":true}`,
	)
	router := newExecutorRouter(&fetchStub{replies: []agent.ToolResult{{Content: "product page, $99.00"}}})
	broker := intervention.New(time.Minute)

	result, err := RunExecutor(context.Background(), env.deps, router, broker,
		env.turnID, env.traceID, "test", models.ModeChat,
		models.Plan{Goal: "find price", Route: models.RouteExecutor},
		ExecutorConfig{MaxCandidates: 3},
	)
	require.NoError(t, err)
	require.Len(t, result.Ledger, 1)
	require.Equal(t, "https://example.com/p", result.Ledger[0].URL)
	require.Equal(t, models.VerificationPhase1Only, result.Ledger[0].Verification)

	// The ledger lands in context.md for Synthesis to cite from.
	text, err := env.store.ReadSection(env.turnID, models.SectionContext)
	require.NoError(t, err)
	require.Contains(t, text, "price is $99")

	trace, ok := env.hub.Snapshot(env.traceID)
	require.True(t, ok)
	var types []models.EventType
	for _, e := range trace.Events {
		types = append(types, e.Type)
	}
	require.Contains(t, types, models.EventTypeResearchStarted)
	require.Contains(t, types, models.EventTypeCandidateAccepted)
	require.Contains(t, types, models.EventTypeResearchComplete)
}

func TestRunExecutorSuspendsOnBlockerAndResumesAfterResolve(t *testing.T) {
	env := newTestEnv(t,
		`{"calls":[{"name":"web_fetch","input":{"url":"https://example.com/blocked"}}],"done":false}`,
		`{"claims":[{"claim":"price is $79","source_type":"retailer","confidence":0.9}]}`,
		`{"calls":[],"done":true}`,
	)
	tool := &fetchStub{replies: []agent.ToolResult{
		{Content: "please solve this captcha", IsError: true},
		{Content: "product page, $79.00"},
	}}
	router := newExecutorRouter(tool)
	broker := intervention.New(time.Minute)

	// Resolve the intervention as soon as it shows up.
	go func() {
		for i := 0; i < 200; i++ {
			if pending := broker.ListPending(); len(pending) > 0 {
				_ = broker.Resolve(pending[0].InterventionID, true)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, err := RunExecutor(context.Background(), env.deps, router, broker,
		env.turnID, env.traceID, "test", models.ModeChat,
		models.Plan{Goal: "find price"}, ExecutorConfig{MaxCandidates: 2},
	)
	require.NoError(t, err)
	require.Len(t, result.Ledger, 1)
	require.Equal(t, int32(2), tool.calls.Load(), "tool should be retried after resolution")

	trace, ok := env.hub.Snapshot(env.traceID)
	require.True(t, ok)
	var sawBlocker, sawNeeded bool
	for _, e := range trace.Events {
		switch e.Type {
		case models.EventTypeBlockerDetected:
			sawBlocker = true
		case models.EventTypeInterventionNeeded:
			sawNeeded = true
		}
	}
	require.True(t, sawBlocker)
	require.True(t, sawNeeded)
}

func TestRunExecutorSkipsCandidateWhenInterventionSkipped(t *testing.T) {
	env := newTestEnv(t,
		`{"calls":[{"name":"web_fetch","input":{"url":"https://example.com/blocked"}}],"done":false}`,
		`{"calls":[],"done":true}`,
	)
	tool := &fetchStub{replies: []agent.ToolResult{
		{Content: "captcha required", IsError: true},
	}}
	router := newExecutorRouter(tool)
	broker := intervention.New(time.Minute)

	go func() {
		for i := 0; i < 200; i++ {
			if pending := broker.ListPending(); len(pending) > 0 {
				_ = broker.Resolve(pending[0].InterventionID, false)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, err := RunExecutor(context.Background(), env.deps, router, broker,
		env.turnID, env.traceID, "test", models.ModeChat,
		models.Plan{Goal: "find price"}, ExecutorConfig{MaxCandidates: 2},
	)
	require.NoError(t, err)
	require.Empty(t, result.Ledger)

	trace, _ := env.hub.Snapshot(env.traceID)
	var sawRejected bool
	for _, e := range trace.Events {
		if e.Type == models.EventTypeCandidateRejected {
			sawRejected = true
		}
	}
	require.True(t, sawRejected)
}
