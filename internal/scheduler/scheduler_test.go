package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pandora-run/pandora/internal/config"
	"github.com/pandora-run/pandora/internal/intervention"
	"github.com/pandora-run/pandora/internal/llm"
	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/internal/policy"
	"github.com/pandora-run/pandora/internal/toolrouter"
	"github.com/pandora-run/pandora/internal/tracehub"
	"github.com/pandora-run/pandora/internal/turndoc"
	"github.com/pandora-run/pandora/pkg/models"
)

// scriptedProvider returns canned replies in order. A nil entry blocks until
// the context is cancelled, for cancellation tests.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []*string
	calls   int
}

func reply(s string) *string { return &s }

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.CompletionChunk, error) {
	p.mu.Lock()
	if p.calls >= len(p.replies) {
		p.mu.Unlock()
		return nil, fmt.Errorf("script exhausted")
	}
	r := p.replies[p.calls]
	p.calls++
	p.mu.Unlock()

	if r == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ch := make(chan *llm.CompletionChunk, 2)
	ch <- &llm.CompletionChunk{Text: *r}
	ch <- &llm.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string        { return "scripted" }
func (p *scriptedProvider) Models() []llm.Model { return nil }

func newTestScheduler(t *testing.T, replies ...*string) (*Scheduler, *tracehub.Hub) {
	t.Helper()
	store, err := turndoc.Open(t.TempDir(), "test", turndoc.NopIndex{})
	require.NoError(t, err)

	hub := tracehub.New(time.Minute)
	provider := &scriptedProvider{replies: replies}
	mgr := llm.NewManager(map[string]llm.Provider{"scripted": provider}, "scripted", nil, 2, time.Minute)

	router := toolrouter.New(toolrouter.NewRegistry(), policy.New(nil), toolrouter.NewPermissionBroker(time.Second))
	broker := intervention.New(time.Minute)

	sched := New(Deps{
		Store:         store,
		Hub:           hub,
		LLM:           mgr,
		Router:        router,
		Interventions: broker,
		Config:        config.SchedulerConfig{MaxConcurrentTurns: 4},
	})
	return sched, hub
}

// happyPathScript covers the informational fast route: analyze, reflect,
// gather, plan (route synthesis), synthesize, validate (approve).
func happyPathScript() []*string {
	return []*string{
		reply(`{"intent":"informational","topic":"physics","keywords":["boiling point"]}`),
		reply(`{"proceed":true,"clarifying_question":""}`),
		reply(`{"digest":"no relevant prior turns","citations":[]}`),
		reply(`{"goal":"answer directly","pattern":"","approach":"use known constants","likely_tools":[],"route":"synthesis"}`),
		reply("Water boils at 100 °C (212 °F) at sea-level atmospheric pressure."),
		reply(`{"decision":"approve","reason":""}`),
	}
}

func TestRunTurnHappyPath(t *testing.T) {
	sched, hub := newTestScheduler(t, happyPathScript()...)
	traceID := sched.CreateTrace("test")

	text, err := sched.RunTurn(context.Background(), traceID, "test", models.ModeChat, "What is the boiling point of water at sea level?")
	require.NoError(t, err)
	require.Contains(t, text, "100")

	status, response, found := hub.GetResponse(traceID)
	require.True(t, found)
	require.Equal(t, models.TraceStatusComplete, status)
	require.Equal(t, text, response)

	// set_response happened before the terminal event: the response is
	// retrievable by poll even though the stream already completed.
	trace, ok := hub.Snapshot(traceID)
	require.True(t, ok)
	last := trace.Events[len(trace.Events)-1]
	require.Equal(t, models.EventTypeComplete, last.Type)
}

func TestRunTurnClarifyFastPath(t *testing.T) {
	sched, hub := newTestScheduler(t,
		reply(`{"intent":"clarify","topic":"","keywords":[]}`),
		reply(`{"proceed":false,"clarifying_question":"Which retailer did you mean?"}`),
	)
	traceID := sched.CreateTrace("test")

	text, err := sched.RunTurn(context.Background(), traceID, "test", models.ModeChat, "how much is it?")
	require.NoError(t, err)
	require.Contains(t, text, "Which retailer did you mean?")

	// The fast path skips Context Gatherer through Validation: only the two
	// first phases show up in the event stream.
	trace, _ := hub.Snapshot(traceID)
	for _, e := range trace.Events {
		require.NotEqual(t, string(models.PhaseSynthesis), e.Phase)
		require.NotEqual(t, string(models.PhaseValidation), e.Phase)
	}
}

func TestRunTurnReviseRerunsSynthesisOnce(t *testing.T) {
	script := []*string{
		reply(`{"intent":"informational","topic":"physics","keywords":[]}`),
		reply(`{"proceed":true,"clarifying_question":""}`),
		reply(`{"digest":"","citations":[]}`),
		reply(`{"goal":"answer","pattern":"","approach":"direct","likely_tools":[],"route":"synthesis"}`),
		reply("Water boils."),
		reply(`{"decision":"revise","reason":"too terse, state the temperature"}`),
		reply("Water boils at 100 °C at sea level."),
	}
	sched, _ := newTestScheduler(t, script...)
	traceID := sched.CreateTrace("test")

	text, err := sched.RunTurn(context.Background(), traceID, "test", models.ModeChat, "boiling point?")
	require.NoError(t, err)
	require.Contains(t, text, "100")
}

func TestRunTurnValidationRetryFailsTurn(t *testing.T) {
	script := []*string{
		reply(`{"intent":"informational","topic":"physics","keywords":[]}`),
		reply(`{"proceed":true,"clarifying_question":""}`),
		reply(`{"digest":"","citations":[]}`),
		reply(`{"goal":"answer","pattern":"","approach":"direct","likely_tools":[],"route":"synthesis"}`),
		reply("nonsense"),
		reply(`{"decision":"retry","reason":"evidence ledger empty and answer unsupported"}`),
	}
	sched, hub := newTestScheduler(t, script...)
	traceID := sched.CreateTrace("test")

	_, err := sched.RunTurn(context.Background(), traceID, "test", models.ModeChat, "boiling point?")
	require.Error(t, err)

	status, response, found := hub.GetResponse(traceID)
	require.True(t, found)
	require.Equal(t, models.TraceStatusError, status)
	require.NotEmpty(t, response, "error turns still deliver a human-readable response")
}

func TestRunTurnCancellation(t *testing.T) {
	// The third call (context gatherer) blocks until cancelled.
	script := []*string{
		reply(`{"intent":"informational","topic":"physics","keywords":[]}`),
		reply(`{"proceed":true,"clarifying_question":""}`),
		nil,
	}
	sched, hub := newTestScheduler(t, script...)
	traceID := sched.CreateTrace("test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := sched.RunTurn(ctx, traceID, "test", models.ModeChat, "boiling point?")
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunTurn did not return within one blocking op of cancellation")
	}

	status, _, found := hub.GetResponse(traceID)
	require.True(t, found)
	require.Equal(t, models.TraceStatusCancelled, status)
}

func TestCancelSkipsPendingInterventionsAndIsIdempotent(t *testing.T) {
	sched, hub := newTestScheduler(t)
	traceID := sched.CreateTrace("test")

	broker := sched.deps.Interventions
	id := broker.Request(traceID, "https://example.com", models.BlockerCaptchaGeneric, "", "")

	sched.Cancel(traceID, "user cancelled")
	sched.Cancel(traceID, "user cancelled again") // second cancel is a no-op

	iv, ok := broker.Get(id)
	require.True(t, ok)
	require.Equal(t, models.InterventionSkipped, iv.Status)

	status, _, found := hub.GetResponse(traceID)
	require.True(t, found)
	require.Equal(t, models.TraceStatusCancelled, status)
}

// routingProvider answers by phase, keyed off the system prompt, so
// concurrent turns can interleave calls freely.
type routingProvider struct{}

func (routingProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.CompletionChunk, error) {
	var text string
	switch {
	case strings.Contains(req.System, "query analyzer"):
		text = `{"intent":"informational","topic":"physics","keywords":[]}`
	case strings.Contains(req.System, "reflection"):
		text = `{"proceed":true,"clarifying_question":""}`
	case strings.Contains(req.System, "context gatherer"):
		text = `{"digest":"","citations":[]}`
	case strings.Contains(req.System, "planner"):
		text = `{"goal":"answer","pattern":"","approach":"direct","likely_tools":[],"route":"synthesis"}`
	case strings.Contains(req.System, "synthesis"):
		text = "Water boils at 100 °C at sea level."
	case strings.Contains(req.System, "validation"):
		text = `{"decision":"approve","reason":""}`
	default:
		return nil, fmt.Errorf("unrecognized prompt")
	}
	ch := make(chan *llm.CompletionChunk, 2)
	ch <- &llm.CompletionChunk{Text: text}
	ch <- &llm.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (routingProvider) Name() string        { return "routing" }
func (routingProvider) Models() []llm.Model { return nil }

func TestConcurrentTurnsGetDistinctTurnIDs(t *testing.T) {
	// Two full happy-path runs against one scheduler; the allocator must
	// hand out distinct ids and the turns must not cross-talk.
	store, err := turndoc.Open(t.TempDir(), "test", turndoc.NopIndex{})
	require.NoError(t, err)
	hub := tracehub.New(time.Minute)
	mgr := llm.NewManager(map[string]llm.Provider{"routing": routingProvider{}}, "routing", nil, 4, time.Minute)

	sched := New(Deps{
		Store:         store,
		Hub:           hub,
		LLM:           mgr,
		Router:        toolrouter.New(toolrouter.NewRegistry(), policy.New(nil), toolrouter.NewPermissionBroker(time.Second)),
		Interventions: intervention.New(time.Minute),
		Config:        config.SchedulerConfig{MaxConcurrentTurns: 4},
	})

	var wg sync.WaitGroup
	results := make([]string, 2)
	traceIDs := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			traceID := sched.CreateTrace("test")
			traceIDs[i] = traceID
			text, err := sched.RunTurn(context.Background(), traceID, "test", models.ModeChat, "boiling point?")
			if err != nil {
				results[i] = "error: " + err.Error()
				return
			}
			results[i] = text
		}(i)
	}
	wg.Wait()

	require.NotEqual(t, traceIDs[0], traceIDs[1])
	for i, r := range results {
		if strings.HasPrefix(r, "error:") {
			t.Fatalf("turn %d failed: %s", i, r)
		}
	}
}

func TestMaxConcurrentTurnsBounds(t *testing.T) {
	store, err := turndoc.Open(t.TempDir(), "test", turndoc.NopIndex{})
	require.NoError(t, err)
	hub := tracehub.New(time.Minute)

	// Both turns block on their first LLM call until released.
	provider := &scriptedProvider{replies: []*string{nil, nil}}
	mgr := llm.NewManager(map[string]llm.Provider{"scripted": provider}, "scripted", nil, 4, time.Minute)

	sched := New(Deps{
		Store:         store,
		Hub:           hub,
		LLM:           mgr,
		Router:        toolrouter.New(toolrouter.NewRegistry(), policy.New(nil), toolrouter.NewPermissionBroker(time.Second)),
		Interventions: intervention.New(time.Minute),
		Config:        config.SchedulerConfig{MaxConcurrentTurns: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			traceID := sched.CreateTrace("test")
			started <- struct{}{}
			_, _ = sched.RunTurn(ctx, traceID, "test", models.ModeChat, "q")
		}()
	}
	<-started
	<-started

	// With a cap of one, only one turn can be holding an LLM call.
	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return provider.calls == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	provider.mu.Lock()
	calls := provider.calls
	provider.mu.Unlock()
	require.Equal(t, 1, calls, "second turn must wait for the semaphore")
}

func TestPhaseErrorKindSurfaces(t *testing.T) {
	// Both attempts of the first phase return unparseable output.
	sched, _ := newTestScheduler(t, reply("garbage"), reply("more garbage"))
	traceID := sched.CreateTrace("test")

	_, err := sched.RunTurn(context.Background(), traceID, "test", models.ModeChat, "q")
	require.Error(t, err)
	require.Equal(t, perrors.KindPhaseFailed, perrors.KindOf(err))
}
