package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pandora-run/pandora/internal/config"
	"github.com/pandora-run/pandora/internal/intervention"
	"github.com/pandora-run/pandora/internal/jobs"
	"github.com/pandora-run/pandora/internal/llm"
	"github.com/pandora-run/pandora/internal/policy"
	"github.com/pandora-run/pandora/internal/scheduler"
	"github.com/pandora-run/pandora/internal/toolrouter"
	"github.com/pandora-run/pandora/internal/tracehub"
	"github.com/pandora-run/pandora/internal/turndoc"
	"github.com/pandora-run/pandora/pkg/models"
)

// scriptedProvider returns canned replies in order. A nil entry blocks until
// the context is cancelled.
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

func happyPathScript() []*string {
	return []*string{
		reply(`{"intent":"informational","topic":"physics","keywords":["boiling point"]}`),
		reply(`{"proceed":true,"clarifying_question":""}`),
		reply(`{"digest":"","citations":[]}`),
		reply(`{"goal":"answer","pattern":"","approach":"direct","likely_tools":[],"route":"synthesis"}`),
		reply("Water boils at 100 °C at sea level."),
		reply(`{"decision":"approve","reason":""}`),
	}
}

type testGateway struct {
	server        *Server
	ts            *httptest.Server
	hub           *tracehub.Hub
	interventions *intervention.Broker
}

func newTestGateway(t *testing.T, softDeadline time.Duration, replies ...*string) *testGateway {
	t.Helper()
	store, err := turndoc.Open(t.TempDir(), "test", turndoc.NopIndex{})
	require.NoError(t, err)

	hub := tracehub.New(time.Minute)
	provider := &scriptedProvider{replies: replies}
	mgr := llm.NewManager(map[string]llm.Provider{"scripted": provider}, "scripted", nil, 4, time.Minute)
	broker := intervention.New(time.Minute)

	sched := scheduler.New(scheduler.Deps{
		Store:         store,
		Hub:           hub,
		LLM:           mgr,
		Router:        toolrouter.New(toolrouter.NewRegistry(), policy.New(nil), toolrouter.NewPermissionBroker(time.Second)),
		Interventions: broker,
		Config:        config.SchedulerConfig{MaxConcurrentTurns: 4},
	})

	registry := jobs.NewRegistry(jobs.NewMemoryStore(), hub)

	srv := New(
		config.ServerConfig{},
		config.TraceConfig{SoftDeadline: softDeadline, TraceTTL: time.Minute},
		Deps{Scheduler: sched, Hub: hub, Jobs: registry, Interventions: broker, Profile: "test"},
	)
	ts := httptest.NewServer(srv.withMetrics(srv.mux()))
	t.Cleanup(ts.Close)

	return &testGateway{server: srv, ts: ts, hub: hub, interventions: broker}
}

func postJSON(t *testing.T, url string, body any) map[string]any {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func chatBody(query string) map[string]any {
	return map[string]any{
		"model":    "pandora",
		"messages": []map[string]string{{"role": "user", "content": query}},
	}
}

func TestChatCompletionsSynchronous(t *testing.T) {
	gw := newTestGateway(t, 10*time.Second, happyPathScript()...)

	out := postJSON(t, gw.ts.URL+"/v1/chat/completions", chatBody("What is the boiling point of water at sea level?"))
	require.Equal(t, false, out["async"])
	require.NotEmpty(t, out["trace_id"])

	choices := out["choices"].([]any)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	require.Contains(t, msg["content"], "100")
}

func TestChatCompletionsAsyncPlaceholderAndPollRecovery(t *testing.T) {
	// The synthesis call blocks past the soft deadline, then the turn
	// completes after the client has already received the placeholder.
	script := []*string{
		reply(`{"intent":"informational","topic":"physics","keywords":[]}`),
		reply(`{"proceed":true,"clarifying_question":""}`),
		nil, // context gatherer blocks until cancel
	}
	gw := newTestGateway(t, 100*time.Millisecond, script...)

	out := postJSON(t, gw.ts.URL+"/v1/chat/completions", chatBody("boiling point?"))
	require.Equal(t, true, out["async"])
	traceID := out["trace_id"].(string)

	choices := out["choices"].([]any)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	require.Contains(t, msg["content"], "Research started")

	// Still pending while the phase is blocked.
	poll := getJSON(t, gw.ts.URL+"/v1/response/"+traceID)
	require.Equal(t, "pending", poll["status"])

	// Cancel by trace; the blocked phase observes ctx.Done() and the poll
	// becomes terminal with a human-readable notice.
	cancelOut := postJSON(t, gw.ts.URL+"/v1/thinking/"+traceID+"/cancel", map[string]any{})
	require.Equal(t, true, cancelOut["ok"])

	require.Eventually(t, func() bool {
		poll := getJSON(t, gw.ts.URL+"/v1/response/"+traceID)
		return poll["status"] == "complete"
	}, 5*time.Second, 50*time.Millisecond)

	poll = getJSON(t, gw.ts.URL+"/v1/response/"+traceID)
	require.NotEmpty(t, poll["response"])
}

func TestResponsePollNotFound(t *testing.T) {
	gw := newTestGateway(t, time.Second)
	out := getJSON(t, gw.ts.URL+"/v1/response/no-such-trace")
	require.Equal(t, "not_found", out["status"])
}

func TestThinkingStreamEndsWithComplete(t *testing.T) {
	gw := newTestGateway(t, 10*time.Second, happyPathScript()...)

	out := postJSON(t, gw.ts.URL+"/v1/chat/completions", chatBody("boiling point?"))
	traceID := out["trace_id"].(string)

	resp, err := http.Get(gw.ts.URL + "/v1/thinking/" + traceID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var sawThinking, sawComplete bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: thinking") {
			sawThinking = true
		}
		if strings.HasPrefix(line, "event: complete") {
			sawComplete = true
			break
		}
	}
	require.True(t, sawThinking, "stream should replay progress events")
	require.True(t, sawComplete, "stream should end with the complete event")
}

func TestJobStartStatusAndCancel(t *testing.T) {
	gw := newTestGateway(t, time.Second, happyPathScript()...)

	out := postJSON(t, gw.ts.URL+"/jobs/start", chatBody("boiling point?"))
	jobID := out["job_id"].(string)
	traceID := out["trace_id"].(string)
	require.NotEmpty(t, jobID)
	require.NotEmpty(t, traceID)

	require.Eventually(t, func() bool {
		st := getJSON(t, gw.ts.URL+"/jobs/"+jobID)
		return st["status"] == string(models.JobDone)
	}, 5*time.Second, 50*time.Millisecond)

	st := getJSON(t, gw.ts.URL+"/jobs/"+jobID)
	require.Contains(t, st["result"], "100")

	// Cancelling a finished job reports ok=false but stays terminal.
	cancelOut := postJSON(t, gw.ts.URL+"/jobs/"+jobID+"/cancel", map[string]any{})
	_, hasOK := cancelOut["ok"]
	require.True(t, hasOK)
}

func TestJobStatusUnknownID(t *testing.T) {
	gw := newTestGateway(t, time.Second)
	resp, err := http.Get(gw.ts.URL + "/jobs/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInterventionEndpoints(t *testing.T) {
	gw := newTestGateway(t, time.Second)

	id := gw.interventions.Request("trace-1", "https://example.com/checkout", models.BlockerCaptchaGeneric, "", "")

	out := getJSON(t, gw.ts.URL+"/interventions/pending")
	list := out["interventions"].([]any)
	require.Len(t, list, 1)

	resolveOut := postJSON(t, gw.ts.URL+"/interventions/"+id+"/resolve", map[string]any{"resolved": true})
	require.Equal(t, true, resolveOut["ok"])

	out = getJSON(t, gw.ts.URL+"/interventions/pending")
	require.Empty(t, out["interventions"])

	// Resolving twice is a no-op, not an error surface that breaks the UI.
	resolveOut = postJSON(t, gw.ts.URL+"/interventions/"+id+"/resolve", map[string]any{"resolved": false})
	require.Equal(t, true, resolveOut["ok"])
}

func TestRoutePattern(t *testing.T) {
	cases := map[string]string{
		"/v1/thinking/abc":        "/v1/thinking/:id",
		"/v1/thinking/abc/cancel": "/v1/thinking/:id",
		"/v1/response/abc":        "/v1/response/:id",
		"/jobs/j1":                "/jobs/:id",
		"/v1/chat/completions":    "/v1/chat/completions",
		"/healthz":                "/healthz",
	}
	for in, want := range cases {
		if got := routePattern(in); got != want {
			t.Errorf("routePattern(%q) = %q, want %q", in, got, want)
		}
	}
}
