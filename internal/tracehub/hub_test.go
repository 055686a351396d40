package tracehub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pandora-run/pandora/pkg/models"
)

func TestSetResponseHappensBeforeComplete(t *testing.T) {
	h := New(time.Minute)
	traceID := h.CreateTrace("alice")

	sub, err := h.Subscribe(traceID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, h.SetResponse(traceID, "final answer"))
	require.NoError(t, h.Complete(traceID, models.TraceStatusComplete, models.Event{Type: models.EventTypeComplete}))

	var sawComplete bool
	for e := range sub.Events {
		if e.Type == models.EventTypeComplete {
			sawComplete = true
		}
	}
	require.True(t, sawComplete)

	status, resp, found := h.GetResponse(traceID)
	require.True(t, found)
	require.Equal(t, models.TraceStatusComplete, status)
	require.Equal(t, "final answer", resp)
}

func TestSubscribeReplaysBufferedEventsThenLive(t *testing.T) {
	h := New(time.Minute)
	traceID := h.CreateTrace("alice")
	require.NoError(t, h.Emit(traceID, models.Event{Type: models.EventTypeThinking, Phase: "planner"}))

	sub, err := h.Subscribe(traceID)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, h.Emit(traceID, models.Event{Type: models.EventTypeThinking, Phase: "executor"}))
	require.NoError(t, h.Complete(traceID, models.TraceStatusComplete, models.Event{Type: models.EventTypeComplete}))

	var seqs []uint64
	for e := range sub.Events {
		seqs = append(seqs, e.Seq)
	}
	require.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestCancelTwiceIsNoOp(t *testing.T) {
	h := New(time.Minute)
	traceID := h.CreateTrace("alice")
	require.NoError(t, h.Cancel(traceID, "user requested"))
	require.NoError(t, h.Cancel(traceID, "user requested again"))

	trace, ok := h.Snapshot(traceID)
	require.True(t, ok)
	require.Equal(t, models.TraceStatusCancelled, trace.Status)
	// Only one terminal event should have been recorded.
	terminalCount := 0
	for _, e := range trace.Events {
		if e.Type == models.EventTypeComplete {
			terminalCount++
		}
	}
	require.Equal(t, 1, terminalCount)
}

func TestSweepRemovesExpiredTerminalTraces(t *testing.T) {
	h := New(10 * time.Millisecond)
	traceID := h.CreateTrace("alice")
	require.NoError(t, h.Complete(traceID, models.TraceStatusComplete, models.Event{Type: models.EventTypeComplete}))

	time.Sleep(20 * time.Millisecond)
	removed := h.Sweep(time.Now())
	require.Equal(t, 1, removed)

	_, _, found := h.GetResponse(traceID)
	require.False(t, found)
}

func TestTraceWithNoSubscribersStillCompletes(t *testing.T) {
	h := New(time.Minute)
	traceID := h.CreateTrace("alice")
	require.NoError(t, h.SetResponse(traceID, "done"))
	require.NoError(t, h.Complete(traceID, models.TraceStatusComplete, models.Event{Type: models.EventTypeComplete}))

	status, resp, found := h.GetResponse(traceID)
	require.True(t, found)
	require.Equal(t, models.TraceStatusComplete, status)
	require.Equal(t, "done", resp)
}
