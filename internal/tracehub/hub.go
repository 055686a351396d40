// Package tracehub implements the Trace Hub: an in-memory, process-wide
// registry of trace progress, bridging a pipeline producer and SSE/WS/poll
// consumers across unreliable HTTP transports.
//
// The bounded-buffer-plus-fanout shape mirrors this codebase's own
// backpressure-aware event sink: a small ring of retained events for replay,
// a set of live subscriber channels, and a non-blocking broadcast that drops
// low-priority events under pressure rather than stalling the producer.
package tracehub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/pkg/models"
)

// MaxBufferedEvents bounds each trace's replay buffer to the last 256 events.
const MaxBufferedEvents = 256

// subscriberBuffer is how many events a slow subscriber can queue before
// being treated as disconnected (oldest events are never replayed twice, so
// dropping here only affects a single slow consumer, never the trace state).
const subscriberBuffer = 64

type subscriber struct {
	ch     chan models.Event
	closed chan struct{}
	once   sync.Once
}

func (s *subscriber) send(e models.Event) {
	select {
	case s.ch <- e:
	default:
		// Slow consumer; drop rather than block the emitter. The subscriber
		// can always recover the final state via GetResponse/poll.
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.closed) })
}

type traceRecord struct {
	mu          sync.Mutex
	trace       models.Trace
	subscribers map[int]*subscriber
	nextSubID   int
}

// Hub is the Trace Hub.
type Hub struct {
	mu     sync.RWMutex
	traces map[string]*traceRecord
	ttl    time.Duration
}

// New creates a Hub. ttl is trace_ttl_seconds (default 10 minutes); a
// completed trace stays retrievable for at least that long.
func New(ttl time.Duration) *Hub {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Hub{traces: make(map[string]*traceRecord), ttl: ttl}
}

// CreateTrace allocates a new trace_id for a profile.
func (h *Hub) CreateTrace(profile string) string {
	id := uuid.NewString()
	now := time.Now()
	rec := &traceRecord{
		trace: models.Trace{
			TraceID:     id,
			Profile:     profile,
			CreatedAt:   now,
			LastEventAt: now,
			Status:      models.TraceStatusPending,
		},
		subscribers: make(map[int]*subscriber),
	}
	h.mu.Lock()
	h.traces[id] = rec
	h.mu.Unlock()
	return id
}

func (h *Hub) get(traceID string) (*traceRecord, bool) {
	h.mu.RLock()
	rec, ok := h.traces[traceID]
	h.mu.RUnlock()
	return rec, ok
}

// Emit appends an event, assigning the next monotonic seq, and fans it out to
// live subscribers. Older events beyond MaxBufferedEvents are dropped from
// the replay buffer, but status is always current.
func (h *Hub) Emit(traceID string, e models.Event) error {
	rec, ok := h.get(traceID)
	if !ok {
		return perrors.New("emit", perrors.KindBadRequest, perrors.ErrNotFound)
	}

	rec.mu.Lock()
	seq := uint64(len(rec.trace.Events)) + 1
	for _, ex := range rec.trace.Events {
		if ex.Seq >= seq {
			seq = ex.Seq + 1
		}
	}
	e.Seq = seq
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	rec.trace.Events = append(rec.trace.Events, e)
	if len(rec.trace.Events) > MaxBufferedEvents {
		rec.trace.Events = rec.trace.Events[len(rec.trace.Events)-MaxBufferedEvents:]
	}
	rec.trace.LastEventAt = e.Time
	if e.Phase != "" {
		rec.trace.Phase = e.Phase
	}
	subs := make([]*subscriber, 0, len(rec.subscribers))
	for _, s := range rec.subscribers {
		subs = append(subs, s)
	}
	rec.mu.Unlock()

	for _, s := range subs {
		s.send(e)
	}
	return nil
}

// SetResponse records the final text. Must be called before the terminal
// complete event is emitted; pollers can always read the response once the
// terminal event is visible.
func (h *Hub) SetResponse(traceID, text string) error {
	rec, ok := h.get(traceID)
	if !ok {
		return perrors.New("set_response", perrors.KindBadRequest, perrors.ErrNotFound)
	}
	rec.mu.Lock()
	rec.trace.Response = &text
	rec.mu.Unlock()
	return nil
}

// Complete transitions a trace to a terminal status and emits the terminal
// event. Subscribers are closed MaxBufferedEvents+grace after this returns
// (driven by the gateway's SSE handler, which holds streams open for a
// short grace period after the terminal event).
func (h *Hub) Complete(traceID string, status models.TraceStatus, e models.Event) error {
	if err := h.Emit(traceID, e); err != nil {
		return err
	}
	rec, ok := h.get(traceID)
	if !ok {
		return perrors.New("complete", perrors.KindBadRequest, perrors.ErrNotFound)
	}
	rec.mu.Lock()
	rec.trace.Status = status
	subs := make([]*subscriber, 0, len(rec.subscribers))
	for _, s := range rec.subscribers {
		subs = append(subs, s)
	}
	rec.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
	return nil
}

// Cancel marks a trace cancelled and emits a final event.
func (h *Hub) Cancel(traceID, reason string) error {
	rec, ok := h.get(traceID)
	if !ok {
		return perrors.New("cancel", perrors.KindBadRequest, perrors.ErrNotFound)
	}
	rec.mu.Lock()
	already := rec.trace.Status.IsTerminal()
	rec.mu.Unlock()
	if already {
		return nil // cancel(trace_id) called twice is a no-op.
	}
	return h.Complete(traceID, models.TraceStatusCancelled, models.Event{
		Type:      models.EventTypeComplete,
		Status:    models.EventError,
		Reasoning: reason,
	})
}

// Subscription is returned by Subscribe: Events yields replay then live
// events; Done closes once the trace reaches a terminal state.
type Subscription struct {
	Events <-chan models.Event
	Done   <-chan struct{}
	cancel func()
}

// Close releases the subscription's resources.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe yields a replay of buffered events followed by live events
//. The caller is responsible for framing ping/keepalive separately.
func (h *Hub) Subscribe(traceID string) (*Subscription, error) {
	rec, ok := h.get(traceID)
	if !ok {
		return nil, perrors.New("subscribe", perrors.KindBadRequest, perrors.ErrNotFound)
	}

	rec.mu.Lock()
	replay := append([]models.Event(nil), rec.trace.Events...)
	terminal := rec.trace.Status.IsTerminal()
	sub := &subscriber{ch: make(chan models.Event, subscriberBuffer), closed: make(chan struct{})}
	id := rec.nextSubID
	rec.nextSubID++
	rec.subscribers[id] = sub
	rec.mu.Unlock()

	out := make(chan models.Event, subscriberBuffer+len(replay))
	for _, e := range replay {
		out <- e
	}
	if terminal {
		sub.close()
	}

	go func() {
		defer close(out)
		for {
			select {
			case e, ok := <-sub.ch:
				if !ok {
					return
				}
				out <- e
			case <-sub.closed:
				// Drain anything already queued before closing.
				for {
					select {
					case e := <-sub.ch:
						out <- e
					default:
						return
					}
				}
			}
		}
	}()

	cancelOnce := sync.Once{}
	cancel := func() {
		cancelOnce.Do(func() {
			rec.mu.Lock()
			delete(rec.subscribers, id)
			rec.mu.Unlock()
			sub.close()
		})
	}

	return &Subscription{Events: out, Done: sub.closed, cancel: cancel}, nil
}

// GetResponse is the idempotent poll backing GET /v1/response/{trace_id}.
func (h *Hub) GetResponse(traceID string) (status models.TraceStatus, response string, found bool) {
	rec, ok := h.get(traceID)
	if !ok {
		return "", "", false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	resp := ""
	if rec.trace.Response != nil {
		resp = *rec.trace.Response
	}
	return rec.trace.Status, resp, true
}

// Sweep removes traces whose LastEventAt is older than the configured TTL and
// whose status is terminal. Intended to be driven by a cron schedule.
func (h *Hub) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for id, rec := range h.traces {
		rec.mu.Lock()
		expired := rec.trace.Status.IsTerminal() && now.Sub(rec.trace.LastEventAt) > h.ttl
		rec.mu.Unlock()
		if expired {
			delete(h.traces, id)
			removed++
		}
	}
	return removed
}

// Snapshot returns a copy of the trace record for diagnostics/tests.
func (h *Hub) Snapshot(traceID string) (models.Trace, bool) {
	rec, ok := h.get(traceID)
	if !ok {
		return models.Trace{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	cp := rec.trace
	cp.Events = append([]models.Event(nil), rec.trace.Events...)
	return cp, true
}
