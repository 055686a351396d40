package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pandora-run/pandora/pkg/models"
)

const thinkingPingInterval = 15 * time.Second

// routeThinking dispatches GET /v1/thinking/{trace_id} (SSE) and
// POST /v1/thinking/{trace_id}/cancel.
func (s *Server) routeThinking(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/thinking/")
	if traceID, ok := strings.CutSuffix(path, "/cancel"); ok {
		s.handleThinkingCancel(w, r, traceID)
		return
	}
	s.handleThinkingStream(w, r, path)
}

// handleThinkingStream is GET /v1/thinking/{trace_id}: an SSE replay-then-live
// feed of the Trace Hub subscription, framed as named events ping, thinking,
// complete.
func (s *Server) handleThinkingStream(w http.ResponseWriter, r *http.Request, traceID string) {
	if traceID == "" {
		writeError(w, http.StatusBadRequest, "missing trace_id")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sub, err := s.hub.Subscribe(traceID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown trace_id")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(thinkingPingInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-sub.Events:
			if !ok {
				return
			}
			name := "thinking"
			if e.Type == models.EventTypeComplete {
				name = "complete"
			}
			writeSSE(w, name, e)
			flusher.Flush()
			if name == "complete" {
				return
			}
		case <-ticker.C:
			writeSSE(w, "ping", map[string]any{"time": time.Now().UTC()})
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// handleThinkingCancel is POST /v1/thinking/{trace_id}/cancel: marks the
// trace cancelled and, if a job was started for it, cancels the job's
// context so the in-flight phase actually observes ctx.Done(). Cancelling
// by trace or by job must both work.
func (s *Server) handleThinkingCancel(w http.ResponseWriter, r *http.Request, traceID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.scheduler.Cancel(traceID, "cancelled via /v1/thinking/cancel")
	if jobID, ok := s.traceJobs.Load(traceID); ok {
		_, _ = s.jobs.Cancel(r.Context(), jobID.(string))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
