package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/pandora-run/pandora/pkg/models"
)

// awaitSync blocks until traceID reaches a terminal state or deadline
// elapses, whichever comes first. completed is
// false on timeout, in which case the caller must fall back to the
// asynchronous placeholder response.
func (s *Server) awaitSync(traceID string, deadline time.Duration) (status models.TraceStatus, response string, completed bool) {
	sub, err := s.hub.Subscribe(traceID)
	if err != nil {
		return "", "", false
	}
	defer sub.Close()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-sub.Events:
			if !ok {
				status, response, _ = s.hub.GetResponse(traceID)
				return status, response, true
			}
		case <-timer.C:
			return "", "", false
		}
	}
}

// handleResponsePoll is GET /v1/response/{trace_id}: the idempotent safety
// net for truncated SSE connections.
func (s *Server) handleResponsePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	traceID := strings.TrimPrefix(r.URL.Path, "/v1/response/")
	if traceID == "" {
		writeError(w, http.StatusBadRequest, "missing trace_id")
		return
	}

	status, response, found := s.hub.GetResponse(traceID)
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"status": "not_found"})
		return
	}
	if !status.IsTerminal() {
		writeJSON(w, http.StatusOK, map[string]any{"status": "pending"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "complete", "response": response})
}
