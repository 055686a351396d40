package gateway

import (
	"net/http"
	"strings"
)

// routeJobs dispatches GET /jobs/{job_id} and POST /jobs/{job_id}/cancel.
func (s *Server) routeJobs(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if jobID, ok := strings.CutSuffix(path, "/cancel"); ok {
		s.handleJobCancel(w, r, jobID)
		return
	}
	s.handleJobStatus(w, r, path)
}

// handleJobStatus is GET /jobs/{job_id}: {status, result?, error?}.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job_id")
		return
	}
	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown job_id"})
		return
	}
	body := map[string]any{"status": job.Status, "trace_id": job.TraceID}
	if job.Result != nil {
		body["result"] = *job.Result
	}
	if job.Error != nil {
		body["error"] = *job.Error
	}
	writeJSON(w, http.StatusOK, body)
}

// handleJobCancel is POST /jobs/{job_id}/cancel: {ok}. It also marks the
// underlying trace cancelled so SSE/poll consumers see the same outcome.
func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false})
		return
	}
	ok, err := s.jobs.Cancel(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.scheduler.Cancel(job.TraceID, "cancelled via /jobs/cancel")
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok})
}
