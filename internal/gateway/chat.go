package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pandora-run/pandora/pkg/models"
)

// chatMessage mirrors an OpenAI chat message; only Role/Content are read.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible request body POST /v1/chat/completions
// and POST /jobs/start both accept. Profile/Mode are Pandora additions
// layered onto the OpenAI shape, not part of it.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Profile  string        `json:"profile,omitempty"`
	Mode     string        `json:"mode,omitempty"`
}

func (c chatRequest) lastUserMessage() (string, error) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == "user" && strings.TrimSpace(c.Messages[i].Content) != "" {
			return c.Messages[i].Content, nil
		}
	}
	return "", fmt.Errorf("no user message in request")
}

func (s *Server) requestProfile(c chatRequest) string {
	if c.Profile != "" {
		return c.Profile
	}
	return s.profile
}

func requestMode(c chatRequest) models.Mode {
	switch models.Mode(c.Mode) {
	case models.ModeCode:
		return models.ModeCode
	default:
		return models.ModeChat
	}
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	TraceID string       `json:"trace_id"`
	JobID   string       `json:"job_id,omitempty"`
	Async   bool         `json:"async"`
	Choices []chatChoice `json:"choices"`
}

func chatResponse(model, traceID, jobID, text string, async bool) chatCompletionResponse {
	return chatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Model:   model,
		TraceID: traceID,
		JobID:   jobID,
		Async:   async,
		Choices: []chatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      chatMessage{Role: "assistant", Content: text},
		}},
	}
}

// handleChatCompletions is POST /v1/chat/completions: synchronous
// when the synthesized text is ready before the soft deadline, asynchronous
// otherwise, returning a placeholder containing "Research started" and the
// trace_id.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	query, err := req.lastUserMessage()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile := s.requestProfile(req)
	mode := requestMode(req)
	if !s.allowTurn(profile) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded; retry later")
		return
	}

	jobID, traceID, err := s.startTurn(profile, mode, query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "start turn: "+err.Error())
		return
	}

	status, response, completed := s.awaitSync(traceID, s.traceCfg.SoftDeadline)
	if completed && status.IsTerminal() {
		writeJSON(w, http.StatusOK, chatResponse(req.Model, traceID, "", response, false))
		return
	}

	placeholder := fmt.Sprintf("Research started. Poll GET /v1/response/%s or subscribe to GET /v1/thinking/%s for progress.", traceID, traceID)
	writeJSON(w, http.StatusOK, chatResponse(req.Model, traceID, jobID, placeholder, true))
}

// handleJobStart is POST /jobs/start: identical turn submission, always
// asynchronous.
func (s *Server) handleJobStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	query, err := req.lastUserMessage()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile := s.requestProfile(req)
	if !s.allowTurn(profile) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded; retry later")
		return
	}
	jobID, traceID, err := s.startTurn(profile, requestMode(req), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "start turn: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "trace_id": traceID})
}

// startTurn hands the turn to the Job Registry, which allocates the trace
// and spawns the Pipeline Scheduler's run under a cancellable context
//. context.Background() is used deliberately: the job must outlive
// the originating HTTP request (a client disconnecting a poll/SSE
// connection must not kill an in-flight turn), so cancellation is only ever
// explicit, via /cancel.
func (s *Server) startTurn(profile string, mode models.Mode, query string) (jobID, traceID string, err error) {
	jobID, traceID, err = s.jobs.Start(context.Background(), profile, func(ctx context.Context, traceID string) (string, error) {
		return s.scheduler.RunTurn(ctx, traceID, profile, mode, query)
	})
	if err != nil {
		return "", "", err
	}
	s.traceJobs.Store(traceID, jobID)
	return jobID, traceID, nil
}
