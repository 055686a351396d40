package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pandora-run/pandora/internal/agent"
	"github.com/pandora-run/pandora/internal/jobs"
)

// StatusTool exposes job status via tool call.
type StatusTool struct {
	store jobs.Store
}

// NewStatusTool returns a job status tool.
func NewStatusTool(store jobs.Store) *StatusTool {
	return &StatusTool{store: store}
}

func (t *StatusTool) Name() string { return "job_status" }

func (t *StatusTool) Description() string {
	return "Fetch job status/result by job_id"
}

func (t *StatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"job_id":{"type":"string"}},"required":["job_id"]}`)
}

func (t *StatusTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return &agent.ToolResult{Content: "job store unavailable", IsError: true}, nil
	}
	var input struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	if input.JobID == "" {
		return nil, fmt.Errorf("job_id is required")
	}
	job, err := t.store.Get(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &agent.ToolResult{Content: "job not found", IsError: true}, nil
	}

	// The wire shape matches GET /jobs/{job_id}, so a phase reasoning about
	// a background job sees the same fields a polling client would.
	body := map[string]interface{}{
		"job_id":     job.JobID,
		"trace_id":   job.TraceID,
		"status":     job.Status,
		"terminal":   job.IsTerminal(),
		"started_at": job.StartedAt,
	}
	if job.FinishedAt != nil {
		body["finished_at"] = *job.FinishedAt
	}
	if job.Result != nil {
		body["result"] = *job.Result
	}
	if job.Error != nil {
		body["error"] = *job.Error
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
