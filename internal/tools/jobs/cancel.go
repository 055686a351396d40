package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pandora-run/pandora/internal/agent"
	"github.com/pandora-run/pandora/internal/jobs"
	"github.com/pandora-run/pandora/pkg/models"
)

// CancelTool allows cancelling a running job via the Job Registry.
type CancelTool struct {
	store    jobs.Store
	registry *jobs.Registry
}

// NewCancelTool returns a job cancel tool backed by registry's cooperative
// cancellation; store serves the existence/status check.
func NewCancelTool(store jobs.Store, registry *jobs.Registry) *CancelTool {
	return &CancelTool{store: store, registry: registry}
}

func (t *CancelTool) Name() string { return "job_cancel" }

func (t *CancelTool) Description() string {
	return "Cancel a running async job by job_id"
}

func (t *CancelTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"job_id":{"type":"string","description":"The ID of the job to cancel"}},"required":["job_id"]}`)
}

func (t *CancelTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
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

	// First check if job exists
	job, err := t.store.Get(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &agent.ToolResult{Content: "job not found", IsError: true}, nil
	}
	if job.Status != models.JobRunning && job.Status != models.JobQueued {
		return &agent.ToolResult{
			Content: fmt.Sprintf("job cannot be cancelled (status: %s)", job.Status),
			IsError: true,
		}, nil
	}

	if t.registry == nil {
		return &agent.ToolResult{Content: "job registry unavailable", IsError: true}, nil
	}
	if _, err := t.registry.Cancel(ctx, input.JobID); err != nil {
		return nil, err
	}

	return &agent.ToolResult{
		Content: fmt.Sprintf("Job %s cancelled successfully", input.JobID),
	}, nil
}

// ListTool lists jobs with optional filtering.
type ListTool struct {
	store jobs.Store
}

// NewListTool returns a job list tool.
func NewListTool(store jobs.Store) *ListTool {
	return &ListTool{store: store}
}

func (t *ListTool) Name() string { return "job_list" }

func (t *ListTool) Description() string {
	return "List recent async jobs with optional filtering"
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer","description":"Max number of jobs to return (default 10)","default":10},"status":{"type":"string","description":"Filter by status: queued, running, done, cancelled, error"}}}`)
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return &agent.ToolResult{Content: "job store unavailable", IsError: true}, nil
	}
	var input struct {
		Limit  int    `json:"limit"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}
	if input.Limit <= 0 {
		input.Limit = 10
	}

	jobList, err := t.store.List(ctx, input.Limit, 0)
	if err != nil {
		return nil, err
	}

	// Filter by status if specified
	if input.Status != "" {
		filtered := make([]*models.Job, 0)
		targetStatus := models.JobStatus(input.Status)
		for _, j := range jobList {
			if j.Status == targetStatus {
				filtered = append(filtered, j)
			}
		}
		jobList = filtered
	}

	if len(jobList) == 0 {
		return &agent.ToolResult{Content: "no jobs found"}, nil
	}

	// Same snake_case wire shape as GET /jobs/{job_id}; results and errors
	// are omitted here to keep the listing small, job_status fetches them.
	summaries := make([]map[string]interface{}, 0, len(jobList))
	for _, j := range jobList {
		summary := map[string]interface{}{
			"job_id":     j.JobID,
			"trace_id":   j.TraceID,
			"status":     j.Status,
			"terminal":   j.IsTerminal(),
			"started_at": j.StartedAt,
		}
		if j.FinishedAt != nil {
			summary["finished_at"] = *j.FinishedAt
		}
		summaries = append(summaries, summary)
	}
	payload, err := json.Marshal(map[string]interface{}{"jobs": summaries})
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
