package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pandora-run/pandora/internal/jobs"
	"github.com/pandora-run/pandora/internal/tracehub"
	"github.com/pandora-run/pandora/pkg/models"
)

// mockStore implements jobs.Store against an in-memory map.
type mockStore struct {
	jobs    map[string]*models.Job
	getErr  error
	listErr error
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[string]*models.Job)}
}

func (m *mockStore) Create(ctx context.Context, job *models.Job) error {
	m.jobs[job.JobID] = job
	return nil
}

func (m *mockStore) Update(ctx context.Context, job *models.Job) error {
	m.jobs[job.JobID] = job
	return nil
}

func (m *mockStore) Get(ctx context.Context, id string) (*models.Job, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.jobs[id], nil
}

func (m *mockStore) List(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		result = append(result, j)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *mockStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func newTestRegistry(store jobs.Store) *jobs.Registry {
	return jobs.NewRegistry(store, tracehub.New(10*time.Minute))
}

func TestStatusTool(t *testing.T) {
	t.Run("Name and Description", func(t *testing.T) {
		tool := NewStatusTool(nil)
		if tool.Name() != "job_status" {
			t.Errorf("Name() = %q, want %q", tool.Name(), "job_status")
		}
		if tool.Description() == "" {
			t.Error("Description() should not be empty")
		}
	})

	t.Run("Schema returns valid JSON", func(t *testing.T) {
		tool := NewStatusTool(nil)
		schema := tool.Schema()
		var parsed map[string]any
		if err := json.Unmarshal(schema, &parsed); err != nil {
			t.Errorf("Schema() invalid JSON: %v", err)
		}
	})

	t.Run("returns error when store unavailable", func(t *testing.T) {
		tool := NewStatusTool(nil)
		result, err := tool.Execute(context.Background(), []byte(`{"job_id":"123"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected IsError to be true")
		}
	})

	t.Run("returns error for missing job_id", func(t *testing.T) {
		store := newMockStore()
		tool := NewStatusTool(store)
		_, err := tool.Execute(context.Background(), []byte(`{}`))
		if err == nil {
			t.Error("expected error for missing job_id")
		}
	})

	t.Run("returns job not found", func(t *testing.T) {
		store := newMockStore()
		tool := NewStatusTool(store)
		result, err := tool.Execute(context.Background(), []byte(`{"job_id":"nonexistent"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError || result.Content != "job not found" {
			t.Errorf("expected job not found error, got: %+v", result)
		}
	})

	t.Run("returns job status successfully", func(t *testing.T) {
		store := newMockStore()
		store.jobs["job-1"] = &models.Job{JobID: "job-1", Status: models.JobRunning}
		tool := NewStatusTool(store)

		result, err := tool.Execute(context.Background(), []byte(`{"job_id":"job-1"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Errorf("unexpected error result: %s", result.Content)
		}

		var body map[string]interface{}
		if err := json.Unmarshal([]byte(result.Content), &body); err != nil {
			t.Fatalf("failed to parse result: %v", err)
		}
		if body["job_id"] != "job-1" {
			t.Errorf("job_id = %v, want %q", body["job_id"], "job-1")
		}
		if body["status"] != string(models.JobRunning) {
			t.Errorf("status = %v, want %q", body["status"], models.JobRunning)
		}
	})
}

func TestCancelTool(t *testing.T) {
	t.Run("Name and Description", func(t *testing.T) {
		tool := NewCancelTool(nil, nil)
		if tool.Name() != "job_cancel" {
			t.Errorf("Name() = %q, want %q", tool.Name(), "job_cancel")
		}
		if tool.Description() == "" {
			t.Error("Description() should not be empty")
		}
	})

	t.Run("returns error when store unavailable", func(t *testing.T) {
		tool := NewCancelTool(nil, nil)
		result, err := tool.Execute(context.Background(), []byte(`{"job_id":"123"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected IsError to be true")
		}
	})

	t.Run("returns error for missing job_id", func(t *testing.T) {
		store := newMockStore()
		tool := NewCancelTool(store, newTestRegistry(store))
		_, err := tool.Execute(context.Background(), []byte(`{}`))
		if err == nil {
			t.Error("expected error for missing job_id")
		}
	})

	t.Run("returns job not found", func(t *testing.T) {
		store := newMockStore()
		tool := NewCancelTool(store, newTestRegistry(store))
		result, err := tool.Execute(context.Background(), []byte(`{"job_id":"nonexistent"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError || result.Content != "job not found" {
			t.Errorf("expected job not found error, got: %+v", result)
		}
	})

	t.Run("cannot cancel completed job", func(t *testing.T) {
		store := newMockStore()
		store.jobs["job-1"] = &models.Job{JobID: "job-1", Status: models.JobDone}
		tool := NewCancelTool(store, newTestRegistry(store))

		result, err := tool.Execute(context.Background(), []byte(`{"job_id":"job-1"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for completed job")
		}
	})

	t.Run("cancels running job without a registry entry", func(t *testing.T) {
		store := newMockStore()
		store.jobs["job-1"] = &models.Job{JobID: "job-1", Status: models.JobRunning}
		tool := NewCancelTool(store, newTestRegistry(store))

		result, err := tool.Execute(context.Background(), []byte(`{"job_id":"job-1"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Errorf("unexpected error result: %s", result.Content)
		}
		if result.Content != "Job job-1 cancelled successfully" {
			t.Errorf("Content = %q", result.Content)
		}
	})
}

func TestListTool(t *testing.T) {
	t.Run("Name and Description", func(t *testing.T) {
		tool := NewListTool(nil)
		if tool.Name() != "job_list" {
			t.Errorf("Name() = %q, want %q", tool.Name(), "job_list")
		}
		if tool.Description() == "" {
			t.Error("Description() should not be empty")
		}
	})

	t.Run("Schema returns valid JSON", func(t *testing.T) {
		tool := NewListTool(nil)
		schema := tool.Schema()
		var parsed map[string]any
		if err := json.Unmarshal(schema, &parsed); err != nil {
			t.Errorf("Schema() invalid JSON: %v", err)
		}
	})

	t.Run("returns error when store unavailable", func(t *testing.T) {
		tool := NewListTool(nil)
		result, err := tool.Execute(context.Background(), []byte(`{}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected IsError to be true")
		}
	})

	t.Run("returns no jobs found", func(t *testing.T) {
		store := newMockStore()
		tool := NewListTool(store)
		result, err := tool.Execute(context.Background(), []byte(`{}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Content != "no jobs found" {
			t.Errorf("Content = %q, want %q", result.Content, "no jobs found")
		}
	})

	t.Run("lists jobs successfully", func(t *testing.T) {
		store := newMockStore()
		store.jobs["job-1"] = &models.Job{JobID: "job-1", Status: models.JobRunning}
		store.jobs["job-2"] = &models.Job{JobID: "job-2", Status: models.JobQueued}
		tool := NewListTool(store)

		result, err := tool.Execute(context.Background(), []byte(`{}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Errorf("unexpected error result: %s", result.Content)
		}

		var body struct {
			Jobs []map[string]interface{} `json:"jobs"`
		}
		if err := json.Unmarshal([]byte(result.Content), &body); err != nil {
			t.Fatalf("failed to parse result: %v", err)
		}
		if len(body.Jobs) != 2 {
			t.Errorf("expected 2 jobs, got %d", len(body.Jobs))
		}
	})

	t.Run("filters by status", func(t *testing.T) {
		store := newMockStore()
		store.jobs["job-1"] = &models.Job{JobID: "job-1", Status: models.JobRunning}
		store.jobs["job-2"] = &models.Job{JobID: "job-2", Status: models.JobQueued}
		store.jobs["job-3"] = &models.Job{JobID: "job-3", Status: models.JobRunning}
		tool := NewListTool(store)

		result, err := tool.Execute(context.Background(), []byte(`{"status":"running"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var body struct {
			Jobs []map[string]interface{} `json:"jobs"`
		}
		json.Unmarshal([]byte(result.Content), &body)
		for _, j := range body.Jobs {
			if j["status"] != string(models.JobRunning) {
				t.Errorf("expected running status, got %v", j["status"])
			}
		}
	})

	t.Run("respects limit", func(t *testing.T) {
		store := newMockStore()
		for i := 0; i < 20; i++ {
			id := "job-" + string(rune('A'+i))
			store.jobs[id] = &models.Job{JobID: id, Status: models.JobQueued}
		}
		tool := NewListTool(store)

		result, err := tool.Execute(context.Background(), []byte(`{"limit":5}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var body struct {
			Jobs []map[string]interface{} `json:"jobs"`
		}
		json.Unmarshal([]byte(result.Content), &body)
		if len(body.Jobs) > 5 {
			t.Errorf("expected max 5 jobs, got %d", len(body.Jobs))
		}
	})

	t.Run("uses default limit when zero or negative", func(t *testing.T) {
		store := newMockStore()
		for i := 0; i < 5; i++ {
			id := "job-" + string(rune('A'+i))
			store.jobs[id] = &models.Job{JobID: id, Status: models.JobQueued}
		}
		tool := NewListTool(store)

		result, err := tool.Execute(context.Background(), []byte(`{"limit":0}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Errorf("unexpected error: %s", result.Content)
		}
	})
}
