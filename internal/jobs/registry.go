// Package jobs implements the Job Registry: background job lifecycle
// with cooperative cancellation, backed by the same mutex-protected
// map-plus-insertion-order-slice shape this codebase already used for job
// bookkeeping, now driving a Trace Hub trace instead of a bare tool call.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pandora-run/pandora/internal/perrors"
	"github.com/pandora-run/pandora/internal/tracehub"
	"github.com/pandora-run/pandora/pkg/models"
)

// RunFunc is the pipeline entry point a job wraps: it must honor ctx
// cancellation and return the final response text or an error.
type RunFunc func(ctx context.Context, traceID string) (result string, err error)

// Store persists job records.
type Store interface {
	Create(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, limit, offset int) ([]*models.Job, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MemoryStore keeps jobs in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	keys []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.Job)}
}

func (s *MemoryStore) Create(ctx context.Context, job *models.Job) error {
	if job == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; !exists {
		s.keys = append(s.keys, job.JobID)
	}
	s.jobs[job.JobID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, job *models.Job) error {
	if job == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > len(s.keys) {
		limit = len(s.keys)
	}
	if offset >= len(s.keys) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.keys) {
		end = len(s.keys)
	}
	result := make([]*models.Job, 0, end-offset)
	for _, id := range s.keys[offset:end] {
		if job, ok := s.jobs[id]; ok {
			result = append(result, cloneJob(job))
		}
	}
	return result, nil
}

// Prune removes jobs whose FinishedAt is older than olderThan. Only
// terminal jobs are eligible.
func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var pruned int64
	var newKeys []string

	for _, id := range s.keys {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		if job.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
		} else {
			newKeys = append(newKeys, id)
		}
	}
	s.keys = newKeys
	return pruned, nil
}

func cloneJob(job *models.Job) *models.Job {
	if job == nil {
		return nil
	}
	clone := *job
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		clone.FinishedAt = &t
	}
	if job.Result != nil {
		r := *job.Result
		clone.Result = &r
	}
	if job.Error != nil {
		e := *job.Error
		clone.Error = &e
	}
	return &clone
}

// Registry is the Job Registry: it owns job records and drives a Trace
// Hub trace per job via the supplied RunFunc.
type Registry struct {
	store Store
	hub   *tracehub.Hub

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewRegistry(store Store, hub *tracehub.Hub) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{store: store, hub: hub, cancels: make(map[string]context.CancelFunc)}
}

// Start allocates a trace, spawns run under a cancellable context, records
// the job queued, and transitions it to running at first progress.
func (r *Registry) Start(ctx context.Context, profile string, run RunFunc) (jobID, traceID string, err error) {
	traceID = r.hub.CreateTrace(profile)
	jobID = uuid.NewString()

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()

	job := &models.Job{
		JobID:     jobID,
		TraceID:   traceID,
		Profile:   profile,
		Status:    models.JobQueued,
		StartedAt: time.Now(),
	}
	if err := r.store.Create(ctx, job); err != nil {
		cancel()
		return "", "", fmt.Errorf("start job: %w", err)
	}

	go r.run(runCtx, job, run)

	return jobID, traceID, nil
}

func (r *Registry) run(ctx context.Context, job *models.Job, run RunFunc) {
	defer func() {
		r.mu.Lock()
		delete(r.cancels, job.JobID)
		r.mu.Unlock()
	}()

	job.Status = models.JobRunning
	_ = r.store.Update(context.Background(), job)

	result, runErr := r.safeRun(ctx, job, run)

	now := time.Now()
	job.FinishedAt = &now

	switch {
	case ctx.Err() != nil:
		// cancelled is terminal even if run produced a result.
		job.Status = models.JobCancelled
	case runErr != nil:
		job.Status = models.JobError
		msg := runErr.Error()
		job.Error = &msg
	default:
		job.Status = models.JobDone
		job.Result = &result
	}
	_ = r.store.Update(context.Background(), job)
}

// safeRun recovers a panicking RunFunc into an error result so the job
// record ends in the error status instead of taking the process down.
func (r *Registry) safeRun(ctx context.Context, job *models.Job, run RunFunc) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = perrors.New("job.run", perrors.KindInternal, fmt.Errorf("panic: %v", rec))
		}
	}()
	return run(ctx, job.TraceID)
}

// Get returns the current job record.
func (r *Registry) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return r.store.Get(ctx, jobID)
}

// Cancel cooperatively cancels a job; must propagate within one phase
// boundary or one outstanding tool call.
func (r *Registry) Cancel(ctx context.Context, jobID string) (bool, error) {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if !ok {
		job, err := r.store.Get(ctx, jobID)
		if err != nil || job == nil {
			return false, err
		}
		return job.IsTerminal(), nil
	}
	cancel()
	return true, nil
}

// Sweep removes jobs finished more than an hour ago.
func (r *Registry) Sweep(ctx context.Context) (int64, error) {
	return r.store.Prune(ctx, time.Hour)
}
