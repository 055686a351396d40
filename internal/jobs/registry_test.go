package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pandora-run/pandora/internal/tracehub"
	"github.com/pandora-run/pandora/pkg/models"
)

func TestRegistryStartCompletesSuccessfully(t *testing.T) {
	hub := tracehub.New(time.Minute)
	reg := NewRegistry(nil, hub)

	jobID, traceID, err := reg.Start(context.Background(), "alice", func(ctx context.Context, traceID string) (string, error) {
		return "ok result", nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
	require.NotEmpty(t, traceID)

	require.Eventually(t, func() bool {
		job, _ := reg.Get(context.Background(), jobID)
		return job != nil && job.IsTerminal()
	}, time.Second, time.Millisecond)

	job, err := reg.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, models.JobDone, job.Status)
	require.Equal(t, "ok result", *job.Result)
}

func TestRegistryCancelIsCooperativeAndTerminal(t *testing.T) {
	hub := tracehub.New(time.Minute)
	reg := NewRegistry(nil, hub)

	started := make(chan struct{})
	jobID, _, err := reg.Start(context.Background(), "alice", func(ctx context.Context, traceID string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.NoError(t, err)

	<-started
	ok, err := reg.Cancel(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		job, _ := reg.Get(context.Background(), jobID)
		return job != nil && job.Status == models.JobCancelled
	}, time.Second, time.Millisecond)
}

func TestRegistryRunPanicBecomesErrorStatus(t *testing.T) {
	hub := tracehub.New(time.Minute)
	reg := NewRegistry(nil, hub)

	jobID, _, err := reg.Start(context.Background(), "alice", func(ctx context.Context, traceID string) (string, error) {
		panic("boom")
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, _ := reg.Get(context.Background(), jobID)
		return job != nil && job.Status == models.JobError
	}, time.Second, time.Millisecond)
}

func TestMemoryStorePruneOnlyRemovesOldTerminalJobs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()

	require.NoError(t, store.Create(ctx, &models.Job{JobID: "a", Status: models.JobDone, FinishedAt: &old}))
	require.NoError(t, store.Create(ctx, &models.Job{JobID: "b", Status: models.JobDone, FinishedAt: &recent}))
	require.NoError(t, store.Create(ctx, &models.Job{JobID: "c", Status: models.JobRunning}))

	pruned, err := store.Prune(ctx, time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, pruned)

	remaining, err := store.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

var errTest = errors.New("test error")
