package toolrouter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pandora-run/pandora/pkg/models"
)

func TestPermissionBrokerResolveOK(t *testing.T) {
	b := NewPermissionBroker(time.Minute)
	id := b.Request("trace-1", "write", "/work/a.txt", "outside allowlist")

	go func() {
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, b.Resolve(id, true))
	}()

	resolution, err := b.AwaitResolution(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.ResolutionOK, resolution)
}

func TestPermissionBrokerCoalescesSameTracePath(t *testing.T) {
	b := NewPermissionBroker(time.Minute)
	first := b.Request("trace-1", "write", "/work/a.txt", "reason")
	second := b.Request("trace-1", "write", "/work/a.txt", "reason")
	require.Equal(t, first, second)
}

func TestPermissionBrokerExpiresOnTimeout(t *testing.T) {
	b := NewPermissionBroker(20 * time.Millisecond)
	id := b.Request("trace-1", "write", "/work/a.txt", "reason")

	_, err := b.AwaitResolution(context.Background(), id)
	require.Error(t, err)

	pending := b.ListPending()
	require.Empty(t, pending)
}

func TestPermissionBrokerFirstResolutionWins(t *testing.T) {
	b := NewPermissionBroker(time.Minute)
	id := b.Request("trace-1", "write", "/work/a.txt", "reason")

	require.NoError(t, b.Resolve(id, true))
	require.NoError(t, b.Resolve(id, false)) // no-op, first wins

	resolution, err := b.AwaitResolution(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.ResolutionOK, resolution)
}
