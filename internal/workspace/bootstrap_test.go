package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBootstrapCreatesProfileDirs(t *testing.T) {
	root := t.TempDir()

	layout, err := Bootstrap(root, "alice")
	require.NoError(t, err)

	require.DirExists(t, layout.TurnsDir())
	require.DirExists(t, layout.IndexesDir())
	require.Equal(t, filepath.Join(root, "alice"), layout.ProfileDir())

	// Idempotent.
	_, err = Bootstrap(root, "alice")
	require.NoError(t, err)
}

func TestBootstrapTurnCreatesArtifactsDir(t *testing.T) {
	root := t.TempDir()
	layout, err := Bootstrap(root, "alice")
	require.NoError(t, err)

	require.NoError(t, BootstrapTurn(layout, 1))
	require.DirExists(t, layout.ArtifactsDir(1))

	info, err := os.Stat(layout.TurnDir(1))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
