package toolrouter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveWritePathAllowsTargetInsideRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "sub", "file.txt")

	resolved, err := ResolveWritePath(target, []string{root})
	require.NoError(t, err)
	require.Equal(t, filepath.Clean(target), resolved)
}

func TestResolveWritePathRejectsDotDotSegments(t *testing.T) {
	root := t.TempDir()
	_, err := ResolveWritePath(filepath.Join(root, "..", "escape.txt"), []string{root})
	require.Error(t, err)
}

func TestResolveWritePathRejectsOutsideEveryRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	_, err := ResolveWritePath(filepath.Join(other, "file.txt"), []string{root})
	require.Error(t, err)
}

func TestResolveWritePathFollowsSymlinkedRoot(t *testing.T) {
	realRoot := t.TempDir()
	linkRoot := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(realRoot, linkRoot))

	target := filepath.Join(linkRoot, "file.txt")
	resolved, err := ResolveWritePath(target, []string{linkRoot})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(realRoot, "file.txt"), resolved)
}
