package toolrouter

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveWritePath validates a tool's write target against the allowed write
// paths: case-normalized (on case-insensitive filesystems),
// symlink-resolved, with any existing allowed-root prefix accepted.
//
// Any ".." path segment is rejected before resolution; a target that climbs
// out of its own tree is refused even if the resolved path happens to land
// back inside an allowed root, since that would depend on symlink structure
// an attacker controls.
func ResolveWritePath(target string, allowedRoots []string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("write target is required")
	}
	for _, seg := range strings.Split(filepath.ToSlash(target), "/") {
		if seg == ".." {
			return "", fmt.Errorf("write target must not contain '..' segments: %s", target)
		}
	}

	resolvedTarget, err := resolveExisting(target)
	if err != nil {
		return "", fmt.Errorf("resolve write target: %w", err)
	}

	if len(allowedRoots) == 0 {
		return "", fmt.Errorf("no allowed write paths configured")
	}
	for _, root := range allowedRoots {
		resolvedRoot, err := resolveExisting(root)
		if err != nil {
			continue
		}
		if withinRoot(normalizeCase(resolvedRoot), normalizeCase(resolvedTarget)) {
			return resolvedTarget, nil
		}
	}
	return "", fmt.Errorf("write target %s resolves outside every allowed write path", target)
}

// resolveExisting resolves symlinks down to the deepest existing ancestor,
// since the target file itself may not exist yet (a write creates it).
func resolveExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	for dir := abs; ; {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			suffix, relErr := filepath.Rel(dir, abs)
			if relErr != nil {
				return "", relErr
			}
			if suffix == "." {
				return resolved, nil
			}
			return filepath.Join(resolved, suffix), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

func normalizeCase(path string) string {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.ToLower(path)
	}
	return path
}

func withinRoot(root, target string) bool {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if root == target {
		return true
	}
	return strings.HasPrefix(target, root+string(filepath.Separator))
}
