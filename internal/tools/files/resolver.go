package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver resolves and validates workspace-relative paths.
//
// Containment is checked twice: lexically (no ".." escape after cleaning)
// and physically, by resolving symlinks on the deepest existing ancestor of
// the target. The second check is what stops a symlink planted inside the
// workspace from aiming a write at /etc; a target that does not exist yet
// still gets it, via whichever ancestor does exist. Excluded names block
// the subtrees the engine itself owns (the turn store, VCS metadata) from
// tool access entirely.
type Resolver struct {
	Root string

	// Excluded lists directory names that may never be traversed, at any
	// depth under the root.
	Excluded []string
}

// defaultExcluded are the subtrees no filesystem tool may touch regardless
// of policy: the engine's own state and version-control internals.
var defaultExcluded = []string{".git", ".pandora", "turns", "indexes"}

// Resolve returns an absolute path within the workspace root, or an error
// describing which containment check failed.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	// Reject parent traversal in the raw input before any cleaning; a ".."
	// that would be normalized away is still a signal the caller is probing.
	for _, seg := range strings.Split(filepath.ToSlash(clean), "/") {
		if seg == ".." {
			return "", fmt.Errorf("path contains parent traversal")
		}
	}

	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = resolved
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if err := r.checkContained(rootAbs, targetAbs); err != nil {
		return "", err
	}

	// Physical check: resolve symlinks on the deepest existing ancestor and
	// re-verify containment with the unresolved tail appended.
	existing, tail := deepestExisting(targetAbs)
	physical, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if tail != "" {
		physical = filepath.Join(physical, tail)
	}
	if err := r.checkContained(rootAbs, physical); err != nil {
		return "", err
	}

	return targetAbs, nil
}

// Rel reports the workspace-relative form of a previously Resolved path,
// for results shown back to the model.
func (r Resolver) Rel(resolved string) string {
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return resolved
	}
	if real, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = real
	}
	rel, err := filepath.Rel(rootAbs, resolved)
	if err != nil {
		return resolved
	}
	return rel
}

func (r Resolver) checkContained(rootAbs, targetAbs string) error {
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("path escapes workspace")
	}
	excluded := r.Excluded
	if excluded == nil {
		excluded = defaultExcluded
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, ex := range excluded {
			if seg == ex {
				return fmt.Errorf("path enters excluded directory %q", ex)
			}
		}
	}
	return nil
}

// deepestExisting walks up from path until a component exists, returning it
// and the not-yet-existing tail.
func deepestExisting(path string) (existing, tail string) {
	current := path
	for {
		if _, err := os.Lstat(current); err == nil {
			rel, relErr := filepath.Rel(current, path)
			if relErr != nil || rel == "." {
				rel = ""
			}
			return current, rel
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current, ""
		}
		current = parent
	}
}
