// Package workspace lays out and bootstraps the on-disk per-profile tree
// used by the rest of the engine:
//
//	<root>/<profile>/
//	  turns/<turn_id>/
//	    context.md
//	    research.md
//	    toolresults.md
//	    transcript.json?
//	    artifacts/
//	  indexes/
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves the concrete directories for a profile rooted at Root.
type Layout struct {
	Root    string
	Profile string
}

func (l Layout) ProfileDir() string { return filepath.Join(l.Root, l.Profile) }
func (l Layout) TurnsDir() string   { return filepath.Join(l.ProfileDir(), "turns") }
func (l Layout) IndexesDir() string { return filepath.Join(l.ProfileDir(), "indexes") }

func (l Layout) TurnDir(turnID int64) string {
	return filepath.Join(l.TurnsDir(), fmt.Sprintf("%d", turnID))
}

func (l Layout) ArtifactsDir(turnID int64) string {
	return filepath.Join(l.TurnDir(turnID), "artifacts")
}

// Bootstrap creates the profile-level directories (turns/, indexes/) ahead of
// the first open_turn call. Idempotent: existing directories are left alone.
func Bootstrap(root, profile string) (Layout, error) {
	l := Layout{Root: root, Profile: profile}
	for _, dir := range []string{l.TurnsDir(), l.IndexesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return l, fmt.Errorf("bootstrap workspace %s: %w", dir, err)
		}
	}
	return l, nil
}

// BootstrapTurn creates the per-turn directory tree, including artifacts/.
func BootstrapTurn(l Layout, turnID int64) error {
	if err := os.MkdirAll(l.ArtifactsDir(turnID), 0o755); err != nil {
		return fmt.Errorf("bootstrap turn dir: %w", err)
	}
	return nil
}
