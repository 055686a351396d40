// Package turndoc implements the Turn Document Store: a per-turn,
// on-disk workspace of append-only sections plus the two best-effort
// recall indexes layered next to it.
//
// Concurrency follows the same shape as a single-writer-per-key mutex map
// used throughout this codebase for session/turn locking: one mutex per
// turn_id, reference-counted so it can be released once nobody holds it.
package turndoc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pandora-run/pandora/internal/workspace"
	"github.com/pandora-run/pandora/pkg/models"
)

// Index is the best-effort recall side-store the Store writes to; failures here are
// logged as warnings and never fail a turn.
type Index interface {
	IndexTurn(ctx context.Context, rec models.TurnRecord) error
	IndexDocument(ctx context.Context, collection, turnDir, text string, metadata map[string]string) error
}

// NopIndex discards everything; used when no index backend is configured.
type NopIndex struct{}

func (NopIndex) IndexTurn(context.Context, models.TurnRecord) error { return nil }
func (NopIndex) IndexDocument(context.Context, string, string, string, map[string]string) error {
	return nil
}

// turnState tracks one open turn.
type turnState struct {
	turnID  int64
	dir     string
	closed  atomic.Bool
	written map[models.Section]bool // which sections have been appended to
	mu      sync.Mutex
}

// Store is the Turn Document Store for a single profile root.
type Store struct {
	layout workspace.Layout
	index  Index

	nextID atomic.Int64 // authority for turn_id allocation; filesystem is not trusted

	mu     sync.Mutex
	turns  map[int64]*turnState
	locks  map[int64]*sync.Mutex
	refs   map[int64]int
}

// Open bootstraps (or resumes) the on-disk tree for one profile.
func Open(root, profile string, index Index) (*Store, error) {
	layout, err := workspace.Bootstrap(root, profile)
	if err != nil {
		return nil, err
	}
	if index == nil {
		index = NopIndex{}
	}
	s := &Store{
		layout: layout,
		index:  index,
		turns:  make(map[int64]*turnState),
		locks:  make(map[int64]*sync.Mutex),
		refs:   make(map[int64]int),
	}
	s.nextID.Store(s.discoverMaxTurnID())
	return s, nil
}

// discoverMaxTurnID scans existing turn directories to resume numbering after
// a restart. It is advisory only: once running, the in-process counter is the
// sole authority: ids are strictly increasing because the allocator is
// the authority, not the filesystem.
func (s *Store) discoverMaxTurnID() int64 {
	entries, err := os.ReadDir(s.layout.TurnsDir())
	if err != nil {
		return 0
	}
	var max int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var n int64
		if _, err := fmt.Sscanf(e.Name(), "%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max
}

func (s *Store) lockFor(turnID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[turnID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[turnID] = l
	}
	s.refs[turnID]++
	return l
}

func (s *Store) releaseLock(turnID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[turnID]--
	if s.refs[turnID] <= 0 {
		delete(s.locks, turnID)
		delete(s.refs, turnID)
	}
}

const contextSkeleton = `# Turn %d

%s

%s

%s

%s

%s

%s

%s

%s
`

// OpenTurn allocates the next turn_id, creates the folder, and writes an
// empty context.md skeleton with the eight subsection headers.
func (s *Store) OpenTurn(ctx context.Context, profile string) (models.TurnID, string, error) {
	id := s.nextID.Add(1)

	if err := workspace.BootstrapTurn(s.layout, id); err != nil {
		return 0, "", err
	}
	dir := s.layout.TurnDir(id)

	skeleton := fmt.Sprintf(contextSkeleton, id,
		models.SubsectionQueryAnalyzer.Header(),
		models.SubsectionReflection.Header(),
		models.SubsectionContextGatherer.Header(),
		models.SubsectionPlanner.Header(),
		models.SubsectionExecutor.Header(),
		models.SubsectionCoordinator.Header(),
		models.SubsectionSynthesis.Header(),
		models.SubsectionValidation.Header(),
	)
	if err := atomicWrite(filepath.Join(dir, string(models.SectionContext)), []byte(skeleton)); err != nil {
		return 0, "", fmt.Errorf("open_turn: write skeleton: %w", err)
	}

	ts := &turnState{turnID: id, dir: dir, written: make(map[models.Section]bool)}
	s.mu.Lock()
	s.turns[id] = ts
	s.mu.Unlock()

	if err := s.index.IndexTurn(ctx, models.TurnRecord{
		TurnNumber: models.TurnID(id),
		Profile:    profile,
		TurnDir:    dir,
		CreatedAt:  time.Now(),
	}); err != nil {
		// Best-effort: surfaced as a warning artifact, never fails the turn.
		_ = s.attachWarning(id, "index", err)
	}

	return models.TurnID(id), dir, nil
}

func (s *Store) stateFor(turnID models.TurnID) (*turnState, error) {
	s.mu.Lock()
	ts, ok := s.turns[int64(turnID)]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("turndoc: unknown turn %d: %w", turnID, errNotFound)
	}
	return ts, nil
}

// ReadSection returns the full current contents of a section file.
func (s *Store) ReadSection(turnID models.TurnID, section models.Section) (string, error) {
	ts, err := s.stateFor(turnID)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(ts.dir, string(section)))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read_section: %w", err)
	}
	return string(b), nil
}

// AppendSection atomically appends text to a section. Rejected once the turn
// is closed.
func (s *Store) AppendSection(turnID models.TurnID, section models.Section, text string) error {
	ts, err := s.stateFor(turnID)
	if err != nil {
		return err
	}
	if ts.closed.Load() {
		return fmt.Errorf("append_section: %w", errClosed)
	}

	lock := s.lockFor(int64(turnID))
	lock.Lock()
	defer func() {
		lock.Unlock()
		s.releaseLock(int64(turnID))
	}()

	if ts.closed.Load() {
		return fmt.Errorf("append_section: %w", errClosed)
	}

	path := filepath.Join(ts.dir, string(section))
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("append_section: read existing: %w", err)
	}
	combined := append(existing, []byte(text)...)
	if err := atomicWrite(path, combined); err != nil {
		return fmt.Errorf("append_section: %w", err)
	}

	ts.mu.Lock()
	ts.written[section] = true
	ts.mu.Unlock()
	return nil
}

// CloseTurn is idempotent; after this only reads succeed.
func (s *Store) CloseTurn(turnID models.TurnID) error {
	ts, err := s.stateFor(turnID)
	if err != nil {
		return err
	}
	ts.closed.Store(true)
	return nil
}

// CloseTurnFailed closes a turn the same way CloseTurn does, but first
// writes a failure marker carrying the error kind and phase, so a turn is
// always closed exactly once, with success or with the failure recorded.
func (s *Store) CloseTurnFailed(turnID models.TurnID, kind, phase string, cause error) error {
	ts, err := s.stateFor(turnID)
	if err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	marker := fmt.Sprintf("kind: %s\nphase: %s\nerror: %s\n", kind, phase, msg)
	_ = atomicWrite(filepath.Join(ts.dir, "failure.marker"), []byte(marker))
	ts.closed.Store(true)
	return nil
}

// AttachArtifact writes a sibling file under turns/<id>/artifacts/.
func (s *Store) AttachArtifact(turnID models.TurnID, name string, data []byte) (models.ArtifactManifestEntry, error) {
	ts, err := s.stateFor(turnID)
	if err != nil {
		return models.ArtifactManifestEntry{}, err
	}
	dir := filepath.Join(ts.dir, "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.ArtifactManifestEntry{}, fmt.Errorf("attach_artifact: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := atomicWrite(path, data); err != nil {
		return models.ArtifactManifestEntry{}, fmt.Errorf("attach_artifact: %w", err)
	}
	return models.ArtifactManifestEntry{
		Name:      name,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}, nil
}

func (s *Store) attachWarning(turnID int64, stage string, cause error) error {
	dir := s.layout.TurnDir(turnID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.warning", stage))
	return os.WriteFile(path, []byte(cause.Error()), 0o644)
}

// atomicWrite writes to a temp file in the same directory then renames it
// into place, so a crash mid-write never leaves a torn section file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
