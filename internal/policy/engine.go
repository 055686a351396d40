// Package policy implements the Policy Engine: mode→capability
// mapping, write-path allowlists, and confirm gating over a per-profile
// PolicyRecord snapshot.
//
// It composes internal/tools/policy's allow/deny/group resolver for the
// ToolEnables side of a PolicyRecord, rather than re-deriving tool-name
// matching from scratch.
package policy

import (
	"sync"

	"github.com/pandora-run/pandora/internal/tools/policy"
	"github.com/pandora-run/pandora/pkg/models"
)

// Action is what Check evaluates: a single tool invocation under a policy
// snapshot; Check never reads mutable engine state.
type Action struct {
	ToolName   string
	IsWrite    bool
	WritePaths []string
}

// Decision is the outcome of Check.
type Decision struct {
	Allowed        bool
	RequireConfirm bool
	Reason         string
}

// Engine is the Policy Engine: a process-wide registry of per-profile,
// per-mode PolicyRecord snapshots, plus the tool-group resolver that backs
// the capability side of a mode (chat vs. code get different base tool
// profiles before any explicit ToolEnables override applies).
type Engine struct {
	mu           sync.RWMutex
	records      map[string]*models.PolicyRecord // keyed by profile+mode
	defaults     map[models.Mode]*models.PolicyRecord
	resolver     *policy.Resolver
	toolProfiles map[models.Mode]policy.Profile
}

func key(profile string, mode models.Mode) string { return profile + "\x00" + string(mode) }

// New creates an Engine seeded with the given default records per mode
// (config_policy.go's PolicyConfig, decoded by the caller). Chat mode's
// base tool profile is "research" (web, browser, jobs; no filesystem or
// runtime tools); code mode's is "coding", per
// internal/tools/policy.ProfileDefaults.
func New(defaults map[models.Mode]*models.PolicyRecord) *Engine {
	if defaults == nil {
		defaults = map[models.Mode]*models.PolicyRecord{
			models.ModeChat: models.DefaultPolicyForMode(models.ModeChat),
			models.ModeCode: models.DefaultPolicyForMode(models.ModeCode),
		}
	}
	return &Engine{
		records:  make(map[string]*models.PolicyRecord),
		defaults: defaults,
		resolver: policy.NewResolver(),
		toolProfiles: map[models.Mode]policy.Profile{
			models.ModeChat: policy.ProfileResearch,
			models.ModeCode: policy.ProfileCoding,
		},
	}
}

// GetPolicy returns the effective PolicyRecord for a profile+mode, seeding
// it from the configured default the first time it is requested.
func (e *Engine) GetPolicy(profile string, mode models.Mode) *models.PolicyRecord {
	k := key(profile, mode)

	e.mu.RLock()
	rec, ok := e.records[k]
	e.mu.RUnlock()
	if ok {
		return rec.Clone()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.records[k]; ok {
		return rec.Clone()
	}
	base := e.defaults[mode]
	if base == nil {
		base = models.DefaultPolicyForMode(mode)
	}
	seeded := base.Clone()
	e.records[k] = seeded
	return seeded.Clone()
}

// SetDefaults replaces the per-mode default records used to seed profiles
// on first access. Profiles already seeded keep their current records until
// an explicit SetPolicy.
func (e *Engine) SetDefaults(defaults map[models.Mode]*models.PolicyRecord) {
	if defaults == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults = defaults
}

// SetPolicy replaces the effective PolicyRecord for a profile+mode. This is
// the only way a policy changes; phases never mutate it implicitly.
func (e *Engine) SetPolicy(profile string, record *models.PolicyRecord) {
	if record == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records[key(profile, record.Mode)] = record.Clone()
}

// Check evaluates one action against a profile+mode's current snapshot.
// Purely functional given the snapshot: it never mutates policy
// state, so callers may cache the snapshot across an entire turn if they
// wish (the scheduler does not, for simplicity, but nothing prevents it).
func (e *Engine) Check(profile string, mode models.Mode, action Action) Decision {
	rec := e.GetPolicy(profile, mode)

	// Explicit per-tool overrides win over the mode's base tool profile in
	// either direction: a chat-mode deployment can enable a normally-code-only
	// tool, and vice versa.
	if enabled, explicit := rec.ToolEnables[action.ToolName]; explicit {
		if !enabled {
			return Decision{Allowed: false, Reason: "tool disabled by policy: " + action.ToolName}
		}
	} else {
		toolPolicy := policy.NewPolicy(e.toolProfiles[mode])
		if d := e.resolver.Decide(toolPolicy, action.ToolName); !d.Allowed {
			return Decision{Allowed: false, Reason: d.Reason}
		}
	}

	if mode == models.ModeChat && action.IsWrite {
		return Decision{Allowed: false, Reason: "chat mode rejects all filesystem-write tools by default"}
	}
	if action.IsWrite && !rec.AllowWrites {
		return Decision{Allowed: false, Reason: "writes disabled for this profile/mode"}
	}
	if action.IsWrite {
		if !pathsAllowed(action.WritePaths, rec.AllowedWritePaths) {
			return Decision{Allowed: false, RequireConfirm: true, Reason: "target path outside allowed_write_paths"}
		}
		if rec.RequireConfirm {
			// Both checks are required when enabled:
			// in-allowlist writes still need a resolved Permission Request.
			return Decision{Allowed: true, RequireConfirm: true, Reason: "write requires confirmation"}
		}
	}
	return Decision{Allowed: true}
}

func pathsAllowed(targets, allowed []string) bool {
	if len(allowed) == 0 {
		return len(targets) == 0
	}
	for _, t := range targets {
		ok := false
		for _, a := range allowed {
			if withinRoot(a, t) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func withinRoot(root, target string) bool {
	if root == target {
		return true
	}
	if len(target) > len(root) && target[:len(root)] == root && target[len(root)] == '/' {
		return true
	}
	return false
}
