// Package policy provides tool authorization primitives: profiles, named
// tool groups, and allow/deny policies the Policy Engine evaluates before
// the Tool Router dispatches a call.
package policy

import (
	"strings"
)

// Profile is a pre-configured tool access level. Chat-mode turns run under
// ProfileResearch (web, browser, job introspection; no filesystem writes,
// no shell); code-mode turns run under ProfileCoding.
type Profile string

const (
	// ProfileMinimal allows only job introspection.
	ProfileMinimal Profile = "minimal"

	// ProfileResearch allows web, browser, and job tools plus file reads.
	ProfileResearch Profile = "research"

	// ProfileCoding allows filesystem, runtime, web, and browser tools.
	ProfileCoding Profile = "coding"

	// ProfileFull allows all tools (except explicitly denied).
	ProfileFull Profile = "full"
)

// Policy defines tool access rules, combining a base profile with explicit
// allow and deny lists. Deny rules always take precedence over allow rules.
type Policy struct {
	// Profile is a pre-configured access level.
	Profile Profile `json:"profile,omitempty" yaml:"profile"`

	// Allow explicitly allows these tools (in addition to profile).
	Allow []string `json:"allow,omitempty" yaml:"allow"`

	// Deny explicitly denies these tools (overrides allow).
	Deny []string `json:"deny,omitempty" yaml:"deny"`
}

// ToolGroups defines named groups of tools for easier policy configuration.
// Group names use the "group:" prefix to distinguish them from tool names.
var ToolGroups = map[string][]string{
	// Filesystem tools
	"group:fs": {"read", "write", "edit", "apply_patch"},

	// Runtime/execution tools
	"group:runtime": {"exec", "process"},

	// Web search and fetch
	"group:web": {"web_search", "web_fetch"},

	// Browser automation
	"group:browser": {"browser"},

	// Background job introspection
	"group:jobs": {"job_status", "job_cancel", "job_list"},

	// Read-only tools that never modify local state
	"group:readonly": {
		"read",
		"web_search", "web_fetch",
		"browser",
		"job_status", "job_list",
	},
}

// ProfileDefaults defines the default allow lists for each profile.
var ProfileDefaults = map[Profile]*Policy{
	ProfileMinimal: {
		Allow: []string{"job_status", "job_list"},
	},
	ProfileResearch: {
		Allow: []string{"group:web", "group:browser", "group:jobs", "read"},
	},
	ProfileCoding: {
		Allow: []string{"group:fs", "group:runtime", "group:web", "group:browser", "group:jobs"},
	},
	ProfileFull: {
		// Full profile allows everything not explicitly denied.
	},
}

// ToolAliases maps alternative names to canonical tool names.
var ToolAliases = map[string]string{
	"bash":        "exec",
	"shell":       "exec",
	"patch":       "apply_patch",
	"apply-patch": "apply_patch",
	"websearch":   "web_search",
	"webfetch":    "web_fetch",
}

// NormalizeTool normalizes a tool name to its canonical form by converting
// to lowercase and resolving known aliases.
func NormalizeTool(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := ToolAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// NormalizeTools normalizes a list of tool names to their canonical forms.
func NormalizeTools(names []string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		normalized := NormalizeTool(name)
		if normalized != "" {
			result = append(result, normalized)
		}
	}
	return result
}

// NewPolicy creates a new policy with the given profile as a base.
func NewPolicy(profile Profile) *Policy {
	return &Policy{Profile: profile}
}

// WithAllow adds tools to the allow list and returns the policy for chaining.
func (p *Policy) WithAllow(tools ...string) *Policy {
	p.Allow = append(p.Allow, tools...)
	return p
}

// WithDeny adds tools to the deny list and returns the policy for chaining.
func (p *Policy) WithDeny(tools ...string) *Policy {
	p.Deny = append(p.Deny, tools...)
	return p
}
