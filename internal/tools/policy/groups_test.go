package policy

import (
	"slices"
	"testing"
)

func TestExpandGroups(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		contains []string // tools that should be present
		excludes []string // tools that should NOT be present
	}{
		{
			name:     "expand single group",
			input:    []string{"group:fs"},
			contains: []string{"read", "write", "edit", "apply_patch"},
		},
		{
			name:     "expand runtime group",
			input:    []string{"group:runtime"},
			contains: []string{"exec", "process"},
		},
		{
			name:     "expand multiple groups",
			input:    []string{"group:fs", "group:web"},
			contains: []string{"read", "write", "edit", "web_search", "web_fetch"},
		},
		{
			name:     "pass through direct tool names",
			input:    []string{"custom_tool", "another_tool"},
			contains: []string{"custom_tool", "another_tool"},
		},
		{
			name:     "mix of groups and tools",
			input:    []string{"group:jobs", "custom_tool"},
			contains: []string{"job_status", "job_cancel", "job_list", "custom_tool"},
		},
		{
			name:     "deduplicate results",
			input:    []string{"group:fs", "read", "write"},
			contains: []string{"read", "write", "edit", "apply_patch"},
		},
		{
			name:     "empty input",
			input:    []string{},
			contains: []string{},
		},
		{
			name:     "unknown group passed through",
			input:    []string{"group:unknown"},
			contains: []string{"group:unknown"},
		},
		{
			name:     "readonly group",
			input:    []string{"group:readonly"},
			contains: []string{"read", "web_search", "browser", "job_status"},
			excludes: []string{"write", "edit", "exec", "job_cancel"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExpandGroups(tt.input)

			for _, expected := range tt.contains {
				if !slices.Contains(result, expected) {
					t.Errorf("expected %q to be in result %v", expected, result)
				}
			}

			for _, excluded := range tt.excludes {
				if slices.Contains(result, excluded) {
					t.Errorf("expected %q to NOT be in result %v", excluded, result)
				}
			}
		})
	}
}

func TestExpandGroupsDeduplication(t *testing.T) {
	input := []string{"group:fs", "read", "group:fs"}
	result := ExpandGroups(input)

	count := 0
	for _, tool := range result {
		if tool == "read" {
			count++
		}
	}

	if count != 1 {
		t.Errorf("expected 'read' to appear exactly once, got %d times in %v", count, result)
	}
}

func TestGetProfilePolicy(t *testing.T) {
	tests := []struct {
		name        string
		profile     string
		expectNil   bool
		expectAllow []string
	}{
		{
			name:        "coding profile",
			profile:     "coding",
			expectAllow: []string{"group:fs", "group:runtime"},
		},
		{
			name:        "research profile",
			profile:     "research",
			expectAllow: []string{"group:web", "group:browser"},
		},
		{
			name:        "minimal profile",
			profile:     "minimal",
			expectAllow: []string{"job_status"},
		},
		{
			name:        "full profile",
			profile:     "full",
			expectAllow: nil, // full profile has no explicit allows
		},
		{
			name:      "unknown profile",
			profile:   "nonexistent",
			expectNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := GetProfilePolicy(tt.profile)

			if tt.expectNil {
				if policy != nil {
					t.Errorf("expected nil policy for profile %q", tt.profile)
				}
				return
			}

			if policy == nil {
				t.Fatalf("expected non-nil policy for profile %q", tt.profile)
			}

			for _, expected := range tt.expectAllow {
				if !slices.Contains(policy.Allow, expected) {
					t.Errorf("expected %q in allow list for profile %q, got %v", expected, tt.profile, policy.Allow)
				}
			}
		})
	}
}

func TestIsGroup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"valid fs group", "group:fs", true},
		{"valid runtime group", "group:runtime", true},
		{"valid web group", "group:web", true},
		{"valid jobs group", "group:jobs", true},
		{"valid readonly group", "group:readonly", true},
		{"invalid group", "group:unknown", false},
		{"regular tool name", "read", false},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGroup(tt.input); got != tt.expected {
				t.Errorf("IsGroup(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGetGroupTools(t *testing.T) {
	tools := GetGroupTools("group:fs")
	if !slices.Contains(tools, "write") {
		t.Fatalf("expected write in group:fs, got %v", tools)
	}

	// Mutating the returned slice must not affect the group definition.
	tools[0] = "mutated"
	if slices.Contains(GetGroupTools("group:fs"), "mutated") {
		t.Fatal("GetGroupTools returned a live reference to the group definition")
	}

	if GetGroupTools("group:unknown") != nil {
		t.Fatal("expected nil for unknown group")
	}
}

func TestListGroups(t *testing.T) {
	groups := ListGroups()
	for _, want := range []string{"group:fs", "group:runtime", "group:web", "group:browser", "group:jobs", "group:readonly"} {
		if !slices.Contains(groups, want) {
			t.Errorf("expected %q in ListGroups result %v", want, groups)
		}
	}
}
