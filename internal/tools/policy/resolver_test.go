package policy

import (
	"slices"
	"strings"
	"testing"
)

func TestResolverDenyWins(t *testing.T) {
	resolver := NewResolver()
	p := &Policy{Allow: []string{"group:fs"}, Deny: []string{"write"}}

	if resolver.IsAllowed(p, "write") {
		t.Fatal("deny rule should override group allow")
	}
	if !resolver.IsAllowed(p, "read") {
		t.Fatal("read should still be allowed by group:fs")
	}

	d := resolver.Decide(p, "write")
	if !strings.Contains(d.Reason, "denied by rule") {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}
}

func TestResolverProfileDefaults(t *testing.T) {
	resolver := NewResolver()

	research := NewPolicy(ProfileResearch)
	if !resolver.IsAllowed(research, "web_search") {
		t.Fatal("research profile should allow web_search")
	}
	if !resolver.IsAllowed(research, "browser") {
		t.Fatal("research profile should allow browser")
	}
	if resolver.IsAllowed(research, "write") {
		t.Fatal("research profile must not allow write")
	}
	if resolver.IsAllowed(research, "exec") {
		t.Fatal("research profile must not allow exec")
	}

	coding := NewPolicy(ProfileCoding)
	for _, tool := range []string{"read", "write", "edit", "exec", "web_fetch", "browser", "job_status"} {
		if !resolver.IsAllowed(coding, tool) {
			t.Errorf("coding profile should allow %s", tool)
		}
	}
}

func TestResolverFullProfile(t *testing.T) {
	resolver := NewResolver()
	p := NewPolicy(ProfileFull).WithDeny("exec")

	if !resolver.IsAllowed(p, "anything_at_all") {
		t.Fatal("full profile should allow unknown tools")
	}
	if resolver.IsAllowed(p, "exec") {
		t.Fatal("explicit deny should still apply under full profile")
	}
}

func TestResolverAliases(t *testing.T) {
	resolver := NewResolver()
	p := &Policy{Allow: []string{"exec"}}

	// Built-in alias.
	if !resolver.IsAllowed(p, "bash") {
		t.Fatal("bash should resolve to exec")
	}

	// Runtime-registered alias.
	resolver.RegisterAlias("run_command", "exec")
	if !resolver.IsAllowed(p, "run_command") {
		t.Fatal("registered alias should resolve to exec")
	}
}

func TestResolverCustomGroup(t *testing.T) {
	resolver := NewResolver()
	resolver.AddGroup("group:custom", []string{"frob", "twiddle"})

	p := &Policy{Allow: []string{"group:custom"}}
	if !resolver.IsAllowed(p, "frob") {
		t.Fatal("custom group member should be allowed")
	}
	if resolver.IsAllowed(p, "other") {
		t.Fatal("non-member should not be allowed")
	}
}

func TestResolverPrefixPattern(t *testing.T) {
	resolver := NewResolver()
	p := &Policy{Allow: []string{"job_*"}}

	if !resolver.IsAllowed(p, "job_status") {
		t.Fatal("job_status should match job_*")
	}
	if !resolver.IsAllowed(p, "job_cancel") {
		t.Fatal("job_cancel should match job_*")
	}
	if resolver.IsAllowed(p, "read") {
		t.Fatal("read should not match job_*")
	}
}

func TestResolverNilPolicy(t *testing.T) {
	resolver := NewResolver()
	d := resolver.Decide(nil, "read")
	if d.Allowed {
		t.Fatal("nil policy must deny")
	}
	if d.Reason != "no policy configured" {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}
}

func TestFilterAllowed(t *testing.T) {
	resolver := NewResolver()
	p := NewPolicy(ProfileResearch)

	got := resolver.FilterAllowed(p, []string{"read", "write", "web_search", "exec", "browser"})
	want := []string{"read", "web_search", "browser"}
	if !slices.Equal(got, want) {
		t.Fatalf("FilterAllowed = %v, want %v", got, want)
	}
}

func TestMerge(t *testing.T) {
	a := &Policy{Profile: ProfileResearch, Allow: []string{"read"}}
	b := &Policy{Profile: ProfileCoding, Deny: []string{"exec"}}

	merged := Merge(a, nil, b)
	if merged.Profile != ProfileCoding {
		t.Fatalf("last profile should win, got %q", merged.Profile)
	}
	if !slices.Contains(merged.Allow, "read") {
		t.Fatal("allow lists should accumulate")
	}
	if !slices.Contains(merged.Deny, "exec") {
		t.Fatal("deny lists should accumulate")
	}
}
