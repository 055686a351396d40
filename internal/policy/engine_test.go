package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pandora-run/pandora/pkg/models"
)

func TestChatModeRejectsWritesByDefault(t *testing.T) {
	e := New(nil)
	d := e.Check("alice", models.ModeChat, Action{ToolName: "write", IsWrite: true, WritePaths: []string{"/work/a.txt"}})
	require.False(t, d.Allowed)
}

func TestCodeModeRequiresConfirmInsideAllowlist(t *testing.T) {
	e := New(nil)
	rec := models.DefaultPolicyForMode(models.ModeCode)
	rec.AllowedWritePaths = []string{"/work"}
	e.SetPolicy("bob", rec)

	d := e.Check("bob", models.ModeCode, Action{ToolName: "write", IsWrite: true, WritePaths: []string{"/work/a.txt"}})
	require.True(t, d.Allowed)
	require.True(t, d.RequireConfirm)
}

func TestCodeModeDeniesWriteOutsideAllowlist(t *testing.T) {
	e := New(nil)
	rec := models.DefaultPolicyForMode(models.ModeCode)
	rec.AllowedWritePaths = []string{"/work"}
	e.SetPolicy("bob", rec)

	d := e.Check("bob", models.ModeCode, Action{ToolName: "write", IsWrite: true, WritePaths: []string{"/etc/passwd"}})
	require.False(t, d.Allowed)
	require.True(t, d.RequireConfirm)
}

func TestExplicitToolDisableOverridesProfile(t *testing.T) {
	e := New(nil)
	rec := models.DefaultPolicyForMode(models.ModeCode)
	rec.ToolEnables["exec"] = false
	e.SetPolicy("carol", rec)

	d := e.Check("carol", models.ModeCode, Action{ToolName: "exec"})
	require.False(t, d.Allowed)
}

func TestExplicitToolEnableOverridesChatProfile(t *testing.T) {
	e := New(nil)
	rec := models.DefaultPolicyForMode(models.ModeChat)
	rec.ToolEnables["exec"] = true
	e.SetPolicy("dave", rec)

	d := e.Check("dave", models.ModeChat, Action{ToolName: "exec"})
	require.True(t, d.Allowed)
}

func TestResearchToolsAllowedInChatModeByDefault(t *testing.T) {
	e := New(nil)
	for _, tool := range []string{"web_search", "web_fetch", "browser", "read"} {
		d := e.Check("erin", models.ModeChat, Action{ToolName: tool})
		require.True(t, d.Allowed, "chat mode should allow %s", tool)
	}

	d := e.Check("erin", models.ModeChat, Action{ToolName: "exec"})
	require.False(t, d.Allowed, "chat mode must not allow exec")
}

func TestGetPolicySeedsAndReturnsIndependentClones(t *testing.T) {
	e := New(nil)
	first := e.GetPolicy("frank", models.ModeCode)
	first.AllowWrites = false

	second := e.GetPolicy("frank", models.ModeCode)
	require.True(t, second.AllowWrites, "mutating a returned clone must not affect the stored record")
}
