package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "pandora.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
version: 1
llm:
  providers:
    anthropic:
      api_key: sk-test
tools:
  files:
    workspace: `+dir+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected default http_port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.ShutdownGrace != 15*time.Second {
		t.Errorf("expected default shutdown_grace 15s, got %s", cfg.Server.ShutdownGrace)
	}
	if cfg.Trace.TraceTTL != 10*time.Minute {
		t.Errorf("expected default trace_ttl 10m, got %s", cfg.Trace.TraceTTL)
	}
	if cfg.Trace.InterventionTTL != 15*time.Minute {
		t.Errorf("expected default intervention_ttl 15m, got %s", cfg.Trace.InterventionTTL)
	}
	if cfg.Scheduler.BrowserPoolSize != 2 {
		t.Errorf("expected default browser_pool_size 2, got %d", cfg.Scheduler.BrowserPoolSize)
	}
	if cfg.Tools.Exec.MaxOutputBytes != 64000 {
		t.Errorf("expected default max_output_bytes 64000, got %d", cfg.Tools.Exec.MaxOutputBytes)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("expected default_provider anthropic, got %q", cfg.LLM.DefaultProvider)
	}
}

func TestLoad_MissingWorkspaceRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
version: 1
llm:
  providers:
    anthropic:
      api_key: sk-test
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error when tools.files.workspace is unset")
	}
}

func TestLoad_UnknownDefaultProviderRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
version: 1
llm:
  default_provider: openai
  providers:
    anthropic:
      api_key: sk-test
tools:
  files:
    workspace: `+dir+`
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for default_provider with no matching entry")
	}
}

func TestLoad_EnvOverridesAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
version: 1
llm:
  providers:
    anthropic:
      api_key: sk-placeholder
tools:
  files:
    workspace: `+dir+`
`)

	t.Setenv("PANDORA_LLM_ANTHROPIC_API_KEY", "sk-from-env")
	t.Setenv("PANDORA_HTTP_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-from-env" {
		t.Errorf("expected env override to replace api_key, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
	if cfg.Server.HTTPPort != 9999 {
		t.Errorf("expected PANDORA_HTTP_PORT override, got %d", cfg.Server.HTTPPort)
	}
}

func TestLoad_RejectsMissingVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
tools:
  files:
    workspace: `+dir+`
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing version field")
	}
}

func TestSchedulerConfig_PhaseTimeout(t *testing.T) {
	sc := SchedulerConfig{
		PhaseTimeouts: map[string]time.Duration{"planner": 5 * time.Second},
	}
	if got := sc.PhaseTimeout("planner"); got != 5*time.Second {
		t.Errorf("expected configured override 5s, got %s", got)
	}
	if got := sc.PhaseTimeout("query_analyzer"); got != DefaultPhaseTimeout {
		t.Errorf("expected default phase timeout, got %s", got)
	}
	if got := sc.PhaseTimeout("executor"); got != DefaultExecutorTimeout {
		t.Errorf("expected default executor timeout, got %s", got)
	}
}
