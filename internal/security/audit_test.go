package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pandora-run/pandora/internal/config"
)

func newMinimalConfig() *config.Config {
	return &config.Config{}
}

func TestNewAuditor(t *testing.T) {
	auditor := NewAuditor(AuditOptions{})
	if auditor == nil {
		t.Fatal("NewAuditor returned nil")
	}
}

func TestAuditWorldReadableConfig(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "pandora.yaml")
	if err := os.WriteFile(configPath, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	report, err := RunAudit(AuditOptions{
		ConfigPath:        configPath,
		StateDir:          tmpDir,
		IncludeFilesystem: true,
	})
	if err != nil {
		t.Fatalf("RunAudit failed: %v", err)
	}

	found := false
	for _, f := range report.Findings {
		if f.CheckID == "fs.config_world_readable" {
			found = true
			if f.Severity != SeverityCritical {
				t.Errorf("expected critical severity, got %s", f.Severity)
			}
		}
	}
	if !found {
		t.Error("expected a world-readable config finding")
	}
}

func TestAuditWorldWritableStateDir(t *testing.T) {
	tmpDir := t.TempDir()

	stateDir := filepath.Join(tmpDir, "state")
	if err := os.Mkdir(stateDir, 0777); err != nil {
		t.Fatal(err)
	}
	// Explicitly set permissions to override umask
	if err := os.Chmod(stateDir, 0777); err != nil {
		t.Fatal(err)
	}

	report, err := RunAudit(AuditOptions{
		StateDir:          stateDir,
		IncludeFilesystem: true,
	})
	if err != nil {
		t.Fatalf("RunAudit failed: %v", err)
	}

	found := false
	for _, f := range report.Findings {
		if f.CheckID == "fs.state_dir_world_writable" {
			found = true
			if f.Severity != SeverityCritical {
				t.Errorf("expected critical severity, got %s", f.Severity)
			}
		}
	}
	if !found {
		t.Error("expected a world-writable state dir finding")
	}
}

func TestAuditTightPermissionsClean(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "pandora.yaml")
	if err := os.WriteFile(configPath, []byte("version: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(tmpDir, 0700); err != nil {
		t.Fatal(err)
	}

	report, err := RunAudit(AuditOptions{
		ConfigPath:        configPath,
		StateDir:          tmpDir,
		IncludeFilesystem: true,
	})
	if err != nil {
		t.Fatalf("RunAudit failed: %v", err)
	}

	if report.HasCritical() {
		t.Errorf("expected no critical findings for 0600/0700 permissions, got %+v", report.Findings)
	}
}

func TestReportSummaryCounts(t *testing.T) {
	summary := computeSummary([]AuditFinding{
		{CheckID: "a", Severity: SeverityCritical},
		{CheckID: "b", Severity: SeverityCritical},
		{CheckID: "c", Severity: SeverityWarn},
		{CheckID: "d", Severity: SeverityInfo},
	})

	if summary.Critical != 2 || summary.Warn != 1 || summary.Info != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestHasHighOrAbove(t *testing.T) {
	report := &AuditReport{Findings: []AuditFinding{{Severity: SeverityInfo}}}
	if report.HasHighOrAbove() {
		t.Error("info-only report should not count as high")
	}
	report.Findings = append(report.Findings, AuditFinding{Severity: SeverityCritical})
	if !report.HasHighOrAbove() {
		t.Error("critical finding should count as high")
	}
}

func TestContainsEmbeddedPassword(t *testing.T) {
	cases := map[string]bool{
		"postgres://user:hunter2@db:5432/pandora": true,
		"postgres://user:${DB_PASS}@db:5432/x":    false,
		"postgres://db:5432/pandora":              false,
		"":                                        false,
	}
	for url, want := range cases {
		if got := containsEmbeddedPassword(url); got != want {
			t.Errorf("containsEmbeddedPassword(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestAuditGatewayConfigFlagsBindAll(t *testing.T) {
	cfg := newMinimalConfig()
	cfg.Server.Host = "0.0.0.0"

	findings := AuditGatewayConfig(cfg)
	found := false
	for _, f := range findings {
		if f.CheckID == "config.gateway.bind_all" {
			found = true
			if !strings.Contains(f.Detail, "0.0.0.0") {
				t.Error("finding should name the bound host")
			}
		}
	}
	if !found {
		t.Error("expected a bind-all finding")
	}
}
