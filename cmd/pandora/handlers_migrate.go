package main

import (
	"fmt"
	"path/filepath"

	"github.com/pandora-run/pandora/internal/config"
	"github.com/pandora-run/pandora/internal/security"
	"github.com/pandora-run/pandora/internal/turndoc"
	"github.com/pandora-run/pandora/internal/workspace"
)

// runMigrate bootstraps the on-disk Turn Document tree and opens (creating
// if absent) the SQLite recall index for the active profile, without
// starting the gateway.
func runMigrate(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("load config: %w", err)}
	}

	prof := profileNameOrDefault()

	layout, err := workspace.Bootstrap(cfg.Storage.Root, prof)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("bootstrap workspace: %w", err)}
	}

	indexPath := filepath.Join(layout.IndexesDir(), "index.db")
	sqliteIndex, err := turndoc.OpenSQLiteIndex(indexPath)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("open recall index: %w", err)}
	}
	defer sqliteIndex.Close()

	fmt.Printf("profile %q initialized\n", prof)
	fmt.Printf("  turns:  %s\n", layout.TurnsDir())
	fmt.Printf("  index:  %s\n", indexPath)

	// Surface permission and config problems now, while there is a human at
	// the terminal, rather than at first serve.
	report, err := security.RunAudit(security.AuditOptions{
		StateDir:          cfg.Storage.Root,
		ConfigPath:        configPath,
		Config:            cfg,
		IncludeFilesystem: true,
		IncludeGateway:    true,
		IncludeConfig:     true,
		CheckSymlinks:     true,
	})
	if err != nil {
		return fmt.Errorf("security audit: %w", err)
	}
	for _, f := range report.Findings {
		fmt.Printf("  [%s] %s: %s\n", f.Severity, f.CheckID, f.Title)
	}
	if report.HasCritical() {
		fmt.Println("critical findings above; fix before serving")
	}
	return nil
}
