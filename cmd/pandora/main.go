// Package main provides the CLI entry point for the Pandora turn
// orchestration engine.
//
// Pandora drives an 8-phase pipeline (query analysis, reflection, context
// gathering, planning, execution, coordination, synthesis, validation) over
// a per-turn Turn Document store, streaming progress through the Trace Hub
// and exposing it through the Streaming Gateway.
//
// # Basic Usage
//
// Start the server:
//
//	pandora serve --config pandora.yaml
//
// Initialize on-disk stores for a profile:
//
//	pandora migrate --profile default
//
// Cancel a running trace or job against a live server:
//
//	pandora admin cancel trace <trace_id>
//	pandora admin cancel job <job_id>
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pandora-run/pandora/internal/profile"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	profileName string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pandora",
		Short: "Pandora turn orchestration engine",
		Long: `Pandora runs a multi-phase AI assistant pipeline over a per-turn,
on-disk Turn Document store, streaming phase-by-phase progress through the
Trace Hub and exposing it over HTTP/SSE/WS.

CLI surface is intentionally thin: serve, migrate, and admin cancel.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Profile name (uses ~/.pandora/profiles/<name>.yaml; or set PANDORA_PROFILE)")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildAdminCmd(),
	)
	return rootCmd
}

// resolveConfigPath follows the active --profile/PANDORA_PROFILE flag to a
// concrete config path, falling back to the explicit path if one was given.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" && path != profile.DefaultConfigName {
		return path
	}
	active := strings.TrimSpace(profileName)
	if active == "" {
		active = strings.TrimSpace(os.Getenv("PANDORA_PROFILE"))
	}
	if active != "" {
		return profile.ProfileConfigPath(active)
	}
	return profile.DefaultConfigPath()
}

// badArgsError marks a command failure as a usage error (exit code 2).
type badArgsError struct{ err error }

func (e badArgsError) Error() string { return e.err.Error() }
func (e badArgsError) Unwrap() error { return e.err }

// storeUnavailableError marks a command failure as a backing-store failure
// (exit code 3): config/workspace bootstrap or index open failed.
type storeUnavailableError struct{ err error }

func (e storeUnavailableError) Error() string { return e.err.Error() }
func (e storeUnavailableError) Unwrap() error { return e.err }

// exitCodeFor maps a top-level command failure onto the process exit codes:
// 0 ok, 2 bad args, 3 backing store unavailable.
func exitCodeFor(err error) int {
	var badArgs badArgsError
	if errors.As(err, &badArgs) {
		return 2
	}
	var storeErr storeUnavailableError
	if errors.As(err, &storeErr) {
		return 3
	}
	return 1
}
