package main

import (
	"github.com/spf13/cobra"

	"github.com/pandora-run/pandora/internal/profile"
)

// buildMigrateCmd creates the "migrate" command that initializes the
// on-disk Turn Document tree and relational recall index for a profile
// ahead of the first `serve` run.
func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Initialize on-disk stores for a profile",
		Long: `Bootstrap the Turn Document tree (turns/, indexes/) and the SQLite
recall index for a profile, without starting the gateway.

Safe to re-run: directory creation and table migration are idempotent.`,
		Example: `  # Initialize the active profile's stores
  pandora migrate

  # Initialize a named profile
  pandora migrate --profile research`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runMigrate(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", profile.DefaultConfigPath(),
		"Path to YAML configuration file")

	return cmd
}
