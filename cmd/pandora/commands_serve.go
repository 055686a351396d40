package main

import (
	"github.com/spf13/cobra"

	"github.com/pandora-run/pandora/internal/profile"
)

// buildServeCmd creates the "serve" command that starts the Streaming
// Gateway and every component it fronts.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Pandora gateway server",
		Long: `Start the Pandora gateway server.

The server will:
1. Load configuration from the specified file (or the active profile's)
2. Bootstrap the on-disk Turn Document tree and SQLite recall index
3. Build the LLM provider pool, Tool Router, and Policy Engine
4. Start the Trace Hub/Job Registry/Intervention Broker sweepers
5. Start the Pipeline Scheduler and the HTTP/SSE/WS gateway

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with the default profile's config
  pandora serve

  # Start with an explicit config file
  pandora serve --config ./pandora.yaml

  # Start with debug logging
  pandora serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", profile.DefaultConfigPath(),
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}
