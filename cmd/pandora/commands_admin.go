package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// buildAdminCmd creates the "admin" command group for operating against a
// running gateway.
func buildAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operate against a running Pandora gateway",
	}
	cmd.AddCommand(buildAdminCancelCmd())
	return cmd
}

func buildAdminCancelCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "cancel <trace|job> <id>",
		Short: "Cancel a running trace or job on a live gateway",
		Long: `Cancel a running trace or job against a live gateway instance.

"trace" cancels via POST /v1/thinking/{trace_id}/cancel, which also cancels
the job started for that trace, if any. "job" cancels via
POST /jobs/{job_id}/cancel, which also marks the owning trace cancelled.`,
		Example: `  pandora admin cancel trace trc_01hq...
  pandora admin cancel job job_01hq... --addr http://localhost:8080`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id := args[0], args[1]
			if kind != "trace" && kind != "job" {
				return badArgsError{fmt.Errorf("unknown cancel target %q: must be %q or %q", kind, "trace", "job")}
			}
			if strings.TrimSpace(id) == "" {
				return badArgsError{fmt.Errorf("missing %s id", kind)}
			}
			return runAdminCancel(cmd.Context(), addr, kind, id)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Gateway base URL")
	return cmd
}
