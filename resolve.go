package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve-conflict <conflict-id> <local|remote|both|manual>",
		Short: "Resolve one pending conflict",
		Args:  cobra.ExactArgs(2),
		RunE:  runResolve,
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	conflictID, resolution := args[0], args[1]

	switch resolution {
	case "local", "remote", "both", "manual":
	default:
		return fmt.Errorf("unknown resolution %q: expected local, remote, both, or manual", resolution)
	}

	cc := mustCLIContext(cmd.Context())

	if _, err := callControl(cmd.Context(), cc.DataDir, ctlRequest{
		Op:         "resolve_conflict",
		ConflictID: conflictID,
		Resolution: resolution,
	}); err != nil {
		return err
	}

	statusf(flagQuiet, "resolved %s as %s\n", conflictID, resolution)

	return nil
}
