package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts [folder]",
		Short: "List unresolved conflicts for a folder, or every folder",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConflicts,
	}
}

func runConflicts(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	folderID, err := resolveFolderArg(cc, args)
	if err != nil {
		return err
	}

	resp, err := callControl(cmd.Context(), cc.DataDir, ctlRequest{Op: "conflicts", FolderID: folderID})
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(resp.Conflicts)
	}

	if len(resp.Conflicts) == 0 {
		fmt.Println("no unresolved conflicts")

		return nil
	}

	headers := []string{"CONFLICT ID", "FOLDER", "PATH", "DETECTED"}

	rows := make([][]string, 0, len(resp.Conflicts))

	for _, c := range resp.Conflicts {
		rows = append(rows, []string{c.ConflictID, c.FolderID, c.RelativePath, formatTime(c.DetectedAt)})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}
